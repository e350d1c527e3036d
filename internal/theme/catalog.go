// Package theme holds the fixed catalog of visual themes and the service
// that tracks which one is active.
package theme

import (
	"fmt"
	"strings"
)

// Entry is one selectable theme.
type Entry struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// CSSClass is the root class the chat surface applies for this theme.
func (e Entry) CSSClass() string {
	return "theme-" + e.Key
}

// Catalog is an ordered, read-only list of themes plus a table of
// alternate words that resolve to a theme key.
type Catalog struct {
	entries []Entry
	aliases map[string]string
}

var defaultEntries = []Entry{
	{Key: "light", Label: "Light", Description: "Clean and bright interface"},
	{Key: "dark", Label: "Dark", Description: "Easy on the eyes"},
	{Key: "blue", Label: "Ocean Blue", Description: "Professional blue theme"},
	{Key: "green", Label: "Forest Green", Description: "Nature-inspired green theme"},
	{Key: "purple", Label: "Royal Purple", Description: "Elegant purple theme"},
	{Key: "orange", Label: "Sunset Orange", Description: "Warm orange theme"},
	{Key: "red", Label: "Crimson Red", Description: "Bold and energetic red theme"},
	{Key: "yellow", Label: "Golden Yellow", Description: "Bright and cheerful yellow theme"},
	{Key: "pink", Label: "Rose Pink", Description: "Soft and modern pink theme"},
	{Key: "teal", Label: "Aqua Teal", Description: "Refreshing teal theme"},
	{Key: "indigo", Label: "Deep Indigo", Description: "Rich and sophisticated indigo theme"},
}

var defaultAliases = map[string]string{
	"ocean":   "blue",
	"forest":  "green",
	"royal":   "purple",
	"sunset":  "orange",
	"crimson": "red",
	"golden":  "yellow",
	"rose":    "pink",
	"aqua":    "teal",
	"deep":    "indigo",
}

// DefaultCatalog returns the built-in eleven-theme catalog.
func DefaultCatalog() Catalog {
	c, err := NewCatalog(defaultEntries, defaultAliases)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog builds a catalog. Keys must be unique and non-empty, and
// every alias must point at an existing key.
func NewCatalog(entries []Entry, aliases map[string]string) (Catalog, error) {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return Catalog{}, fmt.Errorf("theme entry %d has an empty key", i)
		}
		if seen[e.Key] {
			return Catalog{}, fmt.Errorf("duplicate theme key %q", e.Key)
		}
		seen[e.Key] = true
	}
	al := make(map[string]string, len(aliases))
	for word, key := range aliases {
		if !seen[key] {
			return Catalog{}, fmt.Errorf("alias %q points at unknown theme %q", word, key)
		}
		al[strings.ToLower(word)] = key
	}
	return Catalog{
		entries: append([]Entry(nil), entries...),
		aliases: al,
	}, nil
}

// Entries returns a copy of the catalog in display order.
func (c Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Lookup finds an entry by its exact key.
func (c Catalog) Lookup(key string) (Entry, bool) {
	for _, e := range c.entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve maps a user-supplied word to a theme. Entries are checked in
// catalog order; the first one whose key equals the token, whose label
// contains it, or that the token is an alias for wins.
func (c Catalog) Resolve(token string) (Entry, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return Entry{}, false
	}
	alias := c.aliases[token]
	for _, e := range c.entries {
		if strings.ToLower(e.Key) == token ||
			strings.Contains(strings.ToLower(e.Label), token) ||
			alias == e.Key {
			return e, true
		}
	}
	return Entry{}, false
}
