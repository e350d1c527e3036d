package extract

import (
	"regexp"
	"strings"

	"github.com/nugget/taskbuddy/internal/profile"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	inviteNamePattern = regexp.MustCompile(`(?i)\b(?:invite|add)\s+([^@]+?)\s+(?:to|at|with\s+email)\b`)
	namedPattern      = regexp.MustCompile(`(?i)\bname\s+(?:is\s+)?([^@,;]+)`)
	nameStop          = regexp.MustCompile(`(?i)\s+(?:and|with|at|email)\b.*$`)

	themePattern = regexp.MustCompile(`(?i)\b(?:change|set|switch)\s+(?:the\s+|my\s+)?theme\s+(?:to\s+)?([a-z]+)`)

	profileNamePattern = regexp.MustCompile(`(?i)\b(?:full\s+)?name\s+(?:(?:to|as|is)\b)?\s*(.+)`)
	profileToPattern   = regexp.MustCompile(`(?i)\bprofile\s+(?:name\s+)?to\s+(.+)`)
	profileBioPattern  = regexp.MustCompile(`(?i)\bbio\s+(?:(?:to|as|is)\b)?\s*(.+)`)
	beforeBioClause    = regexp.MustCompile(`(?i)\s+and\s+(?:(?:set|update|change)\s+)?(?:my\s+)?bio\b.*$`)
	beforeNameClause   = regexp.MustCompile(`(?i)\s+and\s+(?:(?:set|update|change)\s+)?(?:my\s+)?(?:full\s+)?name\b.*$`)
)

// genericInvitee words describe the invitee without naming them.
var genericInvitee = map[string]bool{
	"a": true, "an": true, "the": true, "new": true, "my": true,
	"team": true, "member": true, "members": true, "user": true, "users": true,
	"someone": true, "somebody": true, "person": true, "teammate": true,
	"colleague": true, "please": true, "named": true, "called": true,
}

// Invitee extracts the email address and display name of a team
// invitation. The name defaults to the address local-part; email is
// empty when no address is present.
func Invitee(utterance string) (email, name string) {
	email = emailPattern.FindString(utterance)
	if email == "" {
		return "", ""
	}

	if m := inviteNamePattern.FindStringSubmatch(utterance); m != nil {
		name = cleanName(m[1])
	}
	if name == "" {
		if m := namedPattern.FindStringSubmatch(utterance); m != nil {
			name = cleanName(nameStop.ReplaceAllString(m[1], ""))
		}
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return email, name
}

// cleanName drops descriptive words around a captured name.
func cleanName(s string) string {
	words := strings.Fields(strings.Trim(strings.TrimSpace(s), trimChars))
	for len(words) > 0 && genericInvitee[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && genericInvitee[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// ThemeToken returns the lower-cased word naming the requested theme,
// or "" when the request names none.
func ThemeToken(utterance string) string {
	m := themePattern.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	token := strings.ToLower(m[1])
	if token == "to" {
		return ""
	}
	return token
}

// ProfileFields extracts the name and bio changes of a profile request.
// Either, both, or neither may be present.
func ProfileFields(utterance string) profile.Patch {
	var p profile.Patch

	if m := profileNamePattern.FindStringSubmatch(utterance); m != nil {
		if v := fieldValue(beforeBioClause.ReplaceAllString(m[1], "")); v != "" {
			p.FullName = &v
		}
	}
	if p.FullName == nil {
		if m := profileToPattern.FindStringSubmatch(utterance); m != nil {
			if v := fieldValue(beforeBioClause.ReplaceAllString(m[1], "")); v != "" {
				p.FullName = &v
			}
		}
	}
	if m := profileBioPattern.FindStringSubmatch(utterance); m != nil {
		if v := fieldValue(beforeNameClause.ReplaceAllString(m[1], "")); v != "" {
			p.Bio = &v
		}
	}
	return p
}

func fieldValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), trimChars))
}
