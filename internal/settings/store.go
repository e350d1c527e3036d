// Package settings stores the user's notification preferences.
package settings

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/nugget/taskbuddy/internal/opstate"
)

const (
	stateNamespace = "user_settings"
	keyEmail       = "email_notifications"
	keyPush        = "push_notifications"
)

// Settings holds the notification channel toggles.
type Settings struct {
	EmailNotifications map[string]bool `json:"email_notifications"`
	PushNotifications  map[string]bool `json:"push_notifications"`
}

// Patch replaces whole top-level groups. A nil map leaves the stored
// group untouched; callers merge individual channels themselves.
type Patch struct {
	EmailNotifications map[string]bool `json:"email_notifications,omitempty"`
	PushNotifications  map[string]bool `json:"push_notifications,omitempty"`
}

// Defaults returns the settings of a user who has never changed them.
func Defaults() Settings {
	return Settings{
		EmailNotifications: map[string]bool{
			"taskUpdates":       true,
			"teamMentions":      true,
			"deadlineReminders": true,
			"weeklyDigest":      false,
		},
		PushNotifications: map[string]bool{
			"browserPush": true,
			"mobilePush":  false,
		},
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	return Settings{
		EmailNotifications: maps.Clone(s.EmailNotifications),
		PushNotifications:  maps.Clone(s.PushNotifications),
	}
}

// Store keeps settings in the operational state store with a cached
// copy for synchronous reads. Updates are serialized.
type Store struct {
	state *opstate.Store

	mu      sync.RWMutex
	current Settings
}

// NewStore loads stored settings over the defaults.
func NewStore(ctx context.Context, state *opstate.Store) (*Store, error) {
	cur := Defaults()
	for key, dst := range map[string]map[string]bool{
		keyEmail: cur.EmailNotifications,
		keyPush:  cur.PushNotifications,
	} {
		var stored map[string]bool
		found, err := state.GetJSON(ctx, stateNamespace, key, &stored)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if found {
			maps.Copy(dst, stored)
		}
	}
	return &Store{state: state, current: cur}, nil
}

// CurrentSettings returns a copy of the cached settings.
func (s *Store) CurrentSettings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// UpdateSettings persists the non-nil groups of patch.
func (s *Store) UpdateSettings(ctx context.Context, patch Patch) error {
	if patch.EmailNotifications == nil && patch.PushNotifications == nil {
		return fmt.Errorf("update settings: empty patch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if patch.EmailNotifications != nil {
		if err := s.state.SetJSON(ctx, stateNamespace, keyEmail, patch.EmailNotifications); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		next.EmailNotifications = maps.Clone(patch.EmailNotifications)
	}
	if patch.PushNotifications != nil {
		if err := s.state.SetJSON(ctx, stateNamespace, keyPush, patch.PushNotifications); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		next.PushNotifications = maps.Clone(patch.PushNotifications)
	}
	s.current = next
	return nil
}
