// Package extract pulls structured parameters out of a classified
// utterance with fixed patterns. Extractors never fail: a required value
// that cannot be found is simply left empty and the caller asks the user
// for it.
package extract

import (
	"strings"

	"github.com/nugget/taskbuddy/internal/intent"
	"github.com/nugget/taskbuddy/internal/profile"
	"github.com/nugget/taskbuddy/internal/tasks"
)

// trimChars are stripped from both ends of extracted values.
const trimChars = `"'“”‘’.!?,;:`

// Scope selects a group of notification channels.
type Scope string

const (
	ScopeNone  Scope = ""
	ScopeEmail Scope = "email"
	ScopePush  Scope = "push"
)

// Channels returns the channel keys a scope toggles together.
func (s Scope) Channels() []string {
	switch s {
	case ScopeEmail:
		return []string{"taskUpdates", "teamMentions", "deadlineReminders"}
	case ScopePush:
		return []string{"browserPush", "mobilePush"}
	default:
		return nil
	}
}

// Toggle is a requested notification change.
type Toggle struct {
	Enable bool
	// Notification is set when the utterance mentions notifications.
	Notification bool
	Scope        Scope
}

// Entities is everything extracted for one utterance. Only the fields
// relevant to the classified intent are populated.
type Entities struct {
	Title    string
	Priority tasks.Priority
	Date     *ResolvedDate

	Email string
	Name  string

	ThemeToken string

	Profile profile.Patch

	Toggle Toggle
}

// Extractor runs the extractors that belong to an intent.
type Extractor struct {
	Dates DateResolver
}

// Extract returns the entities for utterance under the given intent.
func (x Extractor) Extract(in intent.Intent, utterance string) Entities {
	var e Entities
	switch in {
	case intent.CreateTask:
		e.Title = TaskTitle(utterance)
		e.Priority = Priority(utterance)
	case intent.DeleteTask:
		e.Title = DeleteTitle(utterance)
	case intent.CreateEvent:
		e.Title = EventTitle(utterance)
		d := x.Dates.Resolve(utterance)
		e.Date = &d
	case intent.InviteMember:
		e.Email, e.Name = Invitee(utterance)
	case intent.ChangeTheme:
		e.ThemeToken = ThemeToken(utterance)
	case intent.UpdateProfile:
		e.Profile = ProfileFields(utterance)
	case intent.ToggleNotificationSetting:
		e.Toggle = NotificationToggle(utterance)
	}
	return e
}

// Priority reads a task priority; anything unstated is medium.
func Priority(utterance string) tasks.Priority {
	lower := strings.ToLower(utterance)
	switch {
	case strings.Contains(lower, "high priority") || strings.Contains(lower, "priority high"):
		return tasks.PriorityHigh
	case strings.Contains(lower, "low priority") || strings.Contains(lower, "priority low"):
		return tasks.PriorityLow
	default:
		return tasks.PriorityMedium
	}
}

// NotificationToggle reads the verb and channel group of a settings
// request. Disable wins only when "enable" is absent.
func NotificationToggle(utterance string) Toggle {
	lower := strings.ToLower(utterance)
	t := Toggle{
		Enable:       strings.Contains(lower, "enable"),
		Notification: strings.Contains(lower, "notification"),
	}
	switch {
	case strings.Contains(lower, "email"):
		t.Scope = ScopeEmail
	case strings.Contains(lower, "push"):
		t.Scope = ScopePush
	}
	return t
}
