package assistant

import (
	"context"
	"log/slog"
	"maps"

	"github.com/nugget/taskbuddy/internal/calendar"
	"github.com/nugget/taskbuddy/internal/extract"
	"github.com/nugget/taskbuddy/internal/intent"
	"github.com/nugget/taskbuddy/internal/profile"
	"github.com/nugget/taskbuddy/internal/settings"
	"github.com/nugget/taskbuddy/internal/tasks"
	"github.com/nugget/taskbuddy/internal/theme"
)

// TaskStore creates and deletes tasks and exposes the last known task
// list.
type TaskStore interface {
	CreateTask(ctx context.Context, nt tasks.NewTask) (*tasks.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CurrentTasks() []tasks.Task
}

// EventStore creates calendar events.
type EventStore interface {
	CreateEvent(ctx context.Context, ne calendar.NewEvent) (*calendar.Event, error)
}

// TeamDirectory records and sends team invitations.
type TeamDirectory interface {
	InviteMember(ctx context.Context, email, name, role string) error
}

// ProfileStore applies profile changes.
type ProfileStore interface {
	UpdateProfile(ctx context.Context, patch profile.Patch) error
}

// SettingsStore reads and patches notification settings.
type SettingsStore interface {
	CurrentSettings() settings.Settings
	UpdateSettings(ctx context.Context, patch settings.Patch) error
}

// ThemeService exposes the theme catalog and switches the active theme.
type ThemeService interface {
	Catalog() theme.Catalog
	Set(ctx context.Context, key string) error
}

// createdVia is the description given to records made from chat.
const createdVia = "Created via AI Assistant"

// defaultRole is the role of members invited from chat.
const defaultRole = "member"

// OutcomeKind is how an intent was settled.
type OutcomeKind int

const (
	// OutcomeInfo answers without touching any collaborator.
	OutcomeInfo OutcomeKind = iota
	// OutcomeDone means the collaborator call succeeded.
	OutcomeDone
	// OutcomeFailed means the collaborator call was rejected.
	OutcomeFailed
	// OutcomeClarify means a required entity was missing.
	OutcomeClarify
	// OutcomeNotFound means a referenced record or theme does not exist.
	OutcomeNotFound
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInfo:
		return "info"
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeClarify:
		return "clarify"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Outcome is the result of dispatching one intent, carrying whatever
// the response needs to name.
type Outcome struct {
	Intent intent.Intent
	Kind   OutcomeKind

	Title     string
	Priority  tasks.Priority
	DateLabel string

	Email string
	Name  string

	Theme      theme.Entry
	ThemeToken string
	Themes     []theme.Entry

	ProfileFields []string

	Scope  extract.Scope
	Enable bool

	// Called is set when a collaborator was invoked.
	Called bool
	// Err is the collaborator error behind OutcomeFailed. It is logged
	// and never shown to the user.
	Err error
}

// Dispatcher maps an intent and its entities to at most one
// collaborator call.
type Dispatcher struct {
	Tasks    TaskStore
	Events   EventStore
	Team     TeamDirectory
	Profile  ProfileStore
	Settings SettingsStore
	Themes   ThemeService
	Logger   *slog.Logger
}

// Dispatch settles one intent. Collaborator calls run detached from
// ctx cancellation: once issued they complete or fail.
func (d *Dispatcher) Dispatch(ctx context.Context, in intent.Intent, e extract.Entities) Outcome {
	ctx = context.WithoutCancel(ctx)

	switch in {
	case intent.CreateTask:
		return d.createTask(ctx, e)
	case intent.DeleteTask:
		return d.deleteTask(ctx, e)
	case intent.CreateEvent:
		return d.createEvent(ctx, e)
	case intent.InviteMember:
		return d.inviteMember(ctx, e)
	case intent.ChangeTheme:
		return d.changeTheme(ctx, e)
	case intent.ListThemes:
		return Outcome{Intent: intent.ListThemes, Kind: OutcomeInfo, Themes: d.Themes.Catalog().Entries()}
	case intent.UpdateProfile:
		return d.updateProfile(ctx, e)
	case intent.ToggleNotificationSetting:
		return d.toggleNotifications(ctx, e)
	case intent.ExplainPriority, intent.Help:
		return Outcome{Intent: in, Kind: OutcomeInfo}
	default:
		return Outcome{Intent: intent.Unrecognized, Kind: OutcomeInfo}
	}
}

func (d *Dispatcher) createTask(ctx context.Context, e extract.Entities) Outcome {
	out := Outcome{Intent: intent.CreateTask, Title: e.Title, Priority: e.Priority}
	if e.Title == "" {
		out.Kind = OutcomeClarify
		return out
	}
	if out.Priority == "" {
		out.Priority = tasks.PriorityMedium
	}

	out.Called = true
	_, err := d.Tasks.CreateTask(ctx, tasks.NewTask{
		Title:       e.Title,
		Description: createdVia,
		Priority:    out.Priority,
		Status:      tasks.StatusTodo,
	})
	return d.settle(ctx, out, err)
}

func (d *Dispatcher) deleteTask(ctx context.Context, e extract.Entities) Outcome {
	out := Outcome{Intent: intent.DeleteTask, Title: e.Title}
	if e.Title == "" {
		out.Kind = OutcomeClarify
		return out
	}

	found, ok := tasks.FindByTitle(d.Tasks.CurrentTasks(), e.Title)
	if !ok {
		out.Kind = OutcomeNotFound
		return out
	}

	out.Title = found.Title
	out.Called = true
	return d.settle(ctx, out, d.Tasks.DeleteTask(ctx, found.ID))
}

func (d *Dispatcher) createEvent(ctx context.Context, e extract.Entities) Outcome {
	out := Outcome{Intent: intent.CreateEvent, Title: e.Title}
	if e.Title == "" {
		out.Kind = OutcomeClarify
		return out
	}

	date := e.Date
	if date == nil {
		today := extract.DateResolver{}.Resolve("")
		date = &today
	}
	out.DateLabel = date.Label

	out.Called = true
	_, err := d.Events.CreateEvent(ctx, calendar.NewEvent{
		Title:       e.Title,
		Description: createdVia,
		StartDate:   date.StartDate(),
		Priority:    string(tasks.PriorityMedium),
	})
	return d.settle(ctx, out, err)
}

func (d *Dispatcher) inviteMember(ctx context.Context, e extract.Entities) Outcome {
	out := Outcome{Intent: intent.InviteMember, Email: e.Email, Name: e.Name}
	if e.Email == "" {
		out.Kind = OutcomeClarify
		return out
	}

	out.Called = true
	return d.settle(ctx, out, d.Team.InviteMember(ctx, e.Email, e.Name, defaultRole))
}

func (d *Dispatcher) changeTheme(ctx context.Context, e extract.Entities) Outcome {
	catalog := d.Themes.Catalog()
	if e.ThemeToken == "" {
		return Outcome{Intent: intent.ListThemes, Kind: OutcomeInfo, Themes: catalog.Entries()}
	}

	out := Outcome{Intent: intent.ChangeTheme, ThemeToken: e.ThemeToken}
	entry, ok := catalog.Resolve(e.ThemeToken)
	if !ok {
		out.Kind = OutcomeNotFound
		out.Themes = catalog.Entries()
		return out
	}

	out.Theme = entry
	out.Called = true
	return d.settle(ctx, out, d.Themes.Set(ctx, entry.Key))
}

func (d *Dispatcher) updateProfile(ctx context.Context, e extract.Entities) Outcome {
	out := Outcome{Intent: intent.UpdateProfile, ProfileFields: e.Profile.Fields()}
	if e.Profile.Empty() {
		out.Kind = OutcomeClarify
		return out
	}

	out.Called = true
	return d.settle(ctx, out, d.Profile.UpdateProfile(ctx, e.Profile))
}

func (d *Dispatcher) toggleNotifications(ctx context.Context, e extract.Entities) Outcome {
	t := e.Toggle
	out := Outcome{Intent: intent.ToggleNotificationSetting, Scope: t.Scope, Enable: t.Enable}
	if !t.Notification || t.Scope == extract.ScopeNone {
		out.Kind = OutcomeClarify
		return out
	}

	current := d.Settings.CurrentSettings()
	var patch settings.Patch
	switch t.Scope {
	case extract.ScopeEmail:
		patch.EmailNotifications = mergeChannels(current.EmailNotifications, t.Scope.Channels(), t.Enable)
	case extract.ScopePush:
		patch.PushNotifications = mergeChannels(current.PushNotifications, t.Scope.Channels(), t.Enable)
	}

	out.Called = true
	return d.settle(ctx, out, d.Settings.UpdateSettings(ctx, patch))
}

// mergeChannels copies group and sets every named channel to on.
// Channels not named keep their current value.
func mergeChannels(group map[string]bool, channels []string, on bool) map[string]bool {
	merged := make(map[string]bool, len(group)+len(channels))
	maps.Copy(merged, group)
	for _, c := range channels {
		merged[c] = on
	}
	return merged
}

// settle records the result of a collaborator call on out.
func (d *Dispatcher) settle(ctx context.Context, out Outcome, err error) Outcome {
	if err != nil {
		d.logger().ErrorContext(ctx, "assistant action failed",
			"intent", string(out.Intent),
			"error", err,
		)
		out.Kind = OutcomeFailed
		out.Err = err
		return out
	}
	out.Kind = OutcomeDone
	return out
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
