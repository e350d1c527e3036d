package assistant

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/taskbuddy/internal/calendar"
	"github.com/nugget/taskbuddy/internal/extract"
	"github.com/nugget/taskbuddy/internal/profile"
	"github.com/nugget/taskbuddy/internal/settings"
	"github.com/nugget/taskbuddy/internal/tasks"
	"github.com/nugget/taskbuddy/internal/theme"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTasks struct {
	mu      sync.Mutex
	list    []tasks.Task
	created []tasks.NewTask
	deleted []string
	err     error
	// ctxErrs records ctx.Err() seen by each call.
	ctxErrs []error
	// block, when set, is received from before a create returns.
	block   chan struct{}
	entered chan struct{}
	panics  bool
}

func (f *fakeTasks) CreateTask(ctx context.Context, nt tasks.NewTask) (*tasks.Task, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("task backend exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, nt)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.err != nil {
		return nil, f.err
	}
	return &tasks.Task{ID: "t-new", Title: nt.Title, Priority: nt.Priority}, nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeTasks) CurrentTasks() []tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.Task(nil), f.list...)
}

func (f *fakeTasks) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeEvents struct {
	created []calendar.NewEvent
	err     error
}

func (f *fakeEvents) CreateEvent(_ context.Context, ne calendar.NewEvent) (*calendar.Event, error) {
	f.created = append(f.created, ne)
	if f.err != nil {
		return nil, f.err
	}
	return &calendar.Event{ID: "e-new", Title: ne.Title, StartDate: ne.StartDate}, nil
}

type invite struct{ email, name, role string }

type fakeTeam struct {
	invites []invite
	err     error
}

func (f *fakeTeam) InviteMember(_ context.Context, email, name, role string) error {
	f.invites = append(f.invites, invite{email, name, role})
	return f.err
}

type fakeProfile struct {
	patches []profile.Patch
	err     error
}

func (f *fakeProfile) UpdateProfile(_ context.Context, p profile.Patch) error {
	f.patches = append(f.patches, p)
	return f.err
}

type fakeSettings struct {
	current settings.Settings
	patches []settings.Patch
	err     error
}

func (f *fakeSettings) CurrentSettings() settings.Settings { return f.current.Clone() }

func (f *fakeSettings) UpdateSettings(_ context.Context, p settings.Patch) error {
	f.patches = append(f.patches, p)
	return f.err
}

type fakeThemes struct {
	set []string
	err error
}

func (f *fakeThemes) Catalog() theme.Catalog { return theme.DefaultCatalog() }

func (f *fakeThemes) Set(_ context.Context, key string) error {
	f.set = append(f.set, key)
	return f.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

// fixture bundles an interpreter with its fakes.
type fixture struct {
	tasks    *fakeTasks
	events   *fakeEvents
	team     *fakeTeam
	profile  *fakeProfile
	settings *fakeSettings
	themes   *fakeThemes
	notifier *recordingNotifier
	audit    *Audit
	interp   *Interpreter
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		tasks:    &fakeTasks{},
		events:   &fakeEvents{},
		team:     &fakeTeam{},
		profile:  &fakeProfile{},
		settings: &fakeSettings{current: settings.Defaults()},
		themes:   &fakeThemes{},
		notifier: &recordingNotifier{},
		audit:    NewAudit(10),
	}
	d := &Dispatcher{
		Tasks:    f.tasks,
		Events:   f.events,
		Team:     f.team,
		Profile:  f.profile,
		Settings: f.settings,
		Themes:   f.themes,
		Logger:   discardLogger(),
	}
	if opts.Notifier == nil {
		opts.Notifier = f.notifier
	}
	if opts.Audit == nil {
		opts.Audit = f.audit
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Dates.Now == nil {
		zone := time.FixedZone("CET", 60*60)
		opts.Dates = extract.DateResolver{
			Now:           func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, zone) },
			Location:      zone,
			ReferenceYear: 2025,
		}
	}
	f.interp = New(d, opts)
	return f
}
