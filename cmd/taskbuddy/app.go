package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nugget/taskbuddy/internal/assistant"
	"github.com/nugget/taskbuddy/internal/calendar"
	"github.com/nugget/taskbuddy/internal/config"
	"github.com/nugget/taskbuddy/internal/email"
	"github.com/nugget/taskbuddy/internal/events"
	"github.com/nugget/taskbuddy/internal/extract"
	"github.com/nugget/taskbuddy/internal/opstate"
	"github.com/nugget/taskbuddy/internal/profile"
	"github.com/nugget/taskbuddy/internal/settings"
	"github.com/nugget/taskbuddy/internal/tasks"
	"github.com/nugget/taskbuddy/internal/team"
	"github.com/nugget/taskbuddy/internal/theme"
	"github.com/nugget/taskbuddy/internal/transcript"
)

// dbFile is the SQLite database under the data directory.
const dbFile = "taskbuddy.db"

// openDB opens the production database in dataDir, creating the
// directory if needed.
func openDB(dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, dbFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	bus    *events.Bus

	tasks    *tasks.Store
	events   *calendar.Store
	team     *team.Directory
	profile  *profile.Store
	settings *settings.Store
	themes   *theme.Service
	archive  transcript.Archiver
	audit    *assistant.Audit
}

// newApp builds the stores on db. Invitation mail is sent only when
// SMTP is configured; transcripts are archived only when enabled.
func newApp(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) (*app, error) {
	bus := events.New()

	state, err := opstate.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("open operational state: %w", err)
	}

	taskStore, err := tasks.NewStore(db, logger)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	eventStore, err := calendar.NewStore(db, logger)
	if err != nil {
		return nil, fmt.Errorf("open calendar store: %w", err)
	}

	var mailer team.Mailer
	if cfg.Invitations.Configured() {
		mailer = email.NewInviter(cfg.Invitations, "", logger)
		logger.Info("invitation mail enabled",
			"smtp_host", cfg.Invitations.SMTP.Host,
			"from", cfg.Invitations.From,
		)
	}
	directory, err := team.NewDirectory(db, mailer, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("open team directory: %w", err)
	}

	profileStore, err := profile.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	settingsStore, err := settings.NewStore(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	themes, err := theme.NewService(ctx, theme.DefaultCatalog(), cfg.Theme.Default, state, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("open theme service: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		tasks:    taskStore,
		events:   eventStore,
		team:     directory,
		profile:  profileStore,
		settings: settingsStore,
		themes:   themes,
		audit:    assistant.NewAudit(0),
	}

	if cfg.Assistant.PersistTranscripts {
		archive, err := transcript.NewSQLiteArchive(db)
		if err != nil {
			return nil, fmt.Errorf("open transcript archive: %w", err)
		}
		a.archive = archive
	}
	return a, nil
}

func (a *app) dispatcher() *assistant.Dispatcher {
	return &assistant.Dispatcher{
		Tasks:    a.tasks,
		Events:   a.events,
		Team:     a.team,
		Profile:  a.profile,
		Settings: a.settings,
		Themes:   a.themes,
		Logger:   a.logger,
	}
}

// options returns interpreter options; notifier may be nil.
func (a *app) options(notifier assistant.Notifier) assistant.Options {
	return assistant.Options{
		Name:    a.cfg.Assistant.Name,
		Archive: a.archive,
		Dates: extract.DateResolver{
			Location:      a.cfg.Location(),
			ReferenceYear: a.cfg.Assistant.ReferenceYear,
		},
		Notifier: notifier,
		Bus:      a.bus,
		Audit:    a.audit,
		Logger:   a.logger,
	}
}
