// Package calendar stores calendar events.
package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalLayout is the wall-clock format of event start and end dates:
// a local calendar date and time with no zone offset.
const LocalLayout = "2006-01-02T15:04"

// Event is a stored calendar event.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartDate   string    `json:"start_date"`
	EndDate     *string   `json:"end_date"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewEvent holds the fields supplied when creating an event.
type NewEvent struct {
	Title       string
	Description string
	StartDate   string
	EndDate     *string
	Priority    string
}

// Store persists events in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates an event store on db.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate events: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL,
			end_date TEXT,
			priority TEXT NOT NULL DEFAULT 'medium',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_date);
	`)
	return err
}

// CreateEvent validates and inserts an event.
func (s *Store) CreateEvent(ctx context.Context, ne NewEvent) (*Event, error) {
	title := strings.TrimSpace(ne.Title)
	if title == "" {
		return nil, fmt.Errorf("create event: title is required")
	}
	start, err := time.Parse(LocalLayout, ne.StartDate)
	if err != nil {
		return nil, fmt.Errorf("create event: start_date %q: %w", ne.StartDate, err)
	}
	if ne.EndDate != nil {
		end, err := time.Parse(LocalLayout, *ne.EndDate)
		if err != nil {
			return nil, fmt.Errorf("create event: end_date %q: %w", *ne.EndDate, err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("create event: end_date %s precedes start_date %s", *ne.EndDate, ne.StartDate)
		}
	}
	if ne.Priority == "" {
		ne.Priority = "medium"
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	e := Event{
		ID:          id.String(),
		Title:       title,
		Description: ne.Description,
		StartDate:   ne.StartDate,
		EndDate:     ne.EndDate,
		Priority:    ne.Priority,
		CreatedAt:   s.now().UTC(),
	}

	var end sql.NullString
	if e.EndDate != nil {
		end = sql.NullString{String: *e.EndDate, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, start_date, end_date, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.StartDate, end, e.Priority,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	s.logger.Info("event created", "event_id", e.ID, "title", e.Title, "start", e.StartDate)
	return &e, nil
}

// List returns events ordered by start date.
func (s *Store) List(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, start_date, end_date, priority, created_at
		 FROM events ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var list []Event
	for rows.Next() {
		var e Event
		var end sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.StartDate, &end, &e.Priority, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if end.Valid {
			e.EndDate = &end.String
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse event created_at %q: %w", created, err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
