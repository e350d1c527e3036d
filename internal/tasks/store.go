// Package tasks stores the user's Kanban tasks.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a task ID does not exist.
var ErrNotFound = errors.New("task not found")

// Priority ranks a task's importance.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps a word to a Priority. Unknown words yield medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Status is the Kanban column a task sits in.
type Status int

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusDone
)

// Task is a stored task.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewTask holds the fields supplied when creating a task.
type NewTask struct {
	Title       string
	Description string
	Priority    Priority
	Status      Status
}

// Store persists tasks in SQLite and keeps an in-memory snapshot of the
// current list for lookups that must not hit the database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	snapshot []Task
}

// NewStore creates a task store on db and loads the initial snapshot.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate tasks: %w", err)
	}
	if err := s.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
	`)
	return err
}

// CreateTask inserts a task and adds it to the snapshot.
func (s *Store) CreateTask(ctx context.Context, nt NewTask) (*Task, error) {
	title := strings.TrimSpace(nt.Title)
	if title == "" {
		return nil, fmt.Errorf("create task: title is required")
	}
	if nt.Priority == "" {
		nt.Priority = PriorityMedium
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	t := Task{
		ID:          id.String(),
		Title:       title,
		Description: nt.Description,
		Priority:    nt.Priority,
		Status:      nt.Status,
		CreatedAt:   s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, priority, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Priority), int(t.Status),
		t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	s.mu.Lock()
	s.snapshot = append(s.snapshot, t)
	s.mu.Unlock()

	s.logger.Info("task created", "task_id", t.ID, "title", t.Title, "priority", t.Priority)
	return &t, nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}

	s.mu.Lock()
	for i, t := range s.snapshot {
		if t.ID == id {
			s.snapshot = append(s.snapshot[:i:i], s.snapshot[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("task deleted", "task_id", id)
	return nil
}

// CurrentTasks returns the in-memory snapshot in creation order. It
// does not query the database.
func (s *Store) CurrentTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Task(nil), s.snapshot...)
}

// Refresh reloads the snapshot from the database.
func (s *Store) Refresh(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, priority, status, created_at
		 FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var list []Task
	for rows.Next() {
		var t Task
		var priority, created string
		var status int
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &priority, &status, &created); err != nil {
			return fmt.Errorf("scan task: %w", err)
		}
		t.Priority = Priority(priority)
		t.Status = Status(status)
		t.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return fmt.Errorf("parse task created_at %q: %w", created, err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = list
	s.mu.Unlock()
	return nil
}

// FindByTitle returns the first task in the snapshot whose title
// contains query, compared case-insensitively.
func FindByTitle(list []Task, query string) (Task, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Task{}, false
	}
	for _, t := range list {
		if strings.Contains(strings.ToLower(t.Title), q) {
			return t, true
		}
	}
	return Task{}, false
}
