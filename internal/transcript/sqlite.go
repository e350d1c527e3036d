package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteArchive stores turns in SQLite so transcripts survive restarts.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive creates the transcript tables on db if needed.
func NewSQLiteArchive(db *sql.DB) (*SQLiteArchive, error) {
	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("migrate transcripts: %w", err)
	}
	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, timestamp);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Archive implements [Archiver].
func (a *SQLiteArchive) Archive(ctx context.Context, sessionID string, t Turn) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, sender, text, timestamp) VALUES (?, ?, ?, ?, ?)`,
		t.ID, sessionID, string(t.Sender), t.Text, t.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Load returns the archived turns of a session in append order.
// Turns within the same instant are ordered by their time-ordered IDs.
func (a *SQLiteArchive) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, sender, text, timestamp FROM turns
		 WHERE session_id = ? ORDER BY timestamp, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var sender, ts string
		if err := rows.Scan(&t.ID, &sender, &t.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Sender = Sender(sender)
		t.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse turn timestamp %q: %w", ts, err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
