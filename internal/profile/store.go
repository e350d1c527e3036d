// Package profile stores the signed-in user's profile.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Profile is the single user profile row.
type Profile struct {
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch carries the fields to change; nil fields are left alone.
type Patch struct {
	FullName *string `json:"full_name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.FullName == nil && p.Bio == nil
}

// Fields lists the patched field names in a stable order.
func (p Patch) Fields() []string {
	var f []string
	if p.FullName != nil {
		f = append(f, "full_name")
	}
	if p.Bio != nil {
		f = append(f, "bio")
	}
	return f
}

// Store persists the profile in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a profile store on db.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate profile: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			full_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Get returns the profile, or a zero Profile if none has been saved.
func (s *Store) Get(ctx context.Context) (Profile, error) {
	var p Profile
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT full_name, email, bio, updated_at FROM profile WHERE id = 1`,
	).Scan(&p.FullName, &p.Email, &p.Bio, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Profile{}, fmt.Errorf("parse profile updated_at %q: %w", updated, err)
	}
	return p, nil
}

// UpdateProfile applies a partial update.
func (s *Store) UpdateProfile(ctx context.Context, patch Patch) error {
	if patch.Empty() {
		return fmt.Errorf("update profile: nothing to change")
	}
	if patch.FullName != nil && strings.TrimSpace(*patch.FullName) == "" {
		return fmt.Errorf("update profile: full_name must not be blank")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin profile update: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profile (id, updated_at) VALUES (1, ?) ON CONFLICT (id) DO NOTHING`, now,
	); err != nil {
		return fmt.Errorf("ensure profile row: %w", err)
	}
	if patch.FullName != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE profile SET full_name = ?, updated_at = ? WHERE id = 1`,
			strings.TrimSpace(*patch.FullName), now,
		); err != nil {
			return fmt.Errorf("update full_name: %w", err)
		}
	}
	if patch.Bio != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE profile SET bio = ?, updated_at = ? WHERE id = 1`,
			strings.TrimSpace(*patch.Bio), now,
		); err != nil {
			return fmt.Errorf("update bio: %w", err)
		}
	}
	return tx.Commit()
}
