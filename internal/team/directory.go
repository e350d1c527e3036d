// Package team manages the team member directory and invitations.
package team

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/taskbuddy/internal/events"
)

// ErrAlreadyInvited is returned when the email is already in the directory.
var ErrAlreadyInvited = errors.New("member already invited")

// Member is a directory entry.
type Member struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	InvitedAt time.Time `json:"invited_at"`
}

// Invitation is what a Mailer needs to notify an invitee.
type Invitation struct {
	Email string
	Name  string
	Role  string
}

// Mailer delivers invitation messages.
type Mailer interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// Directory stores team members in SQLite. When a Mailer is configured
// the invitation is only recorded if delivery succeeds.
type Directory struct {
	db     *sql.DB
	mailer Mailer
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewDirectory creates a team directory on db. mailer and bus may be nil.
func NewDirectory(db *sql.DB, mailer Mailer, bus *events.Bus, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{db: db, mailer: mailer, bus: bus, logger: logger, now: time.Now}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("migrate team_members: %w", err)
	}
	return d, nil
}

func (d *Directory) migrate() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS team_members (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE COLLATE NOCASE,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			invited_at TEXT NOT NULL
		);
	`)
	return err
}

// InviteMember records an invitation and, if a mailer is set, sends it.
func (d *Directory) InviteMember(ctx context.Context, email, name, role string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invite %q: invalid email: %w", email, err)
	}
	email = addr.Address
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if role == "" {
		role = "member"
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate member id: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invite: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_members WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check member %s: %w", email, err)
	}
	if exists > 0 {
		return fmt.Errorf("invite %s: %w", email, ErrAlreadyInvited)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO team_members (id, email, name, role, status, invited_at)
		 VALUES (?, ?, ?, ?, 'invited', ?)`,
		id.String(), email, name, role, d.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert member %s: %w", email, err)
	}

	mailed := false
	if d.mailer != nil {
		if err := d.mailer.SendInvitation(ctx, Invitation{Email: email, Name: name, Role: role}); err != nil {
			return fmt.Errorf("send invitation to %s: %w", email, err)
		}
		mailed = true
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invite: %w", err)
	}

	d.logger.Info("team member invited", "email", email, "name", name, "role", role, "mailed", mailed)
	d.bus.Publish(events.Event{
		Timestamp: d.now(),
		Source:    events.SourceTeam,
		Kind:      events.KindMemberInvited,
		Data:      map[string]any{"email": email, "name": name, "mailed": mailed},
	})
	return nil
}

// Members lists the directory ordered by invitation time.
func (d *Directory) Members(ctx context.Context) ([]Member, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, email, name, role, status, invited_at
		 FROM team_members ORDER BY invited_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var list []Member
	for rows.Next() {
		var m Member
		var invited string
		if err := rows.Scan(&m.ID, &m.Email, &m.Name, &m.Role, &m.Status, &invited); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.InvitedAt, err = time.Parse(time.RFC3339Nano, invited)
		if err != nil {
			return nil, fmt.Errorf("parse invited_at %q: %w", invited, err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
