// Package transcript holds the append-only log of chat turns for one
// assistant session.
package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Turn is one immutable message in the conversation.
type Turn struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Archiver persists turns beyond the lifetime of a session.
type Archiver interface {
	Archive(ctx context.Context, sessionID string, t Turn) error
}

// Log is the ordered in-memory turn list for one session. Turns are
// never edited or removed, and the log grows for as long as the session
// lives. Safe for concurrent use.
type Log struct {
	sessionID string
	archive   Archiver
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	turns []Turn
}

// NewLog creates an empty log. archive may be nil.
func NewLog(sessionID string, archive Archiver, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		sessionID: sessionID,
		archive:   archive,
		logger:    logger,
		now:       time.Now,
	}
}

// SessionID returns the session this log belongs to.
func (l *Log) SessionID() string {
	return l.sessionID
}

// Append records a new turn and returns it. A failing archive write is
// logged and does not affect the in-memory log.
func (l *Log) Append(ctx context.Context, sender Sender, text string) Turn {
	t := Turn{
		ID:        NewID(),
		Text:      text,
		Sender:    sender,
		Timestamp: l.now(),
	}

	l.mu.Lock()
	l.turns = append(l.turns, t)
	l.mu.Unlock()

	if l.archive != nil {
		if err := l.archive.Archive(ctx, l.sessionID, t); err != nil {
			l.logger.Warn("failed to archive turn",
				"session_id", l.sessionID, "turn_id", t.ID, "error", err)
		}
	}
	return t
}

// Turns returns a snapshot of the log in append order.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

// Len returns the number of turns recorded.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// NewID returns a time-ordered UUIDv7, falling back to a random v4 if
// the clock source fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
