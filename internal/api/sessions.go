package api

import (
	"sync"

	"github.com/nugget/taskbuddy/internal/assistant"
)

// Sessions holds one interpreter per open chat. Every interpreter shares
// the same dispatcher and options; only the session id differs. Sessions
// live until closed.
type Sessions struct {
	dispatcher *assistant.Dispatcher
	opts       assistant.Options

	mu   sync.RWMutex
	byID map[string]*assistant.Interpreter
}

// NewSessions creates an empty session table. opts.SessionID is ignored.
func NewSessions(d *assistant.Dispatcher, opts assistant.Options) *Sessions {
	opts.SessionID = ""
	return &Sessions{
		dispatcher: d,
		opts:       opts,
		byID:       make(map[string]*assistant.Interpreter),
	}
}

// Create opens a new session.
func (s *Sessions) Create() *assistant.Interpreter {
	interp := assistant.New(s.dispatcher, s.opts)

	s.mu.Lock()
	s.byID[interp.SessionID()] = interp
	s.mu.Unlock()
	return interp
}

// Get returns the interpreter for id.
func (s *Sessions) Get(id string) (*assistant.Interpreter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	interp, ok := s.byID[id]
	return interp, ok
}

// Close forgets a session. It reports whether the session existed.
func (s *Sessions) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	return true
}

// Count returns the number of open sessions.
func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
