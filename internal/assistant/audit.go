package assistant

import (
	"maps"
	"sync"
	"time"
)

// Record captures how one turn was handled.
type Record struct {
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Timestamp time.Time `json:"timestamp"`

	// Classification
	Intent         string   `json:"intent"`
	Rule           string   `json:"rule"`
	RulesEvaluated []string `json:"rules_evaluated"`

	// Dispatch
	Outcome   string `json:"outcome"`
	Called    bool   `json:"called"`
	LatencyMs int64  `json:"latency_ms"`
	Fault     bool   `json:"fault,omitempty"`
}

// Stats aggregates handled turns.
type Stats struct {
	TotalTurns    int64            `json:"total_turns"`
	Faults        int64            `json:"faults"`
	IntentCounts  map[string]int64 `json:"intent_counts"`
	OutcomeCounts map[string]int64 `json:"outcome_counts"`
}

// Audit keeps the most recent turn records across sessions. A nil
// *Audit discards everything.
type Audit struct {
	max int

	mu      sync.RWMutex
	records []Record
	stats   Stats
}

// NewAudit creates an audit log holding at most max records.
func NewAudit(max int) *Audit {
	if max <= 0 {
		max = 1000
	}
	return &Audit{
		max:     max,
		records: make([]Record, 0, max),
		stats: Stats{
			IntentCounts:  make(map[string]int64),
			OutcomeCounts: make(map[string]int64),
		},
	}
}

// Record appends r, evicting the oldest record when full.
func (a *Audit) Record(r Record) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.records) >= a.max {
		a.records = a.records[1:]
	}
	a.records = append(a.records, r)

	a.stats.TotalTurns++
	if r.Fault {
		a.stats.Faults++
	}
	if r.Intent != "" {
		a.stats.IntentCounts[r.Intent]++
	}
	if r.Outcome != "" {
		a.stats.OutcomeCounts[r.Outcome]++
	}
}

// Recent returns up to limit records, oldest first. A limit of zero or
// less returns everything held.
func (a *Audit) Recent(limit int) []Record {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 || limit > len(a.records) {
		limit = len(a.records)
	}
	out := make([]Record, limit)
	copy(out, a.records[len(a.records)-limit:])
	return out
}

// Stats returns a copy of the aggregate counters.
func (a *Audit) Stats() Stats {
	if a == nil {
		return Stats{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.stats
	s.IntentCounts = maps.Clone(a.stats.IntentCounts)
	s.OutcomeCounts = maps.Clone(a.stats.OutcomeCounts)
	return s
}

// Explain returns the record for the assistant turn with the given id.
func (a *Audit) Explain(turnID string) (Record, bool) {
	if a == nil {
		return Record{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	for i := len(a.records) - 1; i >= 0; i-- {
		if a.records[i].TurnID == turnID {
			return a.records[i], true
		}
	}
	return Record{}, false
}
