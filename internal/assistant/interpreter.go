// Package assistant runs the chat command pipeline: each utterance is
// classified, its entities extracted, at most one collaborator call is
// made, and a templated reply is appended to the session's turn log.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nugget/taskbuddy/internal/events"
	"github.com/nugget/taskbuddy/internal/extract"
	"github.com/nugget/taskbuddy/internal/intent"
	"github.com/nugget/taskbuddy/internal/transcript"
)

var (
	// ErrBusy is returned when a turn is already being processed.
	ErrBusy = errors.New("assistant is processing another message")
	// ErrEmptyUtterance is returned for blank input. Nothing is logged.
	ErrEmptyUtterance = errors.New("empty utterance")
)

// levelTrace is below Debug, used for rule-by-rule classification and
// extracted entities. Same value as config.LevelTrace.
const levelTrace = slog.Level(-8)

// faultNotification is raised when a turn fails unexpectedly.
var faultNotification = Notification{
	Title:       "Error",
	Description: "Failed to process your request",
	Variant:     VariantDestructive,
}

// Options configures an Interpreter. Every field is optional.
type Options struct {
	// SessionID names the turn log; a new id is generated when empty.
	SessionID string
	// Name is the assistant name used in the greeting.
	Name string
	// Archive receives every appended turn.
	Archive transcript.Archiver
	// Dates resolves event dates.
	Dates extract.DateResolver
	// Notifier receives fault notifications; defaults to a LogNotifier.
	Notifier Notifier
	Bus      *events.Bus
	Audit    *Audit
	Logger   *slog.Logger
}

// Interpreter handles the turns of one chat session, one at a time.
type Interpreter struct {
	name       string
	log        *transcript.Log
	extractor  extract.Extractor
	dispatcher *Dispatcher
	notifier   Notifier
	bus        *events.Bus
	audit      *Audit
	logger     *slog.Logger

	processing atomic.Bool
}

// New creates an interpreter that dispatches through d.
func New(d *Dispatcher, opts Options) *Interpreter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = transcript.NewID()
	}
	logger = logger.With("session_id", sessionID)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	return &Interpreter{
		name:       opts.Name,
		log:        transcript.NewLog(sessionID, opts.Archive, logger),
		extractor:  extract.Extractor{Dates: opts.Dates},
		dispatcher: d,
		notifier:   notifier,
		bus:        opts.Bus,
		audit:      opts.Audit,
		logger:     logger,
	}
}

// SessionID returns the id of the session's turn log.
func (i *Interpreter) SessionID() string { return i.log.SessionID() }

// Greeting returns the welcome message for a new chat.
func (i *Interpreter) Greeting() string { return Greeting(i.name) }

// Turns returns a snapshot of the conversation so far.
func (i *Interpreter) Turns() []transcript.Turn { return i.log.Turns() }

// Processing reports whether a turn is in flight.
func (i *Interpreter) Processing() bool { return i.processing.Load() }

// Submit runs one utterance through the pipeline and returns the
// assistant turn appended in reply. It returns ErrBusy without
// touching the log while another turn is in flight. Failures inside
// the pipeline never surface as errors; they become reply text.
func (i *Interpreter) Submit(ctx context.Context, utterance string) (transcript.Turn, error) {
	if strings.TrimSpace(utterance) == "" {
		return transcript.Turn{}, ErrEmptyUtterance
	}
	if !i.processing.CompareAndSwap(false, true) {
		return transcript.Turn{}, ErrBusy
	}
	defer i.processing.Store(false)

	i.appended(i.log.Append(ctx, transcript.SenderUser, utterance))

	reply, rec := i.process(ctx, utterance)

	turn := i.log.Append(ctx, transcript.SenderAssistant, reply)
	i.appended(turn)

	rec.TurnID = turn.ID
	i.audit.Record(rec)
	return turn, nil
}

// process classifies, extracts, dispatches and renders. A panic
// anywhere below is turned into the fault reply.
func (i *Interpreter) process(ctx context.Context, utterance string) (reply string, rec Record) {
	start := time.Now()
	rec = Record{SessionID: i.SessionID(), Timestamp: start}

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("assistant turn panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			i.fault(ctx, fmt.Errorf("panic: %v", r))
			reply = FaultReply
			rec.Fault = true
		}
		rec.LatencyMs = time.Since(start).Milliseconds()
	}()

	d := intent.Classify(utterance)
	rec.Intent = string(d.Intent)
	rec.Rule = d.Rule
	rec.RulesEvaluated = d.RulesEvaluated

	for _, name := range d.RulesEvaluated {
		i.logger.Log(ctx, levelTrace, "classifier rule evaluated",
			"rule", name,
			"matched", name == d.Rule,
		)
	}
	i.logger.Debug("utterance classified",
		"intent", string(d.Intent),
		"rule", d.Rule,
		"rules_evaluated", len(d.RulesEvaluated),
	)
	i.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAssistant,
		Kind:      events.KindIntentClassified,
		Data: map[string]any{
			"session_id": i.SessionID(),
			"intent":     string(d.Intent),
			"rule":       d.Rule,
		},
	})

	entities := i.extractor.Extract(d.Intent, utterance)
	i.logger.Log(ctx, levelTrace, "entities extracted",
		"intent", string(d.Intent),
		"title", entities.Title,
		"priority", string(entities.Priority),
		"email", entities.Email,
		"name", entities.Name,
		"theme_token", entities.ThemeToken,
		"profile_fields", entities.Profile.Fields(),
		"scope", string(entities.Toggle.Scope),
	)

	callStart := time.Now()
	out := i.dispatcher.Dispatch(ctx, d.Intent, entities)
	rec.Outcome = out.Kind.String()
	rec.Called = out.Called

	if out.Called {
		i.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceAssistant,
			Kind:      events.KindMutationDone,
			Data: map[string]any{
				"session_id":  i.SessionID(),
				"intent":      string(out.Intent),
				"ok":          out.Kind == OutcomeDone,
				"duration_ms": time.Since(callStart).Milliseconds(),
			},
		})
	}

	i.logger.Info("assistant turn handled",
		"intent", string(out.Intent),
		"outcome", out.Kind.String(),
		"called", out.Called,
	)
	return Render(out), rec
}

func (i *Interpreter) fault(ctx context.Context, err error) {
	i.notifier.Notify(ctx, faultNotification)
	i.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAssistant,
		Kind:      events.KindPipelineFault,
		Data: map[string]any{
			"session_id": i.SessionID(),
			"error":      err.Error(),
		},
	})
}

func (i *Interpreter) appended(t transcript.Turn) {
	i.bus.Publish(events.Event{
		Timestamp: t.Timestamp,
		Source:    events.SourceAssistant,
		Kind:      events.KindTurnAppended,
		Data: map[string]any{
			"session_id": i.SessionID(),
			"turn_id":    t.ID,
			"sender":     string(t.Sender),
			"text":       t.Text,
		},
	})
}
