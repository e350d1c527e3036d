package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/taskbuddy/internal/assistant"
	"github.com/nugget/taskbuddy/internal/events"
	"github.com/nugget/taskbuddy/internal/transcript"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamBuffer       = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamFrame is one server-to-client WebSocket message.
type streamFrame struct {
	Type      string        `json:"type"` // ready, turn, theme, error
	SessionID string        `json:"session_id,omitempty"`
	Turn      *turnResponse `json:"turn,omitempty"`
	Theme     string        `json:"theme,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// handleSessionStream upgrades to a WebSocket that pushes every turn
// appended to the session and every theme change. Text frames from the
// client are submitted as utterances.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	interp, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := interp.SessionID()
	logger := s.logger.With("session_id", sessionID)

	ch := s.bus.Subscribe(streamBuffer)
	defer s.bus.Unsubscribe(ch)

	var writeMu sync.Mutex
	send := func(f streamFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(f)
	}

	if err := send(streamFrame{Type: "ready", SessionID: sessionID}); err != nil {
		logger.Debug("stream ready frame failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.pushEvents(ctx, ch, sessionID, send)
		// Unblock the reader when the relay stops first.
		conn.Close()
	}()

	s.readUtterances(ctx, conn, interp, send, logger)
	cancel()
	<-done
}

// pushEvents relays bus events for one session until ctx ends or a
// write fails.
func (s *Server) pushEvents(ctx context.Context, ch <-chan events.Event, sessionID string, send func(streamFrame) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			f, ok := s.frameFor(e, sessionID)
			if !ok {
				continue
			}
			if err := send(f); err != nil {
				return
			}
		}
	}
}

// frameFor maps a bus event to a frame for sessionID.
func (s *Server) frameFor(e events.Event, sessionID string) (streamFrame, bool) {
	switch {
	case e.Source == events.SourceAssistant && e.Kind == events.KindTurnAppended:
		if id, _ := e.Data["session_id"].(string); id != sessionID {
			return streamFrame{}, false
		}
		id, _ := e.Data["turn_id"].(string)
		sender, _ := e.Data["sender"].(string)
		text, _ := e.Data["text"].(string)
		turn := s.renderTurn(transcript.Turn{
			ID:        id,
			Text:      text,
			Sender:    transcript.Sender(sender),
			Timestamp: e.Timestamp,
		})
		return streamFrame{Type: "turn", SessionID: sessionID, Turn: &turn}, true

	case e.Source == events.SourceTheme && e.Kind == events.KindThemeChanged:
		key, _ := e.Data["key"].(string)
		return streamFrame{Type: "theme", Theme: key}, true
	}
	return streamFrame{}, false
}

// readUtterances submits client text frames until the connection
// closes. Replies reach the client through the event relay.
func (s *Server) readUtterances(ctx context.Context, conn *websocket.Conn, interp *assistant.Interpreter, send func(streamFrame) error, logger *slog.Logger) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("stream read ended", "error", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		if _, err := interp.Submit(ctx, string(data)); err != nil {
			msg := err.Error()
			if errors.Is(err, assistant.ErrEmptyUtterance) {
				msg = "text is required"
			}
			if err := send(streamFrame{Type: "error", SessionID: interp.SessionID(), Error: msg}); err != nil {
				return
			}
		}
	}
}
