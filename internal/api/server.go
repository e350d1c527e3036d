// Package api implements the TaskBuddy HTTP API: chat sessions, the
// live turn stream, theme selection, team export and interpreter
// introspection.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nugget/taskbuddy/internal/assistant"
	"github.com/nugget/taskbuddy/internal/buildinfo"
	"github.com/nugget/taskbuddy/internal/events"
	"github.com/nugget/taskbuddy/internal/theme"
	"github.com/nugget/taskbuddy/internal/transcript"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// ThemeService is the theme state the API reads and changes.
type ThemeService interface {
	Catalog() theme.Catalog
	Current() theme.Entry
	Set(ctx context.Context, key string) error
}

// TeamExporter writes the team directory as vCards.
type TeamExporter interface {
	ExportVCards(ctx context.Context, w io.Writer) (int, error)
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	sessions *Sessions
	themes   ThemeService
	team     TeamExporter
	audit    *assistant.Audit
	bus      *events.Bus
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates an API server for sessions. Optional collaborators
// are attached with the Set methods before Start.
func NewServer(address string, port int, sessions *Sessions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		sessions: sessions,
		logger:   logger,
	}
}

// SetThemes enables the theme endpoints.
func (s *Server) SetThemes(t ThemeService) {
	s.themes = t
}

// SetTeam enables the vCard export endpoint.
func (s *Server) SetTeam(t TeamExporter) {
	s.team = t
}

// SetAudit enables the interpreter introspection endpoints.
func (s *Server) SetAudit(a *assistant.Audit) {
	s.audit = a
}

// SetEventBus enables the WebSocket turn stream.
func (s *Server) SetEventBus(b *events.Bus) {
	s.bus = b
}

// ActiveSessions returns the number of open chat sessions.
func (s *Server) ActiveSessions() int {
	return s.sessions.Count()
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	// Chat sessions
	mux.HandleFunc("POST /v1/sessions", s.handleSessionCreate)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleSessionClose)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleSessionMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/turns", s.handleSessionTurns)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleSessionStream)

	// Themes
	mux.HandleFunc("GET /v1/themes", s.handleThemeList)
	mux.HandleFunc("GET /v1/theme", s.handleThemeGet)
	mux.HandleFunc("PUT /v1/theme", s.handleThemeSet)

	// Team directory
	mux.HandleFunc("GET /v1/team.vcf", s.handleTeamExport)

	// Interpreter introspection
	mux.HandleFunc("GET /v1/assistant/stats", s.handleAssistantStats)
	mux.HandleFunc("GET /v1/assistant/audit", s.handleAssistantAudit)
	mux.HandleFunc("GET /v1/assistant/explain/{turnId}", s.handleAssistantExplain)

	return s.withLogging(mux)
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "TaskBuddy",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// Session handlers

type sessionCreateResponse struct {
	ID       string `json:"id"`
	Greeting string `json:"greeting"`
}

// turnResponse is a turn plus its text rendered as HTML.
type turnResponse struct {
	transcript.Turn
	HTML string `json:"html"`
}

type messageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	interp := s.sessions.Create()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, sessionCreateResponse{
		ID:       interp.SessionID(),
		Greeting: interp.Greeting(),
	}, s.logger)
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Close(r.PathValue("id")) {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	interp, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := interp.Submit(r.Context(), req.Text)
	switch {
	case errors.Is(err, assistant.ErrEmptyUtterance):
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	case errors.Is(err, assistant.ErrBusy):
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("submit failed", "session_id", interp.SessionID(), "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "submit failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.renderTurn(turn), s.logger)
}

func (s *Server) handleSessionTurns(w http.ResponseWriter, r *http.Request) {
	interp, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "session not found")
		return
	}

	turns := interp.Turns()
	out := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, s.renderTurn(t))
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": interp.SessionID(),
		"processing": interp.Processing(),
		"count":      len(out),
		"turns":      out,
	}, s.logger)
}

func (s *Server) renderTurn(t transcript.Turn) turnResponse {
	html, err := renderMarkdown(t.Text)
	if err != nil {
		s.logger.Debug("markdown render failed", "turn_id", t.ID, "error", err)
	}
	return turnResponse{Turn: t, HTML: html}
}

// Theme handlers

type themeResponse struct {
	theme.Entry
	CSSClass string `json:"css_class"`
}

type themeSetRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleThemeList(w http.ResponseWriter, r *http.Request) {
	if s.themes == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "themes not configured")
		return
	}

	entries := s.themes.Catalog().Entries()
	current := s.themes.Current().Key
	out := make([]themeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, themeResponse{Entry: e, CSSClass: e.CSSClass()})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"current": current,
		"themes":  out,
	}, s.logger)
}

func (s *Server) handleThemeGet(w http.ResponseWriter, r *http.Request) {
	if s.themes == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "themes not configured")
		return
	}
	e := s.themes.Current()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, themeResponse{Entry: e, CSSClass: e.CSSClass()}, s.logger)
}

func (s *Server) handleThemeSet(w http.ResponseWriter, r *http.Request) {
	if s.themes == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "themes not configured")
		return
	}

	var req themeSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		s.errorResponse(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := s.themes.Set(r.Context(), req.Key); err != nil {
		if errors.Is(err, theme.ErrUnknownTheme) {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("theme change failed", "key", req.Key, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "theme change failed")
		return
	}

	e := s.themes.Current()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, themeResponse{Entry: e, CSSClass: e.CSSClass()}, s.logger)
}

// Team handlers

func (s *Server) handleTeamExport(w http.ResponseWriter, r *http.Request) {
	if s.team == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "team directory not configured")
		return
	}

	var buf bytes.Buffer
	n, err := s.team.ExportVCards(r.Context(), &buf)
	if err != nil {
		s.logger.Error("team export failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "team export failed")
		return
	}

	w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="team.vcf"`)
	w.Header().Set("X-Member-Count", strconv.Itoa(n))
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("failed to write vcard response", "error", err)
	}
}

// Interpreter introspection handlers

func (s *Server) handleAssistantStats(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "audit not configured")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"active_sessions": s.sessions.Count(),
		"turns":           s.audit.Stats(),
	}, s.logger)
}

func (s *Server) handleAssistantAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "audit not configured")
		return
	}

	records := s.audit.Recent(parseIntParam(r, "limit", 20))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"count":   len(records),
		"records": records,
	}, s.logger)
}

func (s *Server) handleAssistantExplain(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "audit not configured")
		return
	}

	rec, ok := s.audit.Explain(r.PathValue("turnId"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "turn not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, rec, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
