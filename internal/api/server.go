// Package api exposes the chatcast daemon over HTTP for the CLI, the compose
// UI and scripts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
	"github.com/Dicklesworthstone/chatcast/internal/browser"
	"github.com/Dicklesworthstone/chatcast/internal/db"
	"github.com/Dicklesworthstone/chatcast/internal/session"
	"github.com/Dicklesworthstone/chatcast/internal/state"
	"github.com/Dicklesworthstone/chatcast/internal/target"
)

// Settings is the persisted user state. state.Store satisfies it.
type Settings interface {
	Snapshot() state.Snapshot
	SetEnabled(ctx context.Context, id string, on, force bool) (state.Snapshot, error)
	SetLayout(ctx context.Context, l state.Layout) error
	SetZoom(ctx context.Context, z float64) float64
}

// Readiness is the session readiness tracker. readiness.Tracker satisfies it.
type Readiness interface {
	Snapshot() map[string]bool
	Running() bool
	Start(ctx context.Context) error
}

// Broadcaster runs dispatch cycles. broadcast.Orchestrator satisfies it.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) (*broadcast.Result, error)
	Busy() bool
	Last() *broadcast.Result
}

// Sessions exposes live session handles. session.Manager satisfies it.
type Sessions interface {
	Backend() string
	Handle(id string) (session.Handle, bool)
}

// History reads the dispatch log. db.DB satisfies it.
type History interface {
	RecentOutcomes(ctx context.Context, limit int) ([]db.DispatchRecord, error)
	CycleOutcomes(ctx context.Context, cycleID string) ([]db.DispatchRecord, error)
}

// Config wires a Server.
type Config struct {
	Addr        string
	Registry    *target.Registry
	Settings    Settings
	Readiness   Readiness
	Broadcaster Broadcaster
	Sessions    Sessions

	// History is optional; /history answers 503 without it.
	History History

	Version string

	// WriteTimeout bounds a whole request, a broadcast included.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Server exposes the daemon's HTTP API.
type Server struct {
	config    Config
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time

	mu      sync.Mutex
	baseCtx context.Context
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}

	s := &Server{
		config:    cfg,
		logger:    cfg.Logger,
		startedAt: time.Now(),
		baseCtx:   context.Background(),
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withLogging(s.routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /targets", s.handleTargets)
	mux.HandleFunc("POST /broadcast", s.handleBroadcast)
	mux.HandleFunc("PUT /targets/{id}/enabled", s.handleSetEnabled)
	mux.HandleFunc("PUT /layout", s.handleSetLayout)
	mux.HandleFunc("PUT /zoom", s.handleSetZoom)
	mux.HandleFunc("POST /targets/{id}/navigate", s.handleNavigate)
	mux.HandleFunc("POST /targets/{id}/inspect", s.handleInspect)
	mux.HandleFunc("POST /readiness/refresh", s.handleReadinessRefresh)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves on the configured address until Shutdown. Background work
// started by requests, such as a readiness refresh, lives as long as ctx.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("starting API server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) background() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (target.Target, bool) {
	id := r.PathValue("id")
	t, ok := s.config.Registry.Lookup(id)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown target %q", id), http.StatusNotFound)
		return target.Target{}, false
	}
	return t, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Backend:   s.config.Sessions.Backend(),
		Version:   s.config.Version,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) status() StatusResponse {
	snap := s.config.Settings.Snapshot()
	ready := s.config.Readiness.Snapshot()

	targets := make([]TargetStatus, 0, s.config.Registry.Len())
	for _, t := range s.config.Registry.All() {
		_, mounted := s.config.Sessions.Handle(t.ID)
		targets = append(targets, TargetStatus{
			ID:          t.ID,
			DisplayName: t.DisplayName,
			Kind:        t.Kind,
			Color:       t.Color,
			Enabled:     snap.Enabled[t.ID],
			Ready:       ready[t.ID],
			Mounted:     mounted,
			LastURL:     snap.LastURLs[t.ID],
		})
	}

	return StatusResponse{
		Running:          true,
		Backend:          s.config.Sessions.Backend(),
		Busy:             s.config.Broadcaster.Busy(),
		Layout:           snap.Layout,
		Zoom:             snap.Zoom,
		EnabledCount:     snap.EnabledCount(),
		ReadinessPolling: s.config.Readiness.Running(),
		Targets:          targets,
		LastCycle:        s.config.Broadcaster.Last(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Registry.All())
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.config.Broadcaster.Broadcast(r.Context(), req.Message)
	switch {
	case errors.Is(err, broadcast.ErrBlankMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, broadcast.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("broadcast failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req EnabledRequest
	if !decodeBody(w, r, &req) {
		return
	}

	_, err := s.config.Settings.SetEnabled(r.Context(), t.ID, req.Enabled, req.Force)
	switch {
	case errors.Is(err, state.ErrMaxTargets), errors.Is(err, state.ErrGridLimit):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, target.ErrUnknownTarget):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSetLayout(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := state.ParseLayout(req.Layout)
	if err == nil {
		err = s.config.Settings.SetLayout(r.Context(), l)
	}
	switch {
	case errors.Is(err, state.ErrInvalidLayout):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, state.ErrGridLimit):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSetZoom(w http.ResponseWriter, r *http.Request) {
	var req ZoomRequest
	if !decodeBody(w, r, &req) {
		return
	}

	z := s.config.Settings.SetZoom(r.Context(), req.Zoom)
	writeJSON(w, http.StatusOK, ZoomResponse{Zoom: z})
}

func (s *Server) handle(w http.ResponseWriter, t target.Target) (session.Handle, bool) {
	h, ok := s.config.Sessions.Handle(t.ID)
	if !ok {
		http.Error(w, fmt.Sprintf("target %q has no session", t.ID), http.StatusServiceUnavailable)
		return nil, false
	}
	return h, true
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req NavigateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := browser.NormalizeURL(req.URL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h, ok := s.handle(w, t)
	if !ok {
		return
	}
	if err := h.Navigate(r.Context(), u); err != nil {
		s.logger.Warn("navigate failed", "target", t.ID, "url", u, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.logger.Info("navigated", "target", t.ID, "url", u, "action", "navigate")
	writeJSON(w, http.StatusOK, NavigateResponse{URL: u})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}
	h, ok := s.handle(w, t)
	if !ok {
		return
	}
	if err := h.OpenInspector(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadinessRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.config.Readiness.Start(s.background()); err != nil {
		// Already polling; the running loop will pick the new sessions up.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "running"})
		return
	}

	s.logger.Info("readiness polling restarted", "action", "readiness_refresh")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.config.History == nil {
		http.Error(w, "history is not available", http.StatusServiceUnavailable)
		return
	}

	var (
		recs []db.DispatchRecord
		err  error
	)
	if cycle := r.URL.Query().Get("cycle"); cycle != "" {
		recs, err = s.config.History.CycleOutcomes(r.Context(), cycle)
	} else {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, convErr := strconv.Atoi(v)
			if convErr != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		recs, err = s.config.History.RecentOutcomes(r.Context(), limit)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, HistoryEntry{
			CycleID:    rec.CycleID,
			TargetID:   rec.TargetID,
			Status:     rec.Status,
			Surface:    rec.Surface,
			SubmitPath: rec.SubmitPath,
			Error:      rec.Error,
			DurationMS: rec.Duration.Milliseconds(),
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}
