// Package dashboard exposes the persisted trade document over a small JSON
// API for local inspection.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/storage"
)

// Server serves read-only views of the trade state.
type Server struct {
	store  storage.Interface
	logger *logrus.Logger
	srv    *http.Server
}

// NewServer builds a dashboard server listening on the given port.
func NewServer(store storage.Interface, port int, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/state", s.handleState)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/hedges", s.handleHedges)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.srv.Addr).Info("Dashboard listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Shutdown drains the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.store.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.store.Snapshot()
	if state.StrategyStatus == nil {
		http.Error(w, `{"error":"no status recorded yet"}`, http.StatusNotFound)
		return
	}
	s.writeJSON(w, state.StrategyStatus)
}

func (s *Server) handleHedges(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.store.GetHedges())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to encode dashboard response")
	}
}
