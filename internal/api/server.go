// Package api implements the chi-routed HTTP control/progress surface:
// trigger job runs, stream per-device progress over SSE, list job
// definitions and their run history, and render a completed run as an
// HTML summary. It replaces the teacher's LLM chat dashboard wholesale
// (see DESIGN.md) with a plain data surface over this collector's
// job/device model.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/velocitycollector/velocitycollector/internal/logging"
	"github.com/velocitycollector/velocitycollector/internal/progress"
	"github.com/velocitycollector/velocitycollector/internal/runner"
	"github.com/velocitycollector/velocitycollector/internal/store"
)

// JobStore is the subset of *store.Store the API needs for read-only
// job/history listing.
type JobStore interface {
	ListJobs() ([]store.JobDefinition, error)
	GetJobBySlug(slug string) (*store.JobDefinition, error)
	ListHistoryForJob(jobRef string, limit int) ([]store.HistoryRow, error)
	GetHistory(id int64) (*store.HistoryRow, error)
}

var _ JobStore = (*store.Store)(nil)

// Server is the HTTP server for the control/progress API.
type Server struct {
	jobs   JobStore
	hub    *progress.Hub
	runner *runner.Runner
	addr   string
	mux    chi.Router
	server *http.Server
}

// New creates a control/progress API server. runnerImpl may be nil in
// deployments that only serve read-only job/history data.
func New(addr string, jobs JobStore, hub *progress.Hub, runnerImpl *runner.Runner) *Server {
	s := &Server{jobs: jobs, hub: hub, runner: runnerImpl, addr: addr}
	s.mux = s.newRouter()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{slug}", s.handleGetJob)
		r.Get("/jobs/{slug}/history", s.handleListHistory)
		r.Post("/jobs/{slug}/run", s.handleTriggerRun)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/summary", s.handleRunSummary)
		r.Get("/runs/{id}/stream", s.handleRunStream)
	})

	return r
}

// Start begins serving HTTP requests. It blocks until the server is
// shut down.
func (s *Server) Start() error {
	logging.With("addr", s.addr).Info("control API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.With(
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		).Info("api request")
	})
}
