package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/runner"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: writeJSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	job, err := s.jobs.GetJobBySlug(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get job: %v", err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job %q not found", slug)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rows, err := s.jobs.ListHistoryForJob("db:"+slug, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list history: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleTriggerRun starts a job run in the background and returns
// immediately with its history id, which doubles as the key a client
// uses to subscribe to /runs/{id}/stream.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "run triggering is not enabled on this server")
		return
	}
	slug := chi.URLParam(r, "slug")

	job, err := s.jobs.GetJobBySlug(slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get job: %v", err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job %q not found", slug)
		return
	}

	started := make(chan int64, 1)

	// runCopy is a per-request shallow copy of the shared Runner so its
	// OnHistoryOpened hook (set below) doesn't race with other
	// concurrently triggered runs; the copied fields are themselves
	// interfaces/pointers shared with the original, so no state is
	// duplicated beyond the hook itself.
	runCopy := *s.runner

	go func() {
		var historyID int64
		runCopy.OnHistoryOpened = func(id int64) {
			historyID = id
			started <- id
		}
		progressFn := executor.ProgressFunc(func(completed, total int, res executor.Result) {
			s.hub.PublishDevice(historyID, res)
		})

		// The run outlives this HTTP request, so it runs against a
		// background context rather than r.Context().
		result, err := runCopy.Run(context.Background(), runner.DBSlugRef(slug), runner.Options{}, progressFn)

		if historyID != 0 {
			s.hub.PublishJobDone(historyID, result)
			s.hub.Close(historyID)
		}
		if err != nil {
			log.Printf("api: run %s: %v", slug, err)
		}
	}()

	select {
	case id := <-started:
		writeJSON(w, http.StatusAccepted, map[string]any{"history_id": id, "job": slug})
	case <-time.After(10 * time.Second):
		writeError(w, http.StatusGatewayTimeout, "job did not start in time")
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	h, err := s.jobs.GetHistory(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get run: %v", err)
		return
	}
	if h == nil {
		writeError(w, http.StatusNotFound, "run %d not found", id)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// handleRunSummary renders a completed run's history row as an HTML
// summary via goldmark.
func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	h, err := s.jobs.GetHistory(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get run: %v", err)
		return
	}
	if h == nil {
		writeError(w, http.StatusNotFound, "run %d not found", id)
		return
	}

	html, err := renderSummary(*h)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render summary: %v", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

// handleRunStream opens an SSE connection for an in-flight or recently
// completed run's device-level progress.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				_, _ = fmt.Fprintf(w, "event: done\ndata: run complete\n\n")
				flusher.Flush()
				return
			}
			payload, _ := json.Marshal(ev)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
