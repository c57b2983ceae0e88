// Package httpapi serves a read-only view of run and release state over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// DefaultAddr is the listen address used when none is given.
	DefaultAddr = "127.0.0.1:8085"

	// StatusNeverRun is reported for jobs without a stored run.
	StatusNeverRun = "never-run"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// JobStatus is one entry of GET /api/jobs.
type JobStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Platform    string `json:"platform,omitempty"`
	Status      string `json:"status"`
	BuildNumber string `json:"buildNumber,omitempty"`
	RunID       string `json:"runId,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Server exposes the latest run per job and the release record.
type Server struct {
	pipeline *domain.Pipeline
	runs     ports.RunStore
	releases ports.ReleaseStore
	logger   ports.Logger
}

// NewServer creates a Server for a loaded pipeline.
func NewServer(pipeline *domain.Pipeline, runs ports.RunStore, releases ports.ReleaseStore, logger ports.Logger) *Server {
	return &Server{pipeline: pipeline, runs: runs, releases: releases, logger: logger}
}

// Routes returns the HTTP handler of the API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", s.handleJobs)
		r.Get("/jobs/{id}/status", s.handleJobStatus)
		r.Get("/release", s.handleRelease)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to listen"), "addr", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("status API listening on http://" + ln.Addr().String())

	select {
	case err := <-errCh:
		return zerr.Wrap(err, "status API stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return zerr.Wrap(err, "failed to shut down status API")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return zerr.Wrap(err, "status API stopped")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := make([]JobStatus, 0, s.pipeline.Graph.JobCount())
	for job := range s.pipeline.Graph.Walk() {
		run, err := s.runs.Latest(s.pipeline.Root, job.ID.String())
		if err != nil {
			s.fail(w, err)
			return
		}
		jobs = append(jobs, toJobStatus(job, run))
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.pipeline.Graph.Job(domain.NewInternedString(id)); !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: domain.ErrJobNotFound.Error()})
		return
	}

	run, err := s.runs.Latest(s.pipeline.Root, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "job has never run"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRelease(w http.ResponseWriter, _ *http.Request) {
	if s.pipeline.Release == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: domain.ErrReleaseNotDeclared.Error()})
		return
	}

	record, err := s.releases.GetRelease(s.pipeline.Root)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error(err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
}

func toJobStatus(job *domain.Job, run *domain.Run) JobStatus {
	st := JobStatus{
		ID:       job.ID.String(),
		Name:     job.DisplayName(),
		Platform: job.Platform,
		Status:   StatusNeverRun,
	}
	if run != nil {
		st.Status = string(run.Status)
		st.BuildNumber = run.BuildNumber
		st.RunID = run.ID
	}
	return st
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
