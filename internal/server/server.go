package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peakyragnar/hx-sub001/internal/orchestrator"
	"github.com/peakyragnar/hx-sub001/internal/state"
)

// #region types

// Estimator runs the adaptive controller for one claim.
type Estimator interface {
	Run(ctx context.Context, claim string) (*orchestrator.RunResult, error)
}

// RunStore persists and reads finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, r *orchestrator.RunResult) error
	GetRun(ctx context.Context, runID string) (*orchestrator.RunResult, error)
	ListRuns(ctx context.Context, limit int) ([]state.RunSummary, error)
}

// EstimateRequest is the body of POST /v1/estimate.
type EstimateRequest struct {
	Claim string `json:"claim"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// Error codes.
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeInvalid    = "INVALID_CONFIG"
	CodeNotFound   = "NOT_FOUND"
	CodeExhausted  = "TEMPLATE_EXHAUSTED"
	CodeTimeout    = "TIMEOUT"
	CodeInternal   = "INTERNAL_ERROR"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
	maxBodyBytes    = 1 << 16
)

// Server exposes the controller over HTTP.
type Server struct {
	est    Estimator
	store  RunStore
	router chi.Router
}

// #endregion types

// #region routes

// New builds a Server. gatherer backs /metrics; nil uses the default
// Prometheus registry.
func New(est Estimator, store RunStore, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{est: est, store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/estimate", s.handleEstimate)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// with a short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] listening addr=%s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		log.Printf("[HTTP] stopped addr=%s", addr)
		return nil
	}
}

// #endregion routes

// #region handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: CodeBadRequest})
		return
	}
	req.Claim = strings.TrimSpace(req.Claim)

	start := time.Now()
	run, err := s.est.Run(r.Context(), req.Claim)
	if err != nil {
		log.Printf("[HTTP] estimate failed request_id=%s: %v", middleware.GetReqID(r.Context()), err)
		writeRunError(w, err)
		return
	}
	if err := s.store.SaveRun(r.Context(), run); err != nil {
		log.Printf("[HTTP] run not persisted run_id=%s: %v", run.RunID, err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "run completed but could not be stored", Code: CodeInternal})
		return
	}
	log.Printf("[HTTP] estimate run_id=%s status=%s prob=%.4f stages=%d elapsed=%s",
		run.RunID, run.Status(), run.Final.Prob, len(run.Stages), time.Since(start).Round(time.Millisecond))
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.GetRun(r.Context(), runID)
	if errors.Is(err, state.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("run %s not found", runID), Code: CodeNotFound})
		return
	}
	if err != nil {
		log.Printf("[HTTP] get run run_id=%s: %v", runID, err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load run", Code: CodeInternal})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunLimit {
			writeError(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("limit must be an integer in [1, %d]", maxRunLimit),
				Code:  CodeBadRequest,
				Field: "limit",
			})
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		log.Printf("[HTTP] list runs: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list runs", Code: CodeInternal})
		return
	}
	if runs == nil {
		runs = []state.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// #endregion handlers

// #region responses

// writeRunError maps controller failures onto status codes.
func writeRunError(w http.ResponseWriter, err error) {
	var ce *orchestrator.ConfigError
	var ex *orchestrator.ExhaustionError
	switch {
	case errors.As(err, &ce):
		writeError(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ce.Error(), Code: CodeInvalid, Field: ce.Field})
	case errors.As(err, &ex):
		writeError(w, http.StatusBadGateway, ErrorResponse{Error: ex.Error(), Code: CodeExhausted})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Code: CodeTimeout})
	default:
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
	}
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}

// #endregion responses
