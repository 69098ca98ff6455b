// Package server provides the HTTP API for the citation tracking service:
// health and readiness probes, Prometheus metrics, tracked-paper listing,
// ledger queries, and manual poll control.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/citetrack/citation-service/internal/config"
	"github.com/citetrack/citation-service/internal/database"
	"github.com/citetrack/citation-service/internal/repository"
	"github.com/citetrack/citation-service/internal/temporal"
)

// PollClient is the subset of the Temporal poll workflow client the server
// uses. The interface keeps the handlers testable without a Temporal server.
type PollClient interface {
	Health(ctx context.Context) error
	StartPollWorkflow(ctx context.Context, trackedAlias string, workflowFunc interface{}, input interface{}) (workflowID, runID string, err error)
	TriggerPoll(ctx context.Context, trackedAlias string) error
	StopPoll(ctx context.Context, trackedAlias string) error
	DescribeWorkflow(ctx context.Context, workflowID, runID string) (*temporal.WorkflowDescription, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MetricsEnabled exposes the Prometheus handler at MetricsPath.
	MetricsEnabled bool
	MetricsPath    string
}

// Server is the HTTP API server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	ledger       repository.ProcessingLedger
	db           *database.DB
	pollClient   PollClient
	workflowFunc interface{} // The Temporal workflow function reference.
	pollInput    func(tracked config.TrackedPaperConfig) interface{}
	tracked      []config.TrackedPaperConfig
	maxRetries   int
	logger       zerolog.Logger
}

// NewServer creates a new HTTP server with all dependencies.
// workflowFunc is the Temporal workflow function reference
// (workflows.CitationPollWorkflow) and pollInput builds its input for a
// tracked paper; both are passed through to StartPollWorkflow untouched so the
// server never imports the workflows package.
func NewServer(
	cfg Config,
	ledger repository.ProcessingLedger,
	db *database.DB,
	pollClient PollClient,
	workflowFunc interface{},
	pollInput func(tracked config.TrackedPaperConfig) interface{},
	tracked []config.TrackedPaperConfig,
	maxRetries int,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		ledger:       ledger,
		db:           db,
		pollClient:   pollClient,
		workflowFunc: workflowFunc,
		pollInput:    pollInput,
		tracked:      tracked,
		maxRetries:   maxRetries,
		logger:       logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter(cfg)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogMiddleware(s.logger))

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/tracked", s.listTrackedPapers)
		r.Route("/tracked/{alias}", func(r chi.Router) {
			r.Get("/records", s.listRecords)
			r.Get("/records/failed", s.listFailedRecords)
			r.Post("/polls", s.triggerPoll)
			r.Delete("/polls", s.stopPoll)
		})
	})

	return r
}

// Router returns the configured handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status including Temporal connectivity.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}

	if err := s.pollClient.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "healthy",
			"temporal": "unhealthy",
			"error":    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
		"temporal": "healthy",
	})
}

// trackedByAlias resolves an alias from the URL to its configuration.
func (s *Server) trackedByAlias(alias string) (config.TrackedPaperConfig, bool) {
	for _, t := range s.tracked {
		if t.Alias == alias {
			return t, true
		}
	}
	return config.TrackedPaperConfig{}, false
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Best-effort; headers are already sent.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
