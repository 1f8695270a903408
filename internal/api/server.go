package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/campaignd/internal/config"
	"github.com/foxzi/campaignd/internal/dispatch"
	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/metrics"
	"github.com/foxzi/campaignd/internal/report"
	"github.com/foxzi/campaignd/internal/sendlog"
	"github.com/foxzi/campaignd/internal/storage"
)

// Runners are the background executors a job submission hands off to. Each
// call runs one job to completion; the handler never waits on it.
type Runners struct {
	SES    func(ctx context.Context, jobID string, p dispatch.SESParams)
	Msg91  func(ctx context.Context, jobID string, p dispatch.Msg91Params)
	Report func(ctx context.Context, jobID string, p report.Params)
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	registry   *jobs.Registry
	dirs       *storage.Dirs
	log        *sendlog.Log
	metrics    *metrics.Metrics
	runners    Runners
	config     *config.Config
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server. log may be nil when the send log is
// disabled.
func NewServer(registry *jobs.Registry, dirs *storage.Dirs, log *sendlog.Log, m *metrics.Metrics, runners Runners, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		registry:  registry,
		dirs:      dirs,
		log:       log,
		metrics:   m,
		runners:   runners,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware(s.metrics))
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/jobs/ses", s.handleCreateSESJob)
		r.Post("/jobs/msg91", s.handleCreateMsg91Job)
		r.Post("/jobs/report", s.handleCreateReportJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/log", s.handleJobLog)
		r.Get("/download/{name}", s.handleDownload)
	})
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
