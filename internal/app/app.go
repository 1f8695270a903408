// Package app wires configuration, the job registry, the dispatch workers
// and the HTTP surfaces into one runnable service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/campaignd/internal/api"
	"github.com/foxzi/campaignd/internal/config"
	"github.com/foxzi/campaignd/internal/dispatch"
	"github.com/foxzi/campaignd/internal/jobs"
	"github.com/foxzi/campaignd/internal/metrics"
	"github.com/foxzi/campaignd/internal/report"
	"github.com/foxzi/campaignd/internal/sendlog"
	"github.com/foxzi/campaignd/internal/storage"
)

// App is the main application
type App struct {
	config        *config.Config
	registry      *jobs.Registry
	sendLog       *sendlog.Log
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	apiServer     *api.Server
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	// Setup logger
	logger := setupLogger(cfg.Logging)

	m := metrics.New()

	registry := jobs.NewRegistry(cfg.Registry.Retention, logger)
	registry.OnTerminal = func(j jobs.Job) {
		m.JobsCompletedTotal.WithLabelValues(string(j.Type), string(j.Status)).Inc()
	}

	dirs, err := storage.NewDirs(cfg.Server.UploadDir, cfg.Server.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create data directories: %w", err)
	}

	var sendLog *sendlog.Log
	if cfg.SendLog.Enabled {
		sendLog, err = sendlog.Open(cfg.SendLog.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open send log: %w", err)
		}
		logger.Info("send log enabled", "path", cfg.SendLog.Path)
	}

	ctx := context.Background()

	sesClient, err := dispatch.NewSESClient(ctx, cfg.SES.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create SES client: %w", err)
	}
	sesWorker := dispatch.NewSESWorker(sesClient, registry, m, sendLog, cfg.SES, logger)

	msg91Worker := dispatch.NewMsg91Worker(registry, m, sendLog, cfg.Msg91, logger)

	s3Store, err := storage.NewS3Store(ctx, cfg.Report.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	reconciler := report.NewReconciler(s3Store, registry, m, cfg.Report.PrefixRoot, logger)

	runners := api.Runners{
		SES:    sesWorker.Run,
		Msg91:  msg91Worker.Run,
		Report: reconciler.Run,
	}

	apiServer := api.NewServer(registry, dirs, sendLog, m, runners, cfg, logger.With("component", "api"))

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServerWithAllowedIPs(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger)
	}

	return &App{
		config:        cfg,
		registry:      registry,
		sendLog:       sendLog,
		metrics:       m,
		metricsServer: metricsServer,
		apiServer:     apiServer,
		logger:        logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting campaignd",
		"api_addr", a.config.Server.ListenAddr,
		"metrics_enabled", a.config.Metrics.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.registry.StartSweeper(a.config.Registry.SweepInterval)

	// Keep the registry gauge roughly current without coupling the
	// registry itself to metrics.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.metrics.RegistryJobs.Set(float64(a.registry.Counts().Total))
			}
		}
	}()

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start metrics server if enabled
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Stop the sweeper; running jobs are fire-and-forget and keep the
	// registry until they finish writing their terminal status.
	a.registry.Stop()

	if a.sendLog != nil {
		if err := a.sendLog.Close(); err != nil {
			a.logger.Error("send log close error", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
