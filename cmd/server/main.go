// Package main provides the entry point for the citation tracking HTTP API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/citetrack/citation-service/internal/config"
	"github.com/citetrack/citation-service/internal/database"
	"github.com/citetrack/citation-service/internal/observability"
	"github.com/citetrack/citation-service/internal/repository"
	"github.com/citetrack/citation-service/internal/server"
	"github.com/citetrack/citation-service/internal/temporal"
	"github.com/citetrack/citation-service/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("citation-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create the processing ledger.
	ledger := repository.NewPgLedger(db)

	// Create Temporal client.
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Create the poll workflow client for the HTTP handlers.
	pollClient := temporal.NewPollWorkflowClient(temporalClient, cfg.Temporal.TaskQueue)
	defer pollClient.Close()

	// pollInput builds the workflow input for a tracked paper when a manual
	// trigger has to start the workflow itself.
	pollInput := func(tracked config.TrackedPaperConfig) interface{} {
		return workflows.CitationPollInput{
			TrackedPaperID: tracked.ID,
			TrackedAlias:   tracked.Alias,
			PollInterval:   cfg.Pipeline.PollInterval,
			MaxCandidates:  cfg.Discovery.PageSize,
			MaxParallel:    cfg.Pipeline.Concurrency,
		}
	}

	httpCfg := server.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}

	httpSrv := server.NewServer(
		httpCfg,
		ledger,
		db,
		pollClient,
		workflows.CitationPollWorkflow,
		pollInput,
		cfg.TrackedPapers,
		cfg.Pipeline.MaxRetries,
		logger,
	)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	// Start HTTP server in background.
	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Int("tracked_papers", len(cfg.TrackedPapers)).
		Msg("citation-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down citation-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("citation-service shutdown complete")
	return nil
}
