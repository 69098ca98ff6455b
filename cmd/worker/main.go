// Package main provides the entry point for the citation tracking Temporal worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/citetrack/citation-service/internal/artifacts"
	"github.com/citetrack/citation-service/internal/config"
	"github.com/citetrack/citation-service/internal/database"
	"github.com/citetrack/citation-service/internal/discovery"
	"github.com/citetrack/citation-service/internal/discovery/semanticscholar"
	"github.com/citetrack/citation-service/internal/events"
	"github.com/citetrack/citation-service/internal/llm"
	"github.com/citetrack/citation-service/internal/observability"
	"github.com/citetrack/citation-service/internal/pdf"
	"github.com/citetrack/citation-service/internal/pipeline"
	"github.com/citetrack/citation-service/internal/repository"
	"github.com/citetrack/citation-service/internal/temporal"
	"github.com/citetrack/citation-service/internal/temporal/activities"
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
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("citation-service worker starting")

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

	// Create the processing ledger.
	ledger := repository.NewPgLedger(db)

	// Create metrics.
	metrics := observability.NewMetrics("citation_pipeline")

	// Create the citation source registry and register enabled sources.
	registry := discovery.NewRegistry()
	registerCitationSources(registry, cfg, logger)

	source := registry.Get(semanticscholar.SourceName)
	if source == nil || !source.IsEnabled() {
		return fmt.Errorf("citation source %q is not enabled", semanticscholar.SourceName)
	}

	// Create the LLM oracle clients. Stage one rides the light tier; stage
	// two, structuring, and summarization ride the heavy tier.
	factoryCfg := llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		OpenAIHeavyModel: cfg.LLM.OpenAI.HeavyModel,
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
		AnthropicHeavyModel: cfg.LLM.Anthropic.HeavyModel,
	}

	lightClient, err := llm.NewClient(factoryCfg, llm.TierLight)
	if err != nil {
		return fmt.Errorf("create light LLM client: %w", err)
	}
	heavyClient, err := llm.NewClient(factoryCfg, llm.TierHeavy)
	if err != nil {
		return fmt.Errorf("create heavy LLM client: %w", err)
	}

	stageOne := llm.NewStageOneClassifier(lightClient)
	stageTwo := llm.NewStageTwoClassifier(heavyClient)
	structurer := llm.NewStructurer(heavyClient)
	summarizer := llm.NewSummarizer(heavyClient)

	// Create the PDF downloader and extraction client.
	downloader := pdf.NewDownloader(pdf.Config{
		Timeout:   cfg.PDF.Timeout,
		MaxSize:   cfg.PDF.MaxSizeBytes,
		UserAgent: cfg.PDF.UserAgent,
	})
	extractor := pdf.NewExtractionClient(pdf.ExtractionConfig{
		BaseURL: cfg.Extraction.BaseURL,
		Timeout: cfg.Extraction.Timeout,
	})
	material := pipeline.NewMaterialResolver(downloader, extractor, pipeline.ResolverConfig{
		SnippetPages:      cfg.Extraction.SnippetPages,
		MaxFullTextChars:  cfg.Extraction.MaxTextChars,
		FallbackTextChars: cfg.Extraction.FallbackTextChars,
	})

	// Create the artifact store.
	artifactStore := artifacts.NewFSStore(cfg.Artifacts.BaseDir)
	logger.Info().Str("base_dir", cfg.Artifacts.BaseDir).Msg("artifact store created")

	// Create the Kafka event publisher when enabled. A nil sink disables
	// event publication without touching the pipeline.
	var eventSink pipeline.EventSink
	if cfg.Kafka.Enabled {
		publisher := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, metrics, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close event publisher")
			}
		}()
		eventSink = publisher
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("kafka event publisher created")
	}

	// Create the pipeline orchestrator.
	orchestrator := pipeline.NewOrchestrator(pipeline.Dependencies{
		Ledger:     ledger,
		Material:   material,
		StageOne:   stageOne,
		StageTwo:   stageTwo,
		Structurer: structurer,
		Summarizer: summarizer,
		Artifacts:  artifactStore,
		Events:     eventSink,
		Metrics:    metrics,
		Logger:     logger,
	}, pipeline.Config{
		MaxRetries:   cfg.Pipeline.MaxRetries,
		Concurrency:  cfg.Pipeline.Concurrency,
		StageTimeout: cfg.Pipeline.StageTimeout,
	})

	// Create Temporal client.
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Create WorkerManager.
	workerConfig := temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue)
	manager, err := temporal.NewWorkerManager(temporalClient, workerConfig)
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	// Register the workflow and activities.
	manager.RegisterWorkflow(workflows.CitationPollWorkflow)

	citationActivities := activities.NewCitationActivities(
		source, orchestrator, ledger, cfg.Pipeline.MaxRetries, metrics)
	manager.RegisterActivity(citationActivities)

	// Ensure every configured tracked paper has a running poll workflow.
	pollClient := temporal.NewPollWorkflowClient(temporalClient, cfg.Temporal.TaskQueue)
	for _, tracked := range cfg.TrackedPapers {
		input := workflows.CitationPollInput{
			TrackedPaperID: tracked.ID,
			TrackedAlias:   tracked.Alias,
			PollInterval:   cfg.Pipeline.PollInterval,
			MaxCandidates:  cfg.Discovery.PageSize,
			MaxParallel:    cfg.Pipeline.Concurrency,
		}
		workflowID, _, err := pollClient.StartPollWorkflow(ctx, tracked.Alias, workflows.CitationPollWorkflow, input)
		switch {
		case err == nil:
			logger.Info().
				Str("workflow_id", workflowID).
				Str("alias", tracked.Alias).
				Msg("poll workflow started")
		case temporal.IsWorkflowAlreadyStarted(err):
			logger.Info().
				Str("alias", tracked.Alias).
				Msg("poll workflow already running")
		default:
			return fmt.Errorf("start poll workflow for %s: %w", tracked.Alias, err)
		}
	}

	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Int("tracked_papers", len(cfg.TrackedPapers)).
		Msg("starting temporal worker")

	// Start the worker and block until context is cancelled.
	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}

// registerCitationSources registers every enabled citation source with the
// registry.
func registerCitationSources(registry *discovery.Registry, cfg *config.Config, logger zerolog.Logger) {
	// Semantic Scholar.
	if cfg.Discovery.SemanticScholar.Enabled {
		ssCfg := cfg.Discovery.SemanticScholar
		ssClient := semanticscholar.NewClient(semanticscholar.Config{
			BaseURL:   ssCfg.BaseURL,
			APIKey:    ssCfg.APIKey,
			Timeout:   ssCfg.Timeout,
			RateLimit: ssCfg.RateLimit,
			PageSize:  cfg.Discovery.PageSize,
			Enabled:   true,
		}, nil)
		registry.Register(ssClient)
		logger.Info().Msg("registered citation source: Semantic Scholar")
	}

	for _, source := range registry.EnabledSources() {
		logger.Debug().Str("source", source.Name()).Msg("citation source enabled")
	}
}
