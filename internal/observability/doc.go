// Package observability provides logging and metrics support for the
// citation tracking service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for polls, pipeline stages, and external sources
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("tracked_alias", alias).Msg("poll started")
//
// Add pair context to a logger:
//
//	logger = observability.WithPairContext(logger, trackedPaperID, citingPaperID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("citation_pipeline")
//
// Record metrics:
//
//	metrics.RecordPairDiscovered()
//	metrics.RecordStageOneResult("same_task", "abstract_only")
//	metrics.RecordShortCircuit()
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithPair(ctx, trackedPaperID, citingPaperID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	trackedID, citingID := observability.PairFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: API request identifier
//   - tracked_paper_id: Tracked reference paper identifier
//   - tracked_alias: Tracked paper short name
//   - citing_paper_id: Citing paper identifier
//   - stage: Processing record stage
//   - source: External API (semantic_scholar, extraction)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
