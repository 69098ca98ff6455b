package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/citetrack/citation-service/internal/discovery"
	"github.com/citetrack/citation-service/internal/domain"
	"github.com/citetrack/citation-service/internal/observability"
	"github.com/citetrack/citation-service/internal/repository"
)

// defaultMaxCandidates caps discovery when the input does not.
const defaultMaxCandidates = 50

// RecordProcessor is the subset of the pipeline orchestrator used by the
// activities. The interface decouples the activities from the concrete
// orchestrator, enabling straightforward testing with fakes.
type RecordProcessor interface {
	RegisterCandidates(ctx context.Context, tracked domain.TrackedPaper, candidates []domain.CitingPaperCandidate) (created, deduplicated int, err error)
	ProcessRecord(ctx context.Context, tracked domain.TrackedPaper, key domain.RecordKey) (*domain.ProcessingRecord, error)
}

// CitationActivities provides the Temporal activities for one citation poll
// cycle. Methods on this struct are registered with the worker.
type CitationActivities struct {
	source     discovery.CitationSource
	processor  RecordProcessor
	ledger     repository.ProcessingLedger
	maxRetries int
	metrics    *observability.Metrics
}

// NewCitationActivities creates a CitationActivities instance with the given
// dependencies. The metrics parameter may be nil (metrics recording is
// skipped).
func NewCitationActivities(
	source discovery.CitationSource,
	processor RecordProcessor,
	ledger repository.ProcessingLedger,
	maxRetries int,
	metrics *observability.Metrics,
) *CitationActivities {
	return &CitationActivities{
		source:     source,
		processor:  processor,
		ledger:     ledger,
		maxRetries: maxRetries,
		metrics:    metrics,
	}
}

// DiscoverCitations fetches the tracked paper's metadata and the papers citing
// it, paging the citation source up to the configured cap.
func (a *CitationActivities) DiscoverCitations(ctx context.Context, input DiscoverCitationsInput) (*DiscoverCitationsOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("discovering citations",
		"trackedPaperID", input.TrackedPaperID,
		"trackedAlias", input.TrackedAlias,
		"source", a.source.Name(),
	)

	if a.metrics != nil {
		a.metrics.RecordPollStarted(input.TrackedAlias)
	}

	details, err := a.source.PaperDetails(ctx, input.TrackedPaperID)
	if err != nil {
		return nil, fmt.Errorf("fetching tracked paper %s: %w", input.TrackedPaperID, err)
	}

	maxCandidates := input.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}

	var (
		candidates []domain.CitingPaperCandidate
		offset     int
		hasMore    bool
	)
	for len(candidates) < maxCandidates {
		page, err := a.source.Citations(ctx, input.TrackedPaperID, offset)
		if err != nil {
			return nil, fmt.Errorf("fetching citations for %s at offset %d: %w", input.TrackedPaperID, offset, err)
		}

		candidates = append(candidates, page.Candidates...)
		hasMore = page.HasMore
		if !page.HasMore {
			break
		}
		offset = page.NextOffset
	}

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
		hasMore = true
	}

	logger.Info("citations discovered",
		"trackedPaperID", input.TrackedPaperID,
		"candidateCount", len(candidates),
		"hasMore", hasMore,
	)

	return &DiscoverCitationsOutput{
		Tracked: TrackedPaperSnapshot{
			PaperID:  details.PaperID,
			Alias:    input.TrackedAlias,
			Title:    details.Title,
			Abstract: details.Abstract,
		},
		Candidates: candidates,
		HasMore:    hasMore,
	}, nil
}

// RegisterCandidates records discovered candidates in the ledger and returns
// every record that still needs pipeline work, including retryable failures
// from earlier polls.
func (a *CitationActivities) RegisterCandidates(ctx context.Context, input RegisterCandidatesInput) (*RegisterCandidatesOutput, error) {
	logger := activity.GetLogger(ctx)

	created, deduplicated, err := a.processor.RegisterCandidates(ctx, input.Tracked.TrackedPaper(), input.Candidates)
	if err != nil {
		return nil, fmt.Errorf("registering candidates: %w", err)
	}

	pending, err := a.ledger.ListPending(ctx, input.Tracked.PaperID, a.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("listing pending records: %w", err)
	}

	keys := make([]domain.RecordKey, 0, len(pending))
	for _, record := range pending {
		keys = append(keys, record.Key)
	}

	logger.Info("candidates registered",
		"trackedPaperID", input.Tracked.PaperID,
		"created", created,
		"deduplicated", deduplicated,
		"pending", len(keys),
	)

	return &RegisterCandidatesOutput{
		Created:      created,
		Deduplicated: deduplicated,
		PendingKeys:  keys,
	}, nil
}

// ProcessCandidate drives one record through the classification pipeline.
// A record-level failure is returned as data: the ledger already holds the
// retry state, and a Temporal activity retry would only duplicate it.
func (a *CitationActivities) ProcessCandidate(ctx context.Context, input ProcessCandidateInput) (*ProcessCandidateOutput, error) {
	logger := activity.GetLogger(ctx)

	record, err := a.processor.ProcessRecord(ctx, input.Tracked.TrackedPaper(), input.Key)
	if err != nil {
		logger.Warn("record processing failed",
			"trackedPaperID", input.Key.TrackedPaperID,
			"citingPaperID", input.Key.CitingPaperID,
			"error", err,
		)

		output := &ProcessCandidateOutput{Failed: true, Error: err.Error()}
		if record != nil {
			output.Stage = record.Stage
			output.Disposition = record.FinalDisposition
		}
		return output, nil
	}

	return &ProcessCandidateOutput{
		Stage:       record.Stage,
		Disposition: record.FinalDisposition,
	}, nil
}

// ReportRunSummary finalizes one poll cycle: it surfaces exhausted records and
// records the poll metrics.
func (a *CitationActivities) ReportRunSummary(ctx context.Context, input ReportRunSummaryInput) (*ReportRunSummaryOutput, error) {
	logger := activity.GetLogger(ctx)

	exhausted, err := a.ledger.ListFailedExhausted(ctx, input.Tracked.PaperID, a.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("listing exhausted records: %w", err)
	}

	records := make([]ExhaustedRecord, 0, len(exhausted))
	for _, record := range exhausted {
		records = append(records, ExhaustedRecord{
			Key:        record.Key,
			RetryCount: record.RetryCount,
			LastError:  record.LastError,
		})
	}

	if a.metrics != nil {
		a.metrics.RecordPollCompleted(input.Tracked.Alias, input.DurationSeconds)
	}

	logger.Info("poll cycle completed",
		"trackedPaperID", input.Tracked.PaperID,
		"trackedAlias", input.Tracked.Alias,
		"created", input.Created,
		"deduplicated", input.Deduplicated,
		"processed", input.Processed,
		"sameTask", input.SameTask,
		"other", input.Other,
		"failed", input.Failed,
		"exhausted", len(records),
		"duration", input.DurationSeconds,
	)

	for _, record := range records {
		logger.Warn("record exhausted retry ceiling",
			"trackedPaperID", record.Key.TrackedPaperID,
			"citingPaperID", record.Key.CitingPaperID,
			"retryCount", record.RetryCount,
			"lastError", record.LastError,
		)
	}

	return &ReportRunSummaryOutput{Exhausted: records}, nil
}
