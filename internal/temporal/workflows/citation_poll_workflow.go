// Package workflows defines the Temporal workflow implementations for the
// citation tracking pipeline.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/citetrack/citation-service/internal/domain"
	cttemporal "github.com/citetrack/citation-service/internal/temporal"
	"github.com/citetrack/citation-service/internal/temporal/activities"
)

// Re-export signal/query name constants from the parent temporal package for
// convenience.
const (
	SignalPollNow = cttemporal.SignalPollNow
	SignalStop    = cttemporal.SignalStop
	QueryStatus   = cttemporal.QueryStatus
)

// Activity timeout constants.
const (
	discoveryActivityTimeout = 5 * time.Minute
	registerActivityTimeout  = 1 * time.Minute
	processActivityTimeout   = 15 * time.Minute
	reportActivityTimeout    = 30 * time.Second
)

// Workflow defaults.
const (
	// defaultPollInterval is the sleep between discovery polls.
	defaultPollInterval = time.Hour

	// defaultMaxParallel bounds the number of records processed concurrently
	// in one cycle.
	defaultMaxParallel = 4

	// defaultCyclesPerRun is the number of poll cycles before the workflow
	// continues-as-new to bound its event history.
	defaultCyclesPerRun = 24
)

// CitationPollInput contains the parameters for the citation poll workflow.
// One workflow execution monitors one tracked paper.
type CitationPollInput struct {
	// TrackedPaperID is the external identifier of the tracked paper.
	TrackedPaperID string

	// TrackedAlias is the tracked paper's short name.
	TrackedAlias string

	// PollInterval is the sleep between polls. Default: 1 hour.
	PollInterval time.Duration

	// MaxCandidates caps the citing papers fetched per poll. Default: 50.
	MaxCandidates int

	// MaxParallel bounds concurrent record processing. Default: 4.
	MaxParallel int

	// CyclesPerRun is the number of cycles before continue-as-new.
	// Default: 24.
	CyclesPerRun int
}

// PollStatus is the workflow's queryable state, exposed via QueryStatus.
type PollStatus struct {
	Cycle          int
	Phase          string
	LastCreated    int
	LastProcessed  int
	LastSameTask   int
	LastOther      int
	LastFailed     int
	ExhaustedCount int
}

// CitationPollWorkflow continuously monitors one tracked paper for new citing
// papers. Each cycle discovers citations, registers them in the ledger, fans
// out record processing with bounded parallelism, and reports a run summary.
// The ledger makes every cycle idempotent, so overlapping or repeated polls
// converge on the same records.
//
// The workflow sleeps PollInterval between cycles, wakes early on the
// "poll_now" signal, stops gracefully on "stop", and continues-as-new after
// CyclesPerRun cycles to keep the event history bounded.
func CitationPollWorkflow(ctx workflow.Context, input CitationPollInput) error {
	logger := workflow.GetLogger(ctx)

	if input.PollInterval <= 0 {
		input.PollInterval = defaultPollInterval
	}
	if input.MaxParallel <= 0 {
		input.MaxParallel = defaultMaxParallel
	}
	if input.CyclesPerRun <= 0 {
		input.CyclesPerRun = defaultCyclesPerRun
	}

	status := &PollStatus{Phase: "initializing"}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*PollStatus, error) {
		return status, nil
	}); err != nil {
		return err
	}

	pollNowCh := workflow.GetSignalChannel(ctx, SignalPollNow)
	stopCh := workflow.GetSignalChannel(ctx, SignalStop)

	// Activity nil-pointer variable for method references.
	var act *activities.CitationActivities

	discoveryCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: discoveryActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    1 * time.Minute,
			MaximumAttempts:    5,
		},
	})

	registerCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: registerActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})

	// Record processing keeps its own retry state in the ledger; an activity
	// retry would only duplicate it. Retries here cover worker crashes, not
	// record failures.
	processCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: processActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    2,
		},
	})

	reportCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: reportActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})

	for cycle := 1; cycle <= input.CyclesPerRun; cycle++ {
		status.Cycle = cycle
		cycleStart := workflow.Now(ctx)

		// Discover.
		status.Phase = "discovering"
		var discovered activities.DiscoverCitationsOutput
		err := workflow.ExecuteActivity(discoveryCtx, act.DiscoverCitations, activities.DiscoverCitationsInput{
			TrackedPaperID: input.TrackedPaperID,
			TrackedAlias:   input.TrackedAlias,
			MaxCandidates:  input.MaxCandidates,
		}).Get(ctx, &discovered)
		if err != nil {
			return err
		}

		// Register.
		status.Phase = "registering"
		var registered activities.RegisterCandidatesOutput
		err = workflow.ExecuteActivity(registerCtx, act.RegisterCandidates, activities.RegisterCandidatesInput{
			Tracked:    discovered.Tracked,
			Candidates: discovered.Candidates,
		}).Get(ctx, &registered)
		if err != nil {
			return err
		}
		status.LastCreated = registered.Created

		// Process pending records with bounded parallelism. Futures are
		// launched and collected in deterministic windows; record failures
		// come back as data and never fail the cycle.
		status.Phase = "processing"
		var processed, sameTask, other, failed int
		keys := registered.PendingKeys
		for start := 0; start < len(keys); start += input.MaxParallel {
			end := start + input.MaxParallel
			if end > len(keys) {
				end = len(keys)
			}

			var futures []workflow.Future
			for _, key := range keys[start:end] {
				futures = append(futures, workflow.ExecuteActivity(processCtx, act.ProcessCandidate, activities.ProcessCandidateInput{
					Tracked: discovered.Tracked,
					Key:     key,
				}))
			}

			for i, future := range futures {
				var output activities.ProcessCandidateOutput
				if err := future.Get(ctx, &output); err != nil {
					logger.Warn("process activity failed",
						"citingPaperID", keys[start+i].CitingPaperID,
						"error", err,
					)
					failed++
					continue
				}

				processed++
				if output.Failed {
					failed++
					continue
				}
				if output.Disposition != nil {
					switch *output.Disposition {
					case domain.DispositionSameTask:
						sameTask++
					case domain.DispositionOther:
						other++
					}
				}
			}
		}
		status.LastProcessed = processed
		status.LastSameTask = sameTask
		status.LastOther = other
		status.LastFailed = failed

		// Report.
		status.Phase = "reporting"
		var summary activities.ReportRunSummaryOutput
		err = workflow.ExecuteActivity(reportCtx, act.ReportRunSummary, activities.ReportRunSummaryInput{
			Tracked:         discovered.Tracked,
			Created:         registered.Created,
			Deduplicated:    registered.Deduplicated,
			Processed:       processed,
			SameTask:        sameTask,
			Other:           other,
			Failed:          failed,
			DurationSeconds: workflow.Now(ctx).Sub(cycleStart).Seconds(),
		}).Get(ctx, &summary)
		if err != nil {
			return err
		}
		status.ExhaustedCount = len(summary.Exhausted)

		logger.Info("poll cycle finished",
			"cycle", cycle,
			"created", registered.Created,
			"processed", processed,
			"sameTask", sameTask,
			"other", other,
			"failed", failed,
			"exhausted", len(summary.Exhausted),
		)

		// Sleep until the next poll, an early poll signal, or a stop.
		status.Phase = "sleeping"
		var stop bool
		selector := workflow.NewSelector(ctx)
		selector.AddFuture(workflow.NewTimer(ctx, input.PollInterval), func(workflow.Future) {})
		selector.AddReceive(pollNowCh, func(ch workflow.ReceiveChannel, _ bool) {
			ch.Receive(ctx, nil)
			logger.Info("received poll_now signal")
		})
		selector.AddReceive(stopCh, func(ch workflow.ReceiveChannel, _ bool) {
			ch.Receive(ctx, nil)
			stop = true
			logger.Info("received stop signal")
		})
		selector.Select(ctx)

		if stop {
			status.Phase = "stopped"
			return nil
		}
	}

	// Bound the event history; the next run picks up with the same input.
	return workflow.NewContinueAsNewError(ctx, CitationPollWorkflow, input)
}
