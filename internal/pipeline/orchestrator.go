package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/citetrack/citation-service/internal/domain"
	"github.com/citetrack/citation-service/internal/llm"
	"github.com/citetrack/citation-service/internal/observability"
	"github.com/citetrack/citation-service/internal/repository"
)

// Defaults for orchestrator configuration.
const (
	DefaultMaxRetries   = 5
	DefaultConcurrency  = 4
	DefaultStageTimeout = 120 * time.Second
)

// StageOneOracle performs the cheap first-pass classification.
type StageOneOracle interface {
	Classify(ctx context.Context, req llm.StageOneRequest) (*llm.StageOneDecision, error)
}

// StageTwoOracle performs the expensive full-text classification.
type StageTwoOracle interface {
	Classify(ctx context.Context, req llm.StageTwoRequest) (*llm.StageTwoDecision, error)
}

// DocumentStructurer sections raw extracted text.
type DocumentStructurer interface {
	Structure(ctx context.Context, req llm.StructureRequest) (*domain.StructuredDocument, error)
}

// SummaryOracle renders a Markdown summary for a same-task pair.
type SummaryOracle interface {
	Summarize(ctx context.Context, req llm.SummarizeRequest) (*llm.Summary, error)
}

// ArtifactWriter persists pipeline outputs.
type ArtifactWriter interface {
	WriteSummary(ctx context.Context, artifact domain.SummaryArtifact) error
	WriteClassification(ctx context.Context, artifact domain.ClassificationArtifact) error
}

// EventSink receives best-effort pipeline event notifications. Implementations
// must never block the pipeline; failures are logged, not returned.
type EventSink interface {
	PairDiscovered(ctx context.Context, key domain.RecordKey, candidate domain.CitingPaperCandidate)
	DispositionFinalized(ctx context.Context, key domain.RecordKey, disposition domain.Disposition)
	RecordExhausted(ctx context.Context, key domain.RecordKey, lastError string)
}

// Config holds orchestrator configuration.
type Config struct {
	// MaxRetries is the retry ceiling for failed records. Default: 5.
	MaxRetries int

	// Concurrency bounds the number of records processed in parallel.
	// Default: 4.
	Concurrency int

	// StageTimeout bounds the wall-clock time of a single pipeline step.
	// Default: 120 seconds.
	StageTimeout time.Duration
}

// Dependencies carries the orchestrator's collaborators.
type Dependencies struct {
	Ledger     repository.ProcessingLedger
	Material   MaterialSource
	StageOne   StageOneOracle
	StageTwo   StageTwoOracle
	Structurer DocumentStructurer
	Summarizer SummaryOracle
	Artifacts  ArtifactWriter

	// Events is optional; a nil sink disables event publication.
	Events EventSink

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// RunSummary reports the outcome of one processing run over a tracked paper's
// pending records. Exhausted records are surfaced here and never silently
// dropped.
type RunSummary struct {
	TrackedPaperID string
	TrackedAlias   string

	Processed int
	SameTask  int
	Other     int
	Failed    int

	// Exhausted holds failed records at or above the retry ceiling.
	Exhausted []*domain.ProcessingRecord
}

// Orchestrator drives processing records through the classification stages.
// All ledger writes are conditional, so any number of orchestrators may work
// the same records concurrently; losers of a stage race re-read and converge.
type Orchestrator struct {
	ledger     repository.ProcessingLedger
	material   MaterialSource
	stageOne   StageOneOracle
	stageTwo   StageTwoOracle
	structurer DocumentStructurer
	summarizer SummaryOracle
	artifacts  ArtifactWriter
	events     EventSink
	metrics    *observability.Metrics
	logger     zerolog.Logger
	cfg        Config
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}

	return &Orchestrator{
		ledger:     deps.Ledger,
		material:   deps.Material,
		stageOne:   deps.StageOne,
		stageTwo:   deps.StageTwo,
		structurer: deps.Structurer,
		summarizer: deps.Summarizer,
		artifacts:  deps.Artifacts,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// RegisterCandidates records newly discovered candidates in the ledger.
// Inserts are idempotent: re-discovered pairs are counted but left untouched.
func (o *Orchestrator) RegisterCandidates(ctx context.Context, tracked domain.TrackedPaper, candidates []domain.CitingPaperCandidate) (created, deduplicated int, err error) {
	for _, candidate := range candidates {
		record, isNew, err := o.ledger.CreateIfAbsent(ctx, tracked.PaperID, candidate)
		if err != nil {
			return created, deduplicated, fmt.Errorf("registering candidate %s: %w", candidate.PaperID, err)
		}

		if !isNew {
			deduplicated++
			o.metrics.RecordPairDeduplicated()
			continue
		}

		created++
		o.metrics.RecordPairDiscovered()
		if o.events != nil {
			o.events.PairDiscovered(ctx, record.Key, candidate)
		}

		o.logger.Debug().
			Str("tracked_paper_id", tracked.PaperID).
			Str("citing_paper_id", candidate.PaperID).
			Str("citing_title", candidate.Title).
			Msg("pair discovered")
	}

	return created, deduplicated, nil
}

// ProcessPending works all non-terminal records for a tracked paper with
// bounded concurrency and returns a run summary. One record's failure never
// blocks or fails the others.
func (o *Orchestrator) ProcessPending(ctx context.Context, tracked domain.TrackedPaper) (*RunSummary, error) {
	pending, err := o.ledger.ListPending(ctx, tracked.PaperID, o.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("listing pending records: %w", err)
	}

	summary := &RunSummary{
		TrackedPaperID: tracked.PaperID,
		TrackedAlias:   tracked.Alias,
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, o.cfg.Concurrency)
	)

	for _, record := range pending {
		wg.Add(1)
		sem <- struct{}{}

		go func(key domain.RecordKey) {
			defer wg.Done()
			defer func() { <-sem }()

			final, err := o.ProcessRecord(ctx, tracked, key)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if err != nil {
				summary.Failed++
				return
			}
			if final.FinalDisposition != nil {
				switch *final.FinalDisposition {
				case domain.DispositionSameTask:
					summary.SameTask++
				case domain.DispositionOther:
					summary.Other++
				}
			}
		}(record.Key)
	}

	wg.Wait()

	exhausted, err := o.ledger.ListFailedExhausted(ctx, tracked.PaperID, o.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("listing exhausted records: %w", err)
	}
	summary.Exhausted = exhausted

	return summary, nil
}

// ProcessRecord advances one record until it reaches a terminal stage or a
// step fails. On failure the record is marked failed and re-enqueues at the
// last completed stage on the next run. Lost stage races are resolved by
// re-reading the record.
func (o *Orchestrator) ProcessRecord(ctx context.Context, tracked domain.TrackedPaper, key domain.RecordKey) (*domain.ProcessingRecord, error) {
	record, err := o.ledger.Lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("looking up record: %w", err)
	}

	logger := observability.WithPairContext(o.logger, key.TrackedPaperID, key.CitingPaperID)

	// The structured full text is fetched at most once per walk: when stage
	// two runs, the summarizer reuses its document instead of re-downloading
	// and re-structuring.
	docs := &stageDocuments{}

	for {
		if record.Stage.IsTerminal() {
			return record, nil
		}
		if record.Exhausted(o.cfg.MaxRetries) {
			return record, nil
		}

		next, err := o.step(ctx, tracked, record, docs)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				o.metrics.RecordStageConflict()
				record, err = o.ledger.Lookup(ctx, key)
				if err != nil {
					return nil, fmt.Errorf("re-reading record after conflict: %w", err)
				}
				continue
			}

			return o.fail(ctx, logger, record, err)
		}

		record = next
	}
}

// step performs one unit of pipeline work for the record. The record's
// effective stage decides the work; its actual stage guards the conditional
// write, so failed records resume where they left off.
func (o *Orchestrator) step(ctx context.Context, tracked domain.TrackedPaper, record *domain.ProcessingRecord, docs *stageDocuments) (*domain.ProcessingRecord, error) {
	switch effectiveStage(record) {
	case domain.StageDiscovered:
		return o.runStageOne(ctx, tracked, record)

	case domain.StageOneDone:
		if record.StageOneResult != nil && *record.StageOneResult == domain.StageOneSameTask {
			return o.shortCircuit(ctx, tracked, record, docs)
		}
		return o.runStageTwo(ctx, tracked, record, docs)

	case domain.StageTwoDone:
		return o.finalize(ctx, tracked, record, docs)

	default:
		return record, nil
	}
}

// stageDocuments caches the resolved full text and its structured form for
// one ProcessRecord walk. Crash resumes start a fresh walk with an empty
// cache and re-fetch.
type stageDocuments struct {
	full *FullTextMaterial
	doc  *domain.StructuredDocument
}

// effectiveStage maps a failed record back to the stage whose work is still
// pending, inferred from which results are already recorded.
func effectiveStage(record *domain.ProcessingRecord) domain.Stage {
	if record.Stage != domain.StageFailed {
		return record.Stage
	}
	if record.StageTwoResult != nil {
		return domain.StageTwoDone
	}
	if record.StageOneResult != nil {
		return domain.StageOneDone
	}
	return domain.StageDiscovered
}

// runStageOne resolves first-pass material, classifies, and records the
// result atomically with the stage transition.
func (o *Orchestrator) runStageOne(ctx context.Context, tracked domain.TrackedPaper, record *domain.ProcessingRecord) (*domain.ProcessingRecord, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	material, err := o.material.StageOne(stageCtx, record.Candidate)
	if err != nil {
		return nil, fmt.Errorf("resolving stage-one material: %w", err)
	}

	start := time.Now()
	decision, err := o.stageOne.Classify(stageCtx, llm.StageOneRequest{
		TrackedTitle:    tracked.Title,
		TrackedAbstract: tracked.Abstract,
		CitingTitle:     record.Candidate.Title,
		Abstract:        material.Abstract,
		Snippet:         material.Snippet,
		Mode:            material.Mode,
	})
	if err != nil {
		o.metrics.RecordLLMRequestFailed("stage_one", "", errorType(err))
		return nil, err
	}
	o.metrics.RecordLLMRequest("stage_one", decision.Model, time.Since(start).Seconds(), decision.InputTokens, decision.OutputTokens)
	o.metrics.RecordStageOneResult(string(decision.Result), string(material.Mode))

	next, err := o.ledger.Transition(ctx, record.Key, record.Stage, domain.StageOneDone, repository.TransitionUpdate{
		StageOneResult: &decision.Result,
	})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordStageTransition(string(domain.StageOneDone))

	return next, nil
}

// shortCircuit finalizes a confident stage-one same_task verdict without
// invoking the expensive pass, then summarizes.
func (o *Orchestrator) shortCircuit(ctx context.Context, tracked domain.TrackedPaper, record *domain.ProcessingRecord, docs *stageDocuments) (*domain.ProcessingRecord, error) {
	o.metrics.RecordShortCircuit()

	if err := o.setDisposition(ctx, record, domain.DispositionSameTask); err != nil {
		return nil, err
	}

	if err := o.summarize(ctx, tracked, record, docs); err != nil {
		return nil, err
	}

	next, err := o.ledger.Transition(ctx, record.Key, record.Stage, domain.StageSummarized, repository.TransitionUpdate{})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordStageTransition(string(domain.StageSummarized))

	return next, nil
}

// runStageTwo fetches the full text, structures it, and runs the terminal
// binary classification.
func (o *Orchestrator) runStageTwo(ctx context.Context, tracked domain.TrackedPaper, record *domain.ProcessingRecord, docs *stageDocuments) (*domain.ProcessingRecord, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	full, doc, err := o.structuredDocument(stageCtx, record, docs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	decision, err := o.stageTwo.Classify(stageCtx, llm.StageTwoRequest{
		TrackedTitle:    tracked.Title,
		TrackedAbstract: tracked.Abstract,
		CitingTitle:     record.Candidate.Title,
		CitingAbstract:  full.Abstract,
		Document:        *doc,
	})
	if err != nil {
		o.metrics.RecordLLMRequestFailed("stage_two", "", errorType(err))
		return nil, err
	}
	o.metrics.RecordLLMRequest("stage_two", decision.Model, time.Since(start).Seconds(), decision.InputTokens, decision.OutputTokens)
	o.metrics.RecordStageTwoResult(string(decision.Result))

	next, err := o.ledger.Transition(ctx, record.Key, record.Stage, domain.StageTwoDone, repository.TransitionUpdate{
		StageTwoResult: &decision.Result,
	})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordStageTransition(string(domain.StageTwoDone))

	return next, nil
}

// finalize writes the disposition implied by the stage-two result, then
// summarizes same-task pairs or archives the rest with a classification
// artifact.
func (o *Orchestrator) finalize(ctx context.Context, tracked domain.TrackedPaper, record *domain.ProcessingRecord, docs *stageDocuments) (*domain.ProcessingRecord, error) {
	if record.StageTwoResult == nil {
		return nil, fmt.Errorf("record (%s, %s) reached %s without a stage-two result",
			record.Key.TrackedPaperID, record.Key.CitingPaperID, record.Stage)
	}

	if *record.StageTwoResult == domain.StageTwoSameTask {
		if err := o.setDisposition(ctx, record, domain.DispositionSameTask); err != nil {
			return nil, err
		}
		if err := o.summarize(ctx, tracked, record, docs); err != nil {
			return nil, err
		}

		next, err := o.ledger.Transition(ctx, record.Key, record.Stage, domain.StageSummarized, repository.TransitionUpdate{})
		if err != nil {
			return nil, err
		}
		o.metrics.RecordStageTransition(string(domain.StageSummarized))
		return next, nil
	}

	if err := o.setDisposition(ctx, record, domain.DispositionOther); err != nil {
		return nil, err
	}

	artifact := domain.ClassificationArtifact{
		Key:            record.Key,
		TrackedAlias:   tracked.Alias,
		CitingTitle:    record.Candidate.Title,
		Classification: domain.DispositionOther,
		Reason:         "full-text classification",
		DecidedAt:      time.Now().UTC(),
	}
	if err := o.artifacts.WriteClassification(ctx, artifact); err != nil {
		return nil, fmt.Errorf("writing classification artifact: %w", err)
	}

	next, err := o.ledger.Transition(ctx, record.Key, record.Stage, domain.StageArchived, repository.TransitionUpdate{})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordStageTransition(string(domain.StageArchived))

	return next, nil
}

// summarize renders and persists the Markdown summary for a same-task pair.
// The structured document is reused from the escalation step when the walk
// already produced one; short-circuited records never had one and fetch it
// here.
func (o *Orchestrator) summarize(ctx context.Context, tracked domain.TrackedPaper, record *domain.ProcessingRecord, docs *stageDocuments) error {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	full, doc, err := o.structuredDocument(stageCtx, record, docs)
	if err != nil {
		return err
	}

	start := time.Now()
	summary, err := o.summarizer.Summarize(stageCtx, llm.SummarizeRequest{
		TrackedTitle:    tracked.Title,
		TrackedAbstract: tracked.Abstract,
		CitingTitle:     record.Candidate.Title,
		CitingAbstract:  full.Abstract,
		Document:        *doc,
	})
	if err != nil {
		o.metrics.RecordLLMRequestFailed("summarize", "", errorType(err))
		return err
	}
	o.metrics.RecordLLMRequest("summarize", summary.Model, time.Since(start).Seconds(), summary.InputTokens, summary.OutputTokens)

	artifact := domain.SummaryArtifact{
		Key:            record.Key,
		TrackedAlias:   tracked.Alias,
		CitingTitle:    record.Candidate.Title,
		Classification: domain.DispositionSameTask,
		Markdown:       summary.Markdown,
		GeneratedAt:    time.Now().UTC(),
	}
	if err := o.artifacts.WriteSummary(ctx, artifact); err != nil {
		return fmt.Errorf("writing summary artifact: %w", err)
	}
	o.metrics.RecordSummaryWritten()

	return nil
}

// structuredDocument returns the cached full text and structured form for the
// current walk, fetching and sectioning them on first use.
func (o *Orchestrator) structuredDocument(ctx context.Context, record *domain.ProcessingRecord, docs *stageDocuments) (*FullTextMaterial, *domain.StructuredDocument, error) {
	if docs.doc != nil {
		return docs.full, docs.doc, nil
	}

	full, err := o.material.FullText(ctx, record.Candidate)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving full text: %w", err)
	}

	start := time.Now()
	doc, err := o.structurer.Structure(ctx, llm.StructureRequest{
		CitingTitle: record.Candidate.Title,
		RawText:     full.RawText,
	})
	if err != nil {
		o.metrics.RecordLLMRequestFailed("structure", "", errorType(err))
		return nil, nil, err
	}
	o.metrics.RecordLLMRequest("structure", "", time.Since(start).Seconds(), 0, 0)

	docs.full = full
	docs.doc = doc
	return full, doc, nil
}

// setDisposition writes the write-once disposition and emits the finalized
// event. Re-applying the same disposition on resume is a no-op.
func (o *Orchestrator) setDisposition(ctx context.Context, record *domain.ProcessingRecord, disposition domain.Disposition) error {
	if record.FinalDisposition != nil && *record.FinalDisposition == disposition {
		return nil
	}

	if err := o.ledger.SetDisposition(ctx, record.Key, disposition); err != nil {
		return fmt.Errorf("setting disposition: %w", err)
	}

	o.metrics.RecordDisposition(string(disposition))
	if o.events != nil {
		o.events.DispositionFinalized(ctx, record.Key, disposition)
	}

	return nil
}

// fail marks the record failed and reports whether it has exhausted its
// retries. The original step error is returned to the caller.
func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, record *domain.ProcessingRecord, stepErr error) (*domain.ProcessingRecord, error) {
	failed, err := o.ledger.MarkFailed(ctx, record.Key, record.Stage, stepErr.Error())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another worker moved the record; its state wins.
			refreshed, lookupErr := o.ledger.Lookup(ctx, record.Key)
			if lookupErr != nil {
				return nil, fmt.Errorf("re-reading record after failed mark: %w", lookupErr)
			}
			return refreshed, stepErr
		}
		return nil, fmt.Errorf("marking record failed: %w", err)
	}

	o.metrics.RecordRecordFailed()
	logger.Warn().
		Err(stepErr).
		Str("stage", string(record.Stage)).
		Int("retry_count", failed.RetryCount).
		Msg("pipeline step failed")

	if failed.Exhausted(o.cfg.MaxRetries) {
		o.metrics.RecordRecordExhausted()
		if o.events != nil {
			o.events.RecordExhausted(ctx, failed.Key, failed.LastError)
		}
		logger.Error().
			Int("retry_count", failed.RetryCount).
			Msg("record exhausted retry ceiling")
	}

	return failed, stepErr
}

// stageContext bounds a pipeline step's wall-clock time.
func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.StageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.cfg.StageTimeout)
}

// errorType buckets an oracle error for the failure metric.
func errorType(err error) string {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsTransient() {
			return "transient"
		}
		return "permanent"
	}
	if errors.Is(err, llm.ErrAmbiguousResult) {
		return "ambiguous"
	}
	if errors.Is(err, domain.ErrUnparseableDocument) {
		return "unparseable"
	}
	return "error"
}
