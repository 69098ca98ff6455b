package repository

import (
	"context"
	"time"

	"github.com/citetrack/citation-service/internal/domain"
)

// ProcessingLedger is the durable system of record for (tracked, citing)
// pairs. Every mutation is conditional: inserts are idempotent and stage
// transitions are optimistic compare-and-set writes, so repeated discovery
// polls and concurrent workers converge on a single record per pair.
type ProcessingLedger interface {
	// Lookup retrieves the record for a pair.
	// Returns domain.ErrNotFound if the pair was never discovered.
	Lookup(ctx context.Context, key domain.RecordKey) (*domain.ProcessingRecord, error)

	// CreateIfAbsent inserts a record in stage discovered for the pair, or
	// returns the existing record untouched. The returned bool reports
	// whether a new record was created. Candidate metadata is persisted only
	// on first insert; re-discovery never overwrites it.
	CreateIfAbsent(ctx context.Context, trackedPaperID string, candidate domain.CitingPaperCandidate) (*domain.ProcessingRecord, bool, error)

	// Transition advances the record from stage `from` to stage `to`,
	// applying the update fields atomically with the stage write. The write
	// succeeds only if the record is still in `from` at write time.
	// Returns domain.ErrConflict (as *domain.ConflictError) if a concurrent
	// writer moved the record first, and domain.ErrNotFound if the pair does
	// not exist. On success the refreshed record is returned.
	Transition(ctx context.Context, key domain.RecordKey, from, to domain.Stage, upd TransitionUpdate) (*domain.ProcessingRecord, error)

	// MarkFailed moves the record from stage `from` to failed, increments
	// the retry counter, and records the error message. Same conflict
	// semantics as Transition.
	MarkFailed(ctx context.Context, key domain.RecordKey, from domain.Stage, lastError string) (*domain.ProcessingRecord, error)

	// SetDisposition writes the final disposition for the pair. The
	// disposition is write-once: setting the same value again is an
	// idempotent no-op, setting a different value returns
	// domain.ErrDispositionSet.
	SetDisposition(ctx context.Context, key domain.RecordKey, disposition domain.Disposition) error

	// ListPending returns records that still need pipeline work: anything
	// not yet in a terminal stage, including failed records below the retry
	// ceiling. An empty trackedPaperID matches all tracked papers.
	ListPending(ctx context.Context, trackedPaperID string, maxRetries int) ([]*domain.ProcessingRecord, error)

	// ListFailedExhausted returns failed records at or above the retry
	// ceiling. These are terminal and surfaced in run summaries; they are
	// never silently dropped. An empty trackedPaperID matches all tracked
	// papers.
	ListFailedExhausted(ctx context.Context, trackedPaperID string, maxRetries int) ([]*domain.ProcessingRecord, error)

	// List retrieves records matching the filter criteria.
	// Returns the matching records and total count for pagination.
	List(ctx context.Context, filter LedgerFilter) ([]*domain.ProcessingRecord, int64, error)
}

// TransitionUpdate carries the result fields written atomically with a stage
// transition. Nil fields are left unchanged.
type TransitionUpdate struct {
	StageOneResult *domain.StageOneResult
	StageTwoResult *domain.StageTwoResult
}

// LedgerFilter specifies criteria for listing processing records.
type LedgerFilter struct {
	// TrackedPaperID filters by tracked paper (optional).
	TrackedPaperID string

	// Stages filters by one or more stages (optional).
	// When multiple stages are provided, records matching any stage are returned.
	Stages []domain.Stage

	// DiscoveredAfter filters to records discovered after this timestamp (optional).
	DiscoveredAfter *time.Time

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks the filter values and sets pagination defaults.
func (f *LedgerFilter) Validate() error {
	for _, s := range f.Stages {
		switch s {
		case domain.StageDiscovered, domain.StageOneDone, domain.StageTwoDone,
			domain.StageSummarized, domain.StageArchived, domain.StageFailed:
		default:
			return domain.NewValidationError("stage", "unknown stage: "+string(s))
		}
	}

	applyPaginationDefaults(&f.Limit, &f.Offset)

	return nil
}
