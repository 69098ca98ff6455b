package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/citetrack/citation-service/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation = "23505" // unique_violation
)

// ledgerColumns is the canonical column list for processing_ledger scans.
const ledgerColumns = `tracked_paper_id, citing_paper_id,
		title, abstract, year, url, arxiv_id, open_access_pdf, discovered_at,
		stage, stage1_result, stage2_result, final_disposition,
		retry_count, last_error,
		created_at, updated_at`

// Compile-time interface verification.
var _ ProcessingLedger = (*PgLedger)(nil)

// PgLedger is a PostgreSQL implementation of ProcessingLedger.
type PgLedger struct {
	db DBTX
}

// NewPgLedger creates a new PostgreSQL processing ledger.
func NewPgLedger(db DBTX) *PgLedger {
	return &PgLedger{db: db}
}

// Lookup retrieves the record for a pair.
func (l *PgLedger) Lookup(ctx context.Context, key domain.RecordKey) (*domain.ProcessingRecord, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM processing_ledger
		WHERE tracked_paper_id = $1 AND citing_paper_id = $2`, ledgerColumns)

	row := l.db.QueryRow(ctx, query, key.TrackedPaperID, key.CitingPaperID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("record", recordID(key))
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// CreateIfAbsent inserts a record in stage discovered, or returns the
// existing record untouched.
func (l *PgLedger) CreateIfAbsent(ctx context.Context, trackedPaperID string, candidate domain.CitingPaperCandidate) (*domain.ProcessingRecord, bool, error) {
	if trackedPaperID == "" {
		return nil, false, domain.NewValidationError("tracked_paper_id", "tracked paper ID is required")
	}
	if candidate.PaperID == "" {
		return nil, false, domain.NewValidationError("citing_paper_id", "citing paper ID is required")
	}

	discoveredAt := candidate.DiscoveredAt
	if discoveredAt.IsZero() {
		discoveredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO processing_ledger (
			tracked_paper_id, citing_paper_id,
			title, abstract, year, url, arxiv_id, open_access_pdf, discovered_at
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (tracked_paper_id, citing_paper_id) DO NOTHING`

	tag, err := l.db.Exec(ctx, query,
		trackedPaperID, candidate.PaperID,
		candidate.Title, candidate.Abstract, candidate.Year,
		candidate.URL, candidate.ArxivID, candidate.OpenAccessPDF, discoveredAt,
	)
	if err != nil {
		// A concurrent insert can still surface as a unique violation when
		// the conflict target races with an uncommitted row.
		if !isPgUniqueViolation(err) {
			return nil, false, fmt.Errorf("failed to create record: %w", err)
		}
		tag = pgconn.CommandTag{}
	}

	created := tag.RowsAffected() == 1

	key := domain.RecordKey{TrackedPaperID: trackedPaperID, CitingPaperID: candidate.PaperID}
	record, err := l.Lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}

	return record, created, nil
}

// Transition advances the record from stage `from` to stage `to` with an
// optimistic compare-and-set on the current stage.
func (l *PgLedger) Transition(ctx context.Context, key domain.RecordKey, from, to domain.Stage, upd TransitionUpdate) (*domain.ProcessingRecord, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if !ValidTransition(from, to) {
		return nil, fmt.Errorf("invalid stage transition from %s to %s: %w",
			from, to, domain.ErrInvalidInput)
	}

	query := `
		UPDATE processing_ledger
		SET stage = $1,
			stage1_result = COALESCE($2, stage1_result),
			stage2_result = COALESCE($3, stage2_result),
			last_error = '',
			updated_at = $4
		WHERE tracked_paper_id = $5 AND citing_paper_id = $6 AND stage = $7`

	tag, err := l.db.Exec(ctx, query,
		string(to),
		stageOneResultArg(upd.StageOneResult),
		stageTwoResultArg(upd.StageTwoResult),
		time.Now().UTC(),
		key.TrackedPaperID, key.CitingPaperID, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to transition record: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, l.transitionConflict(ctx, key, from)
	}

	return l.Lookup(ctx, key)
}

// MarkFailed moves the record to failed, incrementing the retry counter.
func (l *PgLedger) MarkFailed(ctx context.Context, key domain.RecordKey, from domain.Stage, lastError string) (*domain.ProcessingRecord, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	query := `
		UPDATE processing_ledger
		SET stage = 'failed',
			retry_count = retry_count + 1,
			last_error = $1,
			updated_at = $2
		WHERE tracked_paper_id = $3 AND citing_paper_id = $4 AND stage = $5`

	tag, err := l.db.Exec(ctx, query,
		lastError,
		time.Now().UTC(),
		key.TrackedPaperID, key.CitingPaperID, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark record failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, l.transitionConflict(ctx, key, from)
	}

	return l.Lookup(ctx, key)
}

// SetDisposition writes the final disposition for the pair. Write-once: only
// a NULL disposition can be written, re-setting the same value is a no-op.
func (l *PgLedger) SetDisposition(ctx context.Context, key domain.RecordKey, disposition domain.Disposition) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if disposition != domain.DispositionSameTask && disposition != domain.DispositionOther {
		return domain.NewValidationError("disposition", "unknown disposition: "+string(disposition))
	}

	query := `
		UPDATE processing_ledger
		SET final_disposition = $1,
			updated_at = $2
		WHERE tracked_paper_id = $3 AND citing_paper_id = $4
		  AND final_disposition IS NULL`

	tag, err := l.db.Exec(ctx, query,
		string(disposition),
		time.Now().UTC(),
		key.TrackedPaperID, key.CitingPaperID,
	)
	if err != nil {
		return fmt.Errorf("failed to set disposition: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	record, err := l.Lookup(ctx, key)
	if err != nil {
		return err
	}

	if record.FinalDisposition != nil && *record.FinalDisposition == disposition {
		// Idempotent re-delivery of the same decision.
		return nil
	}

	return fmt.Errorf("record %s: %w", recordID(key), domain.ErrDispositionSet)
}

// ListPending returns records that still need pipeline work.
func (l *PgLedger) ListPending(ctx context.Context, trackedPaperID string, maxRetries int) ([]*domain.ProcessingRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM processing_ledger
		WHERE ($1 = '' OR tracked_paper_id = $1)
		  AND stage NOT IN ('summarized', 'archived')
		  AND (stage <> 'failed' OR retry_count < $2)
		ORDER BY created_at ASC`, ledgerColumns)

	return l.queryRecords(ctx, query, trackedPaperID, maxRetries)
}

// ListFailedExhausted returns failed records at or above the retry ceiling.
func (l *PgLedger) ListFailedExhausted(ctx context.Context, trackedPaperID string, maxRetries int) ([]*domain.ProcessingRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM processing_ledger
		WHERE ($1 = '' OR tracked_paper_id = $1)
		  AND stage = 'failed'
		  AND retry_count >= $2
		ORDER BY updated_at DESC`, ledgerColumns)

	return l.queryRecords(ctx, query, trackedPaperID, maxRetries)
}

// List retrieves records matching the filter criteria.
func (l *PgLedger) List(ctx context.Context, filter LedgerFilter) ([]*domain.ProcessingRecord, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	// Build dynamic WHERE clause
	conditions := []string{"TRUE"}
	args := []interface{}{}
	argIndex := 1

	if filter.TrackedPaperID != "" {
		conditions = append(conditions, fmt.Sprintf("tracked_paper_id = $%d", argIndex))
		args = append(args, filter.TrackedPaperID)
		argIndex++
	}

	if len(filter.Stages) > 0 {
		placeholders := make([]string, len(filter.Stages))
		for i, s := range filter.Stages {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, string(s))
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("stage IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.DiscoveredAfter != nil {
		conditions = append(conditions, fmt.Sprintf("discovered_at > $%d", argIndex))
		args = append(args, *filter.DiscoveredAfter)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count total matching records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM processing_ledger WHERE %s", whereClause)
	var totalCount int64
	if err := l.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	// Query with pagination
	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM processing_ledger
		WHERE %s
		ORDER BY discovered_at DESC
		LIMIT $%d OFFSET $%d`,
		ledgerColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	records, err := l.queryRecords(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}

	return records, totalCount, nil
}

// transitionConflict resolves a zero-row conditional write into the right
// error: missing record or stage conflict.
func (l *PgLedger) transitionConflict(ctx context.Context, key domain.RecordKey, expected domain.Stage) error {
	record, err := l.Lookup(ctx, key)
	if err != nil {
		return err
	}
	return domain.NewConflictError(key, expected, record.Stage)
}

// queryRecords runs a SELECT over ledgerColumns and scans all rows.
func (l *PgLedger) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*domain.ProcessingRecord, error) {
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*domain.ProcessingRecord
	for rows.Next() {
		record, err := scanRecordFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// validStageTransitions defines the allowed stage transitions for processing
// records. Failed records re-enqueue at the stage they last completed, so a
// record that failed mid-summarization or mid-archival moves straight to the
// terminal stage on a successful retry.
var validStageTransitions = map[domain.Stage][]domain.Stage{
	domain.StageDiscovered: {
		domain.StageOneDone,
	},
	domain.StageOneDone: {
		domain.StageTwoDone,
		domain.StageSummarized,
		domain.StageArchived,
	},
	domain.StageTwoDone: {
		domain.StageSummarized,
		domain.StageArchived,
	},
	domain.StageFailed: {
		domain.StageDiscovered,
		domain.StageOneDone,
		domain.StageTwoDone,
		domain.StageSummarized,
		domain.StageArchived,
	},
}

// ValidTransition reports whether a stage transition is allowed. Exposed so
// ledger fakes can enforce the same table as the Postgres implementation.
func ValidTransition(from, to domain.Stage) bool {
	// Terminal stages cannot transition to anything.
	if from.IsTerminal() {
		return false
	}

	allowed, ok := validStageTransitions[from]
	if !ok {
		return false
	}

	for _, s := range allowed {
		if s == to {
			return true
		}
	}

	return false
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// recordScanDest holds the destination pointers for scanning a
// ProcessingRecord row. This eliminates code duplication between pgx.Row and
// pgx.Rows scanning.
type recordScanDest struct {
	record           domain.ProcessingRecord
	stage            string
	stageOneResult   *string
	stageTwoResult   *string
	finalDisposition *string
}

// destinations returns the slice of pointers for Scan operations.
func (d *recordScanDest) destinations() []interface{} {
	return []interface{}{
		&d.record.Key.TrackedPaperID, &d.record.Key.CitingPaperID,
		&d.record.Candidate.Title, &d.record.Candidate.Abstract, &d.record.Candidate.Year,
		&d.record.Candidate.URL, &d.record.Candidate.ArxivID, &d.record.Candidate.OpenAccessPDF,
		&d.record.Candidate.DiscoveredAt,
		&d.stage, &d.stageOneResult, &d.stageTwoResult, &d.finalDisposition,
		&d.record.RetryCount, &d.record.LastError,
		&d.record.CreatedAt, &d.record.UpdatedAt,
	}
}

// finalize performs post-scan processing: converts enum strings and sets
// nullable fields.
func (d *recordScanDest) finalize() (*domain.ProcessingRecord, error) {
	d.record.Candidate.PaperID = d.record.Key.CitingPaperID
	d.record.Stage = domain.Stage(d.stage)

	if d.stageOneResult != nil {
		r := domain.StageOneResult(*d.stageOneResult)
		d.record.StageOneResult = &r
	}
	if d.stageTwoResult != nil {
		r := domain.StageTwoResult(*d.stageTwoResult)
		d.record.StageTwoResult = &r
	}
	if d.finalDisposition != nil {
		disp := domain.Disposition(*d.finalDisposition)
		d.record.FinalDisposition = &disp
	}

	return &d.record, nil
}

// scanRecord scans a single row into a ProcessingRecord.
func scanRecord(row pgx.Row) (*domain.ProcessingRecord, error) {
	var dest recordScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanRecordFromRows scans the current row from pgx.Rows into a ProcessingRecord.
func scanRecordFromRows(rows pgx.Rows) (*domain.ProcessingRecord, error) {
	var dest recordScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// validateKey checks that both halves of the pair key are present.
func validateKey(key domain.RecordKey) error {
	if key.TrackedPaperID == "" {
		return domain.NewValidationError("tracked_paper_id", "tracked paper ID is required")
	}
	if key.CitingPaperID == "" {
		return domain.NewValidationError("citing_paper_id", "citing paper ID is required")
	}
	return nil
}

// recordID renders a pair key for error messages.
func recordID(key domain.RecordKey) string {
	return key.TrackedPaperID + "/" + key.CitingPaperID
}

// stageOneResultArg converts an optional stage-one result to a nullable SQL argument.
func stageOneResultArg(r *domain.StageOneResult) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

// stageTwoResultArg converts an optional stage-two result to a nullable SQL argument.
func stageTwoResultArg(r *domain.StageTwoResult) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}
