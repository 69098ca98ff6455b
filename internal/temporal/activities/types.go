// Package activities provides Temporal activity implementations for the
// citation tracking pipeline.
//
// Activity inputs and outputs are defined as serializable structs that cross
// the Temporal serialization boundary. All fields must be exported for JSON
// serialization by the Temporal SDK's default data converter.
package activities

import (
	"github.com/citetrack/citation-service/internal/domain"
)

// TrackedPaperSnapshot carries the tracked paper's prompt material through the
// workflow. It is fetched once per poll by DiscoverCitations.
type TrackedPaperSnapshot struct {
	// PaperID is the external identifier of the tracked paper.
	PaperID string

	// Alias is the short name used in logs, metrics, and artifact paths.
	Alias string

	// Title and Abstract provide the reference side of every classification
	// prompt.
	Title    string
	Abstract string
}

// TrackedPaper converts the snapshot back into the domain entity.
func (s TrackedPaperSnapshot) TrackedPaper() domain.TrackedPaper {
	return domain.TrackedPaper{
		PaperID:  s.PaperID,
		Alias:    s.Alias,
		Title:    s.Title,
		Abstract: s.Abstract,
	}
}

// DiscoverCitationsInput contains the parameters for the citation discovery
// activity.
type DiscoverCitationsInput struct {
	// TrackedPaperID is the external identifier of the tracked paper.
	TrackedPaperID string

	// TrackedAlias is the tracked paper's short name.
	TrackedAlias string

	// MaxCandidates caps the number of citing papers fetched per poll.
	// Zero uses the source's page size (50).
	MaxCandidates int
}

// DiscoverCitationsOutput contains the results of the citation discovery
// activity.
type DiscoverCitationsOutput struct {
	// Tracked is the tracked paper's metadata, fetched fresh this poll.
	Tracked TrackedPaperSnapshot

	// Candidates are the citing papers discovered this poll.
	Candidates []domain.CitingPaperCandidate

	// HasMore reports whether the source had more citations than the cap.
	HasMore bool
}

// RegisterCandidatesInput contains the parameters for the ledger registration
// activity.
type RegisterCandidatesInput struct {
	Tracked    TrackedPaperSnapshot
	Candidates []domain.CitingPaperCandidate
}

// RegisterCandidatesOutput contains the results of the ledger registration
// activity.
type RegisterCandidatesOutput struct {
	// Created is the number of new pairs inserted.
	Created int

	// Deduplicated is the number of re-discovered pairs left untouched.
	Deduplicated int

	// PendingKeys identifies every record that still needs pipeline work,
	// including retryable failures from earlier polls.
	PendingKeys []domain.RecordKey
}

// ProcessCandidateInput contains the parameters for processing one record.
type ProcessCandidateInput struct {
	Tracked TrackedPaperSnapshot
	Key     domain.RecordKey
}

// ProcessCandidateOutput contains the outcome of processing one record.
// A record-level failure is data, not an activity error: the ledger already
// holds the retry state, so the workflow must not re-run the activity.
type ProcessCandidateOutput struct {
	// Stage is the record's stage after processing.
	Stage domain.Stage

	// Disposition is the final classification, when reached.
	Disposition *domain.Disposition

	// Failed reports that the record's step failed and was recorded in the
	// ledger.
	Failed bool

	// Error is the failure message, for workflow logs.
	Error string
}

// ReportRunSummaryInput contains the counters accumulated by one poll cycle.
type ReportRunSummaryInput struct {
	Tracked         TrackedPaperSnapshot
	Created         int
	Deduplicated    int
	Processed       int
	SameTask        int
	Other           int
	Failed          int
	DurationSeconds float64
}

// ExhaustedRecord describes a permanently failed record in a run summary.
type ExhaustedRecord struct {
	Key        domain.RecordKey
	RetryCount int
	LastError  string
}

// ReportRunSummaryOutput contains the finalized run summary.
type ReportRunSummaryOutput struct {
	// Exhausted lists failed records at or above the retry ceiling. They are
	// surfaced every poll until resolved, never silently dropped.
	Exhausted []ExhaustedRecord
}
