// Package domain provides domain models and business logic for the Citation
// Tracking Service.
package domain

import (
	"strings"
	"time"
)

// Stage represents the lifecycle states of a processing record.
// These values must match the database enum processing_stage.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageOneDone    Stage = "stage1_done"
	StageTwoDone    Stage = "stage2_done"
	StageSummarized Stage = "summarized"
	StageArchived   Stage = "archived"
	StageFailed     Stage = "failed"
)

// IsTerminal returns true if the stage represents a final state that will not
// change. A failed record is terminal only once its retries are exhausted,
// which is tracked on the record itself.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageSummarized, StageArchived:
		return true
	default:
		return false
	}
}

// StageOneResult is the outcome of the cheap classification pass.
// Stage one never resolves to "other": ambiguity escalates, it does not
// discard.
type StageOneResult string

const (
	StageOneSameTask  StageOneResult = "same_task"
	StageOneUncertain StageOneResult = "uncertain"
)

// StageTwoResult is the outcome of the full-text classification pass.
// Stage two is terminal and always binary.
type StageTwoResult string

const (
	StageTwoSameTask StageTwoResult = "same_task"
	StageTwoOther    StageTwoResult = "other"
)

// Disposition is the final classification of a (tracked, citing) pair.
// Once set on a ProcessingRecord it is immutable.
type Disposition string

const (
	DispositionSameTask Disposition = "same_task"
	DispositionOther    Disposition = "other"
)

// ClassifyMode selects how stage one receives the citing paper's material.
type ClassifyMode string

const (
	// ModeAbstractOnly compares the tracked and citing abstracts directly.
	ModeAbstractOnly ClassifyMode = "abstract_only"

	// ModeExtractThenClassify asks the oracle to locate an abstract-equivalent
	// in a raw text snippet before comparing.
	ModeExtractThenClassify ClassifyMode = "extract_then_classify"
)

// TrackedPaper is a reference publication whose citers are monitored.
// Tracked papers come from configuration and are never mutated by the
// pipeline.
type TrackedPaper struct {
	// PaperID is the external (Semantic Scholar) paper identifier.
	PaperID string

	// Alias is the short human-readable name used in logs, metrics, and
	// artifact paths.
	Alias string

	// Title and Abstract are fetched once per poll and provide the tracked
	// side of every classification prompt.
	Title    string
	Abstract string
}

// CitingPaperCandidate is a newly discovered publication that cites a tracked
// paper. It is read-only input produced by the citation discovery collaborator.
type CitingPaperCandidate struct {
	PaperID       string
	Title         string
	Abstract      string
	Year          int
	URL           string
	ArxivID       string
	OpenAccessPDF string
	DiscoveredAt  time.Time
}

// HasCleanAbstract reports whether the candidate carries a usable abstract.
// A present-but-blank abstract does not count.
func (c CitingPaperCandidate) HasCleanAbstract() bool {
	return strings.TrimSpace(c.Abstract) != ""
}

// RecordKey identifies a ProcessingRecord. The pair is globally unique across
// the ledger.
type RecordKey struct {
	TrackedPaperID string
	CitingPaperID  string
}

// ProcessingRecord is the ledger entry for one (tracked, citing) pair. It is
// mutated exclusively through the ledger's conditional operations and never
// deleted.
type ProcessingRecord struct {
	Key RecordKey

	// Candidate is the citing-paper metadata captured at discovery time. It
	// lets the pipeline resume a record after a restart without re-querying
	// the citation source.
	Candidate CitingPaperCandidate

	Stage Stage

	// StageOneResult is set once stage one has run.
	StageOneResult *StageOneResult

	// StageTwoResult is set only when stage one was uncertain and stage two
	// ran.
	StageTwoResult *StageTwoResult

	// FinalDisposition is write-once. While nil, classification work for the
	// pair may still be pending; once set, no further classification calls
	// are issued for this key.
	FinalDisposition *Disposition

	RetryCount int
	LastError  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Exhausted reports whether the record has failed permanently given the
// configured retry ceiling.
func (r *ProcessingRecord) Exhausted(maxRetries int) bool {
	return r.Stage == StageFailed && r.RetryCount >= maxRetries
}

// StructuredDocument is the sectioned full-text view required by stage two
// and the summarizer.
type StructuredDocument struct {
	Abstract     string
	Introduction string
	Method       string
	Experiments  string
	Conclusion   string
}

// IsEmpty reports whether structuring produced no usable content.
func (d StructuredDocument) IsEmpty() bool {
	return strings.TrimSpace(d.Abstract) == "" &&
		strings.TrimSpace(d.Introduction) == "" &&
		strings.TrimSpace(d.Method) == "" &&
		strings.TrimSpace(d.Experiments) == "" &&
		strings.TrimSpace(d.Conclusion) == ""
}

// SummaryArtifact is the durable output for a same-task pair.
type SummaryArtifact struct {
	Key            RecordKey
	TrackedAlias   string
	CitingTitle    string
	Classification Disposition
	Markdown       string
	GeneratedAt    time.Time
}

// ClassificationArtifact is the classification-only record written for pairs
// archived without a summary.
type ClassificationArtifact struct {
	Key            RecordKey
	TrackedAlias   string
	CitingTitle    string
	Classification Disposition
	Reason         string
	DecidedAt      time.Time
}
