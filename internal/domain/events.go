package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for pipeline events published to Kafka.
const (
	EventTypePairDiscovered       = "citation.pair_discovered"
	EventTypeDispositionFinalized = "citation.disposition_finalized"
	EventTypeSummaryWritten       = "citation.summary_written"
	EventTypeRecordExhausted      = "citation.record_exhausted"
	EventTypePollCompleted        = "citation.poll_completed"
)

// PipelineEvent is the envelope for events emitted by the pipeline.
type PipelineEvent struct {
	EventID      string
	EventVersion int
	EventType    string
	// AggregateID is "<trackedPaperID>:<citingPaperID>" for pair-scoped
	// events and the tracked paper ID for poll-scoped ones.
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
}

// NewPipelineEvent creates a new pipeline event with the given parameters.
// The payload is JSON-serialized automatically.
func NewPipelineEvent(eventType, aggregateID string, payload interface{}) (*PipelineEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &PipelineEvent{
		EventID:      uuid.New().String(),
		EventVersion: 1,
		EventType:    eventType,
		AggregateID:  aggregateID,
		Payload:      payloadBytes,
		CreatedAt:    time.Now(),
	}, nil
}

// PairDiscoveredPayload is the payload for citation.pair_discovered events.
type PairDiscoveredPayload struct {
	TrackedPaperID string `json:"tracked_paper_id"`
	TrackedAlias   string `json:"tracked_alias"`
	CitingPaperID  string `json:"citing_paper_id"`
	CitingTitle    string `json:"citing_title"`
}

// DispositionFinalizedPayload is the payload for
// citation.disposition_finalized events.
type DispositionFinalizedPayload struct {
	TrackedPaperID string      `json:"tracked_paper_id"`
	CitingPaperID  string      `json:"citing_paper_id"`
	Disposition    Disposition `json:"disposition"`
	// DecidedBy is "stage1" for short-circuits and "stage2" otherwise.
	DecidedBy string `json:"decided_by"`
}

// SummaryWrittenPayload is the payload for citation.summary_written events.
type SummaryWrittenPayload struct {
	TrackedPaperID string `json:"tracked_paper_id"`
	CitingPaperID  string `json:"citing_paper_id"`
	ArtifactPath   string `json:"artifact_path"`
}

// RecordExhaustedPayload is the payload for citation.record_exhausted events.
// Exhausted records need manual follow-up; they are never silently dropped.
type RecordExhaustedPayload struct {
	TrackedPaperID string `json:"tracked_paper_id"`
	CitingPaperID  string `json:"citing_paper_id"`
	RetryCount     int    `json:"retry_count"`
	LastError      string `json:"last_error"`
}

// PollCompletedPayload is the payload for citation.poll_completed events.
type PollCompletedPayload struct {
	TrackedPaperID string        `json:"tracked_paper_id"`
	TrackedAlias   string        `json:"tracked_alias"`
	Discovered     int           `json:"discovered"`
	Processed      int           `json:"processed"`
	Summarized     int           `json:"summarized"`
	Archived       int           `json:"archived"`
	Failed         int           `json:"failed"`
	Exhausted      int           `json:"exhausted"`
	Duration       time.Duration `json:"duration_ns"`
}
