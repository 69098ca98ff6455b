package server

import (
	"time"

	"github.com/citetrack/citation-service/internal/domain"
)

// Response types for JSON serialization.

type trackedPaperResponse struct {
	PaperID    string `json:"paper_id"`
	Alias      string `json:"alias"`
	WorkflowID string `json:"workflow_id"`
	// WorkflowStatus is the Temporal execution status, or "not_started" when
	// no poll workflow exists for the paper.
	WorkflowStatus string     `json:"workflow_status"`
	RunID          string     `json:"run_id,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
}

type listTrackedResponse struct {
	TrackedPapers []trackedPaperResponse `json:"tracked_papers"`
}

type recordResponse struct {
	TrackedPaperID string  `json:"tracked_paper_id"`
	CitingPaperID  string  `json:"citing_paper_id"`
	CitingTitle    string  `json:"citing_title,omitempty"`
	Stage          string  `json:"stage"`
	StageOneResult *string `json:"stage_one_result,omitempty"`
	StageTwoResult *string `json:"stage_two_result,omitempty"`
	Disposition    *string `json:"disposition,omitempty"`
	RetryCount     int     `json:"retry_count"`
	LastError      string  `json:"last_error,omitempty"`
	// Exhausted marks records failed at or above the retry ceiling.
	Exhausted    bool      `json:"exhausted"`
	DiscoveredAt time.Time `json:"discovered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type listRecordsResponse struct {
	Records    []recordResponse `json:"records"`
	TotalCount int64            `json:"total_count"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

type triggerPollResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id,omitempty"`
	// Started is true when the poll workflow was newly started rather than
	// signaled.
	Started bool   `json:"started"`
	Message string `json:"message"`
}

func recordToResponse(r *domain.ProcessingRecord, maxRetries int) recordResponse {
	resp := recordResponse{
		TrackedPaperID: r.Key.TrackedPaperID,
		CitingPaperID:  r.Key.CitingPaperID,
		CitingTitle:    r.Candidate.Title,
		Stage:          string(r.Stage),
		RetryCount:     r.RetryCount,
		LastError:      r.LastError,
		Exhausted:      r.Exhausted(maxRetries),
		DiscoveredAt:   r.Candidate.DiscoveredAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.StageOneResult != nil {
		v := string(*r.StageOneResult)
		resp.StageOneResult = &v
	}
	if r.StageTwoResult != nil {
		v := string(*r.StageTwoResult)
		resp.StageTwoResult = &v
	}
	if r.FinalDisposition != nil {
		v := string(*r.FinalDisposition)
		resp.Disposition = &v
	}
	return resp
}
