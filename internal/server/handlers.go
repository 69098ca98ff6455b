package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/citetrack/citation-service/internal/domain"
	"github.com/citetrack/citation-service/internal/repository"
	"github.com/citetrack/citation-service/internal/temporal"
)

// listTrackedPapers returns every configured tracked paper together with its
// poll workflow status.
func (s *Server) listTrackedPapers(w http.ResponseWriter, r *http.Request) {
	resp := listTrackedResponse{TrackedPapers: make([]trackedPaperResponse, 0, len(s.tracked))}

	for _, t := range s.tracked {
		workflowID := temporal.PollWorkflowID(t.Alias)
		tp := trackedPaperResponse{
			PaperID:        t.ID,
			Alias:          t.Alias,
			WorkflowID:     workflowID,
			WorkflowStatus: "not_started",
		}

		desc, err := s.pollClient.DescribeWorkflow(r.Context(), workflowID, "")
		switch {
		case err == nil:
			tp.WorkflowStatus = desc.Status
			tp.RunID = desc.RunID
			startedAt := desc.StartTime
			tp.StartedAt = &startedAt
		case temporal.IsWorkflowNotFound(err):
			// Leave "not_started".
		default:
			s.logger.Warn().Err(err).Str("workflow_id", workflowID).Msg("describe workflow failed")
			tp.WorkflowStatus = "unknown"
		}

		resp.TrackedPapers = append(resp.TrackedPapers, tp)
	}

	writeJSON(w, http.StatusOK, resp)
}

// listRecords returns ledger records for a tracked paper. Supports filtering
// by stage (comma-separated) and limit/offset pagination.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	tracked, ok := s.trackedByAlias(chi.URLParam(r, "alias"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown tracked paper alias")
		return
	}

	filter := repository.LedgerFilter{TrackedPaperID: tracked.ID}

	if stages := r.URL.Query().Get("stage"); stages != "" {
		for _, stage := range strings.Split(stages, ",") {
			filter.Stages = append(filter.Stages, domain.Stage(strings.TrimSpace(stage)))
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	if err := filter.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, total, err := s.ledger.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Str("tracked_paper_id", tracked.ID).Msg("list records failed")
		writeError(w, http.StatusInternalServerError, "listing records failed")
		return
	}

	resp := listRecordsResponse{
		Records:    make([]recordResponse, 0, len(records)),
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	for _, record := range records {
		resp.Records = append(resp.Records, recordToResponse(record, s.maxRetries))
	}

	writeJSON(w, http.StatusOK, resp)
}

// listFailedRecords returns records that exhausted their retry budget for a
// tracked paper. These need manual attention; the pipeline will not pick them
// up again.
func (s *Server) listFailedRecords(w http.ResponseWriter, r *http.Request) {
	tracked, ok := s.trackedByAlias(chi.URLParam(r, "alias"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown tracked paper alias")
		return
	}

	records, err := s.ledger.ListFailedExhausted(r.Context(), tracked.ID, s.maxRetries)
	if err != nil {
		s.logger.Error().Err(err).Str("tracked_paper_id", tracked.ID).Msg("list exhausted records failed")
		writeError(w, http.StatusInternalServerError, "listing exhausted records failed")
		return
	}

	resp := listRecordsResponse{
		Records:    make([]recordResponse, 0, len(records)),
		TotalCount: int64(len(records)),
	}
	for _, record := range records {
		resp.Records = append(resp.Records, recordToResponse(record, s.maxRetries))
	}

	writeJSON(w, http.StatusOK, resp)
}

// triggerPoll signals the tracked paper's poll workflow to run immediately,
// starting the workflow first if it is not running.
func (s *Server) triggerPoll(w http.ResponseWriter, r *http.Request) {
	tracked, ok := s.trackedByAlias(chi.URLParam(r, "alias"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown tracked paper alias")
		return
	}

	workflowID := temporal.PollWorkflowID(tracked.Alias)

	err := s.pollClient.TriggerPoll(r.Context(), tracked.Alias)
	if err == nil {
		writeJSON(w, http.StatusAccepted, triggerPollResponse{
			WorkflowID: workflowID,
			Message:    "poll triggered",
		})
		return
	}

	if !temporal.IsWorkflowNotFound(err) {
		s.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("trigger poll failed")
		writeError(w, http.StatusBadGateway, "signaling poll workflow failed")
		return
	}

	// No workflow yet: start one. The first cycle runs immediately.
	_, runID, err := s.pollClient.StartPollWorkflow(r.Context(), tracked.Alias, s.workflowFunc, s.pollInput(tracked))
	if err != nil {
		if temporal.IsWorkflowAlreadyStarted(err) {
			// Lost the race with another trigger; the workflow is running now.
			writeJSON(w, http.StatusAccepted, triggerPollResponse{
				WorkflowID: workflowID,
				Message:    "poll workflow already running",
			})
			return
		}
		s.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("start poll workflow failed")
		writeError(w, http.StatusBadGateway, "starting poll workflow failed")
		return
	}

	writeJSON(w, http.StatusAccepted, triggerPollResponse{
		WorkflowID: workflowID,
		RunID:      runID,
		Started:    true,
		Message:    "poll workflow started",
	})
}

// stopPoll signals the tracked paper's poll workflow to stop gracefully.
func (s *Server) stopPoll(w http.ResponseWriter, r *http.Request) {
	tracked, ok := s.trackedByAlias(chi.URLParam(r, "alias"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown tracked paper alias")
		return
	}

	if err := s.pollClient.StopPoll(r.Context(), tracked.Alias); err != nil {
		if temporal.IsWorkflowNotFound(err) {
			writeError(w, http.StatusNotFound, "poll workflow not running")
			return
		}
		s.logger.Error().Err(err).Str("alias", tracked.Alias).Msg("stop poll failed")
		writeError(w, http.StatusBadGateway, "stopping poll workflow failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "stop requested",
	})
}
