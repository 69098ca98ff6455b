package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citetrack/citation-service/internal/config"
	"github.com/citetrack/citation-service/internal/domain"
	"github.com/citetrack/citation-service/internal/repository"
	"github.com/citetrack/citation-service/internal/temporal"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockLedger implements repository.ProcessingLedger for handler tests.
type mockLedger struct {
	listFn          func(ctx context.Context, filter repository.LedgerFilter) ([]*domain.ProcessingRecord, int64, error)
	listExhaustedFn func(ctx context.Context, trackedPaperID string, maxRetries int) ([]*domain.ProcessingRecord, error)
}

func (m *mockLedger) Lookup(_ context.Context, _ domain.RecordKey) (*domain.ProcessingRecord, error) {
	return nil, domain.ErrNotFound
}

func (m *mockLedger) CreateIfAbsent(_ context.Context, _ string, _ domain.CitingPaperCandidate) (*domain.ProcessingRecord, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (m *mockLedger) Transition(_ context.Context, _ domain.RecordKey, _, _ domain.Stage, _ repository.TransitionUpdate) (*domain.ProcessingRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLedger) MarkFailed(_ context.Context, _ domain.RecordKey, _ domain.Stage, _ string) (*domain.ProcessingRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockLedger) SetDisposition(_ context.Context, _ domain.RecordKey, _ domain.Disposition) error {
	return errors.New("not implemented")
}

func (m *mockLedger) ListPending(_ context.Context, _ string, _ int) ([]*domain.ProcessingRecord, error) {
	return nil, nil
}

func (m *mockLedger) ListFailedExhausted(ctx context.Context, trackedPaperID string, maxRetries int) ([]*domain.ProcessingRecord, error) {
	if m.listExhaustedFn != nil {
		return m.listExhaustedFn(ctx, trackedPaperID, maxRetries)
	}
	return nil, nil
}

func (m *mockLedger) List(ctx context.Context, filter repository.LedgerFilter) ([]*domain.ProcessingRecord, int64, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, 0, nil
}

// mockPollClient implements PollClient for handler tests.
type mockPollClient struct {
	healthFn   func(ctx context.Context) error
	startFn    func(ctx context.Context, alias string, wfFunc interface{}, input interface{}) (string, string, error)
	triggerFn  func(ctx context.Context, alias string) error
	stopFn     func(ctx context.Context, alias string) error
	describeFn func(ctx context.Context, workflowID, runID string) (*temporal.WorkflowDescription, error)
}

func (m *mockPollClient) Health(ctx context.Context) error {
	if m.healthFn != nil {
		return m.healthFn(ctx)
	}
	return nil
}

func (m *mockPollClient) StartPollWorkflow(ctx context.Context, alias string, wfFunc interface{}, input interface{}) (string, string, error) {
	if m.startFn != nil {
		return m.startFn(ctx, alias, wfFunc, input)
	}
	return temporal.PollWorkflowID(alias), "run-test", nil
}

func (m *mockPollClient) TriggerPoll(ctx context.Context, alias string) error {
	if m.triggerFn != nil {
		return m.triggerFn(ctx, alias)
	}
	return nil
}

func (m *mockPollClient) StopPoll(ctx context.Context, alias string) error {
	if m.stopFn != nil {
		return m.stopFn(ctx, alias)
	}
	return nil
}

func (m *mockPollClient) DescribeWorkflow(ctx context.Context, workflowID, runID string) (*temporal.WorkflowDescription, error) {
	if m.describeFn != nil {
		return m.describeFn(ctx, workflowID, runID)
	}
	return nil, &temporal.TemporalError{Op: "DescribeWorkflow", Kind: temporal.ErrWorkflowNotFound}
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var testTrackedPapers = []config.TrackedPaperConfig{
	{ID: "P1", Alias: "neural-citation"},
	{ID: "P2", Alias: "graph-matching"},
}

// newTestServer creates a Server configured for testing with mocked dependencies.
func newTestServer(ledger repository.ProcessingLedger, pollClient PollClient) *Server {
	s := &Server{
		ledger:     ledger,
		pollClient: pollClient,
		workflowFunc: func() {
			// Stand-in for the workflow function reference.
		},
		pollInput: func(tracked config.TrackedPaperConfig) interface{} {
			return map[string]interface{}{"tracked_paper_id": tracked.ID}
		},
		tracked:    testTrackedPapers,
		maxRetries: 5,
		logger:     zerolog.Nop(),
	}
	s.router = s.buildRouter(Config{})
	return s
}

// serveHTTP dispatches a request through the test server's router.
func serveHTTP(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, r)
	return rr
}

func testRecord(citingID string, stage domain.Stage) *domain.ProcessingRecord {
	return &domain.ProcessingRecord{
		Key:   domain.RecordKey{TrackedPaperID: "P1", CitingPaperID: citingID},
		Stage: stage,
		Candidate: domain.CitingPaperCandidate{
			PaperID:      citingID,
			Title:        "Citing " + citingID,
			DiscoveredAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
		UpdatedAt: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	}
}

// ---------------------------------------------------------------------------
// Tests: listTrackedPapers
// ---------------------------------------------------------------------------

func TestListTrackedPapers(t *testing.T) {
	pollClient := &mockPollClient{
		describeFn: func(_ context.Context, workflowID, _ string) (*temporal.WorkflowDescription, error) {
			if workflowID == "citation-poll-neural-citation" {
				return &temporal.WorkflowDescription{
					WorkflowID: workflowID,
					RunID:      "run-1",
					Status:     "Running",
					StartTime:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
				}, nil
			}
			return nil, &temporal.TemporalError{Op: "DescribeWorkflow", Kind: temporal.ErrWorkflowNotFound}
		},
	}
	srv := newTestServer(&mockLedger{}, pollClient)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/tracked", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp listTrackedResponse
	decodeJSON(t, rr, &resp)

	require.Len(t, resp.TrackedPapers, 2)
	assert.Equal(t, "P1", resp.TrackedPapers[0].PaperID)
	assert.Equal(t, "Running", resp.TrackedPapers[0].WorkflowStatus)
	assert.Equal(t, "run-1", resp.TrackedPapers[0].RunID)
	assert.Equal(t, "not_started", resp.TrackedPapers[1].WorkflowStatus)
	assert.Empty(t, resp.TrackedPapers[1].RunID)
}

// ---------------------------------------------------------------------------
// Tests: listRecords
// ---------------------------------------------------------------------------

func TestListRecords(t *testing.T) {
	var captured repository.LedgerFilter
	ledger := &mockLedger{
		listFn: func(_ context.Context, filter repository.LedgerFilter) ([]*domain.ProcessingRecord, int64, error) {
			captured = filter
			uncertain := domain.StageOneUncertain
			record := testRecord("C1", domain.StageOneDone)
			record.StageOneResult = &uncertain
			return []*domain.ProcessingRecord{record}, 1, nil
		},
	}
	srv := newTestServer(ledger, &mockPollClient{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet,
		"/api/v1/tracked/neural-citation/records?stage=stage1_done&limit=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "P1", captured.TrackedPaperID)
	assert.Equal(t, []domain.Stage{domain.StageOneDone}, captured.Stages)
	assert.Equal(t, 10, captured.Limit)

	var resp listRecordsResponse
	decodeJSON(t, rr, &resp)

	require.Len(t, resp.Records, 1)
	assert.Equal(t, "C1", resp.Records[0].CitingPaperID)
	assert.Equal(t, "stage1_done", resp.Records[0].Stage)
	require.NotNil(t, resp.Records[0].StageOneResult)
	assert.Equal(t, "uncertain", *resp.Records[0].StageOneResult)
	assert.False(t, resp.Records[0].Exhausted)
	assert.EqualValues(t, 1, resp.TotalCount)
}

func TestListRecords_UnknownAlias(t *testing.T) {
	srv := newTestServer(&mockLedger{}, &mockPollClient{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/tracked/nope/records", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListRecords_InvalidLimit(t *testing.T) {
	srv := newTestServer(&mockLedger{}, &mockPollClient{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet,
		"/api/v1/tracked/neural-citation/records?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListRecords_InvalidStage(t *testing.T) {
	srv := newTestServer(&mockLedger{}, &mockPollClient{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet,
		"/api/v1/tracked/neural-citation/records?stage=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListRecords_LedgerError(t *testing.T) {
	ledger := &mockLedger{
		listFn: func(_ context.Context, _ repository.LedgerFilter) ([]*domain.ProcessingRecord, int64, error) {
			return nil, 0, errors.New("connection lost")
		},
	}
	srv := newTestServer(ledger, &mockPollClient{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/tracked/neural-citation/records", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

// ---------------------------------------------------------------------------
// Tests: listFailedRecords
// ---------------------------------------------------------------------------

func TestListFailedRecords(t *testing.T) {
	ledger := &mockLedger{
		listExhaustedFn: func(_ context.Context, trackedPaperID string, maxRetries int) ([]*domain.ProcessingRecord, error) {
			assert.Equal(t, "P1", trackedPaperID)
			assert.Equal(t, 5, maxRetries)
			record := testRecord("C9", domain.StageFailed)
			record.RetryCount = 5
			record.LastError = "no classification material available"
			return []*domain.ProcessingRecord{record}, nil
		},
	}
	srv := newTestServer(ledger, &mockPollClient{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet,
		"/api/v1/tracked/neural-citation/records/failed", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp listRecordsResponse
	decodeJSON(t, rr, &resp)

	require.Len(t, resp.Records, 1)
	assert.Equal(t, "C9", resp.Records[0].CitingPaperID)
	assert.True(t, resp.Records[0].Exhausted)
	assert.Equal(t, "no classification material available", resp.Records[0].LastError)
}

// ---------------------------------------------------------------------------
// Tests: triggerPoll / stopPoll
// ---------------------------------------------------------------------------

func TestTriggerPoll_SignalsRunningWorkflow(t *testing.T) {
	var triggered string
	pollClient := &mockPollClient{
		triggerFn: func(_ context.Context, alias string) error {
			triggered = alias
			return nil
		},
	}
	srv := newTestServer(&mockLedger{}, pollClient)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodPost, "/api/v1/tracked/neural-citation/polls", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)

	assert.Equal(t, "neural-citation", triggered)

	var resp triggerPollResponse
	decodeJSON(t, rr, &resp)
	assert.False(t, resp.Started)
	assert.Equal(t, "citation-poll-neural-citation", resp.WorkflowID)
}

func TestTriggerPoll_StartsWorkflowWhenNotRunning(t *testing.T) {
	var startedInput interface{}
	pollClient := &mockPollClient{
		triggerFn: func(_ context.Context, _ string) error {
			return &temporal.TemporalError{Op: "SignalWorkflow", Kind: temporal.ErrWorkflowNotFound}
		},
		startFn: func(_ context.Context, alias string, _ interface{}, input interface{}) (string, string, error) {
			startedInput = input
			return temporal.PollWorkflowID(alias), "run-new", nil
		},
	}
	srv := newTestServer(&mockLedger{}, pollClient)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodPost, "/api/v1/tracked/neural-citation/polls", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp triggerPollResponse
	decodeJSON(t, rr, &resp)
	assert.True(t, resp.Started)
	assert.Equal(t, "run-new", resp.RunID)
	assert.Equal(t, map[string]interface{}{"tracked_paper_id": "P1"}, startedInput)
}

func TestTriggerPoll_StartRaceIsAccepted(t *testing.T) {
	pollClient := &mockPollClient{
		triggerFn: func(_ context.Context, _ string) error {
			return &temporal.TemporalError{Op: "SignalWorkflow", Kind: temporal.ErrWorkflowNotFound}
		},
		startFn: func(_ context.Context, _ string, _ interface{}, _ interface{}) (string, string, error) {
			return "", "", &temporal.TemporalError{Op: "StartPollWorkflow", Kind: temporal.ErrWorkflowAlreadyStarted}
		},
	}
	srv := newTestServer(&mockLedger{}, pollClient)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodPost, "/api/v1/tracked/neural-citation/polls", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestTriggerPoll_SignalFailure(t *testing.T) {
	pollClient := &mockPollClient{
		triggerFn: func(_ context.Context, _ string) error {
			return &temporal.TemporalError{Op: "SignalWorkflow", Kind: temporal.ErrConnectionFailed}
		},
	}
	srv := newTestServer(&mockLedger{}, pollClient)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodPost, "/api/v1/tracked/neural-citation/polls", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestStopPoll(t *testing.T) {
	var stopped string
	pollClient := &mockPollClient{
		stopFn: func(_ context.Context, alias string) error {
			stopped = alias
			return nil
		},
	}
	srv := newTestServer(&mockLedger{}, pollClient)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodDelete, "/api/v1/tracked/neural-citation/polls", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "neural-citation", stopped)
}

func TestStopPoll_NotRunning(t *testing.T) {
	pollClient := &mockPollClient{
		stopFn: func(_ context.Context, _ string) error {
			return &temporal.TemporalError{Op: "SignalWorkflow", Kind: temporal.ErrWorkflowNotFound}
		},
	}
	srv := newTestServer(&mockLedger{}, pollClient)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodDelete, "/api/v1/tracked/neural-citation/polls", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
