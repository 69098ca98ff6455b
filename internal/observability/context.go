package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	trackedIDKey  contextKey = "tracked_paper_id"
	citingIDKey   contextKey = "citing_paper_id"
	workflowIDKey contextKey = "workflow_id"
	runIDKey      contextKey = "workflow_run_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithPair adds the (tracked, citing) pair identifiers to the context.
func WithPair(ctx context.Context, trackedPaperID, citingPaperID string) context.Context {
	ctx = context.WithValue(ctx, trackedIDKey, trackedPaperID)
	ctx = context.WithValue(ctx, citingIDKey, citingPaperID)
	return ctx
}

// PairFromContext retrieves the (tracked, citing) pair identifiers from
// context. Returns empty strings if not present.
func PairFromContext(ctx context.Context) (trackedPaperID, citingPaperID string) {
	if v := ctx.Value(trackedIDKey); v != nil {
		if id, ok := v.(string); ok {
			trackedPaperID = id
		}
	}
	if v := ctx.Value(citingIDKey); v != nil {
		if id, ok := v.(string); ok {
			citingPaperID = id
		}
	}
	return trackedPaperID, citingPaperID
}

// WithWorkflow adds workflow ID and run ID to the context.
func WithWorkflow(ctx context.Context, workflowID, runID string) context.Context {
	ctx = context.WithValue(ctx, workflowIDKey, workflowID)
	ctx = context.WithValue(ctx, runIDKey, runID)
	return ctx
}

// WorkflowFromContext retrieves workflow ID and run ID from context.
// Returns empty strings if not present.
func WorkflowFromContext(ctx context.Context) (workflowID, runID string) {
	if v := ctx.Value(workflowIDKey); v != nil {
		if id, ok := v.(string); ok {
			workflowID = id
		}
	}
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			runID = id
		}
	}
	return workflowID, runID
}

// PipelineContext contains all the context data for one pipeline pass over a
// record.
type PipelineContext struct {
	RequestID      string
	TrackedPaperID string
	CitingPaperID  string
	WorkflowID     string
	RunID          string
}

// WithPipelineContextFull adds all pipeline context to the context.
func WithPipelineContextFull(ctx context.Context, pc PipelineContext) context.Context {
	if pc.RequestID != "" {
		ctx = WithRequestID(ctx, pc.RequestID)
	}
	if pc.TrackedPaperID != "" || pc.CitingPaperID != "" {
		ctx = WithPair(ctx, pc.TrackedPaperID, pc.CitingPaperID)
	}
	if pc.WorkflowID != "" || pc.RunID != "" {
		ctx = WithWorkflow(ctx, pc.WorkflowID, pc.RunID)
	}
	return ctx
}

// PipelineContextFromContext extracts all pipeline context from the context.
func PipelineContextFromContext(ctx context.Context) PipelineContext {
	trackedPaperID, citingPaperID := PairFromContext(ctx)
	workflowID, runID := WorkflowFromContext(ctx)

	return PipelineContext{
		RequestID:      RequestIDFromContext(ctx),
		TrackedPaperID: trackedPaperID,
		CitingPaperID:  citingPaperID,
		WorkflowID:     workflowID,
		RunID:          runID,
	}
}
