// Package llm provides the language-model oracles for the Citation Tracking
// Service.
//
// This package defines a provider-neutral completion client (OpenAI,
// Anthropic) and the four oracles built on top of it: the cheap stage-one
// classifier, the full-text stage-two classifier, the document structurer,
// and the summarizer. Oracles own their prompts and response parsing; the
// client owns transport, authentication, and retry.
//
// Example usage:
//
//	client, _ := llm.NewClient(cfg, llm.TierLight)
//	classifier := llm.NewStageOneClassifier(client)
//	decision, err := classifier.Classify(ctx, llm.StageOneRequest{
//		TrackedTitle:    tracked.Title,
//		TrackedAbstract: tracked.Abstract,
//		CitingTitle:     candidate.Title,
//		Abstract:        candidate.Abstract,
//		Mode:            domain.ModeAbstractOnly,
//	})
package llm

import (
	"context"
)

// Request is a provider-neutral completion request.
type Request struct {
	// System is the system-level instruction.
	System string

	// User is the user-level prompt.
	User string

	// MaxTokens caps the response length. Zero means the provider default.
	MaxTokens int

	// JSONResponse requests structured JSON output where the provider
	// supports it natively.
	JSONResponse bool
}

// Completion is a provider-neutral completion response.
type Completion struct {
	// Content is the text of the first completion.
	Content string

	// Model is the model that produced the completion.
	Model string

	// InputTokens is the number of input tokens used.
	InputTokens int

	// OutputTokens is the number of output tokens used.
	OutputTokens int
}

// Client defines the interface for LLM completion providers.
//
// Implementations should handle provider-specific API calls, transient-error
// retry, and error handling while conforming to this unified interface.
type Client interface {
	// Complete sends a completion request and returns the response.
	// The context should be used for cancellation and deadline propagation.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Retry transient errors (429, 5xx, network) with backoff
	//   - Return *APIError for provider failures
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}
