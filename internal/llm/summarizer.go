package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/citetrack/citation-service/internal/domain"
)

// SummarizeRequest contains the material for a summary.
type SummarizeRequest struct {
	TrackedTitle    string
	TrackedAbstract string

	CitingTitle    string
	CitingAbstract string

	// Document is the structured full text of the citing paper.
	Document domain.StructuredDocument
}

// Summary is the output of the summarizer.
type Summary struct {
	// Markdown is the rendered summary body.
	Markdown string

	Model        string
	InputTokens  int
	OutputTokens int
}

// Summarizer produces a Markdown summary of a same-task citing paper relative
// to the tracked reference paper. Empty output is an infrastructure failure
// (ErrAmbiguousResult) and the call is retried.
type Summarizer struct {
	client Client
}

// NewSummarizer creates a summarizer backed by the given client.
func NewSummarizer(client Client) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize renders a summary for one citing paper.
func (s *Summarizer) Summarize(ctx context.Context, req SummarizeRequest) (*Summary, error) {
	system, user := BuildSummaryPrompt(req)

	resp, err := s.client.Complete(ctx, Request{
		System:    system,
		User:      user,
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("summarization via %s failed: %w", s.client.Provider(), err)
	}

	markdown := strings.TrimSpace(resp.Content)
	if markdown == "" {
		return nil, fmt.Errorf("summarizer produced empty output: %w", ErrAmbiguousResult)
	}

	return &Summary{
		Markdown:     markdown,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// BuildSummaryPrompt builds the system and user prompts for summarization.
func BuildSummaryPrompt(req SummarizeRequest) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are a research paper summarization specialist. You summarize a citing ")
	sb.WriteString("paper for a reader who tracks a reference paper and wants to know what the ")
	sb.WriteString("citing work adds on the same task.\n\n")

	sb.WriteString("Write the summary in Markdown with these sections:\n")
	sb.WriteString("1. Problem and goal\n")
	sb.WriteString("2. Method and how it differs from the reference paper\n")
	sb.WriteString("3. Experiments and key results\n")
	sb.WriteString("4. Relation to the reference paper\n\n")

	sb.WriteString("Be concrete and faithful to the text. Do not invent results.\n")

	systemPrompt = sb.String()

	var ub strings.Builder
	ub.WriteString("Reference paper title: ")
	ub.WriteString(req.TrackedTitle)
	ub.WriteString("\n\nReference paper abstract:\n---\n")
	ub.WriteString(req.TrackedAbstract)
	ub.WriteString("\n---\n\n")

	ub.WriteString("Citing paper title: ")
	ub.WriteString(req.CitingTitle)
	ub.WriteString("\nCiting paper abstract: ")
	if req.CitingAbstract != "" {
		ub.WriteString(req.CitingAbstract)
	} else {
		ub.WriteString("(not available)")
	}
	ub.WriteString("\n\nCiting paper full text (structured):\n")
	writeDocumentSections(&ub, req.Document)

	userPrompt = ub.String()
	return systemPrompt, userPrompt
}
