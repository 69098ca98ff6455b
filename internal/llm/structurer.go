package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/citetrack/citation-service/internal/domain"
)

// structuredResponse is the expected JSON structure from structurer responses.
type structuredResponse struct {
	Abstract     string `json:"abstract"`
	Introduction string `json:"introduction"`
	Method       string `json:"method"`
	Experiments  string `json:"experiments"`
	Conclusion   string `json:"conclusion"`
}

// StructureRequest contains the raw text to structure.
type StructureRequest struct {
	// CitingTitle is the citing paper's title, included for orientation.
	CitingTitle string

	// RawText is the extracted full text, already truncated to the
	// configured cap by the caller.
	RawText string
}

// Structurer converts raw extracted text into the sectioned document required
// by stage two and the summarizer. A document the oracle cannot section is an
// infrastructure failure (domain.ErrUnparseableDocument), never a
// classification outcome.
type Structurer struct {
	client Client
}

// NewStructurer creates a structurer backed by the given client.
func NewStructurer(client Client) *Structurer {
	return &Structurer{client: client}
}

// Structure sections the raw text of one citing paper.
func (s *Structurer) Structure(ctx context.Context, req StructureRequest) (*domain.StructuredDocument, error) {
	system, user := BuildStructurePrompt(req)

	resp, err := s.client.Complete(ctx, Request{
		System:       system,
		User:         user,
		MaxTokens:    8192,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("structuring via %s failed: %w", s.client.Provider(), err)
	}

	var parsed structuredResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("structurer response is not valid JSON: %w", domain.ErrUnparseableDocument)
	}

	doc := &domain.StructuredDocument{
		Abstract:     parsed.Abstract,
		Introduction: parsed.Introduction,
		Method:       parsed.Method,
		Experiments:  parsed.Experiments,
		Conclusion:   parsed.Conclusion,
	}

	if doc.IsEmpty() {
		return nil, fmt.Errorf("structurer produced no usable sections: %w", domain.ErrUnparseableDocument)
	}

	return doc, nil
}

// BuildStructurePrompt builds the system and user prompts for document
// structuring.
func BuildStructurePrompt(req StructureRequest) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are a paper analysis AI. Extract key sections from raw paper text ")
	sb.WriteString("and output them in the specified JSON format.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"abstract": "...", "introduction": "...", "method": "...", "experiments": "...", "conclusion": "..."}`)
	sb.WriteString("\n\n")

	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. Use an empty string for any section not found in the text.\n")
	sb.WriteString("2. Exclude References, Appendix, and Acknowledgments.\n")
	sb.WriteString("3. Extract original sentences as much as possible; do not summarize.\n")
	sb.WriteString("4. Maintain the original language of the text.\n")

	systemPrompt = sb.String()

	var ub strings.Builder
	ub.WriteString("Paper title: ")
	ub.WriteString(req.CitingTitle)
	ub.WriteString("\n\nRaw text:\n---\n")
	ub.WriteString(req.RawText)
	ub.WriteString("\n---")

	userPrompt = ub.String()
	return systemPrompt, userPrompt
}
