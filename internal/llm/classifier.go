package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/citetrack/citation-service/internal/domain"
)

// classificationResponse is the expected JSON structure from classifier responses.
type classificationResponse struct {
	Classification string `json:"classification"`
	Reasoning      string `json:"reasoning,omitempty"`
}

// StageOneRequest contains the material for a cheap first-pass classification.
// Exactly one of Abstract (abstract-only mode) or Snippet
// (extract-then-classify mode) carries the citing paper's material.
type StageOneRequest struct {
	// TrackedTitle and TrackedAbstract describe the tracked reference paper.
	TrackedTitle    string
	TrackedAbstract string

	// CitingTitle is the citing paper's title.
	CitingTitle string

	// Abstract is the citing paper's clean abstract (abstract-only mode).
	Abstract string

	// Snippet is a bounded prefix of the citing paper's raw text
	// (extract-then-classify mode).
	Snippet string

	// Mode selects how the oracle receives the citing paper's material.
	Mode domain.ClassifyMode
}

// StageOneDecision is the outcome of a first-pass classification.
type StageOneDecision struct {
	Result       domain.StageOneResult
	Reasoning    string
	Model        string
	InputTokens  int
	OutputTokens int
}

// StageOneClassifier performs the cheap first-pass classification. It only
// ever answers same_task or uncertain: output it cannot resolve to a label
// means the cheap signal was insufficient, so the answer is uncertain and the
// record escalates. Provider errors are returned as-is and retried upstream.
type StageOneClassifier struct {
	client Client
}

// NewStageOneClassifier creates a stage-one classifier backed by the given client.
func NewStageOneClassifier(client Client) *StageOneClassifier {
	return &StageOneClassifier{client: client}
}

// Classify runs the first-pass classification for one citing paper.
func (c *StageOneClassifier) Classify(ctx context.Context, req StageOneRequest) (*StageOneDecision, error) {
	system, user := BuildStageOnePrompt(req)

	resp, err := c.client.Complete(ctx, Request{
		System:       system,
		User:         user,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("stage-one classification via %s failed: %w", c.client.Provider(), err)
	}

	result := parseStageOneLabel(resp.Content)

	var parsed classificationResponse
	_ = json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed)

	return &StageOneDecision{
		Result:       result,
		Reasoning:    parsed.Reasoning,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// parseStageOneLabel resolves oracle output to a stage-one result. Anything
// that is not an unambiguous same_task answer is uncertain.
func parseStageOneLabel(content string) domain.StageOneResult {
	var parsed classificationResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err == nil {
		if normalizeLabel(parsed.Classification) == "same_task" {
			return domain.StageOneSameTask
		}
		return domain.StageOneUncertain
	}

	// Non-JSON output: accept only an unambiguous bare label.
	if normalizeLabel(content) == "same_task" {
		return domain.StageOneSameTask
	}
	return domain.StageOneUncertain
}

// BuildStageOnePrompt builds the system and user prompts for the first-pass
// classification.
func BuildStageOnePrompt(req StageOneRequest) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are a research paper triage specialist. You compare a citing paper ")
	sb.WriteString("against a tracked reference paper and decide whether the citing paper ")
	sb.WriteString("works on the same task as the reference paper.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"classification": "same_task" or "uncertain", "reasoning": "Brief explanation"}`)
	sb.WriteString("\n\n")

	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. Answer \"same_task\" ONLY when the citing paper clearly addresses the same research task as the reference paper.\n")
	sb.WriteString("2. Answer \"uncertain\" in every other case, including when the material is insufficient to decide.\n")
	sb.WriteString("3. Citing a paper is not the same as working on its task. Background citations are \"uncertain\".\n")

	if req.Mode == domain.ModeExtractThenClassify {
		sb.WriteString("4. The citing paper's material is a raw text snippet from the start of the document. ")
		sb.WriteString("First locate the abstract or an abstract-equivalent passage in it, then compare. ")
		sb.WriteString("If no abstract-equivalent can be located, answer \"uncertain\".\n")
	}

	systemPrompt = sb.String()

	var ub strings.Builder
	ub.WriteString("Reference paper title: ")
	ub.WriteString(req.TrackedTitle)
	ub.WriteString("\n\nReference paper abstract:\n---\n")
	ub.WriteString(req.TrackedAbstract)
	ub.WriteString("\n---\n\n")

	ub.WriteString("Citing paper title: ")
	ub.WriteString(req.CitingTitle)
	ub.WriteString("\n\n")

	if req.Mode == domain.ModeExtractThenClassify {
		ub.WriteString("Citing paper raw text snippet:\n---\n")
		ub.WriteString(req.Snippet)
	} else {
		ub.WriteString("Citing paper abstract:\n---\n")
		ub.WriteString(req.Abstract)
	}
	ub.WriteString("\n---")

	userPrompt = ub.String()
	return systemPrompt, userPrompt
}

// StageTwoRequest contains the material for the full-text classification.
type StageTwoRequest struct {
	TrackedTitle    string
	TrackedAbstract string

	CitingTitle    string
	CitingAbstract string

	// Document is the structured full text of the citing paper.
	Document domain.StructuredDocument
}

// StageTwoDecision is the outcome of a full-text classification.
type StageTwoDecision struct {
	Result       domain.StageTwoResult
	Reasoning    string
	Model        string
	InputTokens  int
	OutputTokens int
}

// StageTwoClassifier performs the expensive full-text classification. Its
// verdict is terminal and strictly binary: output that cannot be resolved to
// same_task or other is an infrastructure failure (ErrAmbiguousResult) and
// the call is retried, never coerced to a label.
type StageTwoClassifier struct {
	client Client
}

// NewStageTwoClassifier creates a stage-two classifier backed by the given client.
func NewStageTwoClassifier(client Client) *StageTwoClassifier {
	return &StageTwoClassifier{client: client}
}

// Classify runs the full-text classification for one citing paper.
func (c *StageTwoClassifier) Classify(ctx context.Context, req StageTwoRequest) (*StageTwoDecision, error) {
	system, user := BuildStageTwoPrompt(req)

	resp, err := c.client.Complete(ctx, Request{
		System:       system,
		User:         user,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("stage-two classification via %s failed: %w", c.client.Provider(), err)
	}

	var parsed classificationResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("stage-two response is not valid JSON: %w", ErrAmbiguousResult)
	}

	var result domain.StageTwoResult
	switch normalizeLabel(parsed.Classification) {
	case "same_task":
		result = domain.StageTwoSameTask
	case "other":
		result = domain.StageTwoOther
	default:
		return nil, fmt.Errorf("stage-two label %q: %w", parsed.Classification, ErrAmbiguousResult)
	}

	return &StageTwoDecision{
		Result:       result,
		Reasoning:    parsed.Reasoning,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// BuildStageTwoPrompt builds the system and user prompts for the full-text
// classification.
func BuildStageTwoPrompt(req StageTwoRequest) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are a research paper analysis specialist. You read the full text of ")
	sb.WriteString("a citing paper and decide whether it works on the same task as a tracked ")
	sb.WriteString("reference paper. This is the final verdict, so decide carefully.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"classification": "same_task" or "other", "reasoning": "Brief explanation"}`)
	sb.WriteString("\n\n")

	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. Answer \"same_task\" when the citing paper addresses the same research task as the reference paper: same problem formulation, comparable goals, overlapping evaluation.\n")
	sb.WriteString("2. Answer \"other\" when the citing paper merely cites the reference as background, applies it to a different problem, or addresses a different task.\n")
	sb.WriteString("3. You must choose one of the two labels.\n")

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

// writeDocumentSections renders the non-empty sections of a structured
// document into a prompt.
func writeDocumentSections(sb *strings.Builder, doc domain.StructuredDocument) {
	sections := []struct {
		name string
		text string
	}{
		{"Abstract", doc.Abstract},
		{"Introduction", doc.Introduction},
		{"Method", doc.Method},
		{"Experiments", doc.Experiments},
		{"Conclusion", doc.Conclusion},
	}

	for _, s := range sections {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		sb.WriteString("## ")
		sb.WriteString(s.name)
		sb.WriteString("\n")
		sb.WriteString(s.text)
		sb.WriteString("\n\n")
	}
}

// normalizeLabel lowercases and trims a classification label.
func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// extractJSON strips a Markdown code fence around a JSON payload if present.
// Providers occasionally wrap JSON output despite instructions.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
