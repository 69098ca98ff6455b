package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/citetrack/citation-service/internal/domain"
	"github.com/citetrack/citation-service/internal/pdf"
)

// ErrNoMaterial is returned when neither a clean abstract nor a PDF location
// can be derived for a candidate. The record fails and retries; a later poll
// may surface an open-access copy.
var ErrNoMaterial = errors.New("pipeline: no classification material available")

// Fetcher downloads a PDF from a resolved URL.
type Fetcher interface {
	Download(ctx context.Context, url string) (*pdf.DownloadResult, error)
}

// StageOneMaterial is the citing-paper material handed to the first-pass
// classifier, with the mode that tells the oracle how to read it.
type StageOneMaterial struct {
	Mode     domain.ClassifyMode
	Abstract string
	Snippet  string
}

// FullTextMaterial is the citing-paper material for the full-text pass and
// the summarizer.
type FullTextMaterial struct {
	// RawText is the extracted full text, capped at the configured limit.
	RawText string

	// Abstract is the candidate's abstract, or a bounded prefix of the raw
	// text when no abstract is available.
	Abstract string
}

// MaterialSource resolves classification material for a candidate. It exists
// so the orchestrator can be tested without HTTP collaborators.
type MaterialSource interface {
	StageOne(ctx context.Context, candidate domain.CitingPaperCandidate) (*StageOneMaterial, error)
	FullText(ctx context.Context, candidate domain.CitingPaperCandidate) (*FullTextMaterial, error)
}

// ResolverConfig holds configuration for the material resolver. Zero values
// fall back to the package defaults in internal/pdf.
type ResolverConfig struct {
	SnippetPages      int
	MaxFullTextChars  int
	FallbackTextChars int
}

// MaterialResolver routes candidates to classification material. Candidates
// with a clean abstract are classified on it directly; everything else goes
// through PDF download and text extraction.
type MaterialResolver struct {
	fetcher   Fetcher
	extractor pdf.TextExtractor
	cfg       ResolverConfig
}

// Compile-time check that MaterialResolver implements MaterialSource.
var _ MaterialSource = (*MaterialResolver)(nil)

// NewMaterialResolver creates a material resolver.
func NewMaterialResolver(fetcher Fetcher, extractor pdf.TextExtractor, cfg ResolverConfig) *MaterialResolver {
	if cfg.SnippetPages == 0 {
		cfg.SnippetPages = pdf.SnippetPages
	}
	if cfg.MaxFullTextChars == 0 {
		cfg.MaxFullTextChars = pdf.MaxFullTextChars
	}
	if cfg.FallbackTextChars == 0 {
		cfg.FallbackTextChars = pdf.FallbackTextChars
	}

	return &MaterialResolver{
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
	}
}

// StageOne resolves the first-pass material for a candidate. A clean abstract
// is used as-is; otherwise the leading pages of the PDF are extracted into a
// raw snippet for the extract-then-classify mode.
func (r *MaterialResolver) StageOne(ctx context.Context, candidate domain.CitingPaperCandidate) (*StageOneMaterial, error) {
	if candidate.HasCleanAbstract() {
		return &StageOneMaterial{
			Mode:     domain.ModeAbstractOnly,
			Abstract: candidate.Abstract,
		}, nil
	}

	text, err := r.extract(ctx, candidate, r.cfg.SnippetPages)
	if err != nil {
		return nil, err
	}

	return &StageOneMaterial{
		Mode:    domain.ModeExtractThenClassify,
		Snippet: pdf.Truncate(text, r.cfg.FallbackTextChars),
	}, nil
}

// FullText resolves the full-text material for the expensive pass. The whole
// document is extracted and capped; when the candidate has no abstract, a
// bounded prefix of the raw text stands in for it.
func (r *MaterialResolver) FullText(ctx context.Context, candidate domain.CitingPaperCandidate) (*FullTextMaterial, error) {
	text, err := r.extract(ctx, candidate, 0)
	if err != nil {
		return nil, err
	}

	abstract := candidate.Abstract
	if !candidate.HasCleanAbstract() {
		abstract = pdf.AbstractFallback(text)
	}

	return &FullTextMaterial{
		RawText:  pdf.Truncate(text, r.cfg.MaxFullTextChars),
		Abstract: abstract,
	}, nil
}

// extract downloads the candidate's PDF and runs text extraction over the
// leading maxPages pages (0 extracts everything).
func (r *MaterialResolver) extract(ctx context.Context, candidate domain.CitingPaperCandidate, maxPages int) (string, error) {
	url, ok := pdf.ResolvePDFURL(candidate)
	if !ok {
		return "", fmt.Errorf("paper %s: %w", candidate.PaperID, ErrNoMaterial)
	}

	result, err := r.fetcher.Download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}

	text, err := r.extractor.ExtractText(ctx, result.Content, maxPages)
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", url, err)
	}

	return text, nil
}
