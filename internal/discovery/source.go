// Package discovery provides clients for the citation-graph APIs the pipeline
// polls.
//
// Each citation database implements the CitationSource interface, which covers
// the two calls the poll workflow needs: fetching a tracked paper's own
// metadata, and paging through the papers that cite it. All clients share the
// rate-limited HTTPClient in this package.
//
// Example usage:
//
//	source := semanticscholar.NewClient(cfg, nil)
//	details, err := source.PaperDetails(ctx, trackedID)
//	page, err := source.Citations(ctx, trackedID, 0)
package discovery

import (
	"context"

	"github.com/citetrack/citation-service/internal/domain"
)

// PaperDetails is the citation-source view of a single paper. For tracked
// papers it supplies the title and abstract that anchor every classification
// prompt.
type PaperDetails struct {
	// PaperID is the source-specific identifier.
	PaperID string

	// Title and Abstract are the paper's metadata as the source reports them.
	// Abstract may be empty.
	Title    string
	Abstract string

	// Year is the publication year, 0 if unknown.
	Year int

	// URL is the source's landing page for the paper.
	URL string
}

// CitationsPage is one page of citing papers for a tracked paper.
type CitationsPage struct {
	// Candidates are the citing papers on this page, in source order.
	Candidates []domain.CitingPaperCandidate

	// HasMore indicates whether additional pages are available.
	HasMore bool

	// NextOffset is the offset to request the next page. Only meaningful
	// when HasMore is true.
	NextOffset int
}

// CitationSource is the interface citation-graph clients implement.
type CitationSource interface {
	// PaperDetails retrieves a paper's metadata by its source-specific
	// identifier.
	//
	// Returns domain.ErrNotFound if the paper does not exist.
	PaperDetails(ctx context.Context, paperID string) (*PaperDetails, error)

	// Citations retrieves one page of papers citing the given paper,
	// starting at offset. Implementations apply their own page size cap.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.CitingPaperCandidate
	//   - Include appropriate error wrapping with source context
	Citations(ctx context.Context, paperID string, offset int) (*CitationsPage, error)

	// Name returns a human-readable name for this source.
	// Used for logging, metrics, and display purposes.
	Name() string

	// IsEnabled returns whether this source is currently enabled and
	// available. A source may be disabled due to configuration or missing
	// API keys.
	IsEnabled() bool
}
