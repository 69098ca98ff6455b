// Package semanticscholar provides a client for the Semantic Scholar Graph API.
//
// Semantic Scholar is a free, AI-powered research tool for scientific
// literature. This package implements the discovery.CitationSource interface
// for fetching tracked-paper metadata and paging through citing papers.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// PaperResult represents a single paper in the Semantic Scholar API response.
type PaperResult struct {
	// PaperID is the Semantic Scholar unique identifier for the paper.
	PaperID string `json:"paperId"`

	// Title is the title of the paper.
	Title string `json:"title"`

	// Abstract is the paper's abstract text. Frequently missing for
	// publisher-restricted papers.
	Abstract string `json:"abstract"`

	// Year is the publication year.
	Year int `json:"year"`

	// URL is the Semantic Scholar landing page for the paper.
	URL string `json:"url"`

	// OpenAccessPDF contains information about the open access PDF if available.
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`

	// ExternalIDs contains external identifiers for the paper (DOI, ArXiv, etc.).
	ExternalIDs *ExternalIDs `json:"externalIds,omitempty"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	// DOI is the Digital Object Identifier.
	DOI string `json:"DOI,omitempty"`

	// ArXiv is the ArXiv identifier.
	ArXiv string `json:"ArXiv,omitempty"`

	// PubMed is the PubMed identifier.
	PubMed string `json:"PubMed,omitempty"`

	// PubMedCentral is the PubMed Central identifier.
	PubMedCentral string `json:"PubMedCentral,omitempty"`
}

// OpenAccessPDF contains information about an open access PDF.
type OpenAccessPDF struct {
	// URL is the direct URL to the PDF.
	URL string `json:"url,omitempty"`

	// Status indicates the open access status (e.g., "HYBRID", "GOLD", "GREEN").
	Status string `json:"status,omitempty"`
}

// CitationEntry wraps one citing paper in the citations endpoint response.
type CitationEntry struct {
	// CitingPaper is the paper that cites the requested paper.
	CitingPaper PaperResult `json:"citingPaper"`
}

// CitationsResponse represents the response from the paper citations endpoint.
type CitationsResponse struct {
	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset for the next page of results.
	// Absent (0) when there are no more results.
	Next int `json:"next"`

	// Data contains the citation entries on this page.
	Data []CitationEntry `json:"data"`
}

// ErrorResponse represents an error response from the Semantic Scholar API.
type ErrorResponse struct {
	// Error is the error message from the API.
	Error string `json:"error,omitempty"`

	// Message is an alternative error message field.
	Message string `json:"message,omitempty"`
}
