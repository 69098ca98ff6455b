package pdf

import (
	"fmt"
	"strings"

	"github.com/citetrack/citation-service/internal/domain"
)

// ResolvePDFURL determines the PDF download URL for a citing paper.
// Resolution order: ArXiv ID, open-access PDF link, landing-page URL
// heuristics. Returns false when no PDF location can be derived.
func ResolvePDFURL(candidate domain.CitingPaperCandidate) (string, bool) {
	if id := strings.TrimSpace(candidate.ArxivID); id != "" {
		return fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", id), true
	}

	if u := strings.TrimSpace(candidate.OpenAccessPDF); u != "" {
		return u, true
	}

	u := strings.TrimSpace(candidate.URL)
	if u == "" {
		return "", false
	}
	if strings.Contains(u, "arxiv.org/abs/") {
		return strings.Replace(u, "/abs/", "/pdf/", 1) + ".pdf", true
	}
	if strings.HasSuffix(u, ".pdf") {
		return u, true
	}

	return "", false
}
