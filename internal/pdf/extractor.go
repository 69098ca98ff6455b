package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/citetrack/citation-service/internal/domain"
)

// Text budgets for the classification pipeline.
const (
	// SnippetPages is the number of leading pages extracted for the cheap
	// first-pass classification.
	SnippetPages = 3

	// MaxFullTextChars caps the raw text handed to the structuring oracle.
	MaxFullTextChars = 30000

	// FallbackTextChars caps the raw text used when structuring is skipped.
	FallbackTextChars = 20000

	// AbstractFallbackChars is the prefix of raw text that substitutes for a
	// missing abstract.
	AbstractFallbackChars = 1500
)

// ErrNoText is returned when extraction yields no usable text.
var ErrNoText = errors.New("pdf: no text extracted")

// TextExtractor converts PDF bytes into raw text. maxPages limits extraction
// to the leading pages; 0 extracts the whole document.
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte, maxPages int) (string, error)
}

// ExtractionConfig holds configuration for the extraction-service client.
type ExtractionConfig struct {
	// BaseURL is the base URL of the text-extraction service (required).
	BaseURL string

	// Timeout is the HTTP request timeout. Default: 120 seconds; large PDFs
	// take a while.
	Timeout time.Duration
}

// ExtractionClient is an HTTP client for the text-extraction service. The
// service accepts raw PDF bytes and returns the extracted text as JSON.
type ExtractionClient struct {
	client  *http.Client
	baseURL string
}

// Compile-time check that ExtractionClient implements TextExtractor.
var _ TextExtractor = (*ExtractionClient)(nil)

// extractionResponse is the extraction-service response body.
type extractionResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

// NewExtractionClient creates a client for the text-extraction service.
func NewExtractionClient(cfg ExtractionConfig) *ExtractionClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &ExtractionClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
	}
}

// ExtractText sends the PDF to the extraction service and returns the raw
// text. Returns ErrNoText when the service extracts nothing.
func (c *ExtractionClient) ExtractText(ctx context.Context, content []byte, maxPages int) (string, error) {
	endpoint := c.baseURL + "/v1/extract"
	if maxPages > 0 {
		endpoint += "?max_pages=" + strconv.Itoa(maxPages)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.ContentLength = int64(len(content))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.NewExternalAPIError("extraction-service", 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", domain.NewExternalAPIError("extraction-service", resp.StatusCode, string(body), nil)
	}

	var extracted extractionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 50<<20)).Decode(&extracted); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if isBlank(extracted.Text) {
		return "", ErrNoText
	}
	return extracted.Text, nil
}

// Truncate caps text at max characters. It never splits the text mid-rune.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// AbstractFallback derives a stand-in abstract from the leading raw text.
func AbstractFallback(rawText string) string {
	return Truncate(rawText, AbstractFallbackChars)
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}
