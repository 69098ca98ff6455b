package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/citetrack/citation-service/internal/discovery"
	"github.com/citetrack/citation-service/internal/domain"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests (100 req/5 min).
	// With an API key, this can be increased.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the default number of citing papers fetched per page.
	DefaultPageSize = 50

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "title,abstract,year,url,externalIds,openAccessPdf"

	// SourceName is the registry name for this source.
	SourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	// Authenticated requests have higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int

	// PageSize is the number of citing papers fetched per citations page.
	// Defaults to DefaultPageSize if zero.
	PageSize int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the discovery.CitationSource interface for Semantic Scholar.
type Client struct {
	httpClient *discovery.HTTPClient
	config     Config
}

// Compile-time check that Client implements discovery.CitationSource.
var _ discovery.CitationSource = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *discovery.HTTPClient) *Client {
	// Apply defaults
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}

	// Create HTTP client if not provided
	if httpClient == nil {
		httpClient = discovery.NewHTTPClient(discovery.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// PaperDetails retrieves a paper's metadata by its Semantic Scholar ID, DOI,
// or other supported identifier.
func (c *Client) PaperDetails(ctx context.Context, paperID string) (*discovery.PaperDetails, error) {
	paperURL := fmt.Sprintf("%s/paper/%s?fields=%s", c.config.BaseURL, url.PathEscape(paperID), paperFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, paperURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	// Handle 404 as not found
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("paper", paperID)
	}

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var result PaperResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	details := &discovery.PaperDetails{
		PaperID:  result.PaperID,
		Title:    result.Title,
		Abstract: result.Abstract,
		Year:     result.Year,
		URL:      result.URL,
	}
	if details.PaperID == "" {
		details.PaperID = paperID
	}
	return details, nil
}

// Citations retrieves one page of papers citing the given paper.
func (c *Client) Citations(ctx context.Context, paperID string, offset int) (*discovery.CitationsPage, error) {
	citationsURL, err := c.buildCitationsURL(paperID, offset)
	if err != nil {
		return nil, fmt.Errorf("building citations URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, citationsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("paper", paperID)
	}

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var citationsResp CitationsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&citationsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &discovery.CitationsPage{
		Candidates: c.convertToCandidates(citationsResp.Data),
		HasMore:    citationsResp.Next > 0,
		NextOffset: citationsResp.Next,
	}, nil
}

// Name returns the registry name for this source.
func (c *Client) Name() string {
	return SourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildCitationsURL constructs the citations endpoint URL with query parameters.
func (c *Client) buildCitationsURL(paperID string, offset int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	citationsURL := baseURL.JoinPath("paper", paperID, "citations")

	q := citationsURL.Query()
	q.Set("fields", paperFields)
	q.Set("limit", strconv.Itoa(c.config.PageSize))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	citationsURL.RawQuery = q.Encode()
	return citationsURL.String(), nil
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read the error body (limit to 1MB to prevent resource exhaustion)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(SourceName, resp.StatusCode, "failed to read error response", err)
	}

	// Try to parse as JSON error
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(SourceName, resp.StatusCode, message, nil)
	}

	// Return raw body as error message
	return domain.NewExternalAPIError(SourceName, resp.StatusCode, string(body), nil)
}

// convertToCandidates converts citation entries to domain candidates.
// Entries without a paper ID are skipped; without the ID the ledger cannot
// key the pair.
func (c *Client) convertToCandidates(entries []CitationEntry) []domain.CitingPaperCandidate {
	now := time.Now().UTC()
	candidates := make([]domain.CitingPaperCandidate, 0, len(entries))
	for _, entry := range entries {
		paper := entry.CitingPaper
		if paper.PaperID == "" {
			continue
		}

		candidate := domain.CitingPaperCandidate{
			PaperID:      paper.PaperID,
			Title:        paper.Title,
			Abstract:     paper.Abstract,
			Year:         paper.Year,
			URL:          paper.URL,
			DiscoveredAt: now,
		}
		if paper.ExternalIDs != nil {
			candidate.ArxivID = paper.ExternalIDs.ArXiv
		}
		if paper.OpenAccessPDF != nil {
			candidate.OpenAccessPDF = paper.OpenAccessPDF.URL
		}

		candidates = append(candidates, candidate)
	}
	return candidates
}
