package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citetrack/citation-service/internal/discovery"
	"github.com/citetrack/citation-service/internal/domain"
)

// Compile-time check that Client implements discovery.CitationSource.
var _ discovery.CitationSource = (*Client)(nil)

// newTestClient creates a client pointed at a test server with fast retries.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	httpClient := discovery.NewHTTPClient(discovery.HTTPClientConfig{
		RateLimit:  1000,
		BurstSize:  1000,
		RetryDelay: 10 * time.Millisecond,
	})
	return NewClient(Config{BaseURL: baseURL, Enabled: true}, httpClient)
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with default values", func(t *testing.T) {
		client := NewClient(Config{Enabled: true}, nil)

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, DefaultBurstSize, client.config.BurstSize)
		assert.Equal(t, DefaultPageSize, client.config.PageSize)
		assert.True(t, client.config.Enabled)
	})

	t.Run("creates client with custom config", func(t *testing.T) {
		cfg := Config{
			BaseURL:   "https://custom.api.com/v1",
			APIKey:    "test-api-key",
			Timeout:   60 * time.Second,
			RateLimit: 50.0,
			BurstSize: 20,
			PageSize:  100,
			Enabled:   true,
		}
		client := NewClient(cfg, nil)

		require.NotNil(t, client)
		assert.Equal(t, cfg.BaseURL, client.config.BaseURL)
		assert.Equal(t, cfg.Timeout, client.config.Timeout)
		assert.Equal(t, cfg.RateLimit, client.config.RateLimit)
		assert.Equal(t, cfg.BurstSize, client.config.BurstSize)
		assert.Equal(t, cfg.PageSize, client.config.PageSize)
	})

	t.Run("uses provided HTTP client", func(t *testing.T) {
		httpClient := discovery.NewHTTPClient(discovery.HTTPClientConfig{
			RateLimit: 100,
			BurstSize: 50,
		})
		client := NewClient(Config{Enabled: true}, httpClient)

		require.NotNil(t, client)
		assert.Equal(t, httpClient, client.httpClient)
	})

	t.Run("implements CitationSource interface", func(t *testing.T) {
		client := NewClient(Config{Enabled: true}, nil)

		assert.Equal(t, "Semantic Scholar", client.Name())
		assert.True(t, client.IsEnabled())
	})

	t.Run("disabled client returns false for IsEnabled", func(t *testing.T) {
		client := NewClient(Config{Enabled: false}, nil)
		assert.False(t, client.IsEnabled())
	})
}

func TestClient_PaperDetails(t *testing.T) {
	t.Run("successful fetch returns details", func(t *testing.T) {
		var gotPath, gotFields string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotFields = r.URL.Query().Get("fields")

			result := PaperResult{
				PaperID:  "tracked-123",
				Title:    "Neural Citation Matching",
				Abstract: "We study automatic matching of citations to research tasks.",
				Year:     2022,
				URL:      "https://www.semanticscholar.org/paper/tracked-123",
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(result)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		details, err := client.PaperDetails(context.Background(), "tracked-123")

		require.NoError(t, err)
		require.NotNil(t, details)
		assert.Equal(t, "/paper/tracked-123", gotPath)
		assert.Equal(t, paperFields, gotFields)
		assert.Equal(t, "tracked-123", details.PaperID)
		assert.Equal(t, "Neural Citation Matching", details.Title)
		assert.Contains(t, details.Abstract, "automatic matching")
		assert.Equal(t, 2022, details.Year)
	})

	t.Run("missing paper returns not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		details, err := client.PaperDetails(context.Background(), "missing")

		assert.Nil(t, details)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("API error carries status and message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "forbidden: invalid api key"})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.PaperDetails(context.Background(), "tracked-123")

		require.Error(t, err)
		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "invalid api key")
		assert.False(t, apiErr.IsTransient())
	})
}

func TestClient_Citations(t *testing.T) {
	t.Run("successful fetch returns candidates", func(t *testing.T) {
		var gotPath, gotLimit, gotOffset string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotLimit = r.URL.Query().Get("limit")
			gotOffset = r.URL.Query().Get("offset")

			resp := CitationsResponse{
				Offset: 0,
				Next:   50,
				Data: []CitationEntry{
					{
						CitingPaper: PaperResult{
							PaperID:  "citing-1",
							Title:    "Improved Citation Matching",
							Abstract: "We extend citation matching.",
							Year:     2024,
							URL:      "https://www.semanticscholar.org/paper/citing-1",
							ExternalIDs: &ExternalIDs{
								ArXiv: "2401.00001",
								DOI:   "10.1000/xyz",
							},
							OpenAccessPDF: &OpenAccessPDF{
								URL:    "https://example.com/citing-1.pdf",
								Status: "GREEN",
							},
						},
					},
					{
						CitingPaper: PaperResult{
							PaperID: "citing-2",
							Title:   "A Survey of Matching",
							Year:    2023,
						},
					},
					{
						// Entries without a paper ID are dropped.
						CitingPaper: PaperResult{Title: "Anonymous preprint"},
					},
				},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		page, err := client.Citations(context.Background(), "tracked-123", 0)

		require.NoError(t, err)
		require.NotNil(t, page)
		assert.Equal(t, "/paper/tracked-123/citations", gotPath)
		assert.Equal(t, "50", gotLimit)
		assert.Empty(t, gotOffset)
		assert.True(t, page.HasMore)
		assert.Equal(t, 50, page.NextOffset)

		require.Len(t, page.Candidates, 2)
		first := page.Candidates[0]
		assert.Equal(t, "citing-1", first.PaperID)
		assert.Equal(t, "Improved Citation Matching", first.Title)
		assert.Equal(t, "2401.00001", first.ArxivID)
		assert.Equal(t, "https://example.com/citing-1.pdf", first.OpenAccessPDF)
		assert.True(t, first.HasCleanAbstract())
		assert.False(t, first.DiscoveredAt.IsZero())

		second := page.Candidates[1]
		assert.Equal(t, "citing-2", second.PaperID)
		assert.False(t, second.HasCleanAbstract())
	})

	t.Run("offset is passed through", func(t *testing.T) {
		var gotOffset string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotOffset = r.URL.Query().Get("offset")
			json.NewEncoder(w).Encode(CitationsResponse{})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		page, err := client.Citations(context.Background(), "tracked-123", 100)

		require.NoError(t, err)
		assert.Equal(t, "100", gotOffset)
		assert.Empty(t, page.Candidates)
		assert.False(t, page.HasMore)
	})

	t.Run("missing paper returns not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)

		_, err := client.Citations(context.Background(), "missing", 0)

		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("rate limit retries then surfaces error", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		httpClient := discovery.NewHTTPClient(discovery.HTTPClientConfig{
			RateLimit:  1000,
			BurstSize:  1000,
			MaxRetries: 2,
			RetryDelay: 5 * time.Millisecond,
		})
		client := NewClient(Config{BaseURL: server.URL, Enabled: true}, httpClient)

		_, err := client.Citations(context.Background(), "tracked-123", 0)

		require.Error(t, err)
		assert.Equal(t, 3, requests)
	})
}
