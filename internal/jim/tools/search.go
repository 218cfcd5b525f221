package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/Jim/common/redact"
	"github.com/bdobrica/Jim/common/version"
)

const (
	// SearchTimeout bounds a single search request.
	SearchTimeout = 10 * time.Second

	// MaxSearchResults is the largest page the Custom Search API returns.
	MaxSearchResults = 10

	defaultSearchEndpoint = "https://www.googleapis.com/customsearch/v1"
	maxSearchBody         = 1 << 20
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]SearchResult, error)
}

type disabledSearch struct{}

func (disabledSearch) Search(context.Context, string, int) ([]SearchResult, error) {
	return nil, ErrDisabled
}

// DisabledSearch is a Searcher that always returns ErrDisabled.
func DisabledSearch() Searcher { return disabledSearch{} }

// GoogleSearchConfig configures the Google Custom Search JSON API client.
type GoogleSearchConfig struct {
	APIKey string
	// EngineID is the programmable search engine id (the "cx" parameter).
	EngineID string
	// Endpoint overrides the API URL. Used by tests.
	Endpoint string
}

// GoogleSearch implements Searcher over the Custom Search JSON API.
type GoogleSearch struct {
	cfg      GoogleSearchConfig
	client   *http.Client
	redactor *redact.Redactor
}

// NewGoogleSearch returns a Searcher, or DisabledSearch when either the API
// key or the engine id is missing.
func NewGoogleSearch(cfg GoogleSearchConfig) Searcher {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.EngineID) == "" {
		return DisabledSearch()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSearchEndpoint
	}
	return &GoogleSearch{
		cfg:      cfg,
		client:   &http.Client{Timeout: SearchTimeout},
		redactor: redact.New(cfg.APIKey),
	}
}

// --- minimal Custom Search wire types ---

type cseResponse struct {
	Items []SearchResult `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Search returns up to n results (clamped to 1..10) for query.
func (g *GoogleSearch) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("tools: search: query cannot be empty")
	}
	n = max(1, min(n, MaxSearchResults))

	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("key", g.cfg.APIKey)
	params.Set("cx", g.cfg.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(n))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tools: search: create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := g.client.Do(req)
	if err != nil {
		// url.Error embeds the full request URL, key included.
		return nil, fmt.Errorf("tools: search: http request: %s", g.redactor.Error(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return nil, fmt.Errorf("tools: search: read response body: %w", err)
	}

	var decoded cseResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("tools: search: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("tools: search: API error (%d %s): %s",
			decoded.Error.Code, decoded.Error.Status, g.redactor.String(decoded.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tools: search: unexpected status %d", resp.StatusCode)
	}

	results := decoded.Items
	if len(results) > n {
		results = results[:n]
	}
	for i := range results {
		results[i].Title = strings.TrimSpace(results[i].Title)
		results[i].Snippet = strings.Join(strings.Fields(results[i].Snippet), " ")
	}
	return results, nil
}
