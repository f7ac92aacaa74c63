// Package tavily implements [medic.Searcher] for the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/medic"
)

const (
	defaultBaseURL = "https://api.tavily.com"
	searchPath     = "/search"
)

// Interface compliance check.
var _ medic.Searcher = (*Client)(nil)

// Client implements [medic.Searcher].
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new Tavily [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type apiRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	Topic       string `json:"topic,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type apiResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type apiResponse struct {
	Query   string      `json:"query"`
	Results []apiResult `json:"results"`
}

type apiErrorResponse struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
}

// Search runs one query and returns results in the order Tavily ranks them.
func (c *Client) Search(ctx context.Context, q medic.SearchQuery) ([]medic.SearchResult, error) {
	body, err := json.Marshal(apiRequest{
		APIKey:      c.apiKey,
		Query:       q.Query,
		SearchDepth: q.Depth,
		Topic:       q.Topic,
		MaxResults:  q.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: %w: %w", medic.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp)
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w: %w", medic.ErrUpstream, err)
	}
	results := make([]medic.SearchResult, len(out.Results))
	for i, r := range out.Results {
		results[i] = medic.SearchResult(r)
	}
	return results, nil
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tavily: HTTP %d (failed to read body: %v): %w", resp.StatusCode, err, medic.ErrUpstream)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Detail.Error == "" {
		return fmt.Errorf("tavily: HTTP %d: %s: %w", resp.StatusCode, bytes.TrimSpace(body), medic.ErrUpstream)
	}
	return fmt.Errorf("tavily: HTTP %d: %s: %w", resp.StatusCode, apiErr.Detail.Error, medic.ErrUpstream)
}
