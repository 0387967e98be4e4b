// Package sciencedirect is a minimal client for the Elsevier ScienceDirect
// search API.
package sciencedirect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/litpipe/internal/resilience"
)

// Client searches ScienceDirect.
type Client interface {
	Name() string
	Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error)
}

type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithRPS sets the request rate limit.
func WithRPS(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) { c.http = h }
}

// NewClient creates a ScienceDirect client. The API key is required by
// Elsevier; a missing key surfaces as a fatal 401 on first use.
func NewClient(key string, opts ...Option) Client {
	c := &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.elsevier.com",
		apiKey:  key,
		limiter: rate.NewLimiter(2, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Name() string { return "sciencedirect" }

func (c *client) Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sciencedirect: rate limiter wait")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("count", strconv.Itoa(maxResults))
	if yearStart > 0 && yearEnd > 0 {
		params.Set("date", fmt.Sprintf("%d-%d", yearStart, yearEnd))
	} else if yearStart > 0 {
		params.Set("date", strconv.Itoa(yearStart))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/content/search/sciencedirect?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "sciencedirect: build request")
	}
	req.Header.Set("X-ELS-APIKey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sciencedirect: search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := eris.Errorf("sciencedirect: search returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransient(err, resp.StatusCode)
		}
		return nil, resilience.NewFatal(err)
	}

	var out struct {
		SearchResults struct {
			Entry []map[string]any `json:"entry"`
		} `json:"search-results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "sciencedirect: decode response")
	}
	return out.SearchResults.Entry, nil
}
