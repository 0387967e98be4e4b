// Package semanticscholar is a minimal client for the Semantic Scholar
// graph API paper search endpoint.
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

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/litpipe/internal/resilience"
)

const searchFields = "title,abstract,year,authors,venue,externalIds,url"

// Client searches Semantic Scholar papers.
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

// WithRPS sets the request rate limit. Unauthenticated callers share a tight
// pool; keep this low without an API key.
func WithRPS(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) { c.http = h }
}

// NewClient creates a Semantic Scholar client; key may be empty.
func NewClient(key string, opts ...Option) Client {
	c := &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.semanticscholar.org",
		apiKey:  key,
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Name() string { return "semantic_scholar" }

func (c *client) Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "semanticscholar: rate limiter wait")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(maxResults))
	params.Set("fields", searchFields)
	if yr := yearRange(yearStart, yearEnd); yr != "" {
		params.Set("year", yr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/graph/v1/paper/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: build request")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "semanticscholar: search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := eris.Errorf("semanticscholar: search returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransient(err, resp.StatusCode)
		}
		return nil, resilience.NewFatal(err)
	}

	var out struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "semanticscholar: decode response")
	}
	return out.Data, nil
}

func yearRange(yearStart, yearEnd int) string {
	switch {
	case yearStart > 0 && yearEnd > 0:
		return fmt.Sprintf("%d-%d", yearStart, yearEnd)
	case yearStart > 0:
		return fmt.Sprintf("%d-", yearStart)
	case yearEnd > 0:
		return fmt.Sprintf("-%d", yearEnd)
	default:
		return ""
	}
}
