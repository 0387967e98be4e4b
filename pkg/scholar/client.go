// Package scholar is a client for a Scholar scrape proxy: a service that
// performs the actual Google Scholar scraping (with its own proxy rotation)
// and returns structured JSON. Scholar has no official API, so the proxy is
// treated as a black box that either answers or fails classifiably.
package scholar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/litpipe/internal/resilience"
)

// Client searches through the Scholar proxy.
type Client interface {
	Name() string
	Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error)
}

type client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

// Option configures the client.
type Option func(*client)

// WithRPS sets the request rate limit. Scraping tolerates very little;
// default is one request every two seconds.
func WithRPS(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) { c.http = h }
}

// NewClient creates a Scholar proxy client for the given base URL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &client{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: baseURL,
		limiter: rate.NewLimiter(0.5, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Name() string { return "scholar" }

func (c *client) Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error) {
	if c.baseURL == "" {
		return nil, resilience.NewFatal(eris.New("scholar: proxy base URL not configured"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scholar: rate limiter wait")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(maxResults))
	if yearStart > 0 {
		params.Set("year_start", strconv.Itoa(yearStart))
	}
	if yearEnd > 0 {
		params.Set("year_end", strconv.Itoa(yearEnd))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scholar: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scholar: search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := eris.Errorf("scholar: search returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransient(err, resp.StatusCode)
		}
		return nil, resilience.NewFatal(err)
	}

	var out struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "scholar: decode response")
	}
	return out.Results, nil
}
