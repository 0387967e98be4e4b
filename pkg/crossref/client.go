// Package crossref is a minimal client for the Crossref works API.
package crossref

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

// Client searches Crossref works.
type Client interface {
	Name() string
	Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error)
}

type client struct {
	http    *http.Client
	baseURL string
	mailto  string
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

// NewClient creates a Crossref client. The mailto address joins the polite
// pool and is recommended by Crossref for sustained use.
func NewClient(mailto string, opts ...Option) Client {
	c := &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.crossref.org",
		mailto:  mailto,
		limiter: rate.NewLimiter(2, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Name() string { return "crossref" }

func (c *client) Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "crossref: rate limiter wait")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", strconv.Itoa(maxResults))
	if filter := dateFilter(yearStart, yearEnd); filter != "" {
		params.Set("filter", filter)
	}
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := eris.Errorf("crossref: search returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransient(err, resp.StatusCode)
		}
		return nil, resilience.NewFatal(err)
	}

	var out struct {
		Message struct {
			Items []map[string]any `json:"items"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "crossref: decode response")
	}
	return out.Message.Items, nil
}

func dateFilter(yearStart, yearEnd int) string {
	switch {
	case yearStart > 0 && yearEnd > 0:
		return fmt.Sprintf("from-pub-date:%d-01-01,until-pub-date:%d-12-31", yearStart, yearEnd)
	case yearStart > 0:
		return fmt.Sprintf("from-pub-date:%d-01-01", yearStart)
	case yearEnd > 0:
		return fmt.Sprintf("until-pub-date:%d-12-31", yearEnd)
	default:
		return ""
	}
}
