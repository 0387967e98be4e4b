// Package source assembles the search connectors and runs the concurrent
// fan-out across them. A source that fails after its retry budget does not
// fail the whole search; the run only fails when every source comes back
// empty-handed with an error.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/litpipe/internal/config"
	"github.com/sells-group/litpipe/internal/dedupe"
	"github.com/sells-group/litpipe/internal/resilience"
	"github.com/sells-group/litpipe/pkg/crossref"
	"github.com/sells-group/litpipe/pkg/scholar"
	"github.com/sells-group/litpipe/pkg/sciencedirect"
	"github.com/sells-group/litpipe/pkg/semanticscholar"
)

// Connector is a single literature source. The pkg clients all satisfy it.
type Connector interface {
	Name() string
	Search(ctx context.Context, query string, maxResults, yearStart, yearEnd int) ([]map[string]any, error)
}

// Request carries the search parameters shared by every connector.
type Request struct {
	Query      string
	MaxResults int
	YearStart  int
	YearEnd    int
}

// Failure records a source that could not deliver results.
type Failure struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// Build instantiates connectors for the configured source names.
func Build(cfg *config.Config) ([]Connector, error) {
	var connectors []Connector
	for _, name := range cfg.Search.Sources {
		switch name {
		case "crossref":
			connectors = append(connectors, crossref.NewClient(cfg.Crossref.Mailto,
				crossref.WithBaseURL(cfg.Crossref.BaseURL),
				crossref.WithRPS(cfg.Crossref.RPS),
			))
		case "semantic_scholar":
			connectors = append(connectors, semanticscholar.NewClient(cfg.SemanticScholar.Key,
				semanticscholar.WithBaseURL(cfg.SemanticScholar.BaseURL),
				semanticscholar.WithRPS(cfg.SemanticScholar.RPS),
			))
		case "sciencedirect":
			connectors = append(connectors, sciencedirect.NewClient(cfg.ScienceDirect.Key,
				sciencedirect.WithBaseURL(cfg.ScienceDirect.BaseURL),
				sciencedirect.WithRPS(cfg.ScienceDirect.RPS),
			))
		case "scholar":
			connectors = append(connectors, scholar.NewClient(cfg.Scholar.BaseURL,
				scholar.WithRPS(cfg.Scholar.RPS),
			))
		default:
			return nil, eris.Errorf("source: unknown source %q", name)
		}
	}
	if len(connectors) == 0 {
		return nil, eris.New("source: no sources configured")
	}
	return connectors, nil
}

// SearchAll fans the query out across all connectors with bounded
// concurrency. Each connector gets its own retry budget for transient
// failures. Batches preserve the connector order from the connectors slice
// so downstream integration is deterministic.
func SearchAll(ctx context.Context, connectors []Connector, req Request, retry resilience.RetryConfig, concurrency int) ([]dedupe.RawBatch, []Failure, error) {
	if concurrency <= 0 {
		concurrency = len(connectors)
	}

	batches := make([]*dedupe.RawBatch, len(connectors))

	var mu sync.Mutex
	var failures []Failure

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, conn := range connectors {
		g.Go(func() error {
			// Each goroutine works on its own copy so the per-source retry
			// logger never leaks across connectors.
			r := retry
			r.OnRetry = resilience.RetryLogger(conn.Name(), "search")

			start := time.Now()
			records, err := resilience.DoVal(gCtx, r, func(ctx context.Context) ([]map[string]any, error) {
				return conn.Search(ctx, req.Query, req.MaxResults, req.YearStart, req.YearEnd)
			})
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("source: search failed",
					zap.String("source", conn.Name()),
					zap.String("kind", string(resilience.Classify(err))),
					zap.Error(err),
				)
				mu.Lock()
				failures = append(failures, Failure{
					Source: conn.Name(),
					Kind:   string(resilience.Classify(err)),
					Error:  err.Error(),
				})
				mu.Unlock()
				return nil
			}

			zap.L().Info("source: search complete",
				zap.String("source", conn.Name()),
				zap.Int("records", len(records)),
				zap.Duration("duration", time.Since(start)),
			)
			batches[i] = &dedupe.RawBatch{Source: conn.Name(), Records: records}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, failures, eris.Wrap(err, "source: search cancelled")
	}

	var out []dedupe.RawBatch
	for _, b := range batches {
		if b != nil {
			out = append(out, *b)
		}
	}

	if len(out) == 0 {
		return nil, failures, eris.Errorf("source: all %d sources failed", len(connectors))
	}
	return out, failures, nil
}
