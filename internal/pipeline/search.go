package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litpipe/internal/source"
)

// SearchPhase fans the query out across the configured sources. Each source
// carries its own retry budget; a source that still fails is recorded and
// the phase succeeds as long as at least one source delivered.
type SearchPhase struct{}

func (SearchPhase) Name() string        { return PhaseSearch }
func (SearchPhase) DependsOn() []string { return nil }
func (SearchPhase) Flaky() bool         { return true }

// Settings folds the fan-out parameters into the resume fingerprint.
func (SearchPhase) Settings(env *Env) any {
	return map[string]any{
		"sources":     env.Cfg.Search.Sources,
		"max_results": env.Cfg.Search.MaxResults,
		"year_start":  env.Cfg.Search.YearStart,
		"year_end":    env.Cfg.Search.YearEnd,
	}
}

func (SearchPhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	if env.Query == "" {
		return nil, eris.New("search: no query configured")
	}

	req := source.Request{
		Query:      env.Query,
		MaxResults: env.Cfg.Search.MaxResults,
		YearStart:  env.Cfg.Search.YearStart,
		YearEnd:    env.Cfg.Search.YearEnd,
	}

	batches, failures, err := source.SearchAll(ctx, env.Connectors, req, env.Retry, env.Cfg.Search.Concurrency)
	if err != nil {
		return nil, err
	}

	art := searchArtifact{Query: env.Query, Failures: failures}
	total := 0
	for _, b := range batches {
		art.Batches = append(art.Batches, searchBatch{Source: b.Source, Records: b.Records})
		total += len(b.Records)
	}

	if _, err := env.Checkpoint.SaveArtifact(PhaseSearch, art); err != nil {
		return nil, err
	}

	return map[string]any{
		"sources_ok":     len(batches),
		"sources_failed": len(failures),
		"records":        total,
	}, nil
}
