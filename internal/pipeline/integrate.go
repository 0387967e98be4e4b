package pipeline

import (
	"context"

	"github.com/sells-group/litpipe/internal/dedupe"
)

// IntegratePhase normalizes the raw search batches and merges them into a
// deduplicated corpus. Its artifact carries the duplicate and unidentifiable
// counts; together with the corpus size they always add up to the number of
// records ingested.
type IntegratePhase struct{}

func (IntegratePhase) Name() string        { return PhaseIntegrate }
func (IntegratePhase) DependsOn() []string { return []string{PhaseSearch} }
func (IntegratePhase) Flaky() bool         { return false }

// Settings folds the dedupe knobs into the resume fingerprint.
func (IntegratePhase) Settings(env *Env) any { return env.Cfg.Dedupe }

func (IntegratePhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	var search searchArtifact
	if err := env.Checkpoint.LoadArtifact(PhaseSearch, &search); err != nil {
		return nil, err
	}

	raw := make([]dedupe.RawBatch, 0, len(search.Batches))
	for _, b := range search.Batches {
		raw = append(raw, dedupe.RawBatch{Source: b.Source, Records: b.Records})
	}

	integrator := dedupe.New(dedupe.Options{
		FuzzyThreshold: env.Cfg.Dedupe.FuzzyThreshold,
		FuzzyPrefixLen: env.Cfg.Dedupe.FuzzyPrefixLen,
	})
	res := integrator.IntegrateRaw(raw)

	art := corpusArtifact{
		Corpus:              res.Corpus,
		DuplicateCount:      res.DuplicateCount,
		UnidentifiableCount: res.UnidentifiableCount,
		Failures:            search.Failures,
	}
	if _, err := env.Checkpoint.SaveArtifact(PhaseIntegrate, art); err != nil {
		return nil, err
	}

	return map[string]any{
		"corpus_size":    len(res.Corpus),
		"duplicates":     res.DuplicateCount,
		"unidentifiable": res.UnidentifiableCount,
	}, nil
}
