package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litpipe/internal/scorer"
)

// DomainScoringPhase annotates every corpus record with one relevance score
// per configured domain vocabulary. Scoring is deterministic, so re-running
// this phase on the same corpus writes an identical artifact.
type DomainScoringPhase struct{}

func (DomainScoringPhase) Name() string        { return PhaseDomainScoring }
func (DomainScoringPhase) DependsOn() []string { return []string{PhaseIntegrate} }
func (DomainScoringPhase) Flaky() bool         { return false }

// Settings folds the loaded domain vocabularies into the resume fingerprint,
// so an edited term file re-runs the phase.
func (DomainScoringPhase) Settings(env *Env) any { return env.Domains }

func (DomainScoringPhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	if len(env.Domains) == 0 {
		return nil, eris.New("domain_scoring: no domain vocabularies configured")
	}

	art, err := env.loadCorpus(PhaseIntegrate)
	if err != nil {
		return nil, err
	}

	scorer.New(env.Domains).ScoreAll(art.Corpus)

	if _, err := env.Checkpoint.SaveArtifact(PhaseDomainScoring, art); err != nil {
		return nil, err
	}

	return map[string]any{
		"records": len(art.Corpus),
		"domains": len(env.Domains),
	}, nil
}
