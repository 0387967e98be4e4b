package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/config"
	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/resilience"
)

// flakyStub fails with a transient error until it has been attempted
// `failures` times.
type flakyStub struct {
	name     string
	flaky    bool
	failures int
	calls    int
}

func (p *flakyStub) Name() string        { return p.name }
func (p *flakyStub) DependsOn() []string { return nil }
func (p *flakyStub) Flaky() bool         { return p.flaky }

func (p *flakyStub) Run(ctx context.Context, env *Env) (map[string]any, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, resilience.NewTransient(errors.New("upstream 503"), 503)
	}
	return map[string]any{"calls": p.calls}, nil
}

func runnerEnv() *Env {
	return &Env{
		Cfg: &config.Config{},
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
		},
	}
}

func TestRunPhase_FlakyPhaseRetriesTransient(t *testing.T) {
	phase := &flakyStub{name: "search", flaky: true, failures: 2}

	result, err := runPhase(context.Background(), runnerEnv(), phase)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusSucceeded, result.Status)
	assert.Equal(t, 3, phase.calls)
}

func TestRunPhase_NonFlakyPhaseDoesNotRetry(t *testing.T) {
	phase := &flakyStub{name: "integrate", flaky: false, failures: 2}

	result, err := runPhase(context.Background(), runnerEnv(), phase)
	require.Error(t, err)
	assert.Equal(t, model.PhaseStatusFailed, result.Status)
	assert.Equal(t, 1, phase.calls)
}

func TestRunPhase_WrapsFailureWithKind(t *testing.T) {
	phase := &flakyStub{name: "search", flaky: true, failures: 99}

	result, err := runPhase(context.Background(), runnerEnv(), phase)
	require.Error(t, err)

	var failure *PhaseFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "search", failure.Phase)
	assert.Equal(t, resilience.KindTransient, failure.Kind)
	assert.Contains(t, result.Error, "phase search failed (transient)")
	assert.Equal(t, 3, phase.calls)
}
