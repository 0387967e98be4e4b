package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/resilience"
)

// PhaseFailure wraps a phase error with its name and error-taxonomy kind.
type PhaseFailure struct {
	Phase string
	Kind  resilience.Kind
	Err   error
}

func (f *PhaseFailure) Error() string {
	return fmt.Sprintf("phase %s failed (%s): %v", f.Phase, f.Kind, f.Err)
}

func (f *PhaseFailure) Unwrap() error { return f.Err }

// runPhase executes one phase under the shared retry budget and returns its
// result. The retry budget only re-runs a phase whose failure classifies as
// transient; fatal and data-quality failures surface immediately.
func runPhase(ctx context.Context, env *Env, phase Phase) (*model.PhaseResult, error) {
	name := phase.Name()
	log := zap.L().With(zap.String("run_id", env.RunID), zap.String("phase", name))
	log.Info("pipeline: phase starting")

	retry := env.Retry
	if !phase.Flaky() {
		retry.MaxAttempts = 1
	}
	retry.OnRetry = resilience.RetryLogger("pipeline", name)

	start := time.Now()
	meta, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (map[string]any, error) {
		return phase.Run(ctx, env)
	})
	duration := time.Since(start).Milliseconds()

	result := &model.PhaseResult{
		Name:     name,
		Duration: duration,
		Metadata: meta,
	}

	if err != nil {
		failure := &PhaseFailure{Phase: name, Kind: resilience.Classify(err), Err: err}
		result.Status = model.PhaseStatusFailed
		result.Error = failure.Error()
		log.Error("pipeline: phase failed",
			zap.Int64("duration_ms", duration),
			zap.String("kind", string(failure.Kind)),
			zap.Error(err),
		)
		return result, failure
	}

	result.Status = model.PhaseStatusSucceeded
	log.Info("pipeline: phase complete", zap.Int64("duration_ms", duration))
	return result, nil
}
