package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/checkpoint"
	"github.com/sells-group/litpipe/internal/config"
	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/resilience"
	"github.com/sells-group/litpipe/internal/store"
)

// stubPhase writes a trivial artifact on success so dependent phases are not
// blocked by a missing artifact.
type stubPhase struct {
	name  string
	deps  []string
	err   error
	calls *int
}

func (p stubPhase) Name() string        { return p.name }
func (p stubPhase) DependsOn() []string { return p.deps }
func (p stubPhase) Flaky() bool         { return false }

func (p stubPhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	if p.calls != nil {
		*p.calls++
	}
	if p.err != nil {
		return nil, p.err
	}
	if _, err := env.Checkpoint.SaveArtifact(p.name, map[string]any{"ok": true}); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

type testHarness struct {
	workDir string
	history store.Store
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return &testHarness{workDir: t.TempDir(), history: st}
}

func (h *testHarness) executor(t *testing.T, phases ...Phase) *Executor {
	t.Helper()
	ckpt, err := checkpoint.New(h.workDir)
	require.NoError(t, err)
	env := &Env{
		Cfg:        &config.Config{},
		Checkpoint: ckpt,
		Retry:      resilience.RetryConfig{MaxAttempts: 1},
	}
	return &Executor{env: env, history: h.history, phases: phases}
}

func phaseByName(res *model.RunResult, name string) *model.PhaseResult {
	for i := range res.Phases {
		if res.Phases[i].Name == name {
			return &res.Phases[i]
		}
	}
	return nil
}

func TestTopoOrder_StandardPhases(t *testing.T) {
	h := newHarness(t)
	ckpt, err := checkpoint.New(h.workDir)
	require.NoError(t, err)

	e := New(&Env{Cfg: &config.Config{}, Checkpoint: ckpt}, h.history)
	order, err := e.topoOrder()
	require.NoError(t, err)

	names := make([]string, 0, len(order))
	for _, p := range order {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{
		PhaseSearch, PhaseIntegrate, PhaseDomainScoring,
		PhaseClassify, PhaseTableExport, PhaseReport,
	}, names)
}

func TestTopoOrder_CycleDetected(t *testing.T) {
	h := newHarness(t)
	e := h.executor(t,
		stubPhase{name: "a", deps: []string{"b"}},
		stubPhase{name: "b", deps: []string{"a"}},
	)
	_, err := e.topoOrder()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestExecute_AllPhasesSucceed(t *testing.T) {
	h := newHarness(t)
	e := h.executor(t,
		stubPhase{name: "a"},
		stubPhase{name: "b", deps: []string{"a"}},
	)

	res, err := e.Execute(context.Background(), Options{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, res.Status)
	require.Len(t, res.Phases, 2)
	assert.Equal(t, model.PhaseStatusSucceeded, res.Phases[0].Status)
	assert.Equal(t, model.PhaseStatusSucceeded, res.Phases[1].Status)

	// The run result lands in the history store.
	runs, err := h.history.ListRuns(context.Background(), model.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
}

func TestExecute_FailureBlocksDependents(t *testing.T) {
	h := newHarness(t)
	e := h.executor(t,
		stubPhase{name: "a", err: errors.New("boom")},
		stubPhase{name: "b", deps: []string{"a"}},
		stubPhase{name: "c"},
	)

	res, err := e.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, res.Status)
	assert.Contains(t, res.Error, "phase a failed")

	assert.Equal(t, model.PhaseStatusFailed, phaseByName(res, "a").Status)
	blocked := phaseByName(res, "b")
	assert.Equal(t, model.PhaseStatusSkipped, blocked.Status)
	assert.Equal(t, "dependency unavailable: a", blocked.Metadata["reason"])
	assert.Equal(t, model.PhaseStatusSucceeded, phaseByName(res, "c").Status)
}

func TestExecute_AllFailedIsFailedStatus(t *testing.T) {
	h := newHarness(t)
	e := h.executor(t, stubPhase{name: "a", err: errors.New("boom")})

	res, err := e.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, res.Status)
}

func TestExecute_SkipByRequest(t *testing.T) {
	h := newHarness(t)
	e := h.executor(t, stubPhase{name: "a"}, stubPhase{name: "b"})

	res, err := e.Execute(context.Background(), Options{Skip: []string{"b"}})
	require.NoError(t, err)
	skipped := phaseByName(res, "b")
	assert.Equal(t, model.PhaseStatusSkipped, skipped.Status)
	assert.Equal(t, "skipped by request", skipped.Metadata["reason"])
}

func TestExecute_OnlyIncludesDependencyClosure(t *testing.T) {
	h := newHarness(t)
	var aCalls, bCalls, cCalls int
	e := h.executor(t,
		stubPhase{name: "a", calls: &aCalls},
		stubPhase{name: "b", deps: []string{"a"}, calls: &bCalls},
		stubPhase{name: "c", calls: &cCalls},
	)

	res, err := e.Execute(context.Background(), Options{Only: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, res.Status)
	assert.Equal(t, 1, aCalls)
	assert.Equal(t, 1, bCalls)
	assert.Equal(t, 0, cCalls)
}

func TestExpandAliases_AnalysisGroup(t *testing.T) {
	names := expandAliases([]string{"analysis", PhaseReport})
	assert.Equal(t, []string{
		PhaseIntegrate, PhaseDomainScoring, PhaseClassify, PhaseReport,
	}, names)

	// Non-alias names pass through untouched.
	assert.Equal(t, []string{"a"}, expandAliases([]string{"a"}))
	assert.Nil(t, expandAliases(nil))
}

func TestExecute_UnknownPhaseNameErrors(t *testing.T) {
	h := newHarness(t)
	e := h.executor(t, stubPhase{name: "a"})

	_, err := e.Execute(context.Background(), Options{Only: []string{"nope"}})
	require.Error(t, err)

	_, err = e.Execute(context.Background(), Options{Skip: []string{"nope"}})
	require.Error(t, err)
}

func TestExecute_ResumeReusesMatchingPhases(t *testing.T) {
	h := newHarness(t)

	var firstCalls int
	e := h.executor(t, stubPhase{name: "a", calls: &firstCalls})
	res, err := e.Execute(context.Background(), Options{Query: "q"})
	require.NoError(t, err)
	require.Equal(t, model.RunStatusComplete, res.Status)
	require.Equal(t, 1, firstCalls)
	runID := e.env.RunID

	var secondCalls int
	e2 := h.executor(t, stubPhase{name: "a", calls: &secondCalls})
	res2, err := e2.Execute(context.Background(), Options{Query: "q", Resume: true})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, res2.Status)
	assert.Equal(t, 0, secondCalls)
	assert.Equal(t, runID, e2.env.RunID)
	reused := phaseByName(res2, "a")
	require.NotNil(t, reused)
	assert.Equal(t, true, reused.Metadata["reused"])
}

// settingsStub is a stubPhase whose settings join its resume fingerprint.
type settingsStub struct {
	stubPhase
	settings any
}

func (p settingsStub) Settings(*Env) any { return p.settings }

func TestExecute_ResumeRerunsOnChangedSettings(t *testing.T) {
	h := newHarness(t)

	e := h.executor(t, settingsStub{stubPhase: stubPhase{name: "a"}, settings: 0.90})
	_, err := e.Execute(context.Background(), Options{Query: "q"})
	require.NoError(t, err)

	var calls int
	e2 := h.executor(t, settingsStub{stubPhase: stubPhase{name: "a", calls: &calls}, settings: 0.85})
	_, err = e2.Execute(context.Background(), Options{Query: "q", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Unchanged settings reuse the checkpointed artifact.
	var reusedCalls int
	e3 := h.executor(t, settingsStub{stubPhase: stubPhase{name: "a", calls: &reusedCalls}, settings: 0.85})
	_, err = e3.Execute(context.Background(), Options{Query: "q", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 0, reusedCalls)
}

func TestFingerprint_ChangesWithPhaseSettings(t *testing.T) {
	h := newHarness(t)
	e := h.executor(t)

	e.env.Cfg.Dedupe.FuzzyThreshold = 0.90
	fp1, err := e.fingerprint(IntegratePhase{}, "q")
	require.NoError(t, err)

	e.env.Cfg.Dedupe.FuzzyThreshold = 0.85
	fp2, err := e.fingerprint(IntegratePhase{}, "q")
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}

func TestBuiltinPhasesExposeSettings(t *testing.T) {
	for _, p := range []Phase{
		SearchPhase{}, IntegratePhase{}, DomainScoringPhase{},
		ClassifyPhase{}, TableExportPhase{}, ReportPhase{},
	} {
		_, ok := p.(settingsProvider)
		assert.True(t, ok, p.Name())
	}
}

func TestExecute_ResumeRerunsOnChangedQuery(t *testing.T) {
	h := newHarness(t)

	e := h.executor(t, stubPhase{name: "a"})
	_, err := e.Execute(context.Background(), Options{Query: "q1"})
	require.NoError(t, err)

	var calls int
	e2 := h.executor(t, stubPhase{name: "a", calls: &calls})
	_, err = e2.Execute(context.Background(), Options{Query: "q2", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_CancellationBetweenPhases(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	cancelling := stubPhase{name: "a"}
	e := h.executor(t,
		cancelPhase{inner: cancelling, cancel: cancel},
		stubPhase{name: "b", deps: []string{"a"}},
	)

	res, err := e.Execute(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, res.Status)
	assert.True(t, res.Cancelled)
	// The dependent phase never ran.
	assert.Nil(t, phaseByName(res, "b"))

	// The checkpoint remembers the cancellation for a later resume.
	ckpt, err := checkpoint.New(h.workDir)
	require.NoError(t, err)
	st, err := ckpt.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Cancelled)
	assert.Equal(t, model.PhaseStatusSucceeded, st.Phases["a"].Status)
}

// cancelPhase cancels the run context after its inner phase completes.
type cancelPhase struct {
	inner  stubPhase
	cancel context.CancelFunc
}

func (p cancelPhase) Name() string        { return p.inner.name }
func (p cancelPhase) DependsOn() []string { return p.inner.deps }
func (p cancelPhase) Flaky() bool         { return false }

func (p cancelPhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	meta, err := p.inner.Run(ctx, env)
	p.cancel()
	return meta, err
}
