package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/checkpoint"
	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/store"
)

// Executor runs a set of phases in dependency order, persisting progress to
// the checkpoint and recording the run in the history store. Execute never
// returns an error for phase failures; those land in the RunResult. Only
// setup problems (bad phase selection, unreadable checkpoint) error out.
type Executor struct {
	env     *Env
	history store.Store
	phases  []Phase
}

// New creates an Executor with the standard phase set.
func New(env *Env, history store.Store) *Executor {
	return &Executor{
		env:     env,
		history: history,
		phases: []Phase{
			SearchPhase{},
			IntegratePhase{},
			DomainScoringPhase{},
			ClassifyPhase{},
			TableExportPhase{},
			ReportPhase{},
		},
	}
}

// Options selects which phases run and whether to resume a checkpoint.
type Options struct {
	// Only restricts the run to the named phases plus their transitive
	// dependencies. Empty means all phases.
	Only []string
	// Skip marks the named phases skipped. Phases depending on a skipped
	// phase still run when its artifact survives from an earlier run.
	Skip []string
	// Resume reuses checkpointed phase outputs whose input fingerprints
	// still match instead of re-running them.
	Resume bool
	Label  string
	Query  string
}

// Execute runs the selected phases. Cancellation is honored between phases
// and inside them; a cancelled run keeps its checkpoint for later resume.
func (e *Executor) Execute(ctx context.Context, opts Options) (*model.RunResult, error) {
	order, err := e.topoOrder()
	if err != nil {
		return nil, err
	}
	selected, err := e.selectPhases(order, expandAliases(opts.Only))
	if err != nil {
		return nil, err
	}
	skip, err := e.nameSet(expandAliases(opts.Skip))
	if err != nil {
		return nil, err
	}

	st, err := e.prepareState(ctx, opts)
	if err != nil {
		return nil, err
	}
	ckpt := e.env.Checkpoint

	st.Status = model.RunStatusRunning
	if err := ckpt.Save(st); err != nil {
		return nil, err
	}
	e.setStatus(ctx, model.RunStatusRunning)

	var (
		succeeded int
		failures  []string
		blocked   int
		cancelled bool
	)
	failedPhase := map[string]bool{}

	for _, phase := range order {
		name := phase.Name()
		if !selected[name] {
			continue
		}

		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if skip[name] {
			e.recordResult(ctx, st, &model.PhaseResult{
				Name:     name,
				Status:   model.PhaseStatusSkipped,
				Metadata: map[string]any{"reason": "skipped by request"},
			})
			continue
		}

		if dep, ok := e.blockedBy(phase, failedPhase); ok {
			blocked++
			e.recordResult(ctx, st, &model.PhaseResult{
				Name:     name,
				Status:   model.PhaseStatusSkipped,
				Metadata: map[string]any{"reason": "dependency unavailable: " + dep},
			})
			continue
		}

		fp, err := e.fingerprint(phase, opts.Query)
		if err != nil {
			return nil, err
		}

		ps := st.Phase(name)
		if opts.Resume && ps.Status == model.PhaseStatusSucceeded &&
			ps.Fingerprint == fp && ckpt.HasArtifact(name) {
			succeeded++
			zap.L().Info("pipeline: reusing checkpointed phase",
				zap.String("phase", name),
			)
			e.env.Phases = append(e.env.Phases, model.PhaseResult{
				Name:     name,
				Status:   model.PhaseStatusSucceeded,
				Metadata: map[string]any{"reused": true},
			})
			continue
		}

		ps.Status = model.PhaseStatusRunning
		ps.Error = ""
		if err := ckpt.Save(st); err != nil {
			return nil, err
		}
		histPhase := e.createHistoryPhase(ctx, name)

		result, runErr := runPhase(ctx, e.env, phase)

		if runErr != nil {
			ps.Status = model.PhaseStatusFailed
			ps.Error = runErr.Error()
			failedPhase[name] = true
			failures = append(failures, runErr.Error())
		} else {
			ps.Status = model.PhaseStatusSucceeded
			ps.Fingerprint = fp
			ps.Artifact = ckpt.ArtifactPath(name)
			succeeded++
		}
		if err := ckpt.Save(st); err != nil {
			return nil, err
		}

		e.env.Phases = append(e.env.Phases, *result)
		if histPhase != nil {
			if err := e.history.CompletePhase(ctx, histPhase.ID, result); err != nil {
				zap.L().Warn("pipeline: failed to record phase result", zap.Error(err))
			}
		}

		if ctx.Err() != nil {
			cancelled = true
			break
		}
	}

	res := e.buildResult(succeeded, failures, blocked, cancelled)
	st.Status = res.Status
	st.Cancelled = cancelled
	if err := ckpt.Save(st); err != nil {
		return nil, err
	}
	if err := e.history.UpdateRunResult(context.WithoutCancel(ctx), e.env.RunID, res); err != nil {
		zap.L().Warn("pipeline: failed to save run result", zap.Error(err))
	}

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", e.env.RunID),
		zap.String("status", string(res.Status)),
		zap.Int("corpus_size", res.CorpusSize),
	)
	return res, nil
}

// topoOrder returns the phases in dependency order, preserving registration
// order among independent phases.
func (e *Executor) topoOrder() ([]Phase, error) {
	byName := map[string]Phase{}
	for _, p := range e.phases {
		byName[p.Name()] = p
	}

	var order []Phase
	state := map[string]int{} // 0 unvisited, 1 visiting, 2 done

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 2:
			return nil
		case 1:
			return eris.Errorf("pipeline: dependency cycle through %s", name)
		}
		p, ok := byName[name]
		if !ok {
			return eris.Errorf("pipeline: unknown dependency %s", name)
		}
		state[name] = 1
		for _, dep := range p.DependsOn() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = 2
		order = append(order, p)
		return nil
	}

	for _, p := range e.phases {
		if err := visit(p.Name()); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// phaseAliases maps group names accepted by --only and --skip to the phases
// they cover.
var phaseAliases = map[string][]string{
	"analysis": {PhaseIntegrate, PhaseDomainScoring, PhaseClassify},
}

func expandAliases(names []string) []string {
	var out []string
	for _, n := range names {
		if group, ok := phaseAliases[n]; ok {
			out = append(out, group...)
			continue
		}
		out = append(out, n)
	}
	return out
}

// selectPhases resolves --only names to the closure of their dependencies.
func (e *Executor) selectPhases(order []Phase, only []string) (map[string]bool, error) {
	selected := map[string]bool{}
	if len(only) == 0 {
		for _, p := range order {
			selected[p.Name()] = true
		}
		return selected, nil
	}

	byName := map[string]Phase{}
	for _, p := range e.phases {
		byName[p.Name()] = p
	}

	var include func(name string) error
	include = func(name string) error {
		if selected[name] {
			return nil
		}
		p, ok := byName[name]
		if !ok {
			return eris.Errorf("pipeline: unknown phase %q", name)
		}
		selected[name] = true
		for _, dep := range p.DependsOn() {
			if err := include(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range only {
		if err := include(name); err != nil {
			return nil, err
		}
	}
	return selected, nil
}

func (e *Executor) nameSet(names []string) (map[string]bool, error) {
	byName := map[string]bool{}
	for _, p := range e.phases {
		byName[p.Name()] = true
	}
	set := map[string]bool{}
	for _, n := range names {
		if !byName[n] {
			return nil, eris.Errorf("pipeline: unknown phase %q", n)
		}
		set[n] = true
	}
	return set, nil
}

// blockedBy reports the first dependency whose output is unavailable: it
// failed this run, or it was skipped and left no artifact from before.
func (e *Executor) blockedBy(phase Phase, failedPhase map[string]bool) (string, bool) {
	for _, dep := range phase.DependsOn() {
		if failedPhase[dep] {
			return dep, true
		}
		if !e.env.Checkpoint.HasArtifact(dep) {
			return dep, true
		}
	}
	return "", false
}

// settingsProvider exposes the configuration a phase's output depends on.
// Those settings join the resume fingerprint so a changed knob (fuzzy
// threshold, question set, export format) forces a re-run instead of
// silently reusing a stale artifact.
type settingsProvider interface {
	Settings(env *Env) any
}

// fingerprint hashes a phase's inputs: the query, the phase's effective
// settings, and the digests of its dependency artifacts. Resume re-runs a
// phase when this changes.
func (e *Executor) fingerprint(phase Phase, query string) (string, error) {
	h := sha256.New()
	h.Write([]byte(query))

	if sp, ok := phase.(settingsProvider); ok {
		enc, err := json.Marshal(sp.Settings(e.env))
		if err != nil {
			return "", eris.Wrapf(err, "pipeline: encode %s settings", phase.Name())
		}
		h.Write(enc)
	}

	deps := append([]string(nil), phase.DependsOn()...)
	sort.Strings(deps)
	for _, dep := range deps {
		digest, err := e.env.Checkpoint.ArtifactDigest(dep)
		if err != nil {
			return "", err
		}
		h.Write([]byte(dep))
		h.Write([]byte(digest))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// prepareState loads the checkpoint for a resume or creates a fresh run.
func (e *Executor) prepareState(ctx context.Context, opts Options) (*checkpoint.State, error) {
	if opts.Resume {
		st, err := e.env.Checkpoint.Load()
		if err != nil {
			return nil, err
		}
		if st != nil {
			e.env.RunID = st.RunID
			if opts.Query != "" {
				e.env.Query = opts.Query
			}
			e.env.Label = opts.Label
			st.Cancelled = false
			return st, nil
		}
	}

	run, err := e.history.CreateRun(ctx, opts.Label, opts.Query)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	e.env.RunID = run.ID
	e.env.Label = opts.Label
	e.env.Query = opts.Query
	return checkpoint.NewState(run.ID), nil
}

func (e *Executor) setStatus(ctx context.Context, status model.RunStatus) {
	if err := e.history.UpdateRunStatus(ctx, e.env.RunID, status); err != nil {
		zap.L().Warn("pipeline: failed to update run status", zap.Error(err))
	}
}

// recordResult stores a phase outcome that did not come from runPhase
// (skipped or blocked phases).
func (e *Executor) recordResult(ctx context.Context, st *checkpoint.State, result *model.PhaseResult) {
	ps := st.Phase(result.Name)
	ps.Status = result.Status
	if err := e.env.Checkpoint.Save(st); err != nil {
		zap.L().Warn("pipeline: failed to checkpoint phase", zap.Error(err))
	}

	e.env.Phases = append(e.env.Phases, *result)
	if histPhase := e.createHistoryPhase(ctx, result.Name); histPhase != nil {
		if err := e.history.CompletePhase(ctx, histPhase.ID, result); err != nil {
			zap.L().Warn("pipeline: failed to record phase result", zap.Error(err))
		}
	}
}

func (e *Executor) createHistoryPhase(ctx context.Context, name string) *model.RunPhase {
	p, err := e.history.CreatePhase(ctx, e.env.RunID, name)
	if err != nil {
		zap.L().Warn("pipeline: failed to create phase record",
			zap.String("phase", name),
			zap.Error(err),
		)
		return nil
	}
	return p
}

// buildResult derives the final run status and pulls corpus statistics from
// the freshest corpus artifact available.
func (e *Executor) buildResult(succeeded int, failures []string, blocked int, cancelled bool) *model.RunResult {
	res := &model.RunResult{
		Phases:    e.env.Phases,
		Cancelled: cancelled,
	}

	switch {
	case cancelled:
		res.Status = model.RunStatusCancelled
	case len(failures) == 0 && blocked == 0:
		res.Status = model.RunStatusComplete
	case succeeded == 0:
		res.Status = model.RunStatusFailed
	default:
		res.Status = model.RunStatusPartial
	}
	if len(failures) > 0 {
		res.Error = failures[0]
	}

	for _, name := range []string{PhaseClassify, PhaseDomainScoring, PhaseIntegrate} {
		if !e.env.Checkpoint.HasArtifact(name) {
			continue
		}
		art, err := e.env.loadCorpus(name)
		if err != nil {
			zap.L().Warn("pipeline: failed to read corpus artifact", zap.Error(err))
			break
		}
		res.CorpusSize = len(art.Corpus)
		res.DuplicateCount = art.DuplicateCount
		res.UnidentifiableCount = art.UnidentifiableCount
		break
	}

	var reportArt reportArtifact
	if e.env.Checkpoint.HasArtifact(PhaseReport) {
		if err := e.env.Checkpoint.LoadArtifact(PhaseReport, &reportArt); err == nil {
			res.ReportPath = reportArt.Path
		}
	}

	return res
}
