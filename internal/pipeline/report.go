package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/report"
	"github.com/sells-group/litpipe/internal/resilience"
)

// ReportPhase writes the markdown run report and, when a Notion client is
// configured, publishes it as a page. A Notion failure after the retry
// budget does not fail the phase; the file on disk is the primary output.
type ReportPhase struct{}

func (ReportPhase) Name() string        { return PhaseReport }
func (ReportPhase) DependsOn() []string { return []string{PhaseClassify} }

// Notion publishing failures never fail the phase, so the runner's retry
// budget has nothing to add here.
func (ReportPhase) Flaky() bool { return false }

// Settings folds the report destination into the resume fingerprint.
func (ReportPhase) Settings(env *Env) any {
	return map[string]any{
		"file":               env.Cfg.Report.File,
		"notion_parent_page": env.Cfg.Report.NotionParentPage,
	}
}

func (ReportPhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	art, err := env.loadCorpus(PhaseClassify)
	if err != nil {
		return nil, err
	}

	content := report.Format(report.Params{
		RunID:               env.RunID,
		Label:               env.Label,
		Query:               env.Query,
		GeneratedAt:         time.Now(),
		Corpus:              art.Corpus,
		DuplicateCount:      art.DuplicateCount,
		UnidentifiableCount: art.UnidentifiableCount,
		Failures:            art.Failures,
		Phases:              env.Phases,
	})

	path := env.Cfg.Report.File
	if path == "" {
		path = "report.md"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.Checkpoint.Dir(), path)
	}
	if err := report.WriteFile(path, content); err != nil {
		return nil, err
	}

	out := reportArtifact{Path: path}
	if env.Notion != nil && env.Cfg.Report.NotionParentPage != "" {
		title := env.Label
		if title == "" {
			title = "Literature Search: " + env.Query
		}

		retry := env.Retry
		retry.OnRetry = resilience.RetryLogger("notion", "publish report")
		pageID, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
			return report.PublishNotion(ctx, env.Notion, env.Cfg.Report.NotionParentPage, title, content)
		})
		if err != nil {
			zap.L().Warn("report: notion publish failed", zap.Error(err))
		} else {
			out.NotionPageID = pageID
		}
	}

	if _, err := env.Checkpoint.SaveArtifact(PhaseReport, out); err != nil {
		return nil, err
	}

	meta := map[string]any{"path": path}
	if out.NotionPageID != "" {
		meta["notion_page_id"] = out.NotionPageID
	}
	return meta, nil
}
