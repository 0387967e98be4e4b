package pipeline

import (
	"context"
	"path/filepath"

	"github.com/sells-group/litpipe/internal/export"
)

// TableExportPhase flattens the classified corpus into a CSV and/or XLSX
// table under the working directory.
type TableExportPhase struct{}

func (TableExportPhase) Name() string        { return PhaseTableExport }
func (TableExportPhase) DependsOn() []string { return []string{PhaseClassify} }
func (TableExportPhase) Flaky() bool         { return false }

// Settings folds the table file and format into the resume fingerprint.
func (TableExportPhase) Settings(env *Env) any { return env.Cfg.Export }

func (TableExportPhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	art, err := env.loadCorpus(PhaseClassify)
	if err != nil {
		return nil, err
	}

	table := export.Build(art.Corpus)

	base := env.Cfg.Export.TableFile
	if base == "" {
		base = "articles_table"
	}
	if !filepath.IsAbs(base) {
		base = filepath.Join(env.Checkpoint.Dir(), base)
	}

	paths, err := export.Write(base, env.Cfg.Export.TableFormat, table)
	if err != nil {
		return nil, err
	}

	if _, err := env.Checkpoint.SaveArtifact(PhaseTableExport, exportArtifact{Paths: paths}); err != nil {
		return nil, err
	}

	return map[string]any{
		"rows":  len(table.Rows),
		"files": paths,
	}, nil
}
