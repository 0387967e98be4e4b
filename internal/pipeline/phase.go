// Package pipeline orchestrates the literature search phases: search,
// integrate, domain_scoring, classify, table_export, report. Phases form a
// small dependency graph; each persists its output as a checkpoint artifact
// so a halted or partial run can resume without repeating finished work.
package pipeline

import (
	"context"

	"github.com/sells-group/litpipe/internal/checkpoint"
	"github.com/sells-group/litpipe/internal/config"
	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/resilience"
	"github.com/sells-group/litpipe/internal/source"
	"github.com/sells-group/litpipe/pkg/anthropic"
	"github.com/sells-group/litpipe/pkg/notion"
)

// Phase names, which double as artifact names.
const (
	PhaseSearch        = "search"
	PhaseIntegrate     = "integrate"
	PhaseDomainScoring = "domain_scoring"
	PhaseClassify      = "classify"
	PhaseTableExport   = "table_export"
	PhaseReport        = "report"
)

// Phase is a single pipeline step. Run returns metadata for the phase
// result; outputs go to the checkpoint artifact named after the phase.
// Flaky marks phases that call external services; only those get the
// runner's retry budget.
type Phase interface {
	Name() string
	DependsOn() []string
	Flaky() bool
	Run(ctx context.Context, env *Env) (map[string]any, error)
}

// Env is the shared infrastructure handed to every phase.
type Env struct {
	Cfg        *config.Config
	Checkpoint *checkpoint.Store

	Connectors []source.Connector
	AI         anthropic.Client
	Notion     notion.Client

	Questions []model.Question
	Domains   []model.Domain

	// Retry is the transient-failure budget shared by the runner and the
	// per-call retries inside search and classify.
	Retry resilience.RetryConfig

	RunID string
	Label string
	Query string

	// Phases accumulates results as the run progresses so the report phase
	// can include them.
	Phases []model.PhaseResult
}

// loadCorpus reads the corpus artifact written by the named phase.
func (e *Env) loadCorpus(phase string) (*corpusArtifact, error) {
	var art corpusArtifact
	if err := e.Checkpoint.LoadArtifact(phase, &art); err != nil {
		return nil, err
	}
	return &art, nil
}

// corpusArtifact is the corpus snapshot passed between phases. The duplicate
// and unidentifiable counts ride along so any later phase can restate the
// conservation totals.
type corpusArtifact struct {
	Corpus              []*model.Record  `json:"corpus"`
	DuplicateCount      int              `json:"duplicate_count"`
	UnidentifiableCount int              `json:"unidentifiable_count"`
	Failures            []source.Failure `json:"failures,omitempty"`
}

// searchArtifact is the raw fan-out output.
type searchArtifact struct {
	Query    string           `json:"query"`
	Batches  []searchBatch    `json:"batches"`
	Failures []source.Failure `json:"failures,omitempty"`
}

type searchBatch struct {
	Source  string           `json:"source"`
	Records []map[string]any `json:"records"`
}

// exportArtifact records the files the table_export phase wrote.
type exportArtifact struct {
	Paths []string `json:"paths"`
}

// reportArtifact records where the report landed.
type reportArtifact struct {
	Path         string `json:"path"`
	NotionPageID string `json:"notion_page_id,omitempty"`
}
