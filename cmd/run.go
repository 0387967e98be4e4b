package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/checkpoint"
	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/pipeline"
	"github.com/sells-group/litpipe/internal/registry"
	"github.com/sells-group/litpipe/internal/resilience"
	"github.com/sells-group/litpipe/internal/source"
	anthropicpkg "github.com/sells-group/litpipe/pkg/anthropic"
	"github.com/sells-group/litpipe/pkg/notion"
)

var (
	runQuery  string
	runLabel  string
	runOnly   []string
	runSkip   []string
	runResume bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the literature search pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		// SIGINT/SIGTERM cancels the run between phases; the checkpoint
		// keeps completed phases for a later --resume.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		env, err := buildEnv(ctx)
		if err != nil {
			return err
		}

		query := runQuery
		if query == "" {
			query = cfg.Search.Query
		}

		result, err := pipeline.New(env, st).Execute(ctx, pipeline.Options{
			Only:   runOnly,
			Skip:   runSkip,
			Resume: runResume,
			Label:  runLabel,
			Query:  query,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("status", string(result.Status)),
			zap.Int("corpus_size", result.CorpusSize),
			zap.Int("duplicates", result.DuplicateCount),
			zap.Int("unidentifiable", result.UnidentifiableCount),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// buildEnv assembles the phase environment. Missing optional pieces (AI key,
// question set, domains) are tolerated here; the phase that needs them fails
// with a precise error if it is actually selected.
func buildEnv(ctx context.Context) (*pipeline.Env, error) {
	ckpt, err := checkpoint.New(cfg.WorkDir)
	if err != nil {
		return nil, err
	}

	connectors, err := source.Build(cfg)
	if err != nil {
		return nil, err
	}

	env := &pipeline.Env{
		Cfg:        cfg,
		Checkpoint: ckpt,
		Connectors: connectors,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
			Multiplier:     cfg.Retry.Multiplier,
			JitterFraction: cfg.Retry.JitterFraction,
		},
	}

	if cfg.Anthropic.Key != "" {
		env.AI = anthropicpkg.NewClient(cfg.Anthropic.Key)
	}

	var notionClient notion.Client
	if cfg.Report.NotionToken != "" {
		notionClient = notion.NewClient(cfg.Report.NotionToken)
		env.Notion = notionClient
	}

	env.Questions = loadQuestions(ctx, notionClient)
	env.Domains = loadDomains()

	return env, nil
}

func loadQuestions(ctx context.Context, notionClient notion.Client) []model.Question {
	if cfg.Questions.NotionDB != "" && notionClient != nil {
		questions, err := registry.LoadQuestionsNotion(ctx, notionClient, cfg.Questions.NotionDB)
		if err != nil {
			zap.L().Warn("question registry unavailable", zap.Error(err))
			return nil
		}
		return questions
	}
	if cfg.Questions.File == "" {
		return nil
	}
	questions, err := registry.LoadQuestions(cfg.Questions.File)
	if err != nil {
		zap.L().Warn("question set unavailable", zap.Error(err))
		return nil
	}
	return questions
}

func loadDomains() []model.Domain {
	if len(cfg.Domains.Files) == 0 {
		return nil
	}
	domains, err := registry.LoadDomains(cfg.Domains.Files)
	if err != nil {
		zap.L().Warn("domain vocabularies unavailable", zap.Error(err))
		return nil
	}
	return domains
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", "", "search query (default from config)")
	runCmd.Flags().StringVar(&runLabel, "label", "", "human-readable run label")
	runCmd.Flags().StringSliceVar(&runOnly, "only", nil, "run only these phases plus their dependencies ('analysis' covers integrate..classify)")
	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil, "skip these phases")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume from the last checkpoint")
	rootCmd.AddCommand(runCmd)
}
