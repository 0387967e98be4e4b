package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	WorkDir         string                `yaml:"work_dir" mapstructure:"work_dir"`
	Search          SearchConfig          `yaml:"search" mapstructure:"search"`
	Crossref        CrossrefConfig        `yaml:"crossref" mapstructure:"crossref"`
	SemanticScholar SemanticScholarConfig `yaml:"semantic_scholar" mapstructure:"semantic_scholar"`
	ScienceDirect   ScienceDirectConfig   `yaml:"sciencedirect" mapstructure:"sciencedirect"`
	Scholar         ScholarConfig         `yaml:"scholar" mapstructure:"scholar"`
	Anthropic       AnthropicConfig       `yaml:"anthropic" mapstructure:"anthropic"`
	Dedupe          DedupeConfig          `yaml:"dedupe" mapstructure:"dedupe"`
	Domains         DomainsConfig         `yaml:"domains" mapstructure:"domains"`
	Questions       QuestionsConfig       `yaml:"questions" mapstructure:"questions"`
	Retry           RetryConfig           `yaml:"retry" mapstructure:"retry"`
	Export          ExportConfig          `yaml:"export" mapstructure:"export"`
	Report          ReportConfig          `yaml:"report" mapstructure:"report"`
	Store           StoreConfig           `yaml:"store" mapstructure:"store"`
	Server          ServerConfig          `yaml:"server" mapstructure:"server"`
	Log             LogConfig             `yaml:"log" mapstructure:"log"`
}

// SearchConfig configures the search phase.
type SearchConfig struct {
	Query       string   `yaml:"query" mapstructure:"query"`
	Sources     []string `yaml:"sources" mapstructure:"sources"`
	MaxResults  int      `yaml:"max_results" mapstructure:"max_results"`
	YearStart   int      `yaml:"year_start" mapstructure:"year_start"`
	YearEnd     int      `yaml:"year_end" mapstructure:"year_end"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CrossrefConfig holds Crossref works API settings.
type CrossrefConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Mailto  string  `yaml:"mailto" mapstructure:"mailto"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// SemanticScholarConfig holds Semantic Scholar graph API settings.
type SemanticScholarConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Key     string  `yaml:"key" mapstructure:"key"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// ScienceDirectConfig holds Elsevier ScienceDirect API settings.
type ScienceDirectConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Key     string  `yaml:"key" mapstructure:"key"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// ScholarConfig holds the Scholar scrape-proxy settings.
type ScholarConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// AnthropicConfig holds Claude classification settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxBatchSize int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// DedupeConfig configures the fuzzy duplicate pass.
type DedupeConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	FuzzyPrefixLen int     `yaml:"fuzzy_prefix_len" mapstructure:"fuzzy_prefix_len"`
}

// DomainsConfig maps domain names to term-list files (YAML or CSV).
type DomainsConfig struct {
	Files map[string]string `yaml:"files" mapstructure:"files"`
}

// QuestionsConfig points at the classification question set: a local YAML
// file, or a Notion database when NotionDB is set.
type QuestionsConfig struct {
	File     string `yaml:"file" mapstructure:"file"`
	NotionDB string `yaml:"notion_db" mapstructure:"notion_db"`
}

// RetryConfig configures the retry budget for flaky phases.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ExportConfig configures the table-export phase.
type ExportConfig struct {
	TableFile   string `yaml:"table_file" mapstructure:"table_file"`
	TableFormat string `yaml:"table_format" mapstructure:"table_format"` // csv, xlsx, or both
}

// ReportConfig configures report generation and optional Notion publishing.
type ReportConfig struct {
	File             string `yaml:"file" mapstructure:"file"`
	NotionToken      string `yaml:"notion_token" mapstructure:"notion_token"`
	NotionParentPage string `yaml:"notion_parent_page" mapstructure:"notion_parent_page"`
}

// StoreConfig configures the run-history store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LITPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("work_dir", ".litpipe")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", ".litpipe/runs.db")
	v.SetDefault("search.sources", []string{"crossref", "semantic_scholar"})
	v.SetDefault("search.max_results", 50)
	v.SetDefault("search.year_start", 2008)
	v.SetDefault("search.concurrency", 4)
	v.SetDefault("search.timeout_secs", 60)
	v.SetDefault("crossref.base_url", "https://api.crossref.org")
	v.SetDefault("crossref.rps", 2)
	v.SetDefault("semantic_scholar.base_url", "https://api.semanticscholar.org")
	v.SetDefault("semantic_scholar.rps", 1)
	v.SetDefault("sciencedirect.base_url", "https://api.elsevier.com")
	v.SetDefault("sciencedirect.rps", 2)
	v.SetDefault("scholar.rps", 0.5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_batch_size", 20)
	v.SetDefault("dedupe.fuzzy_threshold", 0.90)
	v.SetDefault("dedupe.fuzzy_prefix_len", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("export.table_file", "articles_table")
	v.SetDefault("export.table_format", "csv")
	v.SetDefault("report.file", "report.md")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
