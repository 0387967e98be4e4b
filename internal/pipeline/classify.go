package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/resilience"
	"github.com/sells-group/litpipe/pkg/anthropic"
)

const maxClassifyConcurrency = 4

// abstractLimit bounds how much abstract text goes into each prompt, in
// runes.
const abstractLimit = 1500

const classifySystemPrompt = `You are classifying academic publications for a systematic literature review. For each record, answer every question. Respond with a valid JSON array, one object per record: {"index": <record index>, "answers": {"<question id>": "<answer>"}}. When a question lists allowed answers, pick exactly one of them. Answer every question for every record; use your best judgment on sparse records.`

// ClassifyPhase answers the configured question set for every corpus record
// in batches. A batch that fails after its retry budget leaves its records
// marked pending rather than failing the phase; the phase itself only fails
// when no batch succeeded.
type ClassifyPhase struct{}

func (ClassifyPhase) Name() string        { return PhaseClassify }
func (ClassifyPhase) DependsOn() []string { return []string{PhaseDomainScoring} }
func (ClassifyPhase) Flaky() bool         { return true }

// Settings folds the model parameters and the question set into the resume
// fingerprint.
func (ClassifyPhase) Settings(env *Env) any {
	return map[string]any{
		"model":          env.Cfg.Anthropic.Model,
		"max_tokens":     env.Cfg.Anthropic.MaxTokens,
		"max_batch_size": env.Cfg.Anthropic.MaxBatchSize,
		"questions":      env.Questions,
	}
}

func (ClassifyPhase) Run(ctx context.Context, env *Env) (map[string]any, error) {
	if len(env.Questions) == 0 {
		return nil, eris.New("classify: no questions configured")
	}
	if env.AI == nil {
		return nil, eris.New("classify: no anthropic client configured")
	}

	art, err := env.loadCorpus(PhaseDomainScoring)
	if err != nil {
		return nil, err
	}

	batchSize := env.Cfg.Anthropic.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	var (
		mu         sync.Mutex
		usage      anthropic.TokenUsage
		failed     int
		numBatches int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxClassifyConcurrency)

	for start := 0; start < len(art.Corpus); start += batchSize {
		end := min(start+batchSize, len(art.Corpus))
		batch := art.Corpus[start:end]
		numBatches++

		g.Go(func() error {
			req := buildClassifyRequest(env, batch)

			retry := env.Retry
			retry.OnRetry = resilience.RetryLogger("anthropic", "classify")
			resp, err := resilience.DoVal(gCtx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
				return env.AI.CreateMessage(ctx, req)
			})
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("classify: batch failed, marking records pending",
					zap.Int("batch_start", start),
					zap.Int("batch_size", len(batch)),
					zap.Error(err),
				)
				markPending(batch, env.Questions)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			applyAnswers(batch, env.Questions, resp.Text)
			mu.Lock()
			usage.Add(resp.Usage)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "classify: cancelled")
	}
	if numBatches > 0 && failed == numBatches {
		return nil, eris.Errorf("classify: all %d batches failed", numBatches)
	}

	answered, pending := 0, 0
	for _, rec := range art.Corpus {
		for _, a := range rec.Classification {
			if a == model.ClassificationPending {
				pending++
			} else {
				answered++
			}
		}
	}

	if _, err := env.Checkpoint.SaveArtifact(PhaseClassify, art); err != nil {
		return nil, err
	}

	return map[string]any{
		"records":        len(art.Corpus),
		"answers":        answered,
		"pending":        pending,
		"batches_failed": failed,
		"input_tokens":   usage.InputTokens,
		"output_tokens":  usage.OutputTokens,
	}, nil
}

// buildClassifyRequest renders the question set and one batch of records
// into a single message request.
func buildClassifyRequest(env *Env, batch []*model.Record) anthropic.MessageRequest {
	var sys strings.Builder
	sys.WriteString(classifySystemPrompt)
	sys.WriteString("\n\nQuestions:\n")
	for _, q := range env.Questions {
		fmt.Fprintf(&sys, "- %s: %s", q.ID, q.Text)
		if q.Instructions != "" {
			fmt.Fprintf(&sys, " (%s)", q.Instructions)
		}
		if len(q.Answers) > 0 {
			fmt.Fprintf(&sys, " [allowed: %s]", strings.Join(q.Answers, ", "))
		}
		sys.WriteString("\n")
	}

	type promptRecord struct {
		Index    int    `json:"index"`
		Title    string `json:"title"`
		Year     int    `json:"year,omitempty"`
		Venue    string `json:"venue,omitempty"`
		Abstract string `json:"abstract,omitempty"`
	}
	records := make([]promptRecord, 0, len(batch))
	for i, rec := range batch {
		records = append(records, promptRecord{
			Index:    i,
			Title:    rec.Title,
			Year:     rec.Year,
			Venue:    rec.Venue,
			Abstract: truncateRunes(rec.Abstract, abstractLimit),
		})
	}
	payload, _ := json.Marshal(records)

	maxTokens := int64(env.Cfg.Anthropic.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return anthropic.MessageRequest{
		Model:     env.Cfg.Anthropic.Model,
		MaxTokens: maxTokens,
		System:    sys.String(),
		Messages: []anthropic.Message{
			{Role: "user", Content: "Records:\n" + string(payload)},
		},
	}
}

// truncateRunes shortens s to at most limit runes. Cutting on a rune
// boundary keeps a multi-byte character at the edge intact.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// applyAnswers parses the model response and writes answers onto the batch.
// Records the response misses and answers outside a question's allowed set
// end up pending.
func applyAnswers(batch []*model.Record, questions []model.Question, text string) {
	var parsed []struct {
		Index   json.Number       `json:"index"`
		Answers map[string]string `json:"answers"`
	}
	if err := json.Unmarshal([]byte(cleanJSONArray(text)), &parsed); err != nil {
		zap.L().Warn("classify: unparseable response, marking batch pending", zap.Error(err))
		markPending(batch, questions)
		return
	}

	byIndex := make(map[int]map[string]string, len(parsed))
	for _, p := range parsed {
		idx, err := strconv.Atoi(p.Index.String())
		if err != nil || idx < 0 || idx >= len(batch) {
			continue
		}
		byIndex[idx] = p.Answers
	}

	for i, rec := range batch {
		answers := byIndex[i]
		if rec.Classification == nil {
			rec.Classification = make(map[string]string, len(questions))
		}
		for _, q := range questions {
			a, ok := answers[q.ID]
			if !ok || strings.TrimSpace(a) == "" || !allowedAnswer(q, a) {
				rec.Classification[q.ID] = model.ClassificationPending
				continue
			}
			rec.Classification[q.ID] = strings.TrimSpace(a)
		}
	}
}

func allowedAnswer(q model.Question, answer string) bool {
	if len(q.Answers) == 0 {
		return true
	}
	answer = strings.TrimSpace(answer)
	for _, a := range q.Answers {
		if strings.EqualFold(a, answer) {
			return true
		}
	}
	return false
}

// markPending fills every question slot on the batch with the pending marker.
func markPending(batch []*model.Record, questions []model.Question) {
	for _, rec := range batch {
		if rec.Classification == nil {
			rec.Classification = make(map[string]string, len(questions))
		}
		for _, q := range questions {
			if _, ok := rec.Classification[q.ID]; !ok {
				rec.Classification[q.ID] = model.ClassificationPending
			}
		}
	}
}

// cleanJSONArray strips markdown code fences and any prose around the JSON
// array in a model response.
func cleanJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
