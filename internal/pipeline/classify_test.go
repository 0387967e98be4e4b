package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/config"
	"github.com/sells-group/litpipe/internal/model"
)

func classifyQuestions() []model.Question {
	return []model.Question{
		{ID: "q1", Text: "Is the study empirical?", Answers: []string{"yes", "no", "unclear"}},
		{ID: "q2", Text: "Primary method?"},
	}
}

func TestApplyAnswers_WritesValidAnswers(t *testing.T) {
	batch := []*model.Record{{Title: "a"}, {Title: "b"}}

	applyAnswers(batch, classifyQuestions(), `[
		{"index": 0, "answers": {"q1": "yes", "q2": "survey"}},
		{"index": 1, "answers": {"q1": "No", "q2": "case study"}}
	]`)

	assert.Equal(t, "yes", batch[0].Classification["q1"])
	assert.Equal(t, "survey", batch[0].Classification["q2"])
	// Closed-vocabulary matching is case-insensitive but keeps the raw answer.
	assert.Equal(t, "No", batch[1].Classification["q1"])
}

func TestApplyAnswers_InvalidAnswerGoesPending(t *testing.T) {
	batch := []*model.Record{{Title: "a"}}

	applyAnswers(batch, classifyQuestions(), `[
		{"index": 0, "answers": {"q1": "probably", "q2": ""}}
	]`)

	assert.Equal(t, model.ClassificationPending, batch[0].Classification["q1"])
	assert.Equal(t, model.ClassificationPending, batch[0].Classification["q2"])
}

func TestApplyAnswers_MissingRecordGoesPending(t *testing.T) {
	batch := []*model.Record{{Title: "a"}, {Title: "b"}}

	applyAnswers(batch, classifyQuestions(), `[
		{"index": 0, "answers": {"q1": "yes", "q2": "survey"}}
	]`)

	assert.Equal(t, model.ClassificationPending, batch[1].Classification["q1"])
	assert.Equal(t, model.ClassificationPending, batch[1].Classification["q2"])
}

func TestApplyAnswers_OutOfRangeIndexIgnored(t *testing.T) {
	batch := []*model.Record{{Title: "a"}}

	applyAnswers(batch, classifyQuestions(), `[
		{"index": 5, "answers": {"q1": "yes"}},
		{"index": -1, "answers": {"q1": "yes"}}
	]`)

	assert.Equal(t, model.ClassificationPending, batch[0].Classification["q1"])
}

func TestApplyAnswers_UnparseableResponseMarksBatchPending(t *testing.T) {
	batch := []*model.Record{{Title: "a"}}

	applyAnswers(batch, classifyQuestions(), "I could not classify these records.")

	assert.Equal(t, model.ClassificationPending, batch[0].Classification["q1"])
	assert.Equal(t, model.ClassificationPending, batch[0].Classification["q2"])
}

func TestMarkPending_DoesNotOverwriteExistingAnswers(t *testing.T) {
	batch := []*model.Record{{
		Classification: map[string]string{"q1": "yes"},
	}}

	markPending(batch, classifyQuestions())

	assert.Equal(t, "yes", batch[0].Classification["q1"])
	assert.Equal(t, model.ClassificationPending, batch[0].Classification["q2"])
}

func TestAllowedAnswer(t *testing.T) {
	q := model.Question{ID: "q1", Answers: []string{"yes", "no"}}
	assert.True(t, allowedAnswer(q, "yes"))
	assert.True(t, allowedAnswer(q, " YES "))
	assert.False(t, allowedAnswer(q, "maybe"))

	open := model.Question{ID: "q2"}
	assert.True(t, allowedAnswer(open, "anything"))
}

func TestCleanJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `[{"index": 0}]`, `[{"index": 0}]`},
		{"json fence", "```json\n[1, 2]\n```", "[1, 2]"},
		{"bare fence", "```\n[1]\n```", "[1]"},
		{"surrounding prose", `Here are the results: [{"a": 1}] Let me know.`, `[{"a": 1}]`},
		{"whitespace", "  [1]  ", "[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONArray(tt.in))
		})
	}
}

func TestBuildClassifyRequest(t *testing.T) {
	env := &Env{
		Cfg:       &config.Config{},
		Questions: classifyQuestions(),
	}
	env.Cfg.Anthropic.Model = "claude-haiku-4-5-20251001"

	longAbstract := strings.Repeat("x", abstractLimit+500)
	batch := []*model.Record{
		{Title: "Paper", Year: 2020, Venue: "Nature", Abstract: longAbstract},
	}

	req := buildClassifyRequest(env, batch)

	assert.Equal(t, "claude-haiku-4-5-20251001", req.Model)
	assert.Equal(t, int64(4096), req.MaxTokens)
	assert.Contains(t, req.System, "q1: Is the study empirical?")
	assert.Contains(t, req.System, "[allowed: yes, no, unclear]")

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, `"title":"Paper"`)
	// Abstract is truncated before it reaches the prompt.
	assert.Less(t, len(req.Messages[0].Content), abstractLimit+1000)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "abc", truncateRunes("abcdef", 3))

	// Multi-byte characters never get split mid-rune.
	accented := strings.Repeat("é", abstractLimit+10)
	got := truncateRunes(accented, abstractLimit)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, abstractLimit, utf8.RuneCountInString(got))
	assert.NotContains(t, got, string(utf8.RuneError))
}
