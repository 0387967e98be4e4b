package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQuestions_YAML(t *testing.T) {
	path := writeFile(t, "questions.yaml", `
questions:
  - id: q1
    text: Is the study empirical?
    instructions: Answer based on the abstract only.
    answers: [yes, no, unclear]
  - id: q2
    text: What is the primary method?
`)

	questions, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "q1", questions[0].ID)
	assert.Equal(t, "Is the study empirical?", questions[0].Text)
	assert.Equal(t, []string{"yes", "no", "unclear"}, questions[0].Answers)
	assert.Empty(t, questions[1].Answers)
}

func TestLoadQuestions_EmptySetFails(t *testing.T) {
	path := writeFile(t, "questions.yaml", "questions: []\n")
	_, err := LoadQuestions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadQuestions_DuplicateIDFails(t *testing.T) {
	path := writeFile(t, "questions.yaml", `
questions:
  - id: q1
    text: first
  - id: q1
    text: second
`)
	_, err := LoadQuestions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadQuestions_MissingFile(t *testing.T) {
	_, err := LoadQuestions(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateQuestions(t *testing.T) {
	assert.Error(t, validateQuestions([]model.Question{{ID: "", Text: "t"}}))
	assert.Error(t, validateQuestions([]model.Question{{ID: "q1", Text: ""}}))
	assert.NoError(t, validateQuestions([]model.Question{{ID: "q1", Text: "t"}}))
}

func TestLoadDomains_YAMLMixedForms(t *testing.T) {
	path := writeFile(t, "ml.yaml", `
terms:
  - neural network
  - term: transformer
    weight: 2.5
  - term: attention
`)

	domains, err := LoadDomains(map[string]string{"ml": path})
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "ml", domains[0].Name)
	assert.Equal(t, []model.DomainTerm{
		{Term: "neural network", Weight: 1},
		{Term: "transformer", Weight: 2.5},
		{Term: "attention", Weight: 1},
	}, domains[0].Terms)
}

func TestLoadDomains_CSV(t *testing.T) {
	path := writeFile(t, "health.csv", "term,weight\nclinical trial,3\ndiagnosis\n\n")

	domains, err := LoadDomains(map[string]string{"health": path})
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, []model.DomainTerm{
		{Term: "clinical trial", Weight: 3},
		{Term: "diagnosis", Weight: 1},
	}, domains[0].Terms)
}

func TestLoadDomains_SortedByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("terms: [x]\n"), 0o644))
	}

	domains, err := LoadDomains(map[string]string{
		"zeta":  filepath.Join(dir, "b.yaml"),
		"alpha": filepath.Join(dir, "a.yaml"),
	})
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "alpha", domains[0].Name)
	assert.Equal(t, "zeta", domains[1].Name)
}

func TestLoadDomains_EmptyTermListFails(t *testing.T) {
	path := writeFile(t, "empty.yaml", "terms: []\n")
	_, err := LoadDomains(map[string]string{"empty": path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no terms")
}

func TestLoadDomains_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "terms.txt", "whatever")
	_, err := LoadDomains(map[string]string{"d": path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestLoadTermsCSV_BadWeight(t *testing.T) {
	path := writeFile(t, "bad.csv", "term,weight\nfoo,notanumber\n")
	_, err := loadTermsCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad weight")
}
