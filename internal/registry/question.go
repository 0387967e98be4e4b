// Package registry loads the classification question set and the domain
// vocabularies the scoring and classification phases run against.
package registry

import (
	"context"
	"os"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/pkg/notion"
)

// LoadQuestions reads the question set from a YAML file.
func LoadQuestions(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read question file %s", path)
	}

	var doc struct {
		Questions []model.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "registry: parse question file %s", path)
	}

	if err := validateQuestions(doc.Questions); err != nil {
		return nil, err
	}
	return doc.Questions, nil
}

// LoadQuestionsNotion queries a Notion question database for all active
// questions. Malformed pages are skipped with a warning rather than failing
// the whole load.
func LoadQuestionsNotion(ctx context.Context, client notion.Client, dbID string) ([]model.Question, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Active",
			},
		},
	}

	pages, err := notion.QueryAll(ctx, client, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "registry: load question registry")
	}

	var questions []model.Question
	for _, p := range pages {
		q, err := parseQuestionPage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed question page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		questions = append(questions, q)
	}

	if err := validateQuestions(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func parseQuestionPage(p notionapi.Page) (model.Question, error) {
	q := model.Question{
		ID: string(p.ID),
	}

	// Text (title)
	if prop, ok := p.Properties["Text"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			q.Text = plainText(tp.Title)
		}
	}

	// ID (rich_text) overrides the page ID when present.
	if prop, ok := p.Properties["ID"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			if s := plainText(rtp.RichText); s != "" {
				q.ID = s
			}
		}
	}

	// Instructions (rich_text)
	if prop, ok := p.Properties["Instructions"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			q.Instructions = plainText(rtp.RichText)
		}
	}

	// Answers (multi_select) constrains the answer vocabulary.
	if prop, ok := p.Properties["Answers"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				q.Answers = append(q.Answers, opt.Name)
			}
		}
	}

	if q.Text == "" {
		return q, eris.New("missing Text property")
	}

	return q, nil
}

func validateQuestions(questions []model.Question) error {
	if len(questions) == 0 {
		return eris.New("registry: question set is empty")
	}
	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return eris.Errorf("registry: question %q has no id", q.Text)
		}
		if q.Text == "" {
			return eris.Errorf("registry: question %s has no text", q.ID)
		}
		if _, dup := seen[q.ID]; dup {
			return eris.Errorf("registry: duplicate question id %s", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// plainText concatenates the plain_text values from a slice of RichText.
func plainText(rts []notionapi.RichText) string {
	var s string
	for _, rt := range rts {
		s += rt.PlainText
	}
	return s
}
