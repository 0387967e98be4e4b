package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/model"
)

func rec(doi, title string, year int, authors ...string) *model.Record {
	r := &model.Record{
		DOI:             doi,
		Title:           title,
		NormalizedTitle: title,
		Year:            year,
		Authors:         authors,
	}
	return r
}

func TestIntegrate_MergesByDOICaseInsensitive(t *testing.T) {
	a := rec("10.1/x", "a title", 2020, "smith")
	a.AddSource("crossref")
	a.Abstract = "full abstract"

	b := rec("10.1/X", "a title variant", 2020, "smith")
	b.AddSource("semantic_scholar")
	b.Venue = "Some Venue"

	res := New(Options{}).Integrate([]SourceBatch{
		{Source: "crossref", Records: []*model.Record{a}},
		{Source: "semantic_scholar", Records: []*model.Record{b}},
	})

	require.Len(t, res.Corpus, 1)
	assert.Equal(t, 1, res.DuplicateCount)

	merged := res.Corpus[0]
	assert.Equal(t, []string{"crossref", "semantic_scholar"}, merged.Sources)
	assert.Equal(t, "full abstract", merged.Abstract)
	assert.Equal(t, "Some Venue", merged.Venue)
}

func TestIntegrate_ContentPrefersMoreCompleteRecord(t *testing.T) {
	sparse := rec("10.1/y", "study", 0)
	sparse.Abstract = "short"

	complete := rec("10.1/y", "study", 2021, "lee")
	complete.Abstract = "much richer abstract"
	complete.Venue = "Journal"
	complete.URL = "https://example.org"

	res := New(Options{}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{sparse}},
		{Source: "b", Records: []*model.Record{complete}},
	})

	require.Len(t, res.Corpus, 1)
	merged := res.Corpus[0]
	// Later arrival wins the conflict because it is more complete.
	assert.Equal(t, "much richer abstract", merged.Abstract)
	assert.Equal(t, 2021, merged.Year)
	assert.Equal(t, []string{"lee"}, merged.Authors)
}

func TestIntegrate_EarlierArrivalWinsTies(t *testing.T) {
	first := rec("10.1/z", "ties", 2020, "a")
	first.Abstract = "first abstract"
	second := rec("10.1/z", "ties", 2020, "b")
	second.Abstract = "second abstract"

	res := New(Options{}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{first}},
		{Source: "b", Records: []*model.Record{second}},
	})

	require.Len(t, res.Corpus, 1)
	assert.Equal(t, "first abstract", res.Corpus[0].Abstract)
}

func TestIntegrate_Conservation(t *testing.T) {
	batches := []SourceBatch{
		{Source: "a", Records: []*model.Record{
			rec("10.1/a", "paper one", 2020, "x"),
			rec("", "paper two", 2021, "y"),
			{}, // unidentifiable: no DOI, no title
		}},
		{Source: "b", Records: []*model.Record{
			rec("10.1/a", "paper one again", 2020, "x"),
			rec("", "paper two", 2021, "y"),
		}},
	}
	total := 5

	res := New(Options{}).Integrate(batches)
	assert.Equal(t, total, len(res.Corpus)+res.DuplicateCount+res.UnidentifiableCount)
	assert.Equal(t, 2, res.DuplicateCount)
	assert.Equal(t, 1, res.UnidentifiableCount)
}

func TestIntegrate_SourceMetadataNeverOverwritten(t *testing.T) {
	a := rec("10.1/m", "meta", 2020)
	a.SourceMetadata = map[string]map[string]any{"src": {"v": "original"}}
	b := rec("10.1/m", "meta", 2020)
	b.SourceMetadata = map[string]map[string]any{"src": {"v": "other"}, "src2": {"v": "new"}}

	res := New(Options{}).Integrate([]SourceBatch{
		{Source: "src", Records: []*model.Record{a}},
		{Source: "src2", Records: []*model.Record{b}},
	})

	require.Len(t, res.Corpus, 1)
	merged := res.Corpus[0]
	assert.Equal(t, "original", merged.SourceMetadata["src"]["v"])
	assert.Equal(t, "new", merged.SourceMetadata["src2"]["v"])
}

func TestIntegrateRaw_CountsUnparseableRecords(t *testing.T) {
	res := New(Options{}).IntegrateRaw([]RawBatch{
		{Source: "crossref", Records: []map[string]any{
			{"DOI": "10.1/q", "title": []any{"A Paper"}},
			{"foo": "bar"},
		}},
	})

	assert.Len(t, res.Corpus, 1)
	assert.Equal(t, 1, res.UnidentifiableCount)
}

func TestIntegrate_Idempotent(t *testing.T) {
	build := func() []SourceBatch {
		return []SourceBatch{
			{Source: "a", Records: []*model.Record{
				rec("10.1/a", "alpha beta gamma", 2020, "x"),
				rec("", "delta epsilon", 2019, "y"),
			}},
			{Source: "b", Records: []*model.Record{
				rec("10.1/a", "alpha beta gamma", 2020, "x"),
				rec("", "delta epsilon", 2019, "y"),
			}},
		}
	}

	first := New(Options{}).Integrate(build())
	second := New(Options{}).Integrate(build())

	require.Equal(t, len(first.Corpus), len(second.Corpus))
	assert.Equal(t, first.DuplicateCount, second.DuplicateCount)
	for i := range first.Corpus {
		assert.Equal(t, first.Corpus[i].IdentityKey(), second.Corpus[i].IdentityKey())
	}
}
