package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litpipe/internal/model"
)

func TestFuzzyPass_MergesNearDuplicateTitles(t *testing.T) {
	// 9 of 10 tokens shared: Jaccard 9/11 < 0.90 would fail, so use titles
	// sharing 10 of 11 tokens: 10/12 < 0.90 still fails. Use 19 of 20.
	a := rec("", "alpha one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen", 2020, "x")
	b := rec("", "alpha one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen nineteen", 2020, "x")
	// Different author surname keeps the exact pass from merging them.
	b.Authors = []string{"y"}

	res := New(Options{FuzzyThreshold: 0.90, FuzzyPrefixLen: 4}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{a}},
		{Source: "b", Records: []*model.Record{b}},
	})

	require.Len(t, res.Corpus, 1)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.True(t, res.Corpus[0].FuzzyMatched)
}

func TestFuzzyPass_ExactBoundaryMerges(t *testing.T) {
	// 18 shared tokens, 19 and 19 per title: union 20, 18/20 = 0.90 exactly.
	shared := "alpha b c d e f g h i j k l m n o p q r"
	a := rec("", shared+" s1", 2020, "x")
	b := rec("", shared+" s2", 2020, "y")

	res := New(Options{FuzzyThreshold: 0.90}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{a}},
		{Source: "b", Records: []*model.Record{b}},
	})

	require.Len(t, res.Corpus, 1)
	assert.Equal(t, 1, res.DuplicateCount)
}

func TestFuzzyPass_BelowBoundaryDoesNotMerge(t *testing.T) {
	// 17 shared tokens, union 21: 17/21 < 0.90.
	shared := "alpha b c d e f g h i j k l m n o p q"
	a := rec("", shared+" s1 s3", 2020, "x")
	b := rec("", shared+" s2 s4", 2020, "y")

	res := New(Options{FuzzyThreshold: 0.90}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{a}},
		{Source: "b", Records: []*model.Record{b}},
	})

	assert.Len(t, res.Corpus, 2)
	assert.Equal(t, 0, res.DuplicateCount)
}

func TestFuzzyPass_RequiresMatchingKnownYears(t *testing.T) {
	title1 := "alpha b c d e f g h i j k l m n o p q r s1"
	title2 := "alpha b c d e f g h i j k l m n o p q r s2"

	t.Run("different years", func(t *testing.T) {
		res := New(Options{}).Integrate([]SourceBatch{
			{Source: "a", Records: []*model.Record{rec("", title1, 2020, "x")}},
			{Source: "b", Records: []*model.Record{rec("", title2, 2021, "y")}},
		})
		assert.Len(t, res.Corpus, 2)
	})

	t.Run("unknown year", func(t *testing.T) {
		res := New(Options{}).Integrate([]SourceBatch{
			{Source: "a", Records: []*model.Record{rec("", title1, 0, "x")}},
			{Source: "b", Records: []*model.Record{rec("", title2, 0, "y")}},
		})
		assert.Len(t, res.Corpus, 2)
	})
}

func TestFuzzyPass_SkipsRecordsWithDOI(t *testing.T) {
	title1 := "alpha b c d e f g h i j k l m n o p q r s1"
	title2 := "alpha b c d e f g h i j k l m n o p q r s2"

	res := New(Options{}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{rec("10.1/p1", title1, 2020, "x")}},
		{Source: "b", Records: []*model.Record{rec("10.1/p2", title2, 2020, "y")}},
	})

	// Distinct DOIs are authoritative even with near-identical titles.
	assert.Len(t, res.Corpus, 2)
}

func TestFuzzyPass_PrefixWindowBounds(t *testing.T) {
	// Titles differing in the first 4 runes never land in the same window.
	a := rec("", "abcd shared tail words one two three four five six seven eight nine ten", 2020, "x")
	b := rec("", "wxyz shared tail words one two three four five six seven eight nine ten", 2020, "y")

	res := New(Options{FuzzyPrefixLen: 4}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{a}},
		{Source: "b", Records: []*model.Record{b}},
	})

	assert.Len(t, res.Corpus, 2)
}

func TestFuzzyPass_EarlierArrivalIsCanonical(t *testing.T) {
	shared := "alpha b c d e f g h i j k l m n o p q r"
	first := rec("", shared+" s1", 2020, "x")
	first.Venue = "First Venue"
	second := rec("", shared+" s2", 2020, "y")
	second.Venue = "Second Venue"

	res := New(Options{}).Integrate([]SourceBatch{
		{Source: "a", Records: []*model.Record{first}},
		{Source: "b", Records: []*model.Record{second}},
	})

	require.Len(t, res.Corpus, 1)
	assert.Equal(t, shared+" s1", res.Corpus[0].NormalizedTitle)
	assert.Equal(t, "First Venue", res.Corpus[0].Venue)
}
