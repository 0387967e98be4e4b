package dedupe

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/model"
)

// fuzzyPass merges DOI-less near-duplicates after the exact pass. Candidates
// are sorted by normalized title and compared only within a shared-prefix
// window, keeping the pass O(n log n) instead of all-pairs. A merge requires
// token-set similarity at or above the threshold AND matching (known)
// publication years, and marks the survivor FuzzyMatched for audit.
// Returns the number of merges performed.
func (in *Integrator) fuzzyPass(res *Result) int {
	position := make(map[*model.Record]int, len(res.Corpus))
	for i, rec := range res.Corpus {
		position[rec] = i
	}

	var candidates []*model.Record
	for _, rec := range res.Corpus {
		if rec.DOI == "" && rec.NormalizedTitle != "" {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) < 2 {
		return 0
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].NormalizedTitle != candidates[j].NormalizedTitle {
			return candidates[i].NormalizedTitle < candidates[j].NormalizedTitle
		}
		return position[candidates[i]] < position[candidates[j]]
	})

	merged := make(map[*model.Record]bool)
	count := 0
	for i := 0; i < len(candidates); i++ {
		a := candidates[i]
		if merged[a] {
			continue
		}
		prefix := titlePrefix(a.NormalizedTitle, in.opts.FuzzyPrefixLen)
		for j := i + 1; j < len(candidates); j++ {
			b := candidates[j]
			if titlePrefix(b.NormalizedTitle, in.opts.FuzzyPrefixLen) != prefix {
				break
			}
			if merged[b] {
				continue
			}
			if a.Year == 0 || a.Year != b.Year {
				continue
			}
			if !tokenSetSimilar(a.NormalizedTitle, b.NormalizedTitle, in.opts.FuzzyThreshold) {
				continue
			}

			// Earlier arrival is the canonical record.
			dst, src := a, b
			if position[b] < position[a] {
				dst, src = b, a
			}
			mergeInto(dst, src)
			dst.FuzzyMatched = true
			merged[src] = true
			count++
			zap.L().Debug("dedupe: fuzzy merge",
				zap.String("kept", dst.NormalizedTitle),
				zap.String("merged", src.NormalizedTitle),
			)
			if src == a {
				break // a is gone; move on to the next window anchor.
			}
		}
	}

	if count > 0 {
		kept := res.Corpus[:0]
		for _, rec := range res.Corpus {
			if !merged[rec] {
				kept = append(kept, rec)
			}
		}
		res.Corpus = kept
	}
	return count
}

// titlePrefix returns the first n runes of a normalized title.
func titlePrefix(title string, n int) string {
	runes := []rune(title)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

// tokenSetSimilar reports whether the Jaccard similarity of the two titles'
// token sets meets the threshold. The comparison multiplies instead of
// dividing so the boundary is exact and deterministic.
func tokenSetSimilar(a, b string, threshold float64) bool {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return false
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) >= threshold*float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
