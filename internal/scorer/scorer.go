// Package scorer computes domain-relevance scores for corpus records.
// Scoring is pure term counting over normalized text: no network, no
// randomness, so a rescore of the same corpus always agrees with itself.
package scorer

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/normalize"
)

// Scorer scores records against a set of domain vocabularies.
type Scorer struct {
	domains []domain
}

// domain pre-tokenizes the vocabulary so per-record scoring is cheap.
type domain struct {
	name  string
	terms []term
}

type term struct {
	tokens []string
	weight float64
}

// New creates a Scorer for the given domains. Terms are normalized the same
// way record text is, so matching is accent- and case-insensitive.
func New(domains []model.Domain) *Scorer {
	s := &Scorer{domains: make([]domain, 0, len(domains))}
	for _, d := range domains {
		dom := domain{name: d.Name, terms: make([]term, 0, len(d.Terms))}
		for _, t := range d.Terms {
			tokens := strings.Fields(normalize.Title(t.Term))
			if len(tokens) == 0 {
				continue
			}
			dom.terms = append(dom.terms, term{tokens: tokens, weight: t.Weight})
		}
		s.domains = append(s.domains, dom)
	}
	return s
}

// ScoreRecord computes one score per domain over the record's title and
// abstract and stores them on the record. Score is the weighted count of
// term occurrences, matched on whole-word boundaries.
func (s *Scorer) ScoreRecord(rec *model.Record) {
	text := rec.NormalizedTitle
	if rec.Abstract != "" {
		text += " " + normalize.Title(rec.Abstract)
	}
	tokens := strings.Fields(text)

	scores := make(map[string]float64, len(s.domains))
	for _, d := range s.domains {
		var score float64
		for _, t := range d.terms {
			score += t.weight * float64(countOccurrences(tokens, t.tokens))
		}
		scores[d.name] = math.Round(score*100) / 100
	}
	rec.DomainScores = scores
}

// ScoreAll scores every record in the corpus in place.
func (s *Scorer) ScoreAll(corpus []*model.Record) {
	for _, rec := range corpus {
		s.ScoreRecord(rec)
	}
	zap.L().Info("scorer: domain scoring complete",
		zap.Int("records", len(corpus)),
		zap.Int("domains", len(s.domains)),
	)
}

// countOccurrences counts non-overlapping occurrences of needle inside
// tokens, where needle is a token sequence.
func countOccurrences(tokens, needle []string) int {
	if len(needle) == 0 || len(tokens) < len(needle) {
		return 0
	}
	count := 0
	for i := 0; i+len(needle) <= len(tokens); {
		if tokensMatch(tokens[i:i+len(needle)], needle) {
			count++
			i += len(needle)
			continue
		}
		i++
	}
	return count
}

func tokensMatch(window, needle []string) bool {
	for i := range needle {
		if window[i] != needle[i] {
			return false
		}
	}
	return true
}
