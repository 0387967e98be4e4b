// Package dedupe merges per-source record batches into a single corpus,
// resolving duplicates by identity key and unioning provenance. An exact
// pass merges records sharing a DOI or title/year/author composite; a
// secondary fuzzy pass catches DOI-less near-duplicates.
package dedupe

import (
	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/normalize"
)

// RawBatch is the unprocessed output of one source connector.
type RawBatch struct {
	Source  string           `json:"source"`
	Records []map[string]any `json:"records"`
}

// SourceBatch is one source's normalized records, in arrival order.
type SourceBatch struct {
	Source  string
	Records []*model.Record
}

// Options configures the fuzzy duplicate pass.
type Options struct {
	// FuzzyThreshold is the minimum token-set (Jaccard) similarity between
	// normalized titles for two DOI-less records to merge. Default 0.90.
	FuzzyThreshold float64
	// FuzzyPrefixLen is the shared normalized-title prefix length (in runes)
	// that bounds the candidate window after sorting. Default 4.
	FuzzyPrefixLen int
}

func (o Options) withDefaults() Options {
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = 0.90
	}
	if o.FuzzyPrefixLen <= 0 {
		o.FuzzyPrefixLen = 4
	}
	return o
}

// Result is the integration outcome. The counts are exact:
// len(Corpus) + DuplicateCount + UnidentifiableCount == total ingested.
type Result struct {
	Corpus              []*model.Record `json:"corpus"`
	DuplicateCount      int             `json:"duplicate_count"`
	UnidentifiableCount int             `json:"unidentifiable_count"`
}

// Integrator merges record batches into a deduplicated corpus.
type Integrator struct {
	opts Options
}

// New creates an Integrator.
func New(opts Options) *Integrator {
	return &Integrator{opts: opts.withDefaults()}
}

// IntegrateRaw normalizes raw connector payloads and integrates them.
// Unidentifiable records (no DOI, no title) are counted, never dropped
// silently and never escalated to a failure.
func (in *Integrator) IntegrateRaw(batches []RawBatch) *Result {
	unidentifiable := 0
	normalized := make([]SourceBatch, 0, len(batches))
	for _, b := range batches {
		sb := SourceBatch{Source: b.Source}
		for _, raw := range b.Records {
			rec, err := normalize.Normalize(raw, b.Source)
			if err != nil {
				unidentifiable++
				zap.L().Debug("dedupe: unidentifiable record",
					zap.String("source", b.Source),
					zap.Error(err),
				)
				continue
			}
			sb.Records = append(sb.Records, rec)
		}
		normalized = append(normalized, sb)
	}

	res := in.Integrate(normalized)
	res.UnidentifiableCount += unidentifiable
	return res
}

// Integrate merges normalized batches in arrival order. Arrival order
// affects only which value wins on a content-field conflict, never whether
// a merge happens. Re-running on the same input yields the same corpus.
func (in *Integrator) Integrate(batches []SourceBatch) *Result {
	res := &Result{}
	byKey := make(map[string]*model.Record)

	for _, b := range batches {
		for _, rec := range b.Records {
			key := rec.IdentityKey()
			if key == "" {
				res.UnidentifiableCount++
				continue
			}
			if existing, ok := byKey[key]; ok {
				mergeInto(existing, rec)
				res.DuplicateCount++
				continue
			}
			byKey[key] = rec
			res.Corpus = append(res.Corpus, rec)
		}
	}

	res.DuplicateCount += in.fuzzyPass(res)

	zap.L().Info("dedupe: integration complete",
		zap.Int("corpus", len(res.Corpus)),
		zap.Int("duplicates", res.DuplicateCount),
		zap.Int("unidentifiable", res.UnidentifiableCount),
	)
	return res
}

// mergeInto merges src (later arrival) into dst (earlier arrival).
// Provenance is unioned; content fields prefer the non-empty value from the
// record with the more complete payload, earlier arrival winning ties.
// Source metadata is unioned by source key and never overwritten.
func mergeInto(dst, src *model.Record) {
	srcWins := completeness(src) > completeness(dst)

	pick := func(dstVal, srcVal string) string {
		switch {
		case dstVal == "":
			return srcVal
		case srcVal == "":
			return dstVal
		case srcWins:
			return srcVal
		default:
			return dstVal
		}
	}
	dst.Abstract = pick(dst.Abstract, src.Abstract)
	dst.Venue = pick(dst.Venue, src.Venue)
	dst.URL = pick(dst.URL, src.URL)
	if dst.Title == "" {
		dst.Title = src.Title
		dst.NormalizedTitle = src.NormalizedTitle
	}
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}

	for _, s := range src.Sources {
		dst.AddSource(s)
	}
	for source, id := range src.SourceRecordIDs {
		if dst.SourceRecordIDs == nil {
			dst.SourceRecordIDs = map[string]string{}
		}
		if _, ok := dst.SourceRecordIDs[source]; !ok {
			dst.SourceRecordIDs[source] = id
		}
	}
	for source, payload := range src.SourceMetadata {
		if dst.SourceMetadata == nil {
			dst.SourceMetadata = map[string]map[string]any{}
		}
		if _, ok := dst.SourceMetadata[source]; !ok {
			dst.SourceMetadata[source] = payload
		}
	}
	dst.FuzzyMatched = dst.FuzzyMatched || src.FuzzyMatched
}

// completeness counts populated content fields, used to decide which side of
// a merge supplies conflicting values.
func completeness(r *model.Record) int {
	n := 0
	for _, s := range []string{r.DOI, r.Abstract, r.Venue, r.URL} {
		if s != "" {
			n++
		}
	}
	if r.Year != 0 {
		n++
	}
	if len(r.Authors) > 0 {
		n++
	}
	return n
}
