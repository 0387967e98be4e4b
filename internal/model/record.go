package model

import (
	"sort"
	"strconv"
	"strings"
)

// Record is the canonical bibliographic entry after normalization. Identity
// fields (DOI, NormalizedTitle, Year, Authors) are fixed at creation; content
// and annotation fields may be filled in by merges and later phases.
type Record struct {
	DOI             string   `json:"doi,omitempty"`
	Title           string   `json:"title"`
	NormalizedTitle string   `json:"normalized_title"`
	Authors         []string `json:"authors,omitempty"`
	Year            int      `json:"year,omitempty"`

	Abstract string `json:"abstract,omitempty"`
	Venue    string `json:"venue,omitempty"`
	URL      string `json:"url,omitempty"`

	// Provenance. Sources is kept sorted and duplicate-free. SourceMetadata
	// preserves each source's raw payload verbatim for auditing.
	Sources         []string                  `json:"sources"`
	SourceRecordIDs map[string]string         `json:"source_record_ids,omitempty"`
	SourceMetadata  map[string]map[string]any `json:"source_metadata,omitempty"`
	FuzzyMatched    bool                      `json:"fuzzy_matched,omitempty"`

	// Annotations, absent until their producing phase runs.
	DomainScores   map[string]float64 `json:"domain_scores,omitempty"`
	Classification map[string]string  `json:"classification,omitempty"`
}

// ClassificationPending marks a record the classifier did not answer for.
const ClassificationPending = "classification_pending"

// IdentityKey returns the deduplication key: the DOI reduced to lowercase
// alphanumerics when present, otherwise a composite of normalized title,
// year, and first-author surname. Empty means the record is unidentifiable.
func (r *Record) IdentityKey() string {
	if k := doiKey(r.DOI); k != "" {
		return "doi:" + k
	}
	if r.NormalizedTitle == "" {
		return ""
	}
	first := ""
	if len(r.Authors) > 0 {
		first = r.Authors[0]
	}
	year := "?"
	if r.Year != 0 {
		year = strconv.Itoa(r.Year)
	}
	return "tya:" + r.NormalizedTitle + "|" + year + "|" + first
}

// doiKey reduces a DOI to lowercase alphanumerics so that case and
// punctuation differences between sources compare equal.
func doiKey(doi string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(doi) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AddSource inserts a source identifier, keeping Sources sorted and unique.
func (r *Record) AddSource(source string) {
	for _, s := range r.Sources {
		if s == source {
			return
		}
	}
	r.Sources = append(r.Sources, source)
	sort.Strings(r.Sources)
}

// HasSource reports whether the record carries provenance from source.
func (r *Record) HasSource(source string) bool {
	for _, s := range r.Sources {
		if s == source {
			return true
		}
	}
	return false
}
