// Package normalize converts heterogeneous per-source payloads into the
// canonical Record shape and computes the comparison keys used for
// deduplication. It is the single translation boundary out of the
// loosely-typed source metadata.
package normalize

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/litpipe/internal/model"
)

// ErrUnidentifiable marks a raw record that yields no identity key at all
// (no DOI and no title). Callers count these; they are never silently
// dropped and never fail a phase.
var ErrUnidentifiable = eris.New("normalize: record has no DOI and no title")

// FoldDiacritics maps accented characters to their base Latin letters
// (é → e, ñ → n). Unfoldable runes pass through unchanged.
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Title normalizes a title for comparison: diacritics folded, lowercased,
// characters outside letters/digits/space stripped, whitespace runs
// collapsed to single spaces, trimmed.
func Title(s string) string {
	s = strings.ToLower(FoldDiacritics(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// DOI normalizes a DOI for storage: trimmed, lowercased, with common URL and
// "doi:" prefixes removed. Internal punctuation is preserved; the identity
// key comparison strips it separately.
func DOI(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
	} {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimSpace(s)
}

// Surname extracts a comparison surname from an author name. "Family, Given"
// takes the part before the comma; "Given Family" takes the last token. A
// single ambiguous token is kept whole rather than guessed at.
func Surname(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return ""
	}
	if i := strings.IndexByte(author, ','); i >= 0 {
		return Title(author[:i])
	}
	fields := strings.Fields(author)
	return Title(fields[len(fields)-1])
}

// Authors normalizes an ordered author list to surname tokens, dropping
// entries that normalize to nothing.
func Authors(names []string) []string {
	var out []string
	for _, n := range names {
		if s := Surname(n); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Normalize converts one raw source payload into a canonical Record. It
// never panics on malformed input: missing fields degrade to zero values.
// A record with no DOI and no title returns ErrUnidentifiable.
func Normalize(raw map[string]any, source string) (*model.Record, error) {
	var f fields
	switch source {
	case "crossref":
		f = extractCrossref(raw)
	case "semantic_scholar":
		f = extractSemanticScholar(raw)
	case "sciencedirect":
		f = extractScienceDirect(raw)
	case "scholar":
		f = extractScholar(raw)
	default:
		f = extractGeneric(raw)
	}

	rec := &model.Record{
		DOI:             DOI(f.doi),
		Title:           strings.TrimSpace(f.title),
		NormalizedTitle: Title(f.title),
		Authors:         Authors(f.authors),
		Year:            f.year,
		Abstract:        strings.TrimSpace(f.abstract),
		Venue:           strings.TrimSpace(f.venue),
		URL:             strings.TrimSpace(f.url),
		Sources:         []string{source},
		SourceRecordIDs: map[string]string{},
		SourceMetadata:  map[string]map[string]any{source: raw},
	}
	if f.id != "" {
		rec.SourceRecordIDs[source] = f.id
	}

	if rec.IdentityKey() == "" {
		return nil, ErrUnidentifiable
	}
	return rec, nil
}
