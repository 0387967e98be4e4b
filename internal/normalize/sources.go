package normalize

import (
	"strconv"
	"strings"
)

// fields is the intermediate shape every per-source extractor produces.
type fields struct {
	id       string
	doi      string
	title    string
	authors  []string
	year     int
	abstract string
	venue    string
	url      string
}

// extractCrossref maps a Crossref works item. Titles and container titles
// arrive as arrays; authors as {given, family} objects; dates as nested
// date-parts.
func extractCrossref(raw map[string]any) fields {
	f := fields{
		doi:      str(raw, "DOI"),
		title:    firstStr(raw, "title"),
		abstract: str(raw, "abstract"),
		venue:    firstStr(raw, "container-title"),
		url:      str(raw, "URL"),
	}
	f.id = f.doi

	for _, a := range list(raw, "author") {
		m, ok := a.(map[string]any)
		if !ok {
			continue
		}
		given := str(m, "given")
		family := str(m, "family")
		switch {
		case family != "" && given != "":
			f.authors = append(f.authors, given+" "+family)
		case family != "":
			f.authors = append(f.authors, family)
		case str(m, "name") != "":
			f.authors = append(f.authors, str(m, "name"))
		}
	}

	for _, key := range []string{"issued", "published-print", "published-online"} {
		if m, ok := raw[key].(map[string]any); ok {
			if parts := list(m, "date-parts"); len(parts) > 0 {
				if inner, ok := parts[0].([]any); ok && len(inner) > 0 {
					f.year = toInt(inner[0])
				}
			}
		}
		if f.year != 0 {
			break
		}
	}
	return f
}

// extractSemanticScholar maps a Semantic Scholar graph API paper.
func extractSemanticScholar(raw map[string]any) fields {
	f := fields{
		id:       str(raw, "paperId"),
		title:    str(raw, "title"),
		year:     toInt(raw["year"]),
		abstract: str(raw, "abstract"),
		venue:    str(raw, "venue"),
		url:      str(raw, "url"),
	}
	if ext, ok := raw["externalIds"].(map[string]any); ok {
		f.doi = str(ext, "DOI")
	}
	for _, a := range list(raw, "authors") {
		if m, ok := a.(map[string]any); ok {
			if name := str(m, "name"); name != "" {
				f.authors = append(f.authors, name)
			}
		}
	}
	return f
}

// extractScienceDirect maps an Elsevier search entry (Dublin Core / PRISM
// field names).
func extractScienceDirect(raw map[string]any) fields {
	f := fields{
		id:       str(raw, "dc:identifier"),
		doi:      str(raw, "prism:doi"),
		title:    str(raw, "dc:title"),
		abstract: str(raw, "dc:description"),
		venue:    str(raw, "prism:publicationName"),
		url:      str(raw, "prism:url"),
	}
	switch v := raw["dc:creator"].(type) {
	case string:
		f.authors = []string{v}
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s != "" {
				f.authors = append(f.authors, s)
			}
		}
	}
	// prism:coverDate is "YYYY-MM-DD".
	if d := str(raw, "prism:coverDate"); len(d) >= 4 {
		f.year = toInt(d[:4])
	}
	return f
}

// extractScholar maps a record from the Scholar scrape proxy. Author lists
// arrive as a single comma-separated string.
func extractScholar(raw map[string]any) fields {
	f := fields{
		id:       str(raw, "id"),
		title:    str(raw, "title"),
		year:     toInt(raw["year"]),
		abstract: str(raw, "snippet"),
		venue:    str(raw, "venue"),
		url:      str(raw, "url"),
	}
	if f.id == "" {
		f.id = f.url
	}
	if s := str(raw, "authors"); s != "" {
		for _, a := range strings.Split(s, ",") {
			if a = strings.TrimSpace(a); a != "" {
				f.authors = append(f.authors, a)
			}
		}
	}
	return f
}

// extractGeneric handles sources without a dedicated mapping.
func extractGeneric(raw map[string]any) fields {
	f := fields{
		id:       str(raw, "id"),
		doi:      str(raw, "doi"),
		title:    str(raw, "title"),
		year:     toInt(raw["year"]),
		abstract: str(raw, "abstract"),
		venue:    str(raw, "venue"),
		url:      str(raw, "url"),
	}
	for _, a := range list(raw, "authors") {
		if s, ok := a.(string); ok && s != "" {
			f.authors = append(f.authors, s)
		}
	}
	return f
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// firstStr returns the first string of an array-valued field, or the field
// itself when a source flattens it to a plain string.
func firstStr(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func list(m map[string]any, key string) []any {
	if l, ok := m[key].([]any); ok {
		return l
	}
	return nil
}

// toInt coerces the numeric shapes JSON decoding produces. Returns 0 for
// anything unparseable; 0 means "year unknown" throughout.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
