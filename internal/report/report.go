// Package report renders the run summary as markdown and optionally
// publishes it to Notion.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litpipe/internal/model"
	"github.com/sells-group/litpipe/internal/source"
)

// Params carries everything the report needs about a finished run.
type Params struct {
	RunID               string
	Label               string
	Query               string
	GeneratedAt         time.Time
	Corpus              []*model.Record
	DuplicateCount      int
	UnidentifiableCount int
	Failures            []source.Failure
	Phases              []model.PhaseResult
}

// topN is how many records per domain the report lists.
const topN = 10

// Format generates the human-readable run report.
func Format(p Params) string {
	var b strings.Builder

	title := p.Label
	if title == "" {
		title = p.Query
	}
	fmt.Fprintf(&b, "# Literature Search Report: %s\n", title)
	fmt.Fprintf(&b, "Run: %s\n", p.RunID)
	fmt.Fprintf(&b, "Query: %s\n", p.Query)
	fmt.Fprintf(&b, "Generated: %s\n\n", p.GeneratedAt.UTC().Format(time.RFC3339))

	// Summary. The three counts always add up to the total ingested.
	total := len(p.Corpus) + p.DuplicateCount + p.UnidentifiableCount
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Records ingested: %d\n", total)
	fmt.Fprintf(&b, "- Corpus size: %d\n", len(p.Corpus))
	fmt.Fprintf(&b, "- Duplicates merged: %d\n", p.DuplicateCount)
	fmt.Fprintf(&b, "- Unidentifiable: %d\n\n", p.UnidentifiableCount)

	// Per-source coverage.
	b.WriteString("## Sources\n")
	for _, sc := range sourceCounts(p.Corpus) {
		fmt.Fprintf(&b, "- %s: %d records\n", sc.name, sc.count)
	}
	for _, f := range p.Failures {
		fmt.Fprintf(&b, "- %s: FAILED (%s): %s\n", f.Source, f.Kind, f.Error)
	}
	b.WriteString("\n")

	// Phase results.
	b.WriteString("## Phases\n")
	for _, ph := range p.Phases {
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", ph.Name, ph.Status, ph.Duration)
		if ph.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", ph.Error)
		}
	}
	b.WriteString("\n")

	writeDomainSections(&b, p.Corpus)
	writeClassificationSection(&b, p.Corpus)

	return b.String()
}

// WriteFile writes the report to path.
func WriteFile(path string, content string) error {
	return eris.Wrapf(os.WriteFile(path, []byte(content), 0o644), "report: write %s", path)
}

type sourceCount struct {
	name  string
	count int
}

func sourceCounts(corpus []*model.Record) []sourceCount {
	counts := map[string]int{}
	for _, rec := range corpus {
		for _, s := range rec.Sources {
			counts[s]++
		}
	}
	out := make([]sourceCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, sourceCount{name, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// writeDomainSections lists the top-scoring records per domain.
func writeDomainSections(b *strings.Builder, corpus []*model.Record) {
	domains := map[string]struct{}{}
	for _, rec := range corpus {
		for d := range rec.DomainScores {
			domains[d] = struct{}{}
		}
	}
	if len(domains) == 0 {
		return
	}
	names := make([]string, 0, len(domains))
	for d := range domains {
		names = append(names, d)
	}
	sort.Strings(names)

	for _, d := range names {
		fmt.Fprintf(b, "## Top Records: %s\n", d)

		ranked := make([]*model.Record, len(corpus))
		copy(ranked, corpus)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].DomainScores[d] > ranked[j].DomainScores[d]
		})

		n := 0
		for _, rec := range ranked {
			if rec.DomainScores[d] <= 0 || n >= topN {
				break
			}
			year := "n.d."
			if rec.Year != 0 {
				year = fmt.Sprintf("%d", rec.Year)
			}
			fmt.Fprintf(b, "%d. %s (%s) [%.2f]\n", n+1, rec.Title, year, rec.DomainScores[d])
			n++
		}
		if n == 0 {
			b.WriteString("No records matched this domain.\n")
		}
		b.WriteString("\n")
	}
}

// writeClassificationSection summarizes answer distributions per question.
func writeClassificationSection(b *strings.Builder, corpus []*model.Record) {
	dist := map[string]map[string]int{}
	for _, rec := range corpus {
		for q, a := range rec.Classification {
			if dist[q] == nil {
				dist[q] = map[string]int{}
			}
			dist[q][a]++
		}
	}
	if len(dist) == 0 {
		return
	}

	questions := make([]string, 0, len(dist))
	for q := range dist {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	b.WriteString("## Classification\n")
	for _, q := range questions {
		fmt.Fprintf(b, "- %s:\n", q)
		answers := make([]string, 0, len(dist[q]))
		for a := range dist[q] {
			answers = append(answers, a)
		}
		sort.Strings(answers)
		for _, a := range answers {
			fmt.Fprintf(b, "  - %s: %d\n", a, dist[q][a])
		}
	}
	b.WriteString("\n")
}
