// Package export writes the classified corpus as a flat table. Columns are
// derived from the corpus itself (sorted unions of domain names and question
// IDs), so an export of a resumed run matches an export of a fresh one.
package export

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/litpipe/internal/model"
)

const sheetName = "Articles"

// Table is the corpus flattened into a header row plus one row per record.
type Table struct {
	Header []string
	Rows   [][]string
}

// Build flattens the corpus. Fixed columns come first, then one column per
// domain score and one per question answer, both sorted by name.
func Build(corpus []*model.Record) *Table {
	domains := collectKeys(corpus, func(r *model.Record) map[string]float64 { return r.DomainScores })
	questions := collectKeys(corpus, func(r *model.Record) map[string]string { return r.Classification })

	header := []string{"title", "doi", "year", "authors", "venue", "url", "sources", "fuzzy_matched"}
	for _, d := range domains {
		header = append(header, "score_"+d)
	}
	for _, q := range questions {
		header = append(header, "q_"+q)
	}
	header = append(header, "abstract")

	t := &Table{Header: header, Rows: make([][]string, 0, len(corpus))}
	for _, rec := range corpus {
		year := ""
		if rec.Year != 0 {
			year = strconv.Itoa(rec.Year)
		}
		row := []string{
			rec.Title,
			rec.DOI,
			year,
			strings.Join(rec.Authors, "; "),
			rec.Venue,
			rec.URL,
			strings.Join(rec.Sources, "; "),
			strconv.FormatBool(rec.FuzzyMatched),
		}
		for _, d := range domains {
			row = append(row, strconv.FormatFloat(rec.DomainScores[d], 'f', -1, 64))
		}
		for _, q := range questions {
			row = append(row, rec.Classification[q])
		}
		row = append(row, rec.Abstract)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// WriteCSV writes the table to path.
func WriteCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}

// WriteXLSX writes the table to path as a single-sheet workbook.
func WriteXLSX(path string, t *Table) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hdr := sheet.AddRow()
	for _, col := range t.Header {
		hdr.AddCell().Value = col
	}
	for _, row := range t.Rows {
		r := sheet.AddRow()
		for _, val := range row {
			r.AddCell().Value = val
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// Write emits the table in the requested format ("csv", "xlsx", or "both")
// using base as the path without extension. Returns the files written.
func Write(base, format string, t *Table) ([]string, error) {
	var paths []string
	switch format {
	case "", "csv":
		if err := WriteCSV(base+".csv", t); err != nil {
			return nil, err
		}
		paths = append(paths, base+".csv")
	case "xlsx":
		if err := WriteXLSX(base+".xlsx", t); err != nil {
			return nil, err
		}
		paths = append(paths, base+".xlsx")
	case "both":
		if err := WriteCSV(base+".csv", t); err != nil {
			return nil, err
		}
		if err := WriteXLSX(base+".xlsx", t); err != nil {
			return nil, err
		}
		paths = append(paths, base+".csv", base+".xlsx")
	default:
		return nil, eris.Errorf("export: unknown table format %q", format)
	}

	zap.L().Info("export: table written",
		zap.Strings("files", paths),
		zap.Int("rows", len(t.Rows)),
	)
	return paths, nil
}

func collectKeys[V any](corpus []*model.Record, get func(*model.Record) map[string]V) []string {
	seen := map[string]struct{}{}
	for _, rec := range corpus {
		for k := range get(rec) {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
