package registry

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/litpipe/internal/model"
)

// LoadDomains reads one term-list file per domain. The file format is chosen
// by extension: .yaml/.yml or .csv. Domains are returned sorted by name so
// scoring output is stable.
func LoadDomains(files map[string]string) ([]model.Domain, error) {
	domains := make([]model.Domain, 0, len(files))
	for name, path := range files {
		terms, err := loadTermFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: domain %s", name)
		}
		if len(terms) == 0 {
			return nil, eris.Errorf("registry: domain %s has no terms (%s)", name, path)
		}
		domains = append(domains, model.Domain{Name: name, Terms: terms})
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].Name < domains[j].Name })
	return domains, nil
}

func loadTermFile(path string) ([]model.DomainTerm, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadTermsYAML(path)
	case ".csv":
		return loadTermsCSV(path)
	default:
		return nil, eris.Errorf("unsupported term-list format: %s", path)
	}
}

// loadTermsYAML accepts either a list of {term, weight} mappings or a list of
// bare strings; bare strings get weight 1.
func loadTermsYAML(path string) ([]model.DomainTerm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var doc struct {
		Terms []yaml.Node `yaml:"terms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}

	terms := make([]model.DomainTerm, 0, len(doc.Terms))
	for _, node := range doc.Terms {
		switch node.Kind {
		case yaml.ScalarNode:
			var s string
			if err := node.Decode(&s); err != nil {
				return nil, eris.Wrapf(err, "parse %s", path)
			}
			terms = append(terms, model.DomainTerm{Term: s, Weight: 1})
		default:
			var t model.DomainTerm
			if err := node.Decode(&t); err != nil {
				return nil, eris.Wrapf(err, "parse %s", path)
			}
			if t.Weight == 0 {
				t.Weight = 1
			}
			terms = append(terms, t)
		}
	}
	return terms, nil
}

// loadTermsCSV reads term[,weight] rows. A header row starting with "term"
// is skipped; a missing weight column defaults to 1.
func loadTermsCSV(path string) ([]model.DomainTerm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}

	var terms []model.DomainTerm
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "term") {
			continue
		}
		t := model.DomainTerm{Term: strings.TrimSpace(row[0]), Weight: 1}
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			w, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "%s row %d: bad weight", path, i+1)
			}
			t.Weight = w
		}
		terms = append(terms, t)
	}
	return terms, nil
}
