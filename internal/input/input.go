// Package input reads company lists for batch enrichment from CSV, XLSX
// and JSON files.
package input

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/pkg/notion"
)

var (
	nameColumns   = []string{"company", "company_name", "name", "account", "account_name"}
	domainColumns = []string{"domain", "website", "url", "company_domain"}
)

// ReadCompanies loads companies from path, picking the parser by file
// extension. Tabular files may carry a header naming the company and
// domain columns; without one the first two columns are used. Rows with
// no company name are skipped, as are repeats of an earlier company.
func ReadCompanies(ctx context.Context, path string) ([]model.Company, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(ctx, path)
	case ".xlsx":
		rows, err = readXLSX(path, "")
	case ".json":
		return readJSON(path)
	default:
		return nil, eris.Errorf("input: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return companiesFromRows(rows), nil
}

func companiesFromRows(rows [][]string) []model.Company {
	if len(rows) == 0 {
		return nil
	}

	nameIdx, domainIdx, header := columns(rows[0])
	if header {
		rows = rows[1:]
	}

	var out []model.Company
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		c := model.Company{Name: cell(row, nameIdx), Domain: notion.DomainFromURL(cell(row, domainIdx))}
		out = appendUnique(out, seen, c)
	}
	return out
}

// columns locates the company and domain columns in a header row. It
// reports header=false when the row does not name a company column.
func columns(first []string) (nameIdx, domainIdx int, header bool) {
	nameIdx, domainIdx = -1, -1
	for i, h := range first {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.ReplaceAll(h, " ", "_")
		if nameIdx < 0 && contains(nameColumns, h) {
			nameIdx = i
		}
		if domainIdx < 0 && contains(domainColumns, h) {
			domainIdx = i
		}
	}
	if nameIdx < 0 {
		return 0, 1, false
	}
	return nameIdx, domainIdx, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.Trim(strings.TrimSpace(row[i]), `"`)
}

func appendUnique(out []model.Company, seen map[string]struct{}, c model.Company) []model.Company {
	if c.Name == "" {
		return out
	}
	key := model.NormalizeName(c.Name) + "|" + strings.ToLower(c.Domain)
	if _, dup := seen[key]; dup {
		return out
	}
	seen[key] = struct{}{}
	return append(out, c)
}

func readJSON(path string) ([]model.Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "input: read %s", path)
	}
	var raw []model.Company
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "input: parse %s", path)
	}

	var out []model.Company
	seen := make(map[string]struct{}, len(raw))
	for _, c := range raw {
		c.Name = strings.TrimSpace(c.Name)
		c.Domain = notion.DomainFromURL(c.Domain)
		out = appendUnique(out, seen, c)
	}
	return out, nil
}
