package enrich

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/model"
)

// Export formats.
const (
	FormatCSV   = "csv"
	FormatExcel = "excel"
)

// ExportOptions controls ExportResults.
type ExportOptions struct {
	// Format is "csv" (default) or "excel"/"xlsx".
	Format string
	// Path is the output file. Empty picks a timestamped name in the
	// export directory.
	Path           string
	IncludeMetrics bool
}

var (
	baseHeader   = []string{"company_name", "person_name", "title", "email", "confidence", "sources", "validated", "cross_validated", "validation_score", "found_at"}
	metricHeader = []string{"processing_time", "retry_count", "error_count"}
)

// ExportResults writes every stored result to a CSV file or a two-sheet
// spreadsheet and returns the written path. It returns "" when there is
// nothing to export or the export fails.
func (o *Orchestrator) ExportResults(ctx context.Context, opts ExportOptions) string {
	log := zap.L().With(zap.String("format", opts.Format))
	if o.deps.Store == nil {
		log.Warn("enrich: export skipped, no result store")
		return ""
	}

	records, err := o.deps.Store.AllResults(ctx)
	if err != nil {
		log.Error("enrich: export failed to load results", zap.Error(err))
		return ""
	}
	if len(records) == 0 {
		log.Info("enrich: nothing to export")
		return ""
	}

	rows := make([]model.ExportRow, len(records))
	for i, r := range records {
		rows[i] = r.ExportRow(opts.IncludeMetrics)
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	ext := "csv"
	switch format {
	case "", FormatCSV:
		format = FormatCSV
	case FormatExcel, "xlsx":
		format = FormatExcel
		ext = "xlsx"
	default:
		log.Error("enrich: unsupported export format")
		return ""
	}

	path := opts.Path
	if path == "" {
		path = filepath.Join(o.cfg.ExportDir, fmt.Sprintf("enrichment_results_%s.%s", o.now().Format("20060102_150405"), ext))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Error("enrich: create export dir", zap.Error(err))
		return ""
	}

	if format == FormatExcel {
		err = writeXLSX(path, rows, opts.IncludeMetrics, o.Metrics())
	} else {
		err = writeCSV(path, rows, opts.IncludeMetrics)
	}
	if err != nil {
		log.Error("enrich: export failed", zap.String("path", path), zap.Error(err))
		return ""
	}

	log.Info("enrich: exported results", zap.String("path", path), zap.Int("rows", len(rows)))
	return path
}

func header(includeMetrics bool) []string {
	h := append([]string(nil), baseHeader...)
	if includeMetrics {
		h = append(h, metricHeader...)
	}
	return h
}

func fields(r model.ExportRow, includeMetrics bool) []string {
	f := []string{
		r.CompanyName,
		r.PersonName,
		r.Title,
		r.Email,
		strconv.FormatFloat(r.Confidence, 'f', 4, 64),
		r.Sources,
		strconv.FormatBool(r.Validated),
		strconv.FormatBool(r.CrossValidated),
		strconv.FormatFloat(r.ValidationScore, 'f', 2, 64),
		r.FoundAt.UTC().Format(time.RFC3339),
	}
	if includeMetrics {
		f = append(f,
			strconv.FormatFloat(r.ProcessingTime, 'f', 3, 64),
			strconv.Itoa(r.RetryCount),
			strconv.Itoa(r.ErrorCount),
		)
	}
	return f
}

func writeCSV(path string, rows []model.ExportRow, includeMetrics bool) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create csv")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(header(includeMetrics)); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for _, r := range rows {
		if err := w.Write(fields(r, includeMetrics)); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "flush csv")
	}
	return eris.Wrap(f.Close(), "close csv")
}

func writeXLSX(path string, rows []model.ExportRow, includeMetrics bool, m MetricsSnapshot) error {
	f := xlsx.NewFile()

	results, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "add results sheet")
	}
	addRow(results, header(includeMetrics))
	for _, r := range rows {
		addRow(results, fields(r, includeMetrics))
	}

	summary, err := f.AddSheet("Metrics")
	if err != nil {
		return eris.Wrap(err, "add metrics sheet")
	}
	addRow(summary, []string{"metric", "value"})
	for _, kv := range metricRows(m) {
		addRow(summary, kv)
	}

	return eris.Wrap(f.Save(path), "save xlsx")
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// metricRows flattens a snapshot into metric/value pairs.
func metricRows(m MetricsSnapshot) [][]string {
	ftoa := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	out := [][]string{
		{"total_searches", strconv.Itoa(m.TotalSearches)},
		{"successful_searches", strconv.Itoa(m.SuccessfulSearches)},
		{"failed_searches", strconv.Itoa(m.FailedSearches)},
		{"total_results", strconv.Itoa(m.TotalResults)},
		{"cross_validated_results", strconv.Itoa(m.CrossValidatedResults)},
		{"cache_hits", strconv.Itoa(m.CacheHits)},
		{"cache_misses", strconv.Itoa(m.CacheMisses)},
		{"cache_hit_rate", ftoa(m.CacheHitRate)},
		{"validation_rate", ftoa(m.ValidationRate)},
		{"avg_processing_time", ftoa(m.AvgProcessingTime)},
	}
	for _, s := range sortedSources(m.SourceErrors) {
		out = append(out, []string{"errors." + string(s), strconv.Itoa(m.SourceErrors[s])})
	}
	for _, s := range sortedSources(m.SourceRetries) {
		out = append(out, []string{"retries." + string(s), strconv.Itoa(m.SourceRetries[s])})
	}
	return out
}

func sortedSources(m map[model.Source]int) []model.Source {
	out := make([]model.Source, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
