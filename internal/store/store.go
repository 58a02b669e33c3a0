// Package store persists validated contacts, one record per
// (company, person), keeping the best version of each.
package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/model"
)

// ErrNotFound is returned when a key has no stored record.
var ErrNotFound = eris.New("store: result not found")

// ValidationStatus describes how far a stored contact was validated.
type ValidationStatus string

const (
	StatusPending        ValidationStatus = "pending"
	StatusValidated      ValidationStatus = "validated"
	StatusCrossValidated ValidationStatus = "cross_validated"
)

// Metadata carries enrichment details alongside a stored contact.
type Metadata struct {
	RunID           string         `json:"run_id,omitempty"`
	Sources         []model.Source `json:"sources"`
	Validated       bool           `json:"validated"`
	CrossValidated  bool           `json:"cross_validated"`
	ValidationScore float64        `json:"validation_score"`
	ProcessingTime  float64        `json:"processing_time"`
	RetryCount      int            `json:"retry_count"`
	ErrorCount      int            `json:"error_count"`
}

// Record is one stored contact.
type Record struct {
	CompanyName      string           `json:"company_name"`
	PersonName       string           `json:"person_name"`
	Title            string           `json:"title"`
	Email            string           `json:"email"`
	Confidence       float64          `json:"confidence"`
	Source           model.Source     `json:"source"`
	FoundAt          time.Time        `json:"found_at"`
	Metadata         Metadata         `json:"metadata"`
	ValidationStatus ValidationStatus `json:"validation_status"`
}

// Key returns the record's storage key.
func (r Record) Key() string {
	return ResultKey(r.CompanyName, r.PersonName)
}

// ExportRow flattens r for export.
func (r Record) ExportRow(includeMetrics bool) model.ExportRow {
	row := model.ExportRow{
		CompanyName:     r.CompanyName,
		PersonName:      r.PersonName,
		Title:           r.Title,
		Email:           r.Email,
		Confidence:      r.Confidence,
		Validated:       r.Metadata.Validated,
		CrossValidated:  r.Metadata.CrossValidated,
		ValidationScore: r.Metadata.ValidationScore,
		FoundAt:         r.FoundAt,
	}
	names := make([]string, len(r.Metadata.Sources))
	for i, s := range r.Metadata.Sources {
		names[i] = string(s)
	}
	row.Sources = strings.Join(names, ",")
	if includeMetrics {
		row.ProcessingTime = r.Metadata.ProcessingTime
		row.RetryCount = r.Metadata.RetryCount
		row.ErrorCount = r.Metadata.ErrorCount
	}
	return row
}

// ResultKey builds the storage key: lower-cased company and person joined by
// an underscore, with spaces replaced by underscores.
func ResultKey(company, person string) string {
	return strings.ReplaceAll(strings.ToLower(company)+"_"+strings.ToLower(person), " ", "_")
}

// ShouldUpdate reports whether incoming should replace existing: it has
// higher confidence, or it has an email where existing has none, or it has
// equal confidence and was found later.
func ShouldUpdate(existing, incoming Record) bool {
	switch {
	case incoming.Confidence > existing.Confidence:
		return true
	case incoming.Email != "" && existing.Email == "":
		return true
	case incoming.Confidence == existing.Confidence && incoming.FoundAt.After(existing.FoundAt):
		return true
	default:
		return false
	}
}

// Stats summarises store contents.
type Stats struct {
	TotalResults      int     `json:"total_results"`
	TotalCompanies    int     `json:"total_companies"`
	ResultsWithEmail  int     `json:"results_with_email"`
	AverageConfidence float64 `json:"average_confidence"`
	StorageSizeMB     float64 `json:"storage_size_mb"`
}

// ResultStore persists contact records.
type ResultStore interface {
	// AddResult stores r if its key is new or ShouldUpdate allows replacing
	// the stored version. It reports whether anything changed.
	AddResult(ctx context.Context, r Record) (bool, error)
	GetResult(ctx context.Context, key string) (*Record, error)
	GetCompanyResults(ctx context.Context, company string) ([]Record, error)
	AllResults(ctx context.Context) ([]Record, error)
	RemoveResult(ctx context.Context, key string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (ResultStore, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "sqlite":
		st, err := NewSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// sortRecords orders by company, then confidence descending, then person.
func sortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		ci, cj := strings.ToLower(rs[i].CompanyName), strings.ToLower(rs[j].CompanyName)
		if ci != cj {
			return ci < cj
		}
		if rs[i].Confidence != rs[j].Confidence {
			return rs[i].Confidence > rs[j].Confidence
		}
		return rs[i].PersonName < rs[j].PersonName
	})
}

func summarize(rs []Record, sizeBytes int64) Stats {
	companies := make(map[string]struct{})
	st := Stats{TotalResults: len(rs), StorageSizeMB: float64(sizeBytes) / (1024 * 1024)}
	var sum float64
	for _, r := range rs {
		companies[strings.ToLower(r.CompanyName)] = struct{}{}
		if r.Email != "" {
			st.ResultsWithEmail++
		}
		sum += r.Confidence
	}
	st.TotalCompanies = len(companies)
	if len(rs) > 0 {
		st.AverageConfidence = sum / float64(len(rs))
	}
	return st
}
