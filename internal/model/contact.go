package model

import (
	"sort"
	"strings"
	"time"
)

// RawContact is a single contact candidate as reported by one source.
type RawContact struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Email      string   `json:"email"`
	Confidence *float64 `json:"confidence,omitempty"`
	Source     Source   `json:"source"`
}

// MergedContact is a contact after deduplication across sources.
type MergedContact struct {
	Name            string   `json:"name"`
	Title           string   `json:"title"`
	Email           string   `json:"email"`
	Confidence      float64  `json:"confidence"`
	Source          Source   `json:"source"` // highest-weighted contributing source
	Sources         []Source `json:"sources"`
	Validated       bool     `json:"validated"`
	CrossValidated  bool     `json:"cross_validated"`
	ValidationScore float64  `json:"validation_score"`
}

// HasSource reports whether s already contributed to the contact.
func (c *MergedContact) HasSource(s Source) bool {
	for _, existing := range c.Sources {
		if existing == s {
			return true
		}
	}
	return false
}

// AddSource adds s to the contributing sources, keeping them sorted and unique.
func (c *MergedContact) AddSource(s Source) {
	if c.HasSource(s) {
		return
	}
	c.Sources = append(c.Sources, s)
	sort.Slice(c.Sources, func(i, j int) bool { return c.Sources[i] < c.Sources[j] })
}

// SourceNames returns the contributing sources joined with sep.
func (c *MergedContact) SourceNames(sep string) string {
	names := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		names[i] = string(s)
	}
	return strings.Join(names, sep)
}

// ExportRow is the flattened form of a stored result written by exports.
type ExportRow struct {
	CompanyName     string    `json:"company_name"`
	PersonName      string    `json:"person_name"`
	Title           string    `json:"title"`
	Email           string    `json:"email"`
	Confidence      float64   `json:"confidence"`
	Sources         string    `json:"sources"`
	Validated       bool      `json:"validated"`
	CrossValidated  bool      `json:"cross_validated"`
	ValidationScore float64   `json:"validation_score"`
	FoundAt         time.Time `json:"found_at"`

	// Populated only when metrics are included in the export.
	ProcessingTime float64 `json:"processing_time,omitempty"`
	RetryCount     int     `json:"retry_count,omitempty"`
	ErrorCount     int     `json:"error_count,omitempty"`
}
