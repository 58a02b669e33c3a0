// Package validation scores emails, navigation actions and contact records,
// and learns per-domain email local-part patterns as it goes.
package validation

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// DefaultConfidenceThreshold is the minimum confidence for ValidateResult
// and CrossValidate to accept.
const DefaultConfidenceThreshold = 0.8

// Result is the outcome of a single validation.
type Result struct {
	Valid      bool      `json:"is_valid"`
	Confidence float64   `json:"confidence"`
	Errors     []string  `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
}

// Metrics counts validations performed by a Service.
type Metrics struct {
	Total            int     `json:"total_validations"`
	Successful       int     `json:"successful_validations"`
	Failed           int     `json:"failed_validations"`
	SuccessRate      float64 `json:"success_rate"`
	PatternCacheSize int     `json:"pattern_cache_size"`
	HistorySize      int     `json:"history_size"`
}

// Service validates emails, actions and results. It is safe for concurrent use.
type Service struct {
	mu        sync.Mutex
	threshold float64
	now       func() time.Time

	patterns     *patternSet
	patternsPath string

	history map[string]Result // last email validation, keyed by lowercased address

	total, successful, failed int
}

// Option configures a Service.
type Option func(*Service)

// WithPatternsFile sets where learned patterns are loaded from and flushed to.
func WithPatternsFile(path string) Option {
	return func(s *Service) { s.patternsPath = path }
}

// WithConfidenceThreshold overrides DefaultConfidenceThreshold.
func WithConfidenceThreshold(t float64) Option {
	return func(s *Service) { s.threshold = t }
}

// WithNow sets the clock used for result timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(opts ...Option) *Service {
	s := &Service{
		threshold: DefaultConfidenceThreshold,
		now:       time.Now,
		patterns:  newPatternSet(),
		history:   make(map[string]Result),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidateResult checks a contact record given as field name → value. It
// returns the confidence and true when the record is valid with confidence at
// or above the service threshold; otherwise 0 and false.
//
// Recognised fields: name, title, company (required), email and
// company_domain (optional).
func (s *Service) ValidateResult(record map[string]string) (float64, bool) {
	var errs []string
	confidence := 1.0

	for _, field := range []string{"name", "title", "company"} {
		if _, ok := record[field]; !ok {
			errs = append(errs, "missing required field: "+field)
			confidence *= 0.5
		}
	}

	if name, ok := record["name"]; ok && !ValidatePersonName(name) {
		errs = append(errs, "invalid person name format")
		confidence *= 0.7
	}

	if email, ok := record["email"]; ok {
		ev := s.ValidateEmail(email, record["company_domain"])
		if !ev.Valid {
			errs = append(errs, ev.Errors...)
			confidence *= ev.Confidence
		}
	}

	if company, ok := record["company"]; ok && utf8.RuneCountInString(strings.TrimSpace(company)) < 2 {
		errs = append(errs, "invalid company name")
		confidence *= 0.8
	}

	res := s.finish(errs, confidence)
	if res.Valid && res.Confidence >= s.threshold {
		return res.Confidence, true
	}
	return 0, false
}

// ValidatePersonName reports whether name has at least two parts, each at
// least two characters long and starting with an upper-case letter.
func ValidatePersonName(name string) bool {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		first, _ := utf8.DecodeRuneInString(p)
		if utf8.RuneCountInString(p) < 2 || !unicode.IsUpper(first) {
			return false
		}
	}
	return true
}

// Evidence is what one source reported about a contact's email.
type Evidence struct {
	SourceName   string
	Email        string
	EmailPattern string
}

// CrossValidate scores email against each source's evidence: an exact match
// counts 1.0, a match of the source's pattern 0.8, anything else 0. The
// result is valid when the mean reaches the service threshold.
func (s *Service) CrossValidate(email string, sources []Evidence) Result {
	var errs []string
	var sum float64
	for _, src := range sources {
		switch {
		case strings.EqualFold(email, src.Email):
			sum += 1.0
		case src.EmailPattern != "" && matchPrefix(src.EmailPattern, email):
			sum += 0.8
		default:
			errs = append(errs, "mismatch with source: "+src.SourceName)
		}
	}

	var avg float64
	if len(sources) > 0 {
		avg = sum / float64(len(sources))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res := Result{Valid: avg >= s.threshold, Confidence: avg, Errors: errs, Timestamp: s.now()}
	s.count(res.Valid)
	return res
}

// Metrics returns a snapshot of validation counters.
func (s *Service) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		Total:            s.total,
		Successful:       s.successful,
		Failed:           s.failed,
		PatternCacheSize: s.patterns.len(),
		HistorySize:      len(s.history),
	}
	if s.total > 0 {
		m.SuccessRate = float64(s.successful) / float64(s.total)
	}
	return m
}

// finish builds a Result from accumulated errors and records it in metrics.
func (s *Service) finish(errs []string, confidence float64) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := Result{Valid: len(errs) == 0, Confidence: confidence, Errors: errs, Timestamp: s.now()}
	s.count(res.Valid)
	return res
}

// count must be called with mu held.
func (s *Service) count(valid bool) {
	s.total++
	if valid {
		s.successful++
	} else {
		s.failed++
	}
}
