package model

import "time"

// EnrichmentStage is the pipeline stage an enrichment call has reached.
type EnrichmentStage string

const (
	StageInitializing EnrichmentStage = "initializing"
	StageSearching    EnrichmentStage = "searching"
	StageMerging      EnrichmentStage = "merging"
	StageValidating   EnrichmentStage = "validating"
	StageStoring      EnrichmentStage = "storing"
	StageComplete     EnrichmentStage = "complete"
)

// EnrichmentStatus is the coarse status of an enrichment call.
type EnrichmentStatus string

const (
	StatusRunning EnrichmentStatus = "running"
	StatusSuccess EnrichmentStatus = "success"
	StatusFailed  EnrichmentStatus = "failed"
)

// EnrichmentState tracks one in-flight enrichment call.
type EnrichmentState struct {
	CompanyName       string           `json:"company_name"`
	Domain            string           `json:"domain"`
	Stage             EnrichmentStage  `json:"stage"`
	Status            EnrichmentStatus `json:"status"`
	SourcesCompleted  []Source         `json:"sources_completed"`
	ResultsFound      int              `json:"results_found"`
	Contacts          []MergedContact  `json:"contacts"`
	ValidatedContacts []MergedContact  `json:"validated_contacts"`
	Errors            []string         `json:"errors"`
	RetryCounts       map[Source]int   `json:"retry_counts"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           *time.Time       `json:"end_time,omitempty"`
}

// NewEnrichmentState returns a running state for company.
func NewEnrichmentState(company, domain string, now time.Time) *EnrichmentState {
	return &EnrichmentState{
		CompanyName: company,
		Domain:      domain,
		Stage:       StageInitializing,
		Status:      StatusRunning,
		RetryCounts: make(map[Source]int),
		StartTime:   now,
	}
}

// Advance moves the state to stage.
func (s *EnrichmentState) Advance(stage EnrichmentStage) {
	s.Stage = stage
}

// SourceDone records that src finished, successfully or not, after retries
// retry attempts.
func (s *EnrichmentState) SourceDone(src Source, retries int) {
	s.SourcesCompleted = append(s.SourcesCompleted, src)
	if s.RetryCounts == nil {
		s.RetryCounts = make(map[Source]int)
	}
	s.RetryCounts[src] += retries
}

// AddError records a non-fatal error.
func (s *EnrichmentState) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// Finish stamps the end time. A successful call moves to the complete
// stage; a failed one stays at the stage where it stopped.
func (s *EnrichmentState) Finish(failed bool, now time.Time) {
	if failed {
		s.Status = StatusFailed
	} else {
		s.Stage = StageComplete
		s.Status = StatusSuccess
	}
	s.EndTime = &now
}

// Clone returns a copy that shares no slices or maps with s.
func (s *EnrichmentState) Clone() EnrichmentState {
	c := *s
	c.SourcesCompleted = append([]Source(nil), s.SourcesCompleted...)
	c.Contacts = cloneContacts(s.Contacts)
	c.ValidatedContacts = cloneContacts(s.ValidatedContacts)
	c.Errors = append([]string(nil), s.Errors...)
	c.RetryCounts = make(map[Source]int, len(s.RetryCounts))
	for k, v := range s.RetryCounts {
		c.RetryCounts[k] = v
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return c
}

// SourceMetrics summarises one source's work within an enrichment call.
type SourceMetrics struct {
	Attempts   int   `json:"attempts"`
	Retries    int   `json:"retries"`
	Errors     int   `json:"errors"`
	Contacts   int   `json:"contacts"`
	DurationMS int64 `json:"duration_ms"`
}

// ValidationScores summarises validation scores of the returned contacts.
type ValidationScores struct {
	Average   float64            `json:"average"`
	Min       float64            `json:"min"`
	Max       float64            `json:"max"`
	ByContact map[string]float64 `json:"by_contact,omitempty"`
}

// PerformanceMetrics describes the cost of one enrichment call.
type PerformanceMetrics struct {
	ProcessingTime float64 `json:"processing_time"`
	CacheHit       bool    `json:"cache_hit"`
	RetryCount     int     `json:"retry_count"`
	ErrorCount     int     `json:"error_count"`
	SourcesQueried int     `json:"sources_queried"`
	SourcesFailed  int     `json:"sources_failed"`
}

// EnrichmentResult is the outcome of enriching one company.
type EnrichmentResult struct {
	CompanyName        string                   `json:"company_name"`
	Domain             string                   `json:"domain,omitempty"`
	Contacts           []MergedContact          `json:"contacts"`
	FoundAt            time.Time                `json:"found_at"`
	SourceMetrics      map[Source]SourceMetrics `json:"source_metrics"`
	ValidationScores   ValidationScores         `json:"validation_scores"`
	PerformanceMetrics PerformanceMetrics       `json:"performance_metrics"`
	ProcessingTime     float64                  `json:"processing_time"`
	ErrorDetails       string                   `json:"error_details,omitempty"`
}

// Failed reports whether the call ended in a catastrophic failure.
func (r *EnrichmentResult) Failed() bool {
	return r.ErrorDetails != ""
}

// Clone returns a deep copy of r.
func (r EnrichmentResult) Clone() EnrichmentResult {
	c := r
	c.Contacts = cloneContacts(r.Contacts)
	if r.SourceMetrics != nil {
		c.SourceMetrics = make(map[Source]SourceMetrics, len(r.SourceMetrics))
		for k, v := range r.SourceMetrics {
			c.SourceMetrics[k] = v
		}
	}
	if r.ValidationScores.ByContact != nil {
		c.ValidationScores.ByContact = make(map[string]float64, len(r.ValidationScores.ByContact))
		for k, v := range r.ValidationScores.ByContact {
			c.ValidationScores.ByContact[k] = v
		}
	}
	return c
}

func cloneContacts(in []MergedContact) []MergedContact {
	if in == nil {
		return nil
	}
	out := make([]MergedContact, len(in))
	for i, mc := range in {
		mc.Sources = append([]Source(nil), mc.Sources...)
		out[i] = mc
	}
	return out
}
