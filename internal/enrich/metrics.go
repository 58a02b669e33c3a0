package enrich

import (
	"sync"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/validation"
)

// CrossValidationCounts counts cross-validation outcomes.
type CrossValidationCounts struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// MetricsSnapshot is a point-in-time copy of the orchestrator counters.
type MetricsSnapshot struct {
	TotalSearches         int                   `json:"total_searches"`
	SuccessfulSearches    int                   `json:"successful_searches"`
	FailedSearches        int                   `json:"failed_searches"`
	TotalResults          int                   `json:"total_results"`
	CrossValidatedResults int                   `json:"cross_validated_results"`
	CacheHits             int                   `json:"cache_hits"`
	CacheMisses           int                   `json:"cache_misses"`
	CacheHitRate          float64               `json:"cache_hit_rate"`
	ValidationRate        float64               `json:"validation_rate"`
	AvgProcessingTime     float64               `json:"avg_processing_time"`
	SourceErrors          map[model.Source]int  `json:"source_errors"`
	SourceRetries         map[model.Source]int  `json:"source_retries"`
	CrossValidations      CrossValidationCounts `json:"cross_validations"`
	CircuitStates         map[string]string     `json:"circuit_states"`
	Validation            validation.Metrics    `json:"validation"`
}

type metrics struct {
	mu sync.Mutex

	totalSearches, successful, failed int
	totalResults, crossValidated      int
	cacheHits, cacheMisses            int
	gateChecks, gatePassed            int
	processingTime                    float64
	timed                             int
	sourceErrors                      map[model.Source]int
	sourceRetries                     map[model.Source]int
	xv                                CrossValidationCounts
}

func newMetrics() *metrics {
	return &metrics{
		sourceErrors:  make(map[model.Source]int),
		sourceRetries: make(map[model.Source]int),
	}
}

func (m *metrics) searchStarted() {
	m.mu.Lock()
	m.totalSearches++
	m.mu.Unlock()
}

func (m *metrics) cacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *metrics) cacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

func (m *metrics) searchFinished(contacts int, elapsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contacts > 0 {
		m.successful++
	} else {
		m.failed++
	}
	m.totalResults += contacts
	m.processingTime += elapsed
	m.timed++
}

func (m *metrics) searchFailed(elapsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	m.processingTime += elapsed
	m.timed++
}

func (m *metrics) sourceError(s model.Source) {
	m.mu.Lock()
	m.sourceErrors[s]++
	m.mu.Unlock()
}

func (m *metrics) sourceRetry(s model.Source) {
	m.mu.Lock()
	m.sourceRetries[s]++
	m.mu.Unlock()
}

func (m *metrics) gate(passed bool) {
	m.mu.Lock()
	m.gateChecks++
	if passed {
		m.gatePassed++
	}
	m.mu.Unlock()
}

func (m *metrics) recordCrossValidation(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.xv.Successful++
		m.crossValidated++
	} else {
		m.xv.Failed++
	}
}

func (m *metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		TotalSearches:         m.totalSearches,
		SuccessfulSearches:    m.successful,
		FailedSearches:        m.failed,
		TotalResults:          m.totalResults,
		CrossValidatedResults: m.crossValidated,
		CacheHits:             m.cacheHits,
		CacheMisses:           m.cacheMisses,
		SourceErrors:          make(map[model.Source]int, len(m.sourceErrors)),
		SourceRetries:         make(map[model.Source]int, len(m.sourceRetries)),
		CrossValidations:      m.xv,
	}
	if lookups := m.cacheHits + m.cacheMisses; lookups > 0 {
		s.CacheHitRate = float64(m.cacheHits) / float64(lookups)
	}
	if m.gateChecks > 0 {
		s.ValidationRate = float64(m.gatePassed) / float64(m.gateChecks)
	}
	if m.timed > 0 {
		s.AvgProcessingTime = m.processingTime / float64(m.timed)
	}
	for k, v := range m.sourceErrors {
		s.SourceErrors[k] = v
	}
	for k, v := range m.sourceRetries {
		s.SourceRetries[k] = v
	}
	return s
}

// Metrics returns the current counters together with circuit breaker
// states and validation service counters.
func (o *Orchestrator) Metrics() MetricsSnapshot {
	s := o.metrics.snapshot()
	s.CircuitStates = o.deps.Breakers.States()
	s.Validation = o.deps.Validator.Metrics()
	return s
}
