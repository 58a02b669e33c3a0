// Package enrich finds, scores and validates decision-maker contacts for a
// company by fanning out to every registered source agent.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/lead-enrich/internal/cache"
	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/ratelimit"
	"github.com/sells-group/lead-enrich/internal/resilience"
	"github.com/sells-group/lead-enrich/internal/scoring"
	"github.com/sells-group/lead-enrich/internal/source"
	"github.com/sells-group/lead-enrich/internal/store"
	"github.com/sells-group/lead-enrich/internal/validation"
)

// Validator is the part of the validation service the orchestrator uses.
type Validator interface {
	ValidateEmail(email, domain string) validation.Result
	History(email string) (validation.Result, bool)
	Metrics() validation.Metrics
	FlushPatterns() error
}

// Deps are the orchestrator's collaborators. Agents is required; nil
// fields otherwise fall back to in-memory defaults, and a nil Store
// disables persistence.
type Deps struct {
	Agents    *source.Registry
	Store     store.ResultStore
	Cache     cache.Cache[model.EnrichmentResult]
	Validator Validator
	Limiter   *ratelimit.Limiter
	Breakers  *resilience.ServiceBreakers
}

// Config tunes the pipeline.
type Config struct {
	Scoring       scoring.Config
	Retry         resilience.RetryConfig
	CacheTTL      time.Duration
	ExportDir     string
	MaxConcurrent int
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		Scoring:       scoring.Default(),
		Retry:         resilience.DefaultRetryConfig(),
		CacheTTL:      cache.DefaultTTL,
		ExportDir:     "exports",
		MaxConcurrent: 3,
	}
}

// ConfigFrom builds a pipeline Config from application config.
func ConfigFrom(cfg *config.Config, sc scoring.Config) Config {
	return Config{
		Scoring:       sc,
		Retry:         resilience.FromRetryConfig(cfg.Retry),
		CacheTTL:      cfg.Cache.TTL(),
		ExportDir:     cfg.Export.Dir,
		MaxConcurrent: cfg.Batch.MaxConcurrent,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNow overrides the clock used for timestamps and timings.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type inflightCall struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator runs enrichment calls. It is safe for concurrent use.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	now     func() time.Time
	flight  singleflight.Group
	metrics *metrics

	mu       sync.Mutex
	inflight map[uint64]inflightCall
	nextID   uint64
	states   map[string]model.EnrichmentState
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	if deps.Agents == nil {
		deps.Agents = source.NewRegistry()
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewService()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(ratelimit.Config{})
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Scoring.SourceWeights == nil {
		cfg.Scoring = scoring.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "exports"
	}

	o := &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		metrics:  newMetrics(),
		inflight: make(map[uint64]inflightCall),
		states:   make(map[string]model.EnrichmentState),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Cache == nil {
		o.deps.Cache = cache.NewMemory[model.EnrichmentResult](cfg.CacheTTL, cache.WithMemoryNow[model.EnrichmentResult](o.now))
	}
	return o
}

// EnrichCompany enriches one company. It never returns nil and never
// panics; failures are reported through the result's ErrorDetails.
// Concurrent calls for the same company, domain and refresh mode share one
// pipeline run and receive the same result.
func (o *Orchestrator) EnrichCompany(ctx context.Context, company, domain string, forceRefresh bool) *model.EnrichmentResult {
	key := cache.Key(company, domain)
	if forceRefresh {
		key += "|refresh"
	}
	v, _, _ := o.flight.Do(key, func() (any, error) {
		return o.enrich(ctx, company, domain, forceRefresh), nil
	})
	return v.(*model.EnrichmentResult)
}

// ProcessBatch enriches companies with at most maxConcurrent calls in
// flight. Each company fails in isolation. Results are keyed by company
// name. A non-positive maxConcurrent uses the configured default.
func (o *Orchestrator) ProcessBatch(ctx context.Context, companies []model.Company, maxConcurrent int) map[string]*model.EnrichmentResult {
	if maxConcurrent <= 0 {
		maxConcurrent = o.cfg.MaxConcurrent
	}
	log := zap.L().With(zap.Int("companies", len(companies)), zap.Int("max_concurrent", maxConcurrent))
	log.Info("enrich: batch started")

	var (
		mu      sync.Mutex
		results = make(map[string]*model.EnrichmentResult, len(companies))
		g       errgroup.Group
	)
	g.SetLimit(maxConcurrent)

	for _, c := range companies {
		g.Go(func() error {
			res := o.EnrichCompany(ctx, c.Name, c.Domain, false)
			mu.Lock()
			results[c.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed, found int
	for _, r := range results {
		if r.Failed() {
			failed++
		}
		found += len(r.Contacts)
	}
	log.Info("enrich: batch complete", zap.Int("failed", failed), zap.Int("contacts", found))
	return results
}

// ActiveStates returns a copy of every tracked enrichment state keyed by
// company and domain.
func (o *Orchestrator) ActiveStates() map[string]model.EnrichmentState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]model.EnrichmentState, len(o.states))
	for k, v := range o.states {
		out[k] = v
	}
	return out
}

// Cleanup cancels in-flight calls and waits for them, releases agent
// resources, clears the memory cache, sweeps stale disk cache entries,
// forgets tracked states and flushes learned email patterns. It is safe to
// call repeatedly.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	o.mu.Lock()
	calls := make([]inflightCall, 0, len(o.inflight))
	for _, c := range o.inflight {
		calls = append(calls, c)
	}
	o.mu.Unlock()

	for _, c := range calls {
		c.cancel()
	}
	for _, c := range calls {
		select {
		case <-c.done:
		case <-ctx.Done():
			zap.L().Warn("enrich: cleanup interrupted", zap.Error(ctx.Err()))
			return
		}
	}

	o.deps.Agents.Cleanup()

	if c, ok := o.deps.Cache.(cache.Clearer); ok {
		if err := c.Clear(ctx); err != nil {
			zap.L().Warn("enrich: clear cache", zap.Error(err))
		}
	}
	if s, ok := o.deps.Cache.(cache.Sweeper); ok {
		n, err := s.Sweep(ctx, o.cfg.CacheTTL)
		if err != nil {
			zap.L().Warn("enrich: sweep cache", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("enrich: removed stale cache entries", zap.Int("removed", n))
		}
	}

	o.mu.Lock()
	o.states = make(map[string]model.EnrichmentState)
	o.mu.Unlock()

	if err := o.deps.Validator.FlushPatterns(); err != nil {
		zap.L().Warn("enrich: flush email patterns", zap.Error(err))
	}
}

// track registers a cancellable call so Cleanup can stop it.
func (o *Orchestrator) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.inflight[id] = inflightCall{cancel: cancel, done: done}
	o.mu.Unlock()

	return ctx, func() {
		cancel()
		o.mu.Lock()
		delete(o.inflight, id)
		o.mu.Unlock()
		close(done)
	}
}

func (o *Orchestrator) recordState(key string, st *model.EnrichmentState) {
	snap := st.Clone()
	o.mu.Lock()
	o.states[key] = snap
	o.mu.Unlock()
}

// enrich runs the pipeline for one company.
func (o *Orchestrator) enrich(ctx context.Context, company, domain string, forceRefresh bool) (res *model.EnrichmentResult) {
	ctx, done := o.track(ctx)
	defer done()

	start := o.now()
	key := cache.Key(company, domain)
	log := zap.L().With(zap.String("company", company), zap.String("domain", domain))
	state := model.NewEnrichmentState(company, domain, start)

	defer func() {
		if r := recover(); r != nil {
			log.Error("enrich: panic recovered", zap.Any("panic", r), zap.Stack("stack"))
			res = o.fail(key, state, company, domain, start, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if !forceRefresh {
		cached, ok, err := o.deps.Cache.Get(ctx, key)
		if err != nil {
			log.Error("enrich: cache lookup failed", zap.Error(err))
			o.metrics.searchStarted()
			return o.fail(key, state, company, domain, start, "cache lookup: "+err.Error())
		}
		if ok {
			o.metrics.cacheHit()
			log.Debug("enrich: cache hit")
			hit := cached.Clone()
			hit.PerformanceMetrics.CacheHit = true
			return &hit
		}
	}
	o.metrics.cacheMiss()
	o.metrics.searchStarted()

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	target := model.Company{Name: company, Domain: domain}

	state.Advance(model.StageSearching)
	o.recordState(key, state)
	runs := o.dispatch(ctx, target)

	var retries, errs, failedSources int
	for _, r := range runs {
		retries += r.metrics.Retries
		errs += r.metrics.Errors
		state.SourceDone(r.source, r.metrics.Retries)
		if r.err != nil {
			failedSources++
			state.AddError(fmt.Sprintf("%s: %v", r.source, r.err))
		}
	}

	// A cancelled call saw no real source answers; neither cache nor store it.
	if err := ctx.Err(); err != nil {
		log.Warn("enrich: cancelled", zap.Error(err))
		return o.fail(key, state, company, domain, start, "cancelled: "+err.Error())
	}

	state.Advance(model.StageMerging)
	merged := o.merge(runs, target)
	ranked := o.rank(merged)
	state.Contacts = ranked
	o.recordState(key, state)

	state.Advance(model.StageValidating)
	contacts := ranked
	if o.cfg.Scoring.CrossValidation {
		contacts = o.crossValidate(ranked, target)
	}
	state.ValidatedContacts = contacts
	state.ResultsFound = len(contacts)
	o.recordState(key, state)

	state.Advance(model.StageStoring)
	now := o.now()
	elapsed := now.Sub(start).Seconds()
	o.persist(ctx, target, contacts, runID, now, elapsed, retries, errs, state, log)

	result := &model.EnrichmentResult{
		CompanyName:      company,
		Domain:           domain,
		Contacts:         contacts,
		FoundAt:          now,
		SourceMetrics:    make(map[model.Source]model.SourceMetrics, len(runs)),
		ValidationScores: validationScores(contacts),
		PerformanceMetrics: model.PerformanceMetrics{
			ProcessingTime: elapsed,
			RetryCount:     retries,
			ErrorCount:     errs,
			SourcesQueried: len(runs),
			SourcesFailed:  failedSources,
		},
		ProcessingTime: elapsed,
	}
	for _, r := range runs {
		result.SourceMetrics[r.source] = r.metrics
	}

	o.metrics.searchFinished(len(contacts), elapsed)
	state.Finish(false, now)
	o.recordState(key, state)

	if err := o.deps.Cache.Set(ctx, key, result.Clone()); err != nil {
		log.Warn("enrich: cache write failed", zap.Error(err))
	}

	log.Info("enrich: complete",
		zap.Int("contacts", len(contacts)),
		zap.Int("candidates", len(merged)),
		zap.Int("retries", retries),
		zap.Int("source_errors", errs),
		zap.Float64("processing_time", elapsed),
	)
	return result
}

// fail builds the result for a call that could not run the pipeline.
func (o *Orchestrator) fail(key string, state *model.EnrichmentState, company, domain string, start time.Time, details string) *model.EnrichmentResult {
	now := o.now()
	elapsed := now.Sub(start).Seconds()
	state.AddError(details)
	state.Finish(true, now)
	o.recordState(key, state)
	o.metrics.searchFailed(elapsed)

	return &model.EnrichmentResult{
		CompanyName:   company,
		Domain:        domain,
		Contacts:      []model.MergedContact{},
		FoundAt:       now,
		SourceMetrics: map[model.Source]model.SourceMetrics{},
		PerformanceMetrics: model.PerformanceMetrics{
			ProcessingTime: elapsed,
		},
		ProcessingTime: elapsed,
		ErrorDetails:   details,
	}
}

func (o *Orchestrator) persist(ctx context.Context, target model.Company, contacts []model.MergedContact, runID string,
	now time.Time, elapsed float64, retries, errs int, state *model.EnrichmentState, log *zap.Logger,
) {
	if o.deps.Store == nil {
		return
	}
	for _, c := range contacts {
		status := store.StatusValidated
		switch {
		case c.CrossValidated:
			status = store.StatusCrossValidated
		case !c.Validated:
			status = store.StatusPending
		}
		rec := store.Record{
			CompanyName: target.Name,
			PersonName:  c.Name,
			Title:       c.Title,
			Email:       c.Email,
			Confidence:  c.Confidence,
			Source:      c.Source,
			FoundAt:     now,
			Metadata: store.Metadata{
				RunID:           runID,
				Sources:         append([]model.Source(nil), c.Sources...),
				Validated:       c.Validated,
				CrossValidated:  c.CrossValidated,
				ValidationScore: c.ValidationScore,
				ProcessingTime:  elapsed,
				RetryCount:      retries,
				ErrorCount:      errs,
			},
			ValidationStatus: status,
		}
		if _, err := o.deps.Store.AddResult(ctx, rec); err != nil {
			log.Warn("enrich: store result failed", zap.String("person", c.Name), zap.Error(err))
			state.AddError("store: " + err.Error())
		}
	}
}
