package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/resilience"
	"github.com/sells-group/lead-enrich/internal/source"
)

// sourceRun is one agent's contribution to an enrichment call.
type sourceRun struct {
	source   model.Source
	contacts []model.RawContact
	metrics  model.SourceMetrics
	err      error
}

// dispatch queries every registered agent concurrently and returns one run
// per agent in registry order. A failing agent never affects the others.
func (o *Orchestrator) dispatch(ctx context.Context, company model.Company) []sourceRun {
	agents := o.deps.Agents.Agents()
	runs := make([]sourceRun, len(agents))

	var g errgroup.Group
	for i, a := range agents {
		g.Go(func() error {
			runs[i] = o.runAgent(ctx, a, company)
			return nil // a source failure is recorded on its run
		})
	}
	_ = g.Wait()
	return runs
}

// runAgent searches one agent under the shared rate limiter, the agent's
// circuit breaker and the retry policy. The concurrency slot is held across
// every retry; each retry takes its own rate token.
func (o *Orchestrator) runAgent(ctx context.Context, a source.Agent, company model.Company) (run sourceRun) {
	name := a.Name()
	run.source = name
	start := o.now()
	log := zap.L().With(zap.String("source", string(name)), zap.String("company", company.Name))

	defer func() {
		if r := recover(); r != nil {
			log.Error("enrich: agent panic", zap.Any("panic", r))
			run.err = fmt.Errorf("agent panic: %v", r)
			run.metrics.Errors++
			o.metrics.sourceError(name)
		}
		run.metrics.DurationMS = o.now().Sub(start).Milliseconds()
	}()

	if err := o.deps.Limiter.Acquire(ctx); err != nil {
		run.err = eris.Wrap(err, "acquire rate limit")
		run.metrics.Errors++
		o.metrics.sourceError(name)
		return run
	}
	defer o.deps.Limiter.Release()

	retry := o.cfg.Retry
	userHook := retry.OnRetry
	logRetry := resilience.RetryLogger(string(name), "search")
	retry.OnRetry = func(attempt int, err error) {
		run.metrics.Retries++
		o.metrics.sourceRetry(name)
		logRetry(attempt, err)
		if userHook != nil {
			userHook(attempt, err)
		}
	}

	breaker := o.deps.Breakers.Get(string(name))
	contacts, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.RawContact, error) {
		if run.metrics.Attempts > 0 {
			if err := o.deps.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		run.metrics.Attempts++
		found, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) ([]model.RawContact, error) {
			out := a.Search(ctx, company)
			if out.Kind() == model.OutcomeTransportError {
				return nil, out.Err()
			}
			return out.Contacts(), nil
		})
		if err != nil {
			run.metrics.Errors++
			o.metrics.sourceError(name)
			if rateLimited(err) {
				o.deps.Limiter.OnRateLimit()
			}
			return nil, err
		}
		o.deps.Limiter.OnSuccess()
		return found, nil
	})
	if err != nil {
		run.err = err
		log.Warn("enrich: source failed", zap.Int("attempts", run.metrics.Attempts), zap.Error(err))
		return run
	}

	for i := range contacts {
		if contacts[i].Source == "" {
			contacts[i].Source = name
		}
	}
	run.contacts = contacts
	run.metrics.Contacts = len(contacts)
	log.Debug("enrich: source returned", zap.Int("contacts", len(contacts)))
	return run
}

func rateLimited(err error) bool {
	var te *resilience.TransientError
	return errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests
}
