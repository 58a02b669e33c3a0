package enrich

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/scoring"
	"github.com/sells-group/lead-enrich/internal/source"
	"github.com/sells-group/lead-enrich/internal/store"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeAgent struct {
	name model.Source
	fn   func(ctx context.Context, c model.Company) model.SearchOutcome

	mu      sync.Mutex
	calls   int
	cleaned int
}

func (a *fakeAgent) Name() model.Source { return a.name }

func (a *fakeAgent) Search(ctx context.Context, c model.Company) model.SearchOutcome {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.fn(ctx, c)
}

func (a *fakeAgent) Cleanup() {
	a.mu.Lock()
	a.cleaned++
	a.mu.Unlock()
}

func (a *fakeAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func returning(contacts ...model.RawContact) func(context.Context, model.Company) model.SearchOutcome {
	return func(context.Context, model.Company) model.SearchOutcome {
		return model.Found(contacts)
	}
}

func conf(v float64) *float64 { return &v }

// testConfig uses equal source weights and retries without sleeping.
func testConfig(t *testing.T) Config {
	t.Helper()
	sc := scoring.Default()
	sc.SourceWeights = map[model.Source]float64{
		model.SourceApollo:      1.0,
		model.SourceRocketReach: 1.0,
	}
	cfg := DefaultConfig()
	cfg.Scoring = sc
	cfg.ExportDir = t.TempDir()
	cfg.Retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

func newTestStore(t *testing.T) store.ResultStore {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return st
}

func newTestOrchestrator(t *testing.T, cfg Config, st store.ResultStore, agents ...source.Agent) *Orchestrator {
	t.Helper()
	o := New(Deps{Agents: source.NewRegistry(agents...), Store: st}, cfg, WithNow(func() time.Time { return fixedNow }))
	t.Cleanup(func() { o.Cleanup(context.Background()) })
	return o
}

// johnDoe returns the two agreeing candidates reported for Acme.
func johnDoe() (*fakeAgent, *fakeAgent) {
	apollo := &fakeAgent{name: model.SourceApollo, fn: returning(model.RawContact{
		Name: "John Doe", Title: "CFO", Email: "john@acme.com", Confidence: conf(0.9),
	})}
	rr := &fakeAgent{name: model.SourceRocketReach, fn: returning(model.RawContact{
		Name: "john doe", Title: "Chief Financial Officer", Email: "john@acme.com", Confidence: conf(0.9),
	})}
	return apollo, rr
}
