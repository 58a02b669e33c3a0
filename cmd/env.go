package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/cache"
	"github.com/sells-group/lead-enrich/internal/enrich"
	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/ratelimit"
	"github.com/sells-group/lead-enrich/internal/resilience"
	"github.com/sells-group/lead-enrich/internal/scoring"
	"github.com/sells-group/lead-enrich/internal/source"
	"github.com/sells-group/lead-enrich/internal/store"
	"github.com/sells-group/lead-enrich/internal/validation"
	"github.com/sells-group/lead-enrich/pkg/apollo"
	"github.com/sells-group/lead-enrich/pkg/notion"
	"github.com/sells-group/lead-enrich/pkg/rocketreach"
)

const (
	apolloPerPage        = 10
	rocketReachMaxPeople = 5
)

// enrichEnv holds the orchestrator and the clients the commands share.
type enrichEnv struct {
	Store        store.ResultStore
	Cache        *cache.Tiered[model.EnrichmentResult]
	Orchestrator *enrich.Orchestrator
	Notion       notion.Client // nil without a token
}

// Close stops in-flight work, flushes learned patterns and closes the store.
func (e *enrichEnv) Close(ctx context.Context) {
	if e.Orchestrator != nil {
		e.Orchestrator.Cleanup(ctx)
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnrich validates cfg for mode and wires the store, cache, validator,
// source agents and orchestrator. The "offline" mode allows an empty source
// registry for commands that only read stored results. Callers should defer
// env.Close.
func initEnrich(ctx context.Context, mode string) (*enrichEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	sc := scoring.FromConfig(cfg.Enrich)
	if cfg.Enrich.ScoringFile != "" {
		loaded, err := scoring.LoadConfig(cfg.Enrich.ScoringFile, sc)
		if err != nil {
			return nil, eris.Wrap(err, "load scoring overlay")
		}
		sc = loaded
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open result store")
	}

	tiered, err := initCache()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	validator := validation.NewService(validation.WithPatternsFile(cfg.Validation.PatternsFile))
	if err := validator.LoadPatterns(); err != nil {
		zap.L().Warn("learned email patterns not loaded", zap.Error(err))
	}

	agents := initAgents()
	if agents.Len() == 0 && mode != "offline" {
		_ = st.Close()
		return nil, eris.New("no contact sources configured")
	}
	zap.L().Info("sources registered", zap.Any("sources", agents.List()))

	orch := enrich.New(enrich.Deps{
		Agents:    agents,
		Store:     st,
		Cache:     tiered,
		Validator: validator,
		Limiter:   ratelimit.New(ratelimit.FromConfig(cfg.RateLimit)),
		Breakers:  resilience.NewServiceBreakers(resilience.FromCircuitConfig(cfg.Circuit)),
	}, enrich.ConfigFrom(cfg, sc))

	var notionClient notion.Client
	if cfg.Notion.Token != "" {
		notionClient = notion.NewClient(cfg.Notion.Token)
	}

	return &enrichEnv{
		Store:        st,
		Cache:        tiered,
		Orchestrator: orch,
		Notion:       notionClient,
	}, nil
}

// initCache builds the memory-over-disk result cache.
func initCache() (*cache.Tiered[model.EnrichmentResult], error) {
	ttl := cfg.Cache.TTL()
	file, err := cache.NewFile[model.EnrichmentResult](cfg.Cache.Dir, ttl)
	if err != nil {
		return nil, eris.Wrap(err, "open result cache")
	}
	return cache.NewTiered(cache.NewMemory[model.EnrichmentResult](ttl), file), nil
}

// initAgents registers a navigated agent for every source with an API key.
// Agents get their own validator so navigation never feeds the orchestrator's
// learned patterns.
func initAgents() *source.Registry {
	reg := source.NewRegistry()
	agentValidator := validation.NewService()

	if cfg.Apollo.Key != "" {
		client := apollo.NewClient(cfg.Apollo.Key, apollo.WithBaseURL(cfg.Apollo.BaseURL))
		reg.Register(source.NewNavigatedAgent(model.SourceApollo,
			source.NewApolloFinder(client, apolloPerPage),
			agentValidator, cfg.Enrich.TargetTitles, cfg.Navigation))
	} else {
		zap.L().Debug("LEAD_APOLLO_KEY not set, apollo source disabled")
	}

	if cfg.RocketReach.Key != "" {
		client := rocketreach.NewClient(cfg.RocketReach.Key, rocketreach.WithBaseURL(cfg.RocketReach.BaseURL))
		reg.Register(source.NewNavigatedAgent(model.SourceRocketReach,
			source.NewRocketReachFinder(client, rocketReachMaxPeople),
			agentValidator, cfg.Enrich.TargetTitles, cfg.Navigation))
	} else {
		zap.L().Debug("LEAD_ROCKETREACH_KEY not set, rocketreach source disabled")
	}

	return reg
}
