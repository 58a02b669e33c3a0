// Package source defines the contact-source agents the orchestrator fans
// out to and the registry that holds them.
package source

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/lead-enrich/internal/model"
)

// Agent searches one provider for contacts at a company. Search never
// panics and never returns a Go error: ordinary misses are Empty and
// provider failures are TransportError.
type Agent interface {
	Name() model.Source
	Search(ctx context.Context, company model.Company) model.SearchOutcome
}

// Cleaner is implemented by agents holding resources that must be released.
type Cleaner interface {
	Cleanup()
}

// Registry manages the configured agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[model.Source]Agent
}

// NewRegistry creates a registry holding agents.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[model.Source]Agent)}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an agent.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
}

// Get returns an agent by name, or nil if not found.
func (r *Registry) Get(name model.Source) Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[name]
}

// List returns registered agent names in sorted order.
func (r *Registry) List() []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]model.Source, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Agents returns the registered agents ordered by name.
func (r *Registry) Agents() []Agent {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(names))
	for _, n := range names {
		if a, ok := r.agents[n]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Cleanup calls Cleanup on every agent that implements Cleaner.
func (r *Registry) Cleanup() {
	for _, a := range r.Agents() {
		if c, ok := a.(Cleaner); ok {
			c.Cleanup()
		}
	}
}
