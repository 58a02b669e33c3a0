// Package cache stores enrichment results with a TTL. Backends share the
// Cache interface so the orchestrator can run memory-only, file-only, or
// tiered.
package cache

import (
	"context"
	"strings"
	"time"
)

// DefaultTTL is how long cached results stay fresh.
const DefaultTTL = 24 * time.Hour

// Cache is a TTL key-value store.
type Cache[V any] interface {
	// Get returns the value for key and whether a fresh entry was found.
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V) error
	Invalidate(ctx context.Context, key string) error
}

// Clearer is implemented by caches that can drop every entry at once.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Sweeper is implemented by caches that can remove entries older than maxAge.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// Key returns the cache key for a company lookup.
func Key(company, domain string) string {
	return strings.TrimSpace(company) + ":" + strings.TrimSpace(domain)
}

// entry is a value with the time it was stored.
type entry[V any] struct {
	Result    V         `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

func (e entry[V]) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}
