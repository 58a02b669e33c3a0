package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption[V any] func(*Memory[V])

// WithMemoryNow sets the clock.
func WithMemoryNow[V any](now func() time.Time) MemoryOption[V] {
	return func(m *Memory[V]) { m.now = now }
}

// NewMemory creates a Memory cache. A non-positive ttl uses DefaultTTL.
func NewMemory[V any](ttl time.Duration, opts ...MemoryOption[V]) *Memory[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory[V]{entries: make(map[string]entry[V]), ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get implements Cache. Expired entries are dropped on read.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false, nil
	}
	if !e.fresh(m.now(), m.ttl) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return zero, false, nil
	}
	return e.Result, true, nil
}

// Set implements Cache.
func (m *Memory[V]) Set(_ context.Context, key string, value V) error {
	m.setAt(key, value, m.now())
	return nil
}

func (m *Memory[V]) setAt(key string, value V, at time.Time) {
	m.mu.Lock()
	m.entries[key] = entry[V]{Result: value, Timestamp: at}
	m.mu.Unlock()
}

// Invalidate implements Cache.
func (m *Memory[V]) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (m *Memory[V]) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]entry[V])
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
