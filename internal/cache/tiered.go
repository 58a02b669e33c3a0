package cache

import (
	"context"
	"time"
)

// Tiered reads through a memory tier to a file tier and promotes file hits
// into memory. Writes and invalidations go to both tiers.
type Tiered[V any] struct {
	mem  *Memory[V]
	file *File[V]
}

// NewTiered combines mem and file.
func NewTiered[V any](mem *Memory[V], file *File[V]) *Tiered[V] {
	return &Tiered[V]{mem: mem, file: file}
}

// Get implements Cache.
func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool, error) {
	if v, ok, _ := t.mem.Get(ctx, key); ok {
		return v, true, nil
	}

	e, ok, err := t.file.read(key)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	if !e.fresh(t.file.now(), t.file.ttl) {
		var zero V
		return zero, false, nil
	}
	// Keep the original timestamp so the promoted entry expires on schedule.
	t.mem.setAt(key, e.Result, e.Timestamp)
	return e.Result, true, nil
}

// Set implements Cache.
func (t *Tiered[V]) Set(ctx context.Context, key string, value V) error {
	_ = t.mem.Set(ctx, key, value)
	return t.file.Set(ctx, key, value)
}

// Invalidate implements Cache.
func (t *Tiered[V]) Invalidate(ctx context.Context, key string) error {
	_ = t.mem.Invalidate(ctx, key)
	return t.file.Invalidate(ctx, key)
}

// Clear empties the memory tier only; disk entries age out through Sweep.
func (t *Tiered[V]) Clear(ctx context.Context) error {
	return t.mem.Clear(ctx)
}

// Sweep removes stale disk entries.
func (t *Tiered[V]) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	return t.file.Sweep(ctx, maxAge)
}
