package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// File is a Cache storing one JSON document per key under a directory:
// {"result": <value>, "timestamp": <RFC3339>}.
type File[V any] struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// FileOption configures a File cache.
type FileOption[V any] func(*File[V])

// WithFileNow sets the clock.
func WithFileNow[V any](now func() time.Time) FileOption[V] {
	return func(f *File[V]) { f.now = now }
}

// NewFile creates a File cache rooted at dir, creating the directory.
func NewFile[V any](dir string, ttl time.Duration, opts ...FileOption[V]) (*File[V], error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "cache: create dir %s", dir)
	}
	f := &File[V]{dir: dir, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

var keyReplacer = strings.NewReplacer("/", "_", `\`, "_", "..", "_")

func (f *File[V]) path(key string) string {
	return filepath.Join(f.dir, keyReplacer.Replace(key)+".json")
}

// Get implements Cache. A corrupt entry is logged and treated as a miss.
func (f *File[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V
	e, ok, err := f.read(key)
	if err != nil || !ok {
		return zero, false, err
	}
	if !e.fresh(f.now(), f.ttl) {
		return zero, false, nil
	}
	return e.Result, true, nil
}

func (f *File[V]) read(key string) (entry[V], bool, error) {
	var e entry[V]
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return e, false, nil
	}
	if err != nil {
		return e, false, eris.Wrapf(err, "cache: read %s", key)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		zap.L().Warn("cache: ignoring corrupt entry", zap.String("key", key), zap.Error(err))
		return e, false, nil
	}
	return e, true, nil
}

// Set implements Cache. Writes go through a temp file and rename.
func (f *File[V]) Set(_ context.Context, key string, value V) error {
	data, err := json.Marshal(entry[V]{Result: value, Timestamp: f.now().UTC()})
	if err != nil {
		return eris.Wrapf(err, "cache: marshal %s", key)
	}

	dst := f.path(key)
	tmp := filepath.Join(f.dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "cache: write %s", key)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "cache: commit %s", key)
	}
	return nil
}

// Invalidate implements Cache.
func (f *File[V]) Invalidate(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "cache: remove %s", key)
	}
	return nil
}

// Sweep deletes cache files last modified more than maxAge ago and returns
// how many were removed.
func (f *File[V]) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, eris.Wrapf(err, "cache: list %s", f.dir)
	}

	cutoff := f.now().Add(-maxAge)
	var removed int
	for _, de := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(f.dir, de.Name())); err != nil {
				zap.L().Warn("cache: sweep remove failed", zap.String("file", de.Name()), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed, nil
}
