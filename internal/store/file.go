package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileStore keeps every record in memory and mirrors each one to
// <dir>/<key>.json.
type FileStore struct {
	dir string

	mu        sync.RWMutex
	results   map[string]Record
	byCompany map[string]map[string]struct{}
}

// NewFileStore opens dir, creating it if needed, and loads existing records.
// Unreadable files are logged and skipped.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "data/results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "store: create dir %s", dir)
	}

	s := &FileStore{
		dir:       dir,
		results:   make(map[string]Record),
		byCompany: make(map[string]map[string]struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return eris.Wrap(err, "store: list results")
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			zap.L().Warn("store: skipping unreadable result", zap.String("file", p), zap.Error(err))
			continue
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			zap.L().Warn("store: skipping corrupt result", zap.String("file", p), zap.Error(err))
			continue
		}
		s.index(r)
	}
	return nil
}

var fileKeyReplacer = strings.NewReplacer("/", "-", `\`, "-")

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, fileKeyReplacer.Replace(key)+".json")
}

// index must be called with mu held (or before the store is shared).
func (s *FileStore) index(r Record) {
	key := r.Key()
	s.results[key] = r
	company := strings.ToLower(r.CompanyName)
	if s.byCompany[company] == nil {
		s.byCompany[company] = make(map[string]struct{})
	}
	s.byCompany[company][key] = struct{}{}
}

// AddResult implements ResultStore.
func (s *FileStore) AddResult(_ context.Context, r Record) (bool, error) {
	key := r.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.results[key]; ok && !ShouldUpdate(existing, r) {
		return false, nil
	}
	if err := s.write(key, r); err != nil {
		return false, err
	}
	s.index(r)
	return true, nil
}

func (s *FileStore) write(key string, r Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "store: marshal %s", key)
	}
	dst := s.path(key)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "store: write %s", key)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "store: commit %s", key)
	}
	return nil
}

// GetResult implements ResultStore.
func (s *FileStore) GetResult(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// GetCompanyResults implements ResultStore.
func (s *FileStore) GetCompanyResults(_ context.Context, company string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byCompany[strings.ToLower(company)]
	out := make([]Record, 0, len(keys))
	for key := range keys {
		if r, ok := s.results[key]; ok {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// AllResults implements ResultStore.
func (s *FileStore) AllResults(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

// RemoveResult implements ResultStore.
func (s *FileStore) RemoveResult(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[key]
	if !ok {
		return false, nil
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, eris.Wrapf(err, "store: remove %s", key)
	}

	delete(s.results, key)
	company := strings.ToLower(r.CompanyName)
	delete(s.byCompany[company], key)
	if len(s.byCompany[company]) == 0 {
		delete(s.byCompany, company)
	}
	return true, nil
}

// Stats implements ResultStore.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	all, _ := s.AllResults(ctx)

	var size int64
	paths, _ := filepath.Glob(filepath.Join(s.dir, "*.json"))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			size += info.Size()
		}
	}
	return summarize(all, size), nil
}

// Close implements ResultStore. Records are written synchronously, so
// there is nothing to flush.
func (s *FileStore) Close() error { return nil }
