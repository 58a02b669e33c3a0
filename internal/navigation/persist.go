package navigation

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var pathReplacer = strings.NewReplacer("/", "_", `\`, "_", " ", "_", "..", "_", ":", "_")

// StatePath returns the snapshot file for one lookup under dir.
func StatePath(dir string, parts ...string) string {
	if dir == "" {
		return ""
	}
	name := strings.ToLower(pathReplacer.Replace(strings.Join(parts, "_")))
	return filepath.Join(dir, name+".json")
}

// persistLocked writes the snapshot. Failures are logged; the in-memory
// state stays authoritative.
func (m *Machine) persistLocked() {
	if m.statePath == "" || m.nav == nil {
		return
	}
	m.nav.Timestamp = m.now()
	if err := writeSnapshot(m.statePath, m.nav); err != nil {
		zap.L().Warn("navigation: persist state", zap.String("path", m.statePath), zap.Error(err))
	}
}

func writeSnapshot(path string, nav *Context) error {
	data, err := json.MarshalIndent(nav, "", "  ")
	if err != nil {
		return eris.Wrap(err, "navigation: marshal state")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "navigation: create state dir")
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "navigation: write state")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "navigation: commit state")
	}
	return nil
}

// LoadState restores the last snapshot written to the state path. It
// returns (nil, nil) when no snapshot exists. The supervisor is not
// restarted; the deadline is still enforced on the next Transition.
func (m *Machine) LoadState() (*Context, error) {
	if m.statePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "navigation: read state")
	}

	var nav Context
	if err := json.Unmarshal(data, &nav); err != nil {
		return nil, eris.Wrap(err, "navigation: unmarshal state")
	}
	if !nav.CurrentState.Valid() {
		return nil, eris.Errorf("navigation: unknown state %q", nav.CurrentState)
	}
	if nav.ActionHistory == nil {
		nav.ActionHistory = []Action{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nav = &nav
	out := nav.clone()
	return &out, nil
}
