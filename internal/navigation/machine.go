package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/config"
)

// ErrNotInitialized is returned by operations that need a context before
// Initialize or LoadState has been called.
var ErrNotInitialized = eris.New("navigation: context not initialized")

const (
	defaultMaxAttempts      = 3
	defaultTimeout          = 300 * time.Second
	defaultRecoveryInterval = 5 * time.Second
)

// Machine drives one navigation Context. It is safe for concurrent use.
type Machine struct {
	maxAttempts      int
	timeout          time.Duration
	recoveryInterval time.Duration
	statePath        string
	now              func() time.Time

	mu     sync.Mutex
	nav    *Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxAttempts sets the per-state attempt budget.
func WithMaxAttempts(n int) Option {
	return func(m *Machine) { m.maxAttempts = n }
}

// WithTimeout sets the lookup deadline, measured from Initialize.
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) { m.timeout = d }
}

// WithRecoveryInterval sets how often exhausted attempts are recovered.
// Zero disables recovery checks.
func WithRecoveryInterval(d time.Duration) Option {
	return func(m *Machine) { m.recoveryInterval = d }
}

// WithStatePath sets where snapshots are written. Empty disables persistence.
func WithStatePath(path string) Option {
	return func(m *Machine) { m.statePath = path }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New creates a Machine with the given options.
func New(opts ...Option) *Machine {
	m := &Machine{
		maxAttempts:      defaultMaxAttempts,
		timeout:          defaultTimeout,
		recoveryInterval: defaultRecoveryInterval,
		now:              time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FromConfig converts navigation config into Machine options. statePath is
// per lookup, so it is passed separately.
func FromConfig(cfg config.NavigationConfig, statePath string) []Option {
	opts := []Option{WithStatePath(statePath)}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, WithMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.TimeoutSecs > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutSecs)*time.Second))
	}
	opts = append(opts, WithRecoveryInterval(time.Duration(cfg.RecoveryIntervalSecs)*time.Second))
	return opts
}

// Initialize starts a fresh lookup for company and role, replacing any
// previous one. A supervisor goroutine enforces the deadline and runs
// recovery checks until Cleanup, completion, or ctx cancellation.
func (m *Machine) Initialize(ctx context.Context, company, role string) Context {
	m.Cleanup()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.nav = &Context{
		CurrentState:  StateInitial,
		TargetCompany: company,
		TargetRole:    role,
		MaxAttempts:   m.maxAttempts,
		StartTime:     now,
		Timeout:       m.timeout,
		ActionHistory: []Action{},
	}

	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go m.supervise(sctx, m.timeout, m.recoveryInterval, done)

	m.persistLocked()
	return m.nav.clone()
}

// Transition applies ev to the current state. An expired deadline forces
// ERROR before the event is considered.
func (m *Machine) Transition(ev Event) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nav == nil {
		return Context{}, ErrNotInitialized
	}

	from := m.nav.CurrentState
	now := m.now()
	if from != StateError && !from.Terminal() && m.nav.expired(now) {
		m.timeoutLocked()
		return m.nav.clone(), nil
	}

	m.nav.apply(ev)
	m.nav.ActionHistory = append(m.nav.ActionHistory, Action{From: from, To: m.nav.CurrentState, Event: ev, At: now})

	if from != m.nav.CurrentState {
		zap.L().Debug("navigation: transition",
			zap.String("company", m.nav.TargetCompany),
			zap.String("from", string(from)),
			zap.String("to", string(m.nav.CurrentState)),
			zap.Int("attempts", m.nav.Attempts),
		)
	}
	if m.nav.CurrentState.Terminal() && m.cancel != nil {
		m.cancel()
	}

	m.persistLocked()
	return m.nav.clone(), nil
}

// HandleTimeout forces the lookup into ERROR. A completed lookup is left
// alone.
func (m *Machine) HandleTimeout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nav == nil {
		return ErrNotInitialized
	}
	m.timeoutLocked()
	return nil
}

func (m *Machine) timeoutLocked() {
	if m.nav.CurrentState.Terminal() {
		return
	}
	zap.L().Warn("navigation: timeout",
		zap.String("company", m.nav.TargetCompany),
		zap.String("state", string(m.nav.CurrentState)),
		zap.Duration("timeout", m.nav.Timeout),
	)
	m.nav.CurrentState = StateError
	m.persistLocked()
}

// CheckRecovery moves a lookup that has used its attempt budget into
// RETRYING with a fresh budget. It reports whether recovery happened.
func (m *Machine) CheckRecovery() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nav == nil {
		return false, ErrNotInitialized
	}
	return m.recoverLocked(), nil
}

func (m *Machine) recoverLocked() bool {
	switch m.nav.CurrentState {
	case StateError, StateComplete:
		return false
	}
	if !m.nav.attemptsExhausted() {
		return false
	}
	m.nav.CurrentState = StateRetrying
	m.nav.Attempts = 0
	zap.L().Info("navigation: triggered recovery", zap.String("company", m.nav.TargetCompany))
	m.persistLocked()
	return true
}

// Snapshot returns a copy of the current context.
func (m *Machine) Snapshot() (Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nav == nil {
		return Context{}, false
	}
	return m.nav.clone(), true
}

// Cleanup stops the supervisor and waits for it to exit. It is safe to call
// more than once.
func (m *Machine) Cleanup() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// supervise owns the deadline timer and recovery ticker for one lookup.
// Work is skipped once sctx is cancelled so a stale supervisor never touches
// a newer lookup.
func (m *Machine) supervise(sctx context.Context, timeout, interval time.Duration, done chan struct{}) {
	defer close(done)

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-sctx.Done():
			return
		case <-deadline:
			deadline = nil
			m.whileActive(sctx, m.timeoutLocked)
		case <-tick:
			m.whileActive(sctx, func() { m.recoverLocked() })
		}
	}
}

func (m *Machine) whileActive(sctx context.Context, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sctx.Err() != nil || m.nav == nil {
		return
	}
	fn()
}
