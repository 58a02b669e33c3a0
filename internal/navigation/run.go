package navigation

import (
	"context"

	"github.com/rotisserie/eris"
)

// Surface performs the work for one navigation step and reports what
// happened as an Event.
type Surface interface {
	Step(ctx context.Context, nav Context) (Event, error)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, nav Context) (Event, error)

// Step implements Surface.
func (f SurfaceFunc) Step(ctx context.Context, nav Context) (Event, error) { return f(ctx, nav) }

// Run steps s through m until the lookup completes, errors with no retries
// left, or ctx is cancelled. Up to maxRetries retry events are accepted from
// ERROR. A Step error stops the run and is returned with the last context.
func Run(ctx context.Context, m *Machine, s Surface, maxRetries int) (Context, error) {
	nav, ok := m.Snapshot()
	if !ok {
		return Context{}, ErrNotInitialized
	}

	retries := 0
	for {
		if nav.CurrentState.Terminal() {
			return nav, nil
		}
		if nav.CurrentState == StateError && retries >= maxRetries {
			return nav, nil
		}
		if err := ctx.Err(); err != nil {
			return nav, eris.Wrap(err, "navigation: run")
		}

		ev, err := s.Step(ctx, nav)
		if err != nil {
			return nav, err
		}
		if nav.CurrentState == StateError {
			if !ev.Retry {
				return nav, nil
			}
			retries++
		}

		if nav, err = m.Transition(ev); err != nil {
			return nav, err
		}
	}
}
