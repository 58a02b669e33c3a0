package navigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted answers each state with a fixed event and counts calls.
type scripted struct {
	events map[State]Event
	calls  map[State]int
	err    error
}

func (s *scripted) Step(_ context.Context, nav Context) (Event, error) {
	if s.calls == nil {
		s.calls = make(map[State]int)
	}
	s.calls[nav.CurrentState]++
	if s.err != nil {
		return Event{}, s.err
	}
	return s.events[nav.CurrentState], nil
}

func TestRun_Completes(t *testing.T) {
	m := newTestMachine(t, WithTimeout(time.Hour))
	m.Initialize(context.Background(), "Acme", "CFO")

	s := &scripted{events: map[State]Event{
		StateInitial:     {Success: true},
		StateSearching:   {PersonFound: "John Doe"},
		StatePersonFound: {EmailFound: "john@acme.com", ValidationSuccess: Validated(true)},
	}}
	nav, err := Run(context.Background(), m, s, 1)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, nav.CurrentState)
	assert.Equal(t, "John Doe", nav.FoundPerson)
	assert.Equal(t, "john@acme.com", nav.FoundEmail)
}

func TestRun_RetryBudget(t *testing.T) {
	m := newTestMachine(t, WithTimeout(time.Hour))
	m.Initialize(context.Background(), "Acme", "CFO")

	s := &scripted{events: map[State]Event{
		StateInitial:  {},
		StateError:    {Retry: true},
		StateRetrying: {Reset: true},
	}}
	nav, err := Run(context.Background(), m, s, 1)
	require.NoError(t, err)
	assert.Equal(t, StateError, nav.CurrentState)
	assert.Equal(t, 2, s.calls[StateInitial])
	assert.Equal(t, 1, s.calls[StateError])
}

func TestRun_ExhaustedSearch(t *testing.T) {
	m := newTestMachine(t, WithTimeout(time.Hour), WithRecoveryInterval(0), WithMaxAttempts(2))
	m.Initialize(context.Background(), "Acme", "CFO")

	s := &scripted{events: map[State]Event{StateInitial: {Success: true}}}
	nav, err := Run(context.Background(), m, s, 0)
	require.NoError(t, err)
	assert.Equal(t, StateError, nav.CurrentState)
	assert.Equal(t, 3, s.calls[StateSearching])
}

func TestRun_StepError(t *testing.T) {
	m := newTestMachine(t, WithTimeout(time.Hour))
	m.Initialize(context.Background(), "Acme", "CFO")

	boom := errors.New("boom")
	nav, err := Run(context.Background(), m, &scripted{err: boom}, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateInitial, nav.CurrentState)
}

func TestRun_Cancelled(t *testing.T) {
	m := newTestMachine(t, WithTimeout(time.Hour))
	m.Initialize(context.Background(), "Acme", "CFO")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, m, SurfaceFunc(func(context.Context, Context) (Event, error) {
		t.Fatal("step called after cancel")
		return Event{}, nil
	}), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NotInitialized(t *testing.T) {
	_, err := Run(context.Background(), New(), &scripted{}, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
}
