// Package navigation tracks a single person/email lookup as a state machine
// with a deadline, periodic recovery and on-disk snapshots.
package navigation

import (
	"time"
)

// State is a navigation state.
type State string

const (
	StateInitial     State = "initial"
	StateSearching   State = "searching"
	StatePersonFound State = "person_found"
	StateEmailFound  State = "email_found"
	StateValidating  State = "validating"
	StateRetrying    State = "retrying"
	StateError       State = "error"
	StateComplete    State = "complete"
)

var states = map[State]struct{}{
	StateInitial: {}, StateSearching: {}, StatePersonFound: {}, StateEmailFound: {},
	StateValidating: {}, StateRetrying: {}, StateError: {}, StateComplete: {},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := states[s]
	return ok
}

// Terminal reports whether no event can move s.
func (s State) Terminal() bool { return s == StateComplete }

// Event is the outcome of one navigation step.
type Event struct {
	Success           bool    `json:"success,omitempty"`
	PersonFound       string  `json:"person_found,omitempty"`
	EmailFound        string  `json:"email_found,omitempty"`
	ValidationSuccess *bool   `json:"validation_success,omitempty"`
	RetryNeeded       bool    `json:"retry_needed,omitempty"`
	Reset             bool    `json:"reset,omitempty"`
	Retry             bool    `json:"retry,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
}

// Validated returns a pointer to v for Event.ValidationSuccess.
func Validated(v bool) *bool { return &v }

// Action is one entry in a context's history.
type Action struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event Event     `json:"event"`
	At    time.Time `json:"at"`
}

// Context is the full navigation state for one lookup.
type Context struct {
	CurrentState    State         `json:"current_state"`
	TargetCompany   string        `json:"target_company"`
	TargetRole      string        `json:"target_role"`
	FoundPerson     string        `json:"found_person,omitempty"`
	FoundEmail      string        `json:"found_email,omitempty"`
	Attempts        int           `json:"attempts"`
	MaxAttempts     int           `json:"max_attempts"`
	StartTime       time.Time     `json:"start_time"`
	Timeout         time.Duration `json:"timeout"`
	ConfidenceScore float64       `json:"confidence_score"`
	ActionHistory   []Action      `json:"action_history"`
	Timestamp       time.Time     `json:"timestamp"`
}

func (c *Context) clone() Context {
	out := *c
	out.ActionHistory = append([]Action(nil), c.ActionHistory...)
	return out
}

func (c *Context) expired(now time.Time) bool {
	return c.Timeout > 0 && now.Sub(c.StartTime) > c.Timeout
}

func (c *Context) attemptsExhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// apply moves c according to ev.
func (c *Context) apply(ev Event) {
	switch c.CurrentState {
	case StateInitial:
		if ev.Success {
			c.CurrentState = StateSearching
		} else {
			c.CurrentState = StateError
		}

	case StateSearching:
		switch {
		case ev.PersonFound != "":
			c.FoundPerson = ev.PersonFound
			c.CurrentState = StatePersonFound
		case c.attemptsExhausted():
			c.CurrentState = StateError
		default:
			c.Attempts++
		}

	case StatePersonFound:
		switch {
		case ev.EmailFound != "":
			c.emailFound(ev)
		case c.attemptsExhausted():
			c.CurrentState = StateError
		default:
			c.Attempts++
		}

	case StateEmailFound:
		c.emailFound(ev)

	case StateValidating:
		switch {
		case ev.ValidationSuccess != nil && *ev.ValidationSuccess:
			c.CurrentState = StateComplete
		case ev.RetryNeeded:
			c.CurrentState = StateRetrying
		default:
			c.CurrentState = StateError
		}

	case StateRetrying:
		c.Attempts = 0
		if ev.Reset {
			c.CurrentState = StateInitial
		} else {
			c.CurrentState = StateSearching
		}

	case StateError:
		if ev.Retry {
			c.CurrentState = StateRetrying
			c.Attempts = 0
		}

	case StateComplete:
	}

	if ev.Confidence > 0 {
		c.ConfidenceScore = ev.Confidence
	}
}

// An explicit validation failure sends the lookup back to retrying; an
// absent verdict counts as success.
func (c *Context) emailFound(ev Event) {
	c.FoundEmail = ev.EmailFound
	if ev.ValidationSuccess != nil && !*ev.ValidationSuccess {
		c.CurrentState = StateRetrying
		return
	}
	c.CurrentState = StateComplete
}
