package source

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/navigation"
	"github.com/sells-group/lead-enrich/internal/validation"
)

// Person is a candidate found by a PersonFinder.
type Person struct {
	ID    string
	Name  string
	Title string
}

// PersonFinder is the provider surface a NavigatedAgent walks.
type PersonFinder interface {
	FindPeople(ctx context.Context, company model.Company, titles []string) ([]Person, error)
	// GetEmail returns "" when the provider has no address for p.
	GetEmail(ctx context.Context, p Person) (string, error)
}

// EmailValidator checks a resolved address before it is accepted.
type EmailValidator interface {
	ValidateEmail(email, domain string) validation.Result
}

// NavigatedAgent drives a navigation.Machine over a PersonFinder. Each
// Search is one navigation lookup with its own deadline and snapshot file.
type NavigatedAgent struct {
	name      model.Source
	finder    PersonFinder
	validator EmailValidator
	titles    []string
	nav       config.NavigationConfig

	mu       sync.Mutex
	machines map[*navigation.Machine]struct{}
}

// NewNavigatedAgent creates an agent named name.
func NewNavigatedAgent(name model.Source, finder PersonFinder, validator EmailValidator, titles []string, nav config.NavigationConfig) *NavigatedAgent {
	if nav.TargetRole == "" {
		nav.TargetRole = "CFO"
	}
	return &NavigatedAgent{
		name:      name,
		finder:    finder,
		validator: validator,
		titles:    titles,
		nav:       nav,
		machines:  make(map[*navigation.Machine]struct{}),
	}
}

// Name implements Agent.
func (a *NavigatedAgent) Name() model.Source { return a.name }

// Search implements Agent.
func (a *NavigatedAgent) Search(ctx context.Context, company model.Company) model.SearchOutcome {
	log := zap.L().With(zap.String("source", string(a.name)), zap.String("company", company.Name))

	m := navigation.New(navigation.FromConfig(a.nav, navigation.StatePath(a.nav.StateDir, string(a.name), company.Name))...)
	a.track(m)
	defer a.untrack(m)

	m.Initialize(ctx, company.Name, a.nav.TargetRole)
	s := &finderSurface{agent: a, company: company}

	nav, err := navigation.Run(ctx, m, s, a.nav.MaxRetries)
	if err != nil {
		log.Warn("source: navigation failed", zap.String("state", string(nav.CurrentState)), zap.Error(err))
		return model.TransportError(eris.Wrapf(err, "%s: search %s", a.name, company.Name))
	}
	if nav.CurrentState != navigation.StateComplete || nav.FoundEmail == "" {
		log.Debug("source: no contact", zap.String("state", string(nav.CurrentState)))
		return model.Empty()
	}

	p := s.current()
	conf := nav.ConfidenceScore
	contact := model.RawContact{
		Name:   nav.FoundPerson,
		Title:  p.Title,
		Email:  nav.FoundEmail,
		Source: a.name,
	}
	if conf > 0 {
		contact.Confidence = &conf
	}
	log.Info("source: contact found", zap.String("person", contact.Name), zap.String("title", contact.Title))
	return model.Found([]model.RawContact{contact})
}

// Cleanup stops every in-flight navigation supervisor.
func (a *NavigatedAgent) Cleanup() {
	a.mu.Lock()
	ms := make([]*navigation.Machine, 0, len(a.machines))
	for m := range a.machines {
		ms = append(ms, m)
	}
	a.mu.Unlock()

	for _, m := range ms {
		m.Cleanup()
	}
}

func (a *NavigatedAgent) track(m *navigation.Machine) {
	a.mu.Lock()
	a.machines[m] = struct{}{}
	a.mu.Unlock()
}

func (a *NavigatedAgent) untrack(m *navigation.Machine) {
	m.Cleanup()
	a.mu.Lock()
	delete(a.machines, m)
	a.mu.Unlock()
}

// finderSurface answers navigation steps using the agent's finder. People
// are fetched once per lookup; RETRYING moves on to the next candidate.
type finderSurface struct {
	agent   *NavigatedAgent
	company model.Company

	people  []Person
	fetched bool
	idx     int
	emails  map[string]string
}

func (s *finderSurface) current() Person {
	if s.idx < len(s.people) {
		return s.people[s.idx]
	}
	return Person{}
}

func (s *finderSurface) Step(ctx context.Context, nav navigation.Context) (navigation.Event, error) {
	switch nav.CurrentState {
	case navigation.StateInitial:
		return navigation.Event{Success: s.agent.finder != nil}, nil

	case navigation.StateSearching:
		if !s.fetched {
			people, err := s.agent.finder.FindPeople(ctx, s.company, s.agent.titles)
			if err != nil {
				return navigation.Event{}, err
			}
			s.people, s.fetched = people, true
		}
		if p := s.current(); p.Name != "" {
			return navigation.Event{PersonFound: p.Name}, nil
		}
		return navigation.Event{}, nil

	case navigation.StatePersonFound:
		email, err := s.email(ctx, s.current())
		if err != nil || email == "" {
			return navigation.Event{}, err
		}
		return s.validated(email), nil

	case navigation.StateEmailFound, navigation.StateValidating:
		if nav.FoundEmail == "" {
			return navigation.Event{RetryNeeded: true, ValidationSuccess: navigation.Validated(false)}, nil
		}
		ev := s.validated(nav.FoundEmail)
		ev.RetryNeeded = !*ev.ValidationSuccess
		return ev, nil

	case navigation.StateRetrying:
		s.idx++
		return navigation.Event{}, nil

	case navigation.StateError:
		return navigation.Event{Retry: true}, nil
	}
	return navigation.Event{}, nil
}

// email resolves and memoizes the address for p so repeated steps in
// PERSON_FOUND do not repeat provider calls.
func (s *finderSurface) email(ctx context.Context, p Person) (string, error) {
	if s.emails == nil {
		s.emails = make(map[string]string)
	}
	key := p.ID + "|" + p.Name
	if email, ok := s.emails[key]; ok {
		return email, nil
	}
	email, err := s.agent.finder.GetEmail(ctx, p)
	if err != nil {
		return "", err
	}
	s.emails[key] = email
	return email, nil
}

func (s *finderSurface) validated(email string) navigation.Event {
	ev := navigation.Event{EmailFound: email, ValidationSuccess: navigation.Validated(true), Confidence: 1}
	if s.agent.validator != nil {
		res := s.agent.validator.ValidateEmail(email, s.company.Domain)
		ev.ValidationSuccess = navigation.Validated(res.Valid)
		ev.Confidence = res.Confidence
	}
	return ev
}
