package source

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/pkg/apollo"
	"github.com/sells-group/lead-enrich/pkg/rocketreach"
)

// --- Finder Mock ---

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) FindPeople(ctx context.Context, company model.Company, titles []string) ([]Person, error) {
	args := m.Called(ctx, company, titles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Person), args.Error(1)
}

func (m *mockFinder) GetEmail(ctx context.Context, p Person) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// --- Apollo Mock ---

type mockApolloClient struct {
	mock.Mock
}

func (m *mockApolloClient) SearchOrganizations(ctx context.Context, name, domain string) ([]apollo.Organization, error) {
	args := m.Called(ctx, name, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apollo.Organization), args.Error(1)
}

func (m *mockApolloClient) SearchPeople(ctx context.Context, orgIDs, titles []string, perPage int) ([]apollo.Person, error) {
	args := m.Called(ctx, orgIDs, titles, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apollo.Person), args.Error(1)
}

func (m *mockApolloClient) MatchPerson(ctx context.Context, personID string) (string, error) {
	args := m.Called(ctx, personID)
	return args.String(0), args.Error(1)
}

// --- RocketReach Mock ---

type mockRocketReachClient struct {
	mock.Mock
}

func (m *mockRocketReachClient) SearchPeople(ctx context.Context, employer, title string) ([]rocketreach.Profile, error) {
	args := m.Called(ctx, employer, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rocketreach.Profile), args.Error(1)
}

func (m *mockRocketReachClient) LookupPerson(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type (
	apolloOrg    = apollo.Organization
	apolloPerson = apollo.Person
	rrProfile    = rocketreach.Profile
)
