package source

import (
	"context"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/pkg/apollo"
)

// ApolloFinder finds people through Apollo's organization and people
// search, then reveals emails with people/match.
type ApolloFinder struct {
	client  apollo.Client
	perPage int
}

// NewApolloFinder wraps client. perPage bounds the people search.
func NewApolloFinder(client apollo.Client, perPage int) *ApolloFinder {
	if perPage <= 0 {
		perPage = 10
	}
	return &ApolloFinder{client: client, perPage: perPage}
}

// FindPeople implements PersonFinder. Only the best-matching organization
// is searched.
func (f *ApolloFinder) FindPeople(ctx context.Context, company model.Company, titles []string) ([]Person, error) {
	orgs, err := f.client.SearchOrganizations(ctx, company.Name, company.Domain)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}

	people, err := f.client.SearchPeople(ctx, []string{orgs[0].ID}, titles, f.perPage)
	if err != nil {
		return nil, err
	}
	out := make([]Person, 0, len(people))
	for _, p := range people {
		if p.ID == "" || p.Name == "" {
			continue
		}
		out = append(out, Person{ID: p.ID, Name: p.Name, Title: p.Title})
	}
	return out, nil
}

// GetEmail implements PersonFinder.
func (f *ApolloFinder) GetEmail(ctx context.Context, p Person) (string, error) {
	return f.client.MatchPerson(ctx, p.ID)
}
