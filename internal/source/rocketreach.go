package source

import (
	"context"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/pkg/rocketreach"
)

// RocketReachFinder searches RocketReach one title at a time and looks up
// emails by profile id.
type RocketReachFinder struct {
	client        rocketreach.Client
	maxCandidates int
}

// NewRocketReachFinder wraps client. Searching stops once maxCandidates
// distinct profiles have been collected.
func NewRocketReachFinder(client rocketreach.Client, maxCandidates int) *RocketReachFinder {
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	return &RocketReachFinder{client: client, maxCandidates: maxCandidates}
}

// FindPeople implements PersonFinder. Titles are tried in order.
func (f *RocketReachFinder) FindPeople(ctx context.Context, company model.Company, titles []string) ([]Person, error) {
	seen := make(map[string]struct{})
	var out []Person
	for _, title := range titles {
		profiles, err := f.client.SearchPeople(ctx, company.Name, title)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			id := string(p.ID)
			if _, dup := seen[id]; dup || p.Name == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, Person{ID: id, Name: p.Name, Title: p.CurrentTitle})
		}
		if len(out) >= f.maxCandidates {
			return out[:f.maxCandidates], nil
		}
	}
	return out, nil
}

// GetEmail implements PersonFinder.
func (f *RocketReachFinder) GetEmail(ctx context.Context, p Person) (string, error) {
	return f.client.LookupPerson(ctx, p.ID)
}
