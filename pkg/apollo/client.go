package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrich/internal/resilience"
)

const defaultBaseURL = "https://api.apollo.io/v1"

// Client looks up organizations, people and emails in Apollo.
type Client interface {
	SearchOrganizations(ctx context.Context, name, domain string) ([]Organization, error)
	SearchPeople(ctx context.Context, orgIDs, titles []string, perPage int) ([]Person, error)
	MatchPerson(ctx context.Context, personID string) (string, error)
}

// Organization is a company account returned by a company search.
type Organization struct {
	ID     string
	Name   string
	Domain string
}

// Person is a people-search hit.
type Person struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Title          string `json:"title"`
	OrganizationID string `json:"organization_id"`
}

type companySearchRequest struct {
	Name    string   `json:"q_organization_name"`
	Domains []string `json:"organization_domains,omitempty"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

type companySearchResponse struct {
	Accounts []struct {
		OrganizationID string `json:"organization_id"`
		Name           string `json:"name"`
		Domain         string `json:"domain"`
	} `json:"accounts"`
	Organizations []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		PrimaryDomain string `json:"primary_domain"`
	} `json:"organizations"`
}

type peopleSearchRequest struct {
	OrganizationIDs []string `json:"organization_ids"`
	Titles          string   `json:"q_title,omitempty"`
	Page            int      `json:"page"`
	PerPage         int      `json:"per_page"`
}

type peopleSearchResponse struct {
	People []Person `json:"people"`
}

type matchRequest struct {
	PersonID             string `json:"person_id"`
	RevealPersonalEmails bool   `json:"reveal_personal_emails"`
}

type matchResponse struct {
	Person *struct {
		Email string `json:"email"`
	} `json:"person"`
	Emails []string `json:"emails"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apollo API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OrTitles joins titles into Apollo's quoted OR query syntax.
func OrTitles(titles []string) string {
	quoted := make([]string, 0, len(titles))
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, `"`+t+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}

func (c *httpClient) SearchOrganizations(ctx context.Context, name, domain string) ([]Organization, error) {
	req := companySearchRequest{Name: name, Page: 1, PerPage: 1}
	if domain != "" {
		req.Domains = []string{domain}
	}

	var resp companySearchResponse
	if err := c.post(ctx, "/mixed_companies/search", req, &resp); err != nil {
		return nil, err
	}

	orgs := make([]Organization, 0, len(resp.Accounts)+len(resp.Organizations))
	for _, a := range resp.Accounts {
		if a.OrganizationID != "" {
			orgs = append(orgs, Organization{ID: a.OrganizationID, Name: a.Name, Domain: a.Domain})
		}
	}
	for _, o := range resp.Organizations {
		if o.ID != "" {
			orgs = append(orgs, Organization{ID: o.ID, Name: o.Name, Domain: o.PrimaryDomain})
		}
	}
	return orgs, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, orgIDs, titles []string, perPage int) ([]Person, error) {
	if len(orgIDs) == 0 {
		return nil, nil
	}
	if perPage <= 0 {
		perPage = 10
	}

	var resp peopleSearchResponse
	req := peopleSearchRequest{OrganizationIDs: orgIDs, Titles: OrTitles(titles), Page: 1, PerPage: perPage}
	if err := c.post(ctx, "/mixed_people/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.People, nil
}

// MatchPerson returns the revealed email for personID, or "" when Apollo
// has none.
func (c *httpClient) MatchPerson(ctx context.Context, personID string) (string, error) {
	var resp matchResponse
	if err := c.post(ctx, "/people/match", matchRequest{PersonID: personID, RevealPersonalEmails: true}, &resp); err != nil {
		return "", err
	}
	if resp.Person != nil && resp.Person.Email != "" {
		return resp.Person.Email, nil
	}
	if len(resp.Emails) > 0 {
		return resp.Emails[0], nil
	}
	return "", nil
}

func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "apollo: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "apollo: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrapf(err, "apollo: send request %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apollo: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return resilience.StatusError("apollo", resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "apollo: unmarshal response %s", path)
	}
	return nil
}
