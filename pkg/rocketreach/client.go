package rocketreach

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrich/internal/resilience"
)

const defaultBaseURL = "https://api.rocketreach.co/v2"

// Client searches RocketReach profiles and looks up their emails.
type Client interface {
	SearchPeople(ctx context.Context, employer, title string) ([]Profile, error)
	LookupPerson(ctx context.Context, id string) (string, error)
}

// ID is a profile id. RocketReach returns numbers; strings are accepted too.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Profile is a person search hit.
type Profile struct {
	ID              ID     `json:"id"`
	Name            string `json:"name"`
	CurrentTitle    string `json:"current_title"`
	CurrentEmployer string `json:"current_employer"`
}

type searchQuery struct {
	CurrentEmployer []string `json:"current_employer"`
	CurrentTitle    []string `json:"current_title,omitempty"`
}

type searchRequest struct {
	Start    int         `json:"start"`
	PageSize int         `json:"page_size"`
	Query    searchQuery `json:"query"`
}

type lookupResponse struct {
	RecommendedEmail string            `json:"recommended_email"`
	CurrentWorkEmail string            `json:"current_work_email"`
	Emails           []json.RawMessage `json:"emails"`
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

// NewClient creates a RocketReach API client.
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

// SearchPeople returns the first profile matching employer and title.
// Profiles without an id are dropped.
func (c *httpClient) SearchPeople(ctx context.Context, employer, title string) ([]Profile, error) {
	req := searchRequest{Start: 1, PageSize: 1, Query: searchQuery{CurrentEmployer: []string{employer}}}
	if title != "" {
		req.Query.CurrentTitle = []string{title}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "rocketreach: marshal request")
	}

	respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var profiles []Profile
	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &profiles)
	} else {
		var wrapped struct {
			Profiles []Profile `json:"profiles"`
		}
		err = json.Unmarshal(trimmed, &wrapped)
		profiles = wrapped.Profiles
	}
	if err != nil {
		return nil, eris.Wrap(err, "rocketreach: unmarshal search response")
	}

	out := profiles[:0]
	for _, p := range profiles {
		if p.ID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// LookupPerson returns the best email for a profile: recommended, then
// current work, then the first listed. It returns "" when there is none.
func (c *httpClient) LookupPerson(ctx context.Context, id string) (string, error) {
	respBody, err := c.do(ctx, http.MethodGet, c.baseURL+"/person/lookup?id="+url.QueryEscape(id), nil)
	if err != nil {
		return "", err
	}

	var resp lookupResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", eris.Wrap(err, "rocketreach: unmarshal lookup response")
	}
	switch {
	case resp.RecommendedEmail != "":
		return resp.RecommendedEmail, nil
	case resp.CurrentWorkEmail != "":
		return resp.CurrentWorkEmail, nil
	}
	for _, raw := range resp.Emails {
		if email := emailFrom(raw); email != "" {
			return email, nil
		}
	}
	return "", nil
}

// emailFrom reads an emails[] entry, which is either a bare string or an
// object with an email field.
func emailFrom(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Email
	}
	return ""
}

func (c *httpClient) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, eris.Wrap(err, "rocketreach: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "rocketreach: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "rocketreach: read response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, resilience.StatusError("rocketreach", resp.StatusCode, respBody)
	}
	return respBody, nil
}
