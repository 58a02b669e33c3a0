package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrich/internal/enrich"
	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/store"
)

type mockEnrichService struct {
	mock.Mock
}

func (m *mockEnrichService) EnrichCompany(ctx context.Context, company, domain string, forceRefresh bool) *model.EnrichmentResult {
	args := m.Called(ctx, company, domain, forceRefresh)
	return args.Get(0).(*model.EnrichmentResult)
}

func (m *mockEnrichService) ProcessBatch(ctx context.Context, companies []model.Company, maxConcurrent int) map[string]*model.EnrichmentResult {
	args := m.Called(ctx, companies, maxConcurrent)
	return args.Get(0).(map[string]*model.EnrichmentResult)
}

func (m *mockEnrichService) Metrics() enrich.MetricsSnapshot {
	return m.Called().Get(0).(enrich.MetricsSnapshot)
}

func (m *mockEnrichService) ExportResults(ctx context.Context, opts enrich.ExportOptions) string {
	return m.Called(ctx, opts).String(0)
}

func serveRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	h := newRouter(&api{svc: new(mockEnrichService)})

	rr := serveRequest(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestEnrichEndpoint_Valid(t *testing.T) {
	svc := new(mockEnrichService)
	svc.On("EnrichCompany", mock.Anything, "Acme", "acme.com", true).Return(&model.EnrichmentResult{
		CompanyName: "Acme",
		Domain:      "acme.com",
		Contacts: []model.MergedContact{
			{Name: "John Doe", Title: "CFO", Email: "john@acme.com", Confidence: 0.9},
		},
	})
	h := newRouter(&api{svc: svc})

	rr := serveRequest(t, h, http.MethodPost, "/v1/enrich", map[string]any{
		"company":       "Acme",
		"domain":        "acme.com",
		"force_refresh": true,
	})

	assert.Equal(t, http.StatusOK, rr.Code)
	var res model.EnrichmentResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Contacts, 1)
	assert.Equal(t, "john@acme.com", res.Contacts[0].Email)
	svc.AssertExpectations(t)
}

func TestEnrichEndpoint_MissingCompany(t *testing.T) {
	svc := new(mockEnrichService)
	h := newRouter(&api{svc: svc})

	rr := serveRequest(t, h, http.MethodPost, "/v1/enrich", map[string]string{"domain": "acme.com"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "company is required")
	svc.AssertNotCalled(t, "EnrichCompany", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEnrichEndpoint_InvalidBody(t *testing.T) {
	h := newRouter(&api{svc: new(mockEnrichService)})

	req := httptest.NewRequest(http.MethodPost, "/v1/enrich", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestEnrichEndpoint_Failed(t *testing.T) {
	svc := new(mockEnrichService)
	svc.On("EnrichCompany", mock.Anything, "Acme", "", false).Return(&model.EnrichmentResult{
		CompanyName:  "Acme",
		Contacts:     []model.MergedContact{},
		ErrorDetails: "cache: unavailable",
	})
	h := newRouter(&api{svc: svc})

	rr := serveRequest(t, h, http.MethodPost, "/v1/enrich", map[string]string{"company": "Acme"})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "cache: unavailable")
}

func TestBatchEndpoint(t *testing.T) {
	companies := []model.Company{
		{Name: "Acme", Domain: "acme.com"},
		{Name: "Globex", Domain: "globex.com"},
	}
	svc := new(mockEnrichService)
	svc.On("ProcessBatch", mock.Anything, companies, 2).Return(map[string]*model.EnrichmentResult{
		"Acme":   {CompanyName: "Acme", Contacts: []model.MergedContact{{Name: "John Doe"}}},
		"Globex": {CompanyName: "Globex", Contacts: []model.MergedContact{}, ErrorDetails: "boom"},
	})
	h := newRouter(&api{svc: svc})

	rr := serveRequest(t, h, http.MethodPost, "/v1/batch", map[string]any{
		"companies": []map[string]string{
			{"company": "Acme", "domain": "acme.com"},
			{"company": "Globex", "domain": "globex.com"},
		},
		"max_concurrent": 2,
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var body batchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Succeeded)
	assert.Equal(t, 1, body.Failed)
	assert.Equal(t, 1, body.Contacts)
	assert.Len(t, body.Results, 2)
	svc.AssertExpectations(t)
}

func TestBatchEndpoint_Validation(t *testing.T) {
	h := newRouter(&api{svc: new(mockEnrichService)})

	rr := serveRequest(t, h, http.MethodPost, "/v1/batch", map[string]any{"companies": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serveRequest(t, h, http.MethodPost, "/v1/batch", map[string]any{
		"companies": []map[string]string{{"domain": "acme.com"}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "every company needs a name")

	many := make([]map[string]string, maxBatchCompanies+1)
	for i := range many {
		many[i] = map[string]string{"company": "Acme"}
	}
	rr = serveRequest(t, h, http.MethodPost, "/v1/batch", map[string]any{"companies": many})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestContactsEndpoint(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = st.AddResult(context.Background(), store.Record{
		CompanyName:      "Acme Corp",
		PersonName:       "John Doe",
		Title:            "CFO",
		Email:            "john@acme.com",
		Confidence:       0.9,
		Source:           model.SourceApollo,
		FoundAt:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ValidationStatus: store.StatusValidated,
	})
	require.NoError(t, err)
	h := newRouter(&api{svc: new(mockEnrichService), store: st})

	rr := serveRequest(t, h, http.MethodGet, "/v1/companies/Acme%20Corp/contacts", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Company  string         `json:"company"`
		Contacts []store.Record `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Acme Corp", body.Company)
	require.Len(t, body.Contacts, 1)
	assert.Equal(t, "john@acme.com", body.Contacts[0].Email)

	rr = serveRequest(t, h, http.MethodGet, "/v1/companies/Unknown/contacts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"contacts":[]`)
}

func TestContactsEndpoint_NoStore(t *testing.T) {
	h := newRouter(&api{svc: new(mockEnrichService)})

	rr := serveRequest(t, h, http.MethodGet, "/v1/companies/Acme/contacts", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	svc := new(mockEnrichService)
	svc.On("Metrics").Return(enrich.MetricsSnapshot{TotalSearches: 3, CacheHits: 1})
	h := newRouter(&api{svc: svc})

	rr := serveRequest(t, h, http.MethodGet, "/v1/metrics", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var snap enrich.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 3, snap.TotalSearches)
	assert.Equal(t, 1, snap.CacheHits)
}

func TestExportEndpoint(t *testing.T) {
	svc := new(mockEnrichService)
	svc.On("ExportResults", mock.Anything, enrich.ExportOptions{Format: enrich.FormatCSV, IncludeMetrics: true}).
		Return("exports/enrichment_results.csv")
	svc.On("ExportResults", mock.Anything, enrich.ExportOptions{Format: "xlsx", IncludeMetrics: false}).
		Return("")
	h := newRouter(&api{svc: svc})

	rr := serveRequest(t, h, http.MethodPost, "/v1/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "exports/enrichment_results.csv")

	rr = serveRequest(t, h, http.MethodPost, "/v1/export", map[string]any{"format": "xlsx", "include_metrics": false})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serveRequest(t, h, http.MethodPost, "/v1/export", map[string]any{"format": "pdf"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertExpectations(t)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newRouter(&api{svc: new(mockEnrichService)})

	req := httptest.NewRequest(http.MethodOptions, "/v1/enrich", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouter_NotFound(t *testing.T) {
	h := newRouter(&api{svc: new(mockEnrichService)})

	rr := serveRequest(t, h, http.MethodGet, "/v1/unknown", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
