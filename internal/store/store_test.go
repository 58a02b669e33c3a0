package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(company, person, email string, conf float64, at time.Time) Record {
	return Record{
		CompanyName: company,
		PersonName:  person,
		Title:       "CFO",
		Email:       email,
		Confidence:  conf,
		Source:      model.SourceApollo,
		FoundAt:     at,
		Metadata: Metadata{
			Sources:         []model.Source{model.SourceApollo},
			Validated:       true,
			ValidationScore: 1,
		},
		ValidationStatus: StatusValidated,
	}
}

func TestResultKey(t *testing.T) {
	assert.Equal(t, "acme_corp_john_doe", ResultKey("Acme Corp", "John Doe"))
	assert.Equal(t, ResultKey("ACME", "jane"), ResultKey("acme", "Jane"))
}

func TestShouldUpdate(t *testing.T) {
	old := rec("Acme", "John Doe", "john@acme.com", 0.8, baseTime)

	tests := []struct {
		name     string
		existing Record
		incoming Record
		want     bool
	}{
		{"higher confidence", old, rec("Acme", "John Doe", "john@acme.com", 0.9, baseTime), true},
		{"lower confidence", old, rec("Acme", "John Doe", "john@acme.com", 0.7, baseTime.Add(time.Hour)), false},
		{"gains email", rec("Acme", "John Doe", "", 0.9, baseTime), rec("Acme", "John Doe", "john@acme.com", 0.5, baseTime), true},
		{"same confidence newer", old, rec("Acme", "John Doe", "john@acme.com", 0.8, baseTime.Add(time.Minute)), true},
		{"same confidence older", old, rec("Acme", "John Doe", "john@acme.com", 0.8, baseTime.Add(-time.Minute)), false},
		{"identical", old, old, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldUpdate(tt.existing, tt.incoming))
		})
	}
}

func TestRecord_ExportRow(t *testing.T) {
	r := rec("Acme", "John Doe", "john@acme.com", 0.9, baseTime)
	r.Metadata.Sources = []model.Source{model.SourceApollo, model.SourceRocketReach}
	r.Metadata.RetryCount = 2

	row := r.ExportRow(false)
	assert.Equal(t, "apollo,rocketreach", row.Sources)
	assert.Zero(t, row.RetryCount)

	row = r.ExportRow(true)
	assert.Equal(t, 2, row.RetryCount)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := Open(ctx, config.StoreConfig{Driver: "file", Dir: filepath.Join(dir, "results")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)
	require.NoError(t, st.Close())

	st, err = Open(ctx, config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(dir, "results.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "redis"})
	assert.ErrorContains(t, err, "unknown driver")
}

// Both backends must behave identically.
func backends(t *testing.T) map[string]func(t *testing.T) ResultStore {
	return map[string]func(t *testing.T) ResultStore{
		"file": func(t *testing.T) ResultStore {
			st, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return st
		},
		"sqlite": func(t *testing.T) ResultStore {
			return newTestSQLiteStore(t)
		},
	}
}

func TestResultStore_AddAndGet(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)

			changed, err := st.AddResult(ctx, rec("Acme Corp", "John Doe", "john@acme.com", 0.8, baseTime))
			require.NoError(t, err)
			assert.True(t, changed)

			got, err := st.GetResult(ctx, "acme_corp_john_doe")
			require.NoError(t, err)
			assert.Equal(t, "john@acme.com", got.Email)
			assert.Equal(t, 0.8, got.Confidence)
			assert.True(t, got.FoundAt.Equal(baseTime))
			assert.Equal(t, []model.Source{model.SourceApollo}, got.Metadata.Sources)
			assert.Equal(t, StatusValidated, got.ValidationStatus)

			_, err = st.GetResult(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestResultStore_DedupKeepsBest(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)

			_, err := st.AddResult(ctx, rec("Acme", "John Doe", "john@acme.com", 0.8, baseTime))
			require.NoError(t, err)

			changed, err := st.AddResult(ctx, rec("ACME", "john doe", "j@acme.com", 0.75, baseTime.Add(time.Hour)))
			require.NoError(t, err)
			assert.False(t, changed)

			changed, err = st.AddResult(ctx, rec("Acme", "John Doe", "jd@acme.com", 0.95, baseTime))
			require.NoError(t, err)
			assert.True(t, changed)

			all, err := st.AllResults(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "jd@acme.com", all[0].Email)
		})
	}
}

func TestResultStore_CompanyResultsAndRemove(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)

			for _, r := range []Record{
				rec("Acme", "John Doe", "john@acme.com", 0.8, baseTime),
				rec("Acme", "Jane Roe", "jane@acme.com", 0.9, baseTime),
				rec("Globex", "Hank Scorpio", "", 0.7, baseTime),
			} {
				_, err := st.AddResult(ctx, r)
				require.NoError(t, err)
			}

			acme, err := st.GetCompanyResults(ctx, "ACME")
			require.NoError(t, err)
			require.Len(t, acme, 2)
			assert.Equal(t, "Jane Roe", acme[0].PersonName)

			none, err := st.GetCompanyResults(ctx, "Initech")
			require.NoError(t, err)
			assert.Empty(t, none)

			stats, err := st.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, stats.TotalResults)
			assert.Equal(t, 2, stats.TotalCompanies)
			assert.Equal(t, 2, stats.ResultsWithEmail)
			assert.InDelta(t, 0.8, stats.AverageConfidence, 1e-9)
			assert.Greater(t, stats.StorageSizeMB, 0.0)

			removed, err := st.RemoveResult(ctx, ResultKey("Globex", "Hank Scorpio"))
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = st.RemoveResult(ctx, ResultKey("Globex", "Hank Scorpio"))
			require.NoError(t, err)
			assert.False(t, removed)

			stats, err = st.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.TotalCompanies)
		})
	}
}

func TestResultStore_EmptyStats(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stats, err := open(t).Stats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, stats.TotalResults)
			assert.Zero(t, stats.AverageConfidence)
		})
	}
}
