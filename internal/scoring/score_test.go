package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestConfidence(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{
			name: "missing base uses default",
			in:   Input{Sources: []model.Source{model.SourceApollo}},
			want: 0.5 * 0.6,
		},
		{
			name: "domain and title boosts",
			in: Input{
				Base:             ptr(0.9),
				Sources:          []model.Source{model.SourceApollo},
				EmailDomainMatch: true,
				TitleMatch:       true,
			},
			want: 0.9 * 0.6 * 1.1 * 1.1,
		},
		{
			name: "mean weight across sources",
			in: Input{
				Base:    ptr(1.0),
				Sources: []model.Source{model.SourceApollo, model.SourceRocketReach},
			},
			want: 0.5,
		},
		{
			name: "historical boost",
			in: Input{
				Base:              ptr(0.8),
				Sources:           []model.Source{model.SourceRocketReach},
				HistoricallyValid: true,
			},
			want: 0.8 * 0.4 * 1.05,
		},
		{
			name: "unknown source weighs zero",
			in:   Input{Base: ptr(1.0), Sources: []model.Source{"clearbit"}},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cfg.Confidence(tt.in), 0.0001)
		})
	}
}

func TestConfidence_Clamped(t *testing.T) {
	cfg := Default()
	cfg.SourceWeights[model.SourceApollo] = 1.0

	got := cfg.Confidence(Input{
		Base:              ptr(1.0),
		Sources:           []model.Source{model.SourceApollo},
		EmailDomainMatch:  true,
		TitleMatch:        true,
		HistoricallyValid: true,
	})
	assert.Equal(t, 1.0, got)

	assert.Equal(t, 0.0, cfg.Confidence(Input{Base: ptr(-2), Sources: []model.Source{model.SourceApollo}}))
}

func TestTitleMatches(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.TitleMatches("CFO"))
	assert.True(t, cfg.TitleMatches("Chief Financial Officer & Treasurer"))
	assert.True(t, cfg.TitleMatches("  vp of finance "))
	assert.True(t, cfg.TitleMatches("Senior Director of FP&A"))
	assert.False(t, cfg.TitleMatches("Software Engineer"))
	assert.False(t, cfg.TitleMatches(""))
}

func TestEmailDomainMatches(t *testing.T) {
	assert.True(t, EmailDomainMatches("john@acme.com", "acme.com"))
	assert.True(t, EmailDomainMatches("john@ACME.com", "acme.com"))
	assert.False(t, EmailDomainMatches("john@gmail.com", "acme.com"))
	assert.False(t, EmailDomainMatches("john", "acme.com"))
	assert.False(t, EmailDomainMatches("john@acme.com", ""))
}

func TestWeights(t *testing.T) {
	cfg := Default()
	both := []model.Source{model.SourceApollo, model.SourceRocketReach}

	assert.InDelta(t, 0.5, cfg.MeanWeight(both), 0.0001)
	assert.InDelta(t, 0.6, cfg.MaxWeight(both), 0.0001)
	assert.Equal(t, 0.0, cfg.MeanWeight(nil))
}

func TestValidationScore(t *testing.T) {
	assert.Equal(t, 1.0, ValidationScore(true, true, true, true))
	assert.Equal(t, 0.75, ValidationScore(true, true, false, true))
	assert.Equal(t, 0.0, ValidationScore())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.EnrichConfig{
		MinConfidence:   0.6,
		MaxResults:      3,
		CrossValidation: false,
		SourceWeights:   map[string]float64{"apollo": 1.0},
		TargetTitles:    []string{"Controller"},
	})

	assert.InDelta(t, 0.6, cfg.MinConfidence, 0.0001)
	assert.Equal(t, 3, cfg.MaxResults)
	assert.False(t, cfg.CrossValidation)
	assert.Equal(t, 1.0, cfg.Weight(model.SourceApollo))
	assert.Equal(t, 0.0, cfg.Weight(model.SourceRocketReach))
	assert.True(t, cfg.TitleMatches("Financial Controller"))
	assert.Equal(t, DefaultBoosts(), cfg.Boosts)
}

func TestLoadConfig_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	yaml := `
scoring:
  min_confidence: 0.8
  source_weights:
    rocketreach: 0.5
  boosts:
    cross_source: 1.3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	base := Default()
	cfg, err := LoadConfig(path, base)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, cfg.MinConfidence, 0.0001)
	assert.Equal(t, 5, cfg.MaxResults)
	assert.InDelta(t, 0.6, cfg.Weight(model.SourceApollo), 0.0001)
	assert.InDelta(t, 0.5, cfg.Weight(model.SourceRocketReach), 0.0001)
	assert.InDelta(t, 1.3, cfg.Boosts.CrossSource, 0.0001)
	assert.InDelta(t, 1.1, cfg.Boosts.DomainMatch, 0.0001)

	// Base is untouched.
	assert.InDelta(t, 0.4, base.Weight(model.SourceRocketReach), 0.0001)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), Default())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  min_confidence: 2\n"), 0o644))
	_, err = LoadConfig(path, Default())
	assert.Error(t, err)
}
