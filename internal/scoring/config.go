// Package scoring holds the contact confidence model: per-source weights,
// target-title matching, and the multiplicative boosts applied on top of a
// source-reported base confidence.
package scoring

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-enrich/internal/config"
	"github.com/sells-group/lead-enrich/internal/model"
)

// Config is the scoring configuration.
type Config struct {
	MinConfidence   float64                  `yaml:"min_confidence"`
	MaxResults      int                      `yaml:"max_results"`
	CrossValidation bool                     `yaml:"cross_validation"`
	SourceWeights   map[model.Source]float64 `yaml:"source_weights"`
	TargetTitles    []string                 `yaml:"target_titles"`
	Boosts          Boosts                   `yaml:"boosts"`
}

// Boosts are the multipliers applied when a signal is present.
type Boosts struct {
	DomainMatch     float64 `yaml:"domain_match"`
	TitleMatch      float64 `yaml:"title_match"`
	HistoricalEmail float64 `yaml:"historical_email"`
	CrossSource     float64 `yaml:"cross_source"`
}

// DefaultBoosts returns the standard multipliers.
func DefaultBoosts() Boosts {
	return Boosts{
		DomainMatch:     1.1,
		TitleMatch:      1.1,
		HistoricalEmail: 1.05,
		CrossSource:     1.2,
	}
}

// Default returns the built-in scoring configuration.
func Default() Config {
	return Config{
		MinConfidence:   0.7,
		MaxResults:      5,
		CrossValidation: true,
		SourceWeights: map[model.Source]float64{
			model.SourceApollo:      0.6,
			model.SourceRocketReach: 0.4,
		},
		TargetTitles: append([]string(nil), config.DefaultTargetTitles...),
		Boosts:       DefaultBoosts(),
	}
}

// FromConfig builds a scoring Config from the application enrich section.
func FromConfig(c config.EnrichConfig) Config {
	cfg := Default()
	cfg.MinConfidence = c.MinConfidence
	if c.MaxResults > 0 {
		cfg.MaxResults = c.MaxResults
	}
	cfg.CrossValidation = c.CrossValidation
	if len(c.SourceWeights) > 0 {
		cfg.SourceWeights = make(map[model.Source]float64, len(c.SourceWeights))
		for name, w := range c.SourceWeights {
			cfg.SourceWeights[model.Source(name)] = w
		}
	}
	if len(c.TargetTitles) > 0 {
		cfg.TargetTitles = append([]string(nil), c.TargetTitles...)
	}
	return cfg
}

// LoadConfig reads a YAML overlay from path and applies it on top of base.
// Keys absent from the file keep their base values.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "scoring: read config %s", path)
	}

	cfg := base.clone()
	// The YAML has a top-level "scoring" key
	wrapper := struct {
		Scoring *Config `yaml:"scoring"`
	}{Scoring: &cfg}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return base, eris.Wrap(err, "scoring: parse config")
	}

	if cfg.MaxResults <= 0 {
		return base, eris.New("scoring: max_results must be positive")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return base, eris.Errorf("scoring: min_confidence %v out of range", cfg.MinConfidence)
	}
	return cfg, nil
}

func (c Config) clone() Config {
	out := c
	out.SourceWeights = make(map[model.Source]float64, len(c.SourceWeights))
	for k, v := range c.SourceWeights {
		out.SourceWeights[k] = v
	}
	out.TargetTitles = append([]string(nil), c.TargetTitles...)
	return out
}
