package scoring

import (
	"strings"

	"github.com/sells-group/lead-enrich/internal/model"
)

// DefaultBaseConfidence is used when a source reports no confidence.
const DefaultBaseConfidence = 0.5

// Input carries the signals that feed a confidence score.
type Input struct {
	// Base is the source-reported confidence; nil means DefaultBaseConfidence.
	Base              *float64
	Sources           []model.Source
	EmailDomainMatch  bool
	TitleMatch        bool
	HistoricallyValid bool
}

// Weight returns the configured weight of s, 0 when unknown.
func (c Config) Weight(s model.Source) float64 {
	return c.SourceWeights[s]
}

// MeanWeight returns the mean weight of sources, 0 for none.
func (c Config) MeanWeight(sources []model.Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += c.Weight(s)
	}
	return sum / float64(len(sources))
}

// MaxWeight returns the highest weight among sources.
func (c Config) MaxWeight(sources []model.Source) float64 {
	var best float64
	for _, s := range sources {
		if w := c.Weight(s); w > best {
			best = w
		}
	}
	return best
}

// Confidence computes base × mean source weight, multiplies in each present
// boost, and clamps the result to [0, 1].
func (c Config) Confidence(in Input) float64 {
	base := DefaultBaseConfidence
	if in.Base != nil {
		base = *in.Base
	}

	conf := base * c.MeanWeight(in.Sources)
	if in.EmailDomainMatch {
		conf *= c.Boosts.DomainMatch
	}
	if in.TitleMatch {
		conf *= c.Boosts.TitleMatch
	}
	if in.HistoricallyValid {
		conf *= c.Boosts.HistoricalEmail
	}
	return Clamp(conf)
}

// TitleMatches reports whether any target title occurs in title,
// ignoring case.
func (c Config) TitleMatches(title string) bool {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return false
	}
	for _, target := range c.TargetTitles {
		if strings.Contains(title, strings.ToLower(target)) {
			return true
		}
	}
	return false
}

// EmailDomainMatches reports whether email belongs to domain.
func EmailDomainMatches(email, domain string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || domain == "" {
		return false
	}
	return strings.EqualFold(email[at+1:], strings.TrimSpace(domain))
}

// ValidationScore returns the fraction of checks that passed.
func ValidationScore(checks ...bool) float64 {
	if len(checks) == 0 {
		return 0
	}
	var passed int
	for _, ok := range checks {
		if ok {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}

// Clamp bounds v to [0, 1].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
