package enrich

import (
	"sort"
	"strings"

	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/scoring"
	"github.com/sells-group/lead-enrich/internal/validation"
)

// candidate is a merged contact with its identity key.
type candidate struct {
	key     string
	contact model.MergedContact
}

// accept reports whether raw passes the contact gate: a target title, a
// first and last name, and an email that validates against the company
// domain. Every gate decision feeds the validation rate.
func (o *Orchestrator) accept(raw model.RawContact, company model.Company) bool {
	ok := o.cfg.Scoring.TitleMatches(raw.Title) &&
		len(strings.Fields(raw.Name)) >= 2 &&
		raw.Email != "" &&
		o.deps.Validator.ValidateEmail(raw.Email, company.Domain).Valid
	o.metrics.gate(ok)
	return ok
}

// score computes one candidate's confidence from its own source alone.
// History is read before the gate revalidates the email so only earlier
// calls count as historical evidence.
func (o *Orchestrator) score(raw model.RawContact, company model.Company, historical bool) float64 {
	return o.cfg.Scoring.Confidence(scoring.Input{
		Base:              raw.Confidence,
		Sources:           []model.Source{raw.Source},
		EmailDomainMatch:  scoring.EmailDomainMatches(raw.Email, company.Domain),
		TitleMatch:        o.cfg.Scoring.TitleMatches(raw.Title),
		HistoricallyValid: historical,
	})
}

// merge gates, scores and deduplicates raw contacts by (company, person)
// identity. A merged contact keeps the highest candidate confidence and
// the fields of its highest-weighted source; the first seen wins ties.
func (o *Orchestrator) merge(runs []sourceRun, company model.Company) []candidate {
	var order []string
	byKey := make(map[string]*model.MergedContact)

	for _, run := range runs {
		for _, raw := range run.contacts {
			prior, seen := o.deps.Validator.History(raw.Email)
			historical := seen && prior.Valid

			if !o.accept(raw, company) {
				continue
			}
			conf := o.score(raw, company, historical)
			key := model.IdentityKey(company.Name, raw.Name)

			existing, ok := byKey[key]
			if !ok {
				byKey[key] = &model.MergedContact{
					Name:       raw.Name,
					Title:      raw.Title,
					Email:      raw.Email,
					Confidence: conf,
					Source:     raw.Source,
					Sources:    []model.Source{raw.Source},
				}
				order = append(order, key)
				continue
			}

			if conf > existing.Confidence {
				existing.Confidence = conf
			}
			if o.cfg.Scoring.Weight(raw.Source) > o.cfg.Scoring.Weight(existing.Source) {
				existing.Name = raw.Name
				existing.Title = raw.Title
				existing.Email = raw.Email
				existing.Source = raw.Source
			}
			existing.AddSource(raw.Source)
		}
	}

	out := make([]candidate, 0, len(order))
	for _, k := range order {
		out = append(out, candidate{key: k, contact: *byKey[k]})
	}
	return out
}

// rank drops candidates below the confidence threshold, orders the rest by
// confidence then best source weight, and keeps the top MaxResults.
func (o *Orchestrator) rank(cands []candidate) []model.MergedContact {
	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if c.contact.Confidence >= o.cfg.Scoring.MinConfidence {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i].contact, kept[j].contact
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		wa, wb := o.cfg.Scoring.MaxWeight(a.Sources), o.cfg.Scoring.MaxWeight(b.Sources)
		if wa != wb {
			return wa > wb
		}
		return kept[i].key < kept[j].key
	})

	if n := o.cfg.Scoring.MaxResults; n > 0 && len(kept) > n {
		kept = kept[:n]
	}
	out := make([]model.MergedContact, len(kept))
	for i, c := range kept {
		out[i] = c.contact
	}
	return out
}

// crossValidate boosts contacts confirmed by several sources, weighs
// single-source contacts by a fresh email validation, scores each contact's
// independent checks, and keeps those still above the threshold.
func (o *Orchestrator) crossValidate(contacts []model.MergedContact, company model.Company) []model.MergedContact {
	out := make([]model.MergedContact, 0, len(contacts))
	for _, c := range contacts {
		res := o.deps.Validator.ValidateEmail(c.Email, company.Domain)

		multi := len(c.Sources) > 1
		if multi {
			c.Confidence = scoring.Clamp(c.Confidence * o.cfg.Scoring.Boosts.CrossSource)
			c.CrossValidated = true
			o.metrics.recordCrossValidation(true)
		} else {
			c.Confidence = scoring.Clamp(c.Confidence * res.Confidence)
			o.metrics.recordCrossValidation(false)
		}

		c.ValidationScore = scoring.ValidationScore(
			validation.WellFormed(c.Email),
			scoring.EmailDomainMatches(c.Email, company.Domain),
			o.cfg.Scoring.TitleMatches(c.Title),
			multi,
		)

		if c.Confidence >= o.cfg.Scoring.MinConfidence {
			c.Validated = true
			out = append(out, c)
		}
	}
	return out
}

// validationScores summarises the validation scores of contacts.
func validationScores(contacts []model.MergedContact) model.ValidationScores {
	vs := model.ValidationScores{}
	if len(contacts) == 0 {
		return vs
	}
	vs.ByContact = make(map[string]float64, len(contacts))
	vs.Min = contacts[0].ValidationScore
	var sum float64
	for _, c := range contacts {
		s := c.ValidationScore
		sum += s
		if s < vs.Min {
			vs.Min = s
		}
		if s > vs.Max {
			vs.Max = s
		}
		vs.ByContact[c.Name] = s
	}
	vs.Average = sum / float64(len(contacts))
	return vs
}
