package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Company is a lookup target for enrichment.
type Company struct {
	Name   string `json:"company"`
	Domain string `json:"domain"`
}

// Source identifies a contact-data provider.
type Source string

const (
	SourceApollo      Source = "apollo"
	SourceRocketReach Source = "rocketreach"
)

// String implements fmt.Stringer.
func (s Source) String() string { return string(s) }

var folder = cases.Fold()

// NormalizeName collapses whitespace and case-folds s so equal identities
// compare equal regardless of spacing, case, or Unicode composition.
func NormalizeName(s string) string {
	s = norm.NFKC.String(s)
	return folder.String(strings.Join(strings.Fields(s), " "))
}

// IdentityKey returns the deduplication key for a (company, person) pair.
func IdentityKey(company, person string) string {
	return NormalizeName(company) + "|" + NormalizeName(person)
}
