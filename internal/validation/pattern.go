package validation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// segment is the pattern for one dot-separated part of an email local part.
type segment struct {
	Pattern  string `json:"pattern"`
	Optional bool   `json:"optional,omitempty"`
}

// joinSegments renders segments as one regular expression. Optional
// segments carry their leading dot inside the optional group.
func joinSegments(segs []segment) string {
	var b strings.Builder
	for i, s := range segs {
		switch {
		case i == 0:
			b.WriteString(s.Pattern)
		case s.Optional:
			b.WriteString(`(?:\.` + s.Pattern + `)?`)
		default:
			b.WriteString(`\.` + s.Pattern)
		}
	}
	return b.String()
}

// patternSet holds learned local-part patterns per domain.
type patternSet struct {
	byDomain map[string][]segment
	regexps  map[string]*regexp.Regexp
	dirty    bool
}

func newPatternSet() *patternSet {
	return &patternSet{
		byDomain: make(map[string][]segment),
		regexps:  make(map[string]*regexp.Regexp),
	}
}

func (p *patternSet) len() int { return len(p.byDomain) }

func (p *patternSet) pattern(domain string) (string, bool) {
	segs, ok := p.byDomain[domain]
	if !ok {
		return "", false
	}
	return joinSegments(segs), true
}

// compiled returns the matcher for domain, anchored at the start of the
// local part. It is nil when nothing was learned or the stored pattern does
// not compile.
func (p *patternSet) compiled(domain string) *regexp.Regexp {
	if re, ok := p.regexps[domain]; ok {
		return re
	}
	pattern, ok := p.pattern(domain)
	if !ok {
		return nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		zap.L().Warn("validation: discarding uncompilable pattern",
			zap.String("domain", domain), zap.Error(err))
		delete(p.byDomain, domain)
		return nil
	}
	p.regexps[domain] = re
	return re
}

func (p *patternSet) learn(domain, local string) {
	if domain == "" {
		return
	}
	parts := strings.Split(local, ".")

	current, ok := p.byDomain[domain]
	var next []segment
	if ok {
		next = mergeSegments(current, parts)
	} else {
		next = make([]segment, len(parts))
		for i, part := range parts {
			next[i] = segment{Pattern: generatePattern(part)}
		}
	}

	if ok && joinSegments(next) == joinSegments(current) {
		return
	}
	p.byDomain[domain] = next
	delete(p.regexps, domain)
	p.dirty = true
}

// generatePattern maps letters to [a-zA-Z], digits to \d and quotes the rest.
func generatePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			b.WriteString(`[a-zA-Z]`)
		case unicode.IsDigit(r):
			b.WriteString(`\d`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// mergeSegments widens current so it also accepts parts. Segments present
// on both sides are merged by alternation; segments only one side has
// become optional.
func mergeSegments(current []segment, parts []string) []segment {
	n := max(len(current), len(parts))
	merged := make([]segment, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(current) && i < len(parts):
			merged = append(merged, segment{
				Pattern:  mergeSegment(current[i].Pattern, parts[i]),
				Optional: current[i].Optional,
			})
		case i < len(current):
			merged = append(merged, segment{Pattern: current[i].Pattern, Optional: true})
		default:
			merged = append(merged, segment{Pattern: generatePattern(parts[i]), Optional: true})
		}
	}
	return merged
}

// mergeSegment returns pattern unchanged when it already accepts part,
// otherwise the alternation of pattern and part's pattern.
func mergeSegment(pattern, part string) string {
	if re, err := regexp.Compile(`^(?:` + pattern + `)$`); err == nil && re.MatchString(part) {
		return pattern
	}
	return `(?:` + pattern + `|` + generatePattern(part) + `)`
}

func matchPrefix(pattern, s string) bool {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	return err == nil && re.MatchString(s)
}

// LoadPatterns replaces learned patterns with those stored at the configured
// path. A missing file is not an error.
func (s *Service) LoadPatterns() error {
	if s.patternsPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.patternsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "validation: read patterns %s", s.patternsPath)
	}

	var stored map[string][]segment
	if err := json.Unmarshal(data, &stored); err != nil {
		return eris.Wrapf(err, "validation: parse patterns %s", s.patternsPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = newPatternSet()
	for domain, segs := range stored {
		if len(segs) > 0 {
			s.patterns.byDomain[strings.ToLower(domain)] = segs
		}
	}
	return nil
}

// FlushPatterns writes learned patterns to the configured path if they
// changed since the last flush.
func (s *Service) FlushPatterns() error {
	if s.patternsPath == "" {
		return nil
	}

	s.mu.Lock()
	if !s.patterns.dirty {
		s.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(s.patterns.byDomain, "", "  ")
	s.patterns.dirty = false
	s.mu.Unlock()
	if err != nil {
		return eris.Wrap(err, "validation: marshal patterns")
	}

	if err := os.MkdirAll(filepath.Dir(s.patternsPath), 0o755); err != nil {
		return eris.Wrap(err, "validation: create patterns dir")
	}
	tmp := s.patternsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "validation: write patterns")
	}
	if err := os.Rename(tmp, s.patternsPath); err != nil {
		return eris.Wrap(err, "validation: replace patterns")
	}
	return nil
}
