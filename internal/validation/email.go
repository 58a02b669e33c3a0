package validation

import (
	"regexp"
	"strings"
)

var emailFormat = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// WellFormed reports whether email passes the basic format check.
func WellFormed(email string) bool {
	return emailFormat.MatchString(email)
}

// ValidateEmail scores email starting from 1.0:
//   - ×0.3 when the address is malformed,
//   - ×0.5 when domain is given and the address is on another domain,
//   - ×0.7 when the local part does not fit the pattern learned for its domain.
//
// Well-formed addresses then feed pattern learning for their domain, and the
// outcome is remembered for History.
func (s *Service) ValidateEmail(email, domain string) Result {
	var errs []string
	confidence := 1.0

	local, emailDomain := splitEmail(email)
	wellFormed := emailFormat.MatchString(email)
	if !wellFormed {
		errs = append(errs, "invalid email format")
		confidence *= 0.3
	}

	if domain != "" && !strings.EqualFold(emailDomain, strings.TrimSpace(domain)) {
		errs = append(errs, "email domain mismatch")
		confidence *= 0.5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if re := s.patterns.compiled(emailDomain); re != nil && !re.MatchString(local) {
		errs = append(errs, "email does not match company pattern")
		confidence *= 0.7
	}

	if wellFormed {
		s.patterns.learn(emailDomain, local)
	}

	res := Result{Valid: len(errs) == 0, Confidence: confidence, Errors: errs, Timestamp: s.now()}
	s.count(res.Valid)
	s.history[strings.ToLower(email)] = res
	return res
}

// History returns the most recent validation of email, if any.
func (s *Service) History(email string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.history[strings.ToLower(email)]
	return res, ok
}

// Pattern returns the learned local-part pattern for domain.
func (s *Service) Pattern(domain string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patterns.pattern(strings.ToLower(domain))
}

func splitEmail(email string) (local, domain string) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email, ""
	}
	return email[:at], strings.ToLower(email[at+1:])
}
