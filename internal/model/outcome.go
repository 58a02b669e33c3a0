package model

// OutcomeKind discriminates a SearchOutcome.
type OutcomeKind int

const (
	OutcomeEmpty OutcomeKind = iota
	OutcomeFound
	OutcomeTransportError
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "empty"
	}
}

// SearchOutcome is the result of one source search: contacts were found,
// nothing was found, or the source could not be reached.
type SearchOutcome struct {
	kind     OutcomeKind
	contacts []RawContact
	err      error
}

// Found returns an outcome carrying contacts. An empty slice yields Empty.
func Found(contacts []RawContact) SearchOutcome {
	if len(contacts) == 0 {
		return Empty()
	}
	return SearchOutcome{kind: OutcomeFound, contacts: contacts}
}

// Empty returns an outcome for a search that completed with no contacts.
func Empty() SearchOutcome {
	return SearchOutcome{kind: OutcomeEmpty}
}

// TransportError returns an outcome for a search that failed to reach the source.
func TransportError(err error) SearchOutcome {
	return SearchOutcome{kind: OutcomeTransportError, err: err}
}

// Kind returns the outcome discriminator.
func (o SearchOutcome) Kind() OutcomeKind { return o.kind }

// Contacts returns the contacts of a Found outcome, nil otherwise.
func (o SearchOutcome) Contacts() []RawContact { return o.contacts }

// Err returns the transport error, nil for other kinds.
func (o SearchOutcome) Err() error { return o.err }
