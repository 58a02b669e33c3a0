package validation

// ActionKind is a browser-surface navigation action.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionTypeText ActionKind = "type"
	ActionWait     ActionKind = "wait"
	ActionScroll   ActionKind = "scroll"
	ActionHover    ActionKind = "hover"
)

// Valid reports whether t is a known action type.
func (t ActionKind) Valid() bool {
	switch t {
	case ActionClick, ActionTypeText, ActionWait, ActionScroll, ActionHover:
		return true
	}
	return false
}

// Target addresses an element either by selector text, by a structured
// selector, or by screen coordinates.
type Target struct {
	Text     string   `json:"text,omitempty"`
	Selector string   `json:"selector,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

func (t *Target) wellFormed() bool {
	if t.Text != "" || t.Selector != "" {
		return true
	}
	return t.X != nil && t.Y != nil
}

// Action is a proposed navigation step.
type Action struct {
	Type   ActionKind `json:"type"`
	Target *Target    `json:"target,omitempty"`
	Value  *string    `json:"value,omitempty"`
}

// ValidateAction scores a proposed action starting from 1.0:
//   - ×0.5 when type or target is missing,
//   - ×0.3 for an unknown type,
//   - ×0.7 for a target with neither selector nor both coordinates,
//   - ×0.6 for a type action without a value.
func (s *Service) ValidateAction(a Action) Result {
	var errs []string
	confidence := 1.0

	if a.Type == "" || a.Target == nil {
		errs = append(errs, "missing required fields")
		confidence *= 0.5
	}

	if !a.Type.Valid() {
		errs = append(errs, "invalid action type: "+string(a.Type))
		confidence *= 0.3
	}

	if a.Target != nil && !a.Target.wellFormed() {
		errs = append(errs, "invalid target format")
		confidence *= 0.7
	}

	if a.Type == ActionTypeText && a.Value == nil {
		errs = append(errs, "missing value for type action")
		confidence *= 0.6
	}

	return s.finish(errs, confidence)
}
