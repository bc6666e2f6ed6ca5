package policy

import "fmt"

// Engine makes pass/fail decisions on top of Evaluate
type Engine struct {
	mode Mode
}

// NewEngine creates a new policy engine
func NewEngine(mode Mode) *Engine {
	return &Engine{
		mode: mode,
	}
}

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeRule:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeStrict, ModeRule)
}

// Decision is the verdict together with the run-level outcome
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Mode    Mode    `json:"mode"`
	Passed  bool    `json:"passed"`
	Reason  string  `json:"reason"`
}

// Evaluate evaluates a snapshot and decides whether the run passes
func (e *Engine) Evaluate(s Snapshot) Decision {
	v := Evaluate(s)
	d := Decision{
		Verdict: v,
		Mode:    e.mode,
	}

	// Strict mode: a disabled policy type fails the run even when a policy
	// is attached to the root, since it has no effect
	if e.mode == ModeStrict {
		switch {
		case v.PolicyTypeEnabled == nil:
			d.Reason = "AI opt-out policy type status was not read"
			return d
		case !*v.PolicyTypeEnabled:
			d.Reason = "AI opt-out policy type is NOT enabled"
			return d
		}
	}

	d.Passed = v.Compliant()
	d.Reason = v.Annotation
	return d
}

// SetMode sets the policy mode
func (e *Engine) SetMode(mode Mode) {
	e.mode = mode
}

// GetMode returns the current mode
func (e *Engine) GetMode() Mode {
	return e.mode
}
