package events

import (
	"time"

	"github.com/tomoyayamashita/ai-optout/internal/compliance"
	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

// ComplianceEvent is published after every compliance run
type ComplianceEvent struct {
	Timestamp         string           `json:"timestamp"` // RFC3339
	RunID             string           `json:"run_id"`
	OrganizationID    string           `json:"organization_id,omitempty"`
	Mode              string           `json:"mode"`
	Result            string           `json:"result"` // COMPLIANT | NON_COMPLIANT
	Annotation        string           `json:"annotation"`
	PolicyTypeEnabled *bool            `json:"policy_type_enabled,omitempty"`
	Passed            bool             `json:"passed"`
	Advisories        []policy.Finding `json:"advisories,omitempty"`
	Errors            []string         `json:"errors,omitempty"` // "scope id: message"
	DurationMs        int64            `json:"duration_ms"`
}

// FromRun builds the event for a completed run
func FromRun(run *compliance.Run) ComplianceEvent {
	v := run.Decision.Verdict

	e := ComplianceEvent{
		Timestamp:         run.StartedAt.UTC().Format(time.RFC3339),
		RunID:             run.ID,
		OrganizationID:    run.OrganizationID(),
		Mode:              string(run.Decision.Mode),
		Result:            string(v.Result),
		Annotation:        v.Annotation,
		PolicyTypeEnabled: v.PolicyTypeEnabled,
		Passed:            run.Decision.Passed,
		DurationMs:        run.Duration.Milliseconds(),
	}

	for _, f := range v.Findings {
		if f.Severity != policy.SeverityPass {
			e.Advisories = append(e.Advisories, f)
		}
	}
	for _, err := range v.Errors {
		e.Errors = append(e.Errors, string(err.Scope)+" "+err.ID+": "+err.Message)
	}

	return e
}
