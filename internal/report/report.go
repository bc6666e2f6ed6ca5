// Package report renders compliance runs for AWS Config and for people.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tomoyayamashita/ai-optout/internal/compliance"
	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

// Format is an output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatRule Format = "rule"
)

// RuleResult is the record returned by the AWS Config rule
type RuleResult struct {
	ComplianceType string `json:"compliance_type"`
	Annotation     string `json:"annotation"`
}

// ForVerdict maps a verdict to a rule record
func ForVerdict(v policy.Verdict) RuleResult {
	return RuleResult{
		ComplianceType: string(v.Result),
		Annotation:     v.Annotation,
	}
}

// ForError maps a failed check to a rule record
func ForError(err error) RuleResult {
	return RuleResult{
		ComplianceType: string(policy.ResultNonCompliant),
		Annotation:     fmt.Sprintf("Error checking policy: %s", err.Error()),
	}
}

// Write renders a run in the given format
func Write(w io.Writer, format Format, run *compliance.Run) error {
	switch format {
	case FormatText:
		return WriteText(w, run)
	case FormatJSON:
		return WriteJSON(w, run, true)
	case FormatRule:
		return WriteRule(w, ForVerdict(run.Decision.Verdict))
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteRule renders a rule record as JSON
func WriteRule(w io.Writer, r RuleResult) error {
	return writeJSON(w, r, true)
}

// JSONReport is the JSON rendering of a run
type JSONReport struct {
	RunID             string              `json:"run_id"`
	StartedAt         string              `json:"started_at"`
	DurationMs        int64               `json:"duration_ms"`
	OrganizationID    string              `json:"organization_id,omitempty"`
	Mode              policy.Mode         `json:"mode"`
	Passed            bool                `json:"passed"`
	Reason            string              `json:"reason"`
	Result            policy.Result       `json:"result"`
	Annotation        string              `json:"annotation"`
	PolicyTypeEnabled *bool               `json:"policy_type_enabled,omitempty"`
	Findings          []policy.Finding    `json:"findings"`
	Errors            []policy.EntryError `json:"errors"`
}

// WriteJSON renders a run as a JSON document
func WriteJSON(w io.Writer, run *compliance.Run, indent bool) error {
	v := run.Decision.Verdict
	return writeJSON(w, JSONReport{
		RunID:             run.ID,
		StartedAt:         run.StartedAt.UTC().Format(time.RFC3339),
		DurationMs:        run.Duration.Milliseconds(),
		OrganizationID:    run.OrganizationID(),
		Mode:              run.Decision.Mode,
		Passed:            run.Decision.Passed,
		Reason:            run.Decision.Reason,
		Result:            v.Result,
		Annotation:        v.Annotation,
		PolicyTypeEnabled: v.PolicyTypeEnabled,
		Findings:          v.Findings,
		Errors:            v.Errors,
	}, indent)
}

func writeJSON(w io.Writer, data interface{}, indent bool) error {
	encoder := json.NewEncoder(w)
	if indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}
