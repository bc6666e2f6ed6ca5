package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/tomoyayamashita/ai-optout/internal/compliance"
	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

const runDateLayout = "2006-01-02 15:04:05"

// WriteText renders a run as the human-readable verification report
func WriteText(w io.Writer, run *compliance.Run) error {
	p := &printer{w: w}
	v := run.Decision.Verdict

	p.printf("🔍 AWS AI Opt-Out Verification Tool\n")
	p.printf("📅 Run date: %s\n\n", run.StartedAt.Format(runDateLayout))

	if id := run.OrganizationID(); id != "" {
		p.printf("✅ Organization found: %s\n", id)
	}

	for _, f := range v.FindingsFor(policy.ScopeOrganization) {
		if f.Code == policy.CodePolicyTypeEnabled || f.Code == policy.CodePolicyTypeDisabled {
			p.printf("%s %s\n", icon(f.Severity), f.Message)
		}
	}

	errorsByID := make(map[string][]policy.EntryError)
	for _, e := range v.Errors {
		errorsByID[string(e.Scope)+"/"+e.ID] = append(errorsByID[string(e.Scope)+"/"+e.ID], e)
	}

	coverage := make(map[string]policy.Finding)
	for _, f := range v.FindingsFor(policy.ScopePolicy) {
		coverage[f.SubjectID] = f
	}

	// Listed from the snapshot: coverage findings are absent when content was not read
	policies := slices.Clone(run.Snapshot.Policies)
	slices.SortStableFunc(policies, func(a, b policy.Policy) int { return cmp.Compare(a.ID, b.ID) })

	p.printf("\n📋 Found %d AI opt-out policies:\n", len(policies))
	for _, pol := range policies {
		p.printf("  - %s (ID: %s)\n", pol.Name, pol.ID)
		if f, ok := coverage[pol.ID]; ok {
			p.printf("    %s %s\n", icon(f.Severity), f.Message)
		}
		for _, e := range errorsByID["policy/"+pol.ID] {
			p.printf("    ⚠️  Error checking: %s\n", e.Message)
		}
	}

	if lines := accountLines(v); len(lines) > 0 {
		p.printf("\n🏢 Checking accounts:\n")
		for _, l := range lines {
			p.printf("  %s\n", l.text)
		}
	}

	p.printf("\n%s %s\n", resultIcon(v.Result), v.Annotation)

	if run.Decision.Passed {
		p.printf("\n✅ AI opt-out verification completed successfully!\n")
	} else {
		p.printf("\n❌ AI opt-out verification failed - action required!\n")
	}

	return p.err
}

type accountLine struct {
	id   string
	text string
}

// accountLines merges account findings and lookup errors, ordered by account id
func accountLines(v policy.Verdict) []accountLine {
	var lines []accountLine
	for _, f := range v.FindingsFor(policy.ScopeAccount) {
		lines = append(lines, accountLine{
			id:   f.SubjectID,
			text: fmt.Sprintf("%s %s - %s", icon(f.Severity), displayName(f.SubjectName, f.SubjectID), f.Message),
		})
	}
	for _, e := range v.Errors {
		if e.Scope != policy.ScopeAccount {
			continue
		}
		lines = append(lines, accountLine{
			id:   e.ID,
			text: fmt.Sprintf("⚠️  %s - Error checking: %s", displayName(e.Name, e.ID), e.Message),
		})
	}
	slices.SortStableFunc(lines, func(a, b accountLine) int { return cmp.Compare(a.id, b.id) })
	return lines
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

func icon(s policy.Severity) string {
	switch s {
	case policy.SeverityPass:
		return "✅"
	case policy.SeverityWarn:
		return "⚠️ "
	default:
		return "❌"
	}
}

func resultIcon(r policy.Result) string {
	if r == policy.ResultCompliant {
		return "✅"
	}
	return "❌"
}

// printer remembers the first write error
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
