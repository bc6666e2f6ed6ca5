package policy

import (
	"cmp"
	"slices"
)

// Verdict annotations. These are reported verbatim to AWS Config.
const (
	AnnotationNoPolicy          = "No AI opt-out policy found"
	AnnotationConfigured        = "AI opt-out policy properly configured"
	AnnotationNotAttachedToRoot = "AI opt-out policy not attached to root"
)

const msgLookupMissing = "effective policy lookup missing"

// Evaluate computes the compliance verdict for a snapshot.
//
// The result depends only on whether some policy is attached to the root.
// Policy type status, service coverage and per-account effective policies
// are recorded as findings, and data that could not be fetched is recorded
// in Errors. For a PoliciesOnly snapshot those findings are omitted and
// PolicyTypeEnabled stays nil. Evaluate never fails.
func Evaluate(s Snapshot) Verdict {
	v := Verdict{
		Findings: []Finding{},
		Errors:   []EntryError{},
	}

	// Rule 1: at least one policy must exist
	// Rule 2: at least one policy must be attached to the root
	switch {
	case len(s.Policies) == 0:
		v.Result = ResultNonCompliant
		v.Annotation = AnnotationNoPolicy
		v.Findings = append(v.Findings, orgFinding(SeverityFail, CodeNoPolicy, AnnotationNoPolicy))
	case attachedToRoot(s) != "":
		v.Result = ResultCompliant
		v.Annotation = AnnotationConfigured
		v.Findings = append(v.Findings, orgFinding(SeverityPass, CodeConfigured, AnnotationConfigured))
	default:
		v.Result = ResultNonCompliant
		v.Annotation = AnnotationNotAttachedToRoot
		v.Findings = append(v.Findings, orgFinding(SeverityFail, CodeNotAttachedToRoot, AnnotationNotAttachedToRoot))
	}

	if !s.PoliciesOnly {
		enabled := policyTypeEnabled(s.PolicyTypes)
		v.PolicyTypeEnabled = &enabled
		if enabled {
			v.Findings = append(v.Findings, orgFinding(SeverityPass, CodePolicyTypeEnabled, "AI opt-out policy type is ENABLED"))
		} else {
			v.Findings = append(v.Findings, orgFinding(SeverityFail, CodePolicyTypeDisabled, "AI opt-out policy type is NOT enabled"))
		}
	}

	policyFindings, policyErrors := evaluatePolicies(s)
	var accountFindings []Finding
	var accountErrors []EntryError
	if !s.PoliciesOnly {
		accountFindings, accountErrors = evaluateAccounts(s)
	}

	v.Findings = append(v.Findings, policyFindings...)
	v.Findings = append(v.Findings, accountFindings...)
	v.Errors = append(v.Errors, policyErrors...)
	v.Errors = append(v.Errors, accountErrors...)

	return v
}

// attachedToRoot returns the id of the first policy with a ROOT target
func attachedToRoot(s Snapshot) string {
	for _, p := range s.Policies {
		for _, t := range s.TargetsByPolicy[p.ID] {
			if t.TargetType == TargetRoot {
				return p.ID
			}
		}
	}
	return ""
}

func policyTypeEnabled(types []PolicyTypeStatus) bool {
	for _, pt := range types {
		if pt.Type == TypeAIServicesOptOut && pt.Status == PolicyTypeEnabled {
			return true
		}
	}
	return false
}

func evaluatePolicies(s Snapshot) ([]Finding, []EntryError) {
	policies := slices.Clone(s.Policies)
	slices.SortStableFunc(policies, func(a, b Policy) int { return cmp.Compare(a.ID, b.ID) })

	var findings []Finding
	var errs []EntryError
	for _, p := range policies {
		if err, ok := s.TargetErrors[p.ID]; ok && err != nil {
			errs = append(errs, EntryError{Scope: ScopePolicy, ID: p.ID, Name: p.Name, Message: err.Error()})
		}

		// Content was never read
		if s.PoliciesOnly {
			continue
		}

		// Content that could not be read counts as not comprehensive
		if p.ContentErr != nil {
			errs = append(errs, EntryError{Scope: ScopePolicy, ID: p.ID, Name: p.Name, Message: p.ContentErr.Error()})
		}

		f := Finding{Scope: ScopePolicy, SubjectID: p.ID, SubjectName: p.Name}
		if p.ContentErr == nil && p.Content.IsComprehensive() {
			f.Severity = SeverityPass
			f.Code = CodeComprehensive
			f.Message = "Policy includes 'default' (all services)"
		} else {
			f.Severity = SeverityWarn
			f.Code = CodePartialCoverage
			f.Message = "Policy doesn't include 'default' service"
		}
		findings = append(findings, f)
	}
	return findings, errs
}

func evaluateAccounts(s Snapshot) ([]Finding, []EntryError) {
	accounts := slices.Clone(s.Accounts)
	slices.SortStableFunc(accounts, func(a, b Account) int { return cmp.Compare(a.ID, b.ID) })

	var findings []Finding
	var errs []EntryError
	for _, a := range accounts {
		if a.Status != AccountActive {
			continue
		}

		res, ok := s.EffectiveByAccount[a.ID]
		switch {
		case !ok:
			errs = append(errs, EntryError{Scope: ScopeAccount, ID: a.ID, Name: a.Name, Message: msgLookupMissing})
		case res.Err != nil:
			errs = append(errs, EntryError{Scope: ScopeAccount, ID: a.ID, Name: a.Name, Message: res.Err.Error()})
		case res.Present:
			findings = append(findings, Finding{
				Scope:       ScopeAccount,
				SubjectID:   a.ID,
				SubjectName: a.Name,
				Severity:    SeverityPass,
				Code:        CodeEffectivePolicy,
				Message:     "Opt-out policy active",
			})
		default:
			findings = append(findings, Finding{
				Scope:       ScopeAccount,
				SubjectID:   a.ID,
				SubjectName: a.Name,
				Severity:    SeverityWarn,
				Code:        CodeNoEffectivePolicy,
				Message:     "No opt-out policy",
			})
		}
	}
	return findings, errs
}

func orgFinding(sev Severity, code, msg string) Finding {
	return Finding{Scope: ScopeOrganization, Severity: sev, Code: code, Message: msg}
}
