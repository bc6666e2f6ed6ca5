package policy

// TypeAIServicesOptOut is the Organizations policy type this module checks
const TypeAIServicesOptOut = "AISERVICES_OPT_OUT_POLICY"

// Mode represents how a verdict is turned into a pass/fail decision
type Mode string

const (
	// ModeStrict also requires the policy type to be enabled for the organization
	ModeStrict Mode = "strict"
	// ModeRule only looks at the verdict result, like the AWS Config rule
	ModeRule Mode = "rule"
)

// Result represents the compliance result reported to AWS Config
type Result string

const (
	ResultCompliant    Result = "COMPLIANT"
	ResultNonCompliant Result = "NON_COMPLIANT"
)

// PolicyTypeState is the status of a policy type within the organization
type PolicyTypeState string

const (
	PolicyTypeEnabled        PolicyTypeState = "ENABLED"
	PolicyTypeDisabled       PolicyTypeState = "DISABLED"
	PolicyTypePendingEnable  PolicyTypeState = "PENDING_ENABLE"
	PolicyTypePendingDisable PolicyTypeState = "PENDING_DISABLE"
)

// TargetType is the kind of node a policy is attached to
type TargetType string

const (
	TargetRoot               TargetType = "ROOT"
	TargetOrganizationalUnit TargetType = "ORGANIZATIONAL_UNIT"
	TargetAccount            TargetType = "ACCOUNT"
)

// AccountStatus is the membership status of an account
type AccountStatus string

const (
	AccountActive         AccountStatus = "ACTIVE"
	AccountSuspended      AccountStatus = "SUSPENDED"
	AccountPendingClosure AccountStatus = "PENDING_CLOSURE"
)

// PolicyTypeStatus reports whether a policy type is turned on
type PolicyTypeStatus struct {
	Type   string          `json:"type"`
	Status PolicyTypeState `json:"status"`
}

// Policy is an AI services opt-out policy with its parsed content.
// ContentErr is set when the content could not be fetched or parsed.
type Policy struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Content    Content `json:"content"`
	ContentErr error   `json:"-"`
}

// PolicyTarget is an attachment of a policy to a node of the organization
type PolicyTarget struct {
	PolicyID   string     `json:"policy_id"`
	TargetID   string     `json:"target_id"`
	Name       string     `json:"name,omitempty"`
	TargetType TargetType `json:"target_type"`
}

// Account is a member account of the organization
type Account struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Status AccountStatus `json:"status"`
}

// EffectivePolicyResult is the outcome of an effective policy lookup for one account
type EffectivePolicyResult struct {
	Present bool
	Content string
	Err     error
}

// Snapshot is everything the evaluator needs, fetched ahead of time
type Snapshot struct {
	OrganizationID     string
	PolicyTypes        []PolicyTypeStatus
	Policies           []Policy
	TargetsByPolicy    map[string][]PolicyTarget
	TargetErrors       map[string]error
	Accounts           []Account
	EffectiveByAccount map[string]EffectivePolicyResult

	// PoliciesOnly is set when only policies and their targets were read.
	// Policy types, policy content and accounts are then unknown.
	PoliciesOnly bool
}

// Scope identifies what a finding or error is about
type Scope string

const (
	ScopeOrganization Scope = "organization"
	ScopePolicy       Scope = "policy"
	ScopeAccount      Scope = "account"
)

// Severity ranks a finding
type Severity string

const (
	SeverityPass Severity = "pass"
	SeverityWarn Severity = "warn"
	SeverityFail Severity = "fail"
)

// Finding codes
const (
	CodeNoPolicy           = "no_policy"
	CodeConfigured         = "configured"
	CodeNotAttachedToRoot  = "not_attached_to_root"
	CodePolicyTypeEnabled  = "policy_type_enabled"
	CodePolicyTypeDisabled = "policy_type_disabled"
	CodeComprehensive      = "comprehensive"
	CodePartialCoverage    = "partial_coverage"
	CodeEffectivePolicy    = "effective_policy"
	CodeNoEffectivePolicy  = "no_effective_policy"
)

// Finding is a single human-readable observation about the organization
type Finding struct {
	Scope       Scope    `json:"scope"`
	SubjectID   string   `json:"subject_id,omitempty"`
	SubjectName string   `json:"subject_name,omitempty"`
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Message     string   `json:"message"`
}

// String returns a one-line representation of the finding
func (f Finding) String() string {
	if f.SubjectID == "" {
		return f.Message
	}
	return f.SubjectID + ": " + f.Message
}

// EntryError records data that could not be obtained for one policy or account
type EntryError struct {
	Scope   Scope  `json:"scope"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// Verdict is the outcome of an evaluation
type Verdict struct {
	Result            Result       `json:"result"`
	Annotation        string       `json:"annotation"`
	PolicyTypeEnabled *bool        `json:"policy_type_enabled,omitempty"` // nil when not read
	Findings          []Finding    `json:"findings"`
	Errors            []EntryError `json:"errors"`
}

// Compliant reports whether the verdict result is COMPLIANT
func (v Verdict) Compliant() bool {
	return v.Result == ResultCompliant
}

// TypeEnabled reports whether the policy type is known to be enabled
func (v Verdict) TypeEnabled() bool {
	return v.PolicyTypeEnabled != nil && *v.PolicyTypeEnabled
}

// Advisories returns the warn and fail findings about the given subject
func (v Verdict) Advisories(subjectID string) []Finding {
	var out []Finding
	for _, f := range v.Findings {
		if f.SubjectID == subjectID && f.Severity != SeverityPass {
			out = append(out, f)
		}
	}
	return out
}

// FindingsFor returns all findings in the given scope
func (v Verdict) FindingsFor(scope Scope) []Finding {
	var out []Finding
	for _, f := range v.Findings {
		if f.Scope == scope {
			out = append(out, f)
		}
	}
	return out
}
