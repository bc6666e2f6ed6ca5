package collector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/smithy-go"

	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

// fakeOrganizations implements OrganizationsAPI for tests.
type fakeOrganizations struct {
	mu sync.Mutex

	org         *types.Organization
	orgErr      error
	roots       []types.Root
	policies    []types.PolicySummary
	policiesErr error
	targets     map[string][]types.PolicyTargetSummary
	targetsErr  map[string]error
	content     map[string]string
	contentErr  map[string]error
	// accountPages are returned one page per call
	accountPages [][]types.Account
	accountsErr  error
	effective    map[string]string
	effectiveErr map[string]error

	effectiveCalls []string
}

var _ OrganizationsAPI = (*fakeOrganizations)(nil)

func (f *fakeOrganizations) DescribeOrganization(ctx context.Context, params *organizations.DescribeOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error) {
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	return &organizations.DescribeOrganizationOutput{Organization: f.org}, nil
}

func (f *fakeOrganizations) ListRoots(ctx context.Context, params *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error) {
	return &organizations.ListRootsOutput{Roots: f.roots}, nil
}

func (f *fakeOrganizations) ListPolicies(ctx context.Context, params *organizations.ListPoliciesInput, optFns ...func(*organizations.Options)) (*organizations.ListPoliciesOutput, error) {
	if params.Filter != types.PolicyTypeAiservicesOptOutPolicy {
		return nil, errors.New("unexpected filter " + string(params.Filter))
	}
	if f.policiesErr != nil {
		return nil, f.policiesErr
	}
	return &organizations.ListPoliciesOutput{Policies: f.policies}, nil
}

func (f *fakeOrganizations) ListTargetsForPolicy(ctx context.Context, params *organizations.ListTargetsForPolicyInput, optFns ...func(*organizations.Options)) (*organizations.ListTargetsForPolicyOutput, error) {
	id := aws.ToString(params.PolicyId)
	if err := f.targetsErr[id]; err != nil {
		return nil, err
	}
	return &organizations.ListTargetsForPolicyOutput{Targets: f.targets[id]}, nil
}

func (f *fakeOrganizations) DescribePolicy(ctx context.Context, params *organizations.DescribePolicyInput, optFns ...func(*organizations.Options)) (*organizations.DescribePolicyOutput, error) {
	id := aws.ToString(params.PolicyId)
	if err := f.contentErr[id]; err != nil {
		return nil, err
	}
	return &organizations.DescribePolicyOutput{
		Policy: &types.Policy{Content: aws.String(f.content[id])},
	}, nil
}

func (f *fakeOrganizations) ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	page := 0
	if params.NextToken != nil {
		page = 1
	}
	out := &organizations.ListAccountsOutput{}
	if page < len(f.accountPages) {
		out.Accounts = f.accountPages[page]
	}
	if page+1 < len(f.accountPages) {
		out.NextToken = aws.String("page-2")
	}
	return out, nil
}

func (f *fakeOrganizations) DescribeEffectivePolicy(ctx context.Context, params *organizations.DescribeEffectivePolicyInput, optFns ...func(*organizations.Options)) (*organizations.DescribeEffectivePolicyOutput, error) {
	id := aws.ToString(params.TargetId)

	f.mu.Lock()
	f.effectiveCalls = append(f.effectiveCalls, id)
	f.mu.Unlock()

	if params.PolicyType != types.EffectivePolicyTypeAiservicesOptOutPolicy {
		return nil, errors.New("unexpected policy type")
	}
	if err := f.effectiveErr[id]; err != nil {
		return nil, err
	}
	content, ok := f.effective[id]
	if !ok {
		return nil, &types.EffectivePolicyNotFoundException{Message: aws.String("no effective policy")}
	}
	return &organizations.DescribeEffectivePolicyOutput{
		EffectivePolicy: &types.EffectivePolicy{PolicyContent: aws.String(content)},
	}, nil
}

func newFake() *fakeOrganizations {
	return &fakeOrganizations{
		org: &types.Organization{
			Id: aws.String("o-abc123"),
			AvailablePolicyTypes: []types.PolicyTypeSummary{
				{Type: types.PolicyTypeServiceControlPolicy, Status: types.PolicyTypeStatusEnabled},
			},
		},
		roots: []types.Root{{
			Id: aws.String("r-abcd"),
			PolicyTypes: []types.PolicyTypeSummary{
				{Type: types.PolicyTypeAiservicesOptOutPolicy, Status: types.PolicyTypeStatusEnabled},
			},
		}},
		policies: []types.PolicySummary{
			{Id: aws.String("p-1"), Name: aws.String("AI-OptOut-All-Services")},
			{Id: aws.String("p-2"), Name: aws.String("comprehend-only")},
		},
		targets: map[string][]types.PolicyTargetSummary{
			"p-1": {{TargetId: aws.String("r-abcd"), Name: aws.String("Root"), Type: types.TargetTypeRoot}},
			"p-2": {{TargetId: aws.String("111111111111"), Type: types.TargetTypeAccount}},
		},
		content: map[string]string{
			"p-1": `{"services":{"default":{"opt_out_policy":{"@@assign":"optOut"}}}}`,
			"p-2": `{"services":{"comprehend":{"opt_out_policy":{"@@assign":"optOut"}}}}`,
		},
		accountPages: [][]types.Account{
			{
				{Id: aws.String("111111111111"), Name: aws.String("prod"), Status: types.AccountStatusActive},
				{Id: aws.String("222222222222"), Name: aws.String("legacy"), Status: types.AccountStatusSuspended},
			},
			{
				{Id: aws.String("333333333333"), Name: aws.String("sandbox"), Status: types.AccountStatusActive},
			},
		},
		effective: map[string]string{
			"111111111111": `{"services":{"default":{"opt_out_policy":"optOut"}}}`,
		},
	}
}

func TestCollector_SnapshotFull(t *testing.T) {
	fake := newFake()
	c := New(fake, Options{Concurrency: 2, Depth: DepthFull})

	s, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if s.OrganizationID != "o-abc123" {
		t.Errorf("OrganizationID = %q", s.OrganizationID)
	}
	if len(s.PolicyTypes) != 2 {
		t.Errorf("PolicyTypes = %v, want organization and root entries", s.PolicyTypes)
	}
	if len(s.Policies) != 2 {
		t.Fatalf("Policies = %d, want 2", len(s.Policies))
	}
	if !s.Policies[0].Content.IsComprehensive() || s.Policies[1].Content.IsComprehensive() {
		t.Errorf("content coverage parsed incorrectly: %+v", s.Policies)
	}
	if got := s.TargetsByPolicy["p-1"]; len(got) != 1 || got[0].TargetType != policy.TargetRoot || got[0].TargetID != "r-abcd" {
		t.Errorf("TargetsByPolicy[p-1] = %v", got)
	}
	if len(s.Accounts) != 3 {
		t.Errorf("Accounts = %d, want 3 across both pages", len(s.Accounts))
	}

	if got := s.EffectiveByAccount["111111111111"]; !got.Present {
		t.Errorf("prod effective = %+v, want present", got)
	}
	if got, ok := s.EffectiveByAccount["333333333333"]; !ok || got.Present || got.Err != nil {
		t.Errorf("sandbox effective = %+v, want absent", got)
	}
	if _, ok := s.EffectiveByAccount["222222222222"]; ok {
		t.Error("suspended account should not be looked up")
	}
	if len(fake.effectiveCalls) != 2 {
		t.Errorf("effective lookups = %v, want 2", fake.effectiveCalls)
	}

	v := policy.Evaluate(*s)
	if v.Result != policy.ResultCompliant || !v.TypeEnabled() {
		t.Errorf("verdict = %v enabled=%v", v.Result, v.TypeEnabled())
	}
}

func TestCollector_SnapshotPoliciesOnly(t *testing.T) {
	fake := newFake()
	fake.orgErr = errors.New("should not be called")
	fake.accountsErr = errors.New("should not be called")

	s, err := New(fake, Options{Depth: DepthPolicies}).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(s.Policies) != 2 || len(s.Accounts) != 0 {
		t.Errorf("Policies = %d Accounts = %d", len(s.Policies), len(s.Accounts))
	}
	if len(fake.effectiveCalls) != 0 {
		t.Errorf("effective lookups = %v, want none", fake.effectiveCalls)
	}
	if !s.PoliciesOnly {
		t.Error("PoliciesOnly = false, want true")
	}

	// Policy types and content were not read, so nothing is said about them
	v := policy.Evaluate(*s)
	if v.Result != policy.ResultCompliant {
		t.Errorf("Result = %v, want COMPLIANT", v.Result)
	}
	if v.PolicyTypeEnabled != nil {
		t.Errorf("PolicyTypeEnabled = %v, want nil", *v.PolicyTypeEnabled)
	}
	for _, f := range v.Findings {
		switch f.Code {
		case policy.CodePolicyTypeEnabled, policy.CodePolicyTypeDisabled,
			policy.CodeComprehensive, policy.CodePartialCoverage:
			t.Errorf("unexpected finding %s: %s", f.Code, f.Message)
		}
	}
}

func TestCollector_PartialFailures(t *testing.T) {
	fake := newFake()
	fake.targetsErr = map[string]error{
		"p-2": &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "Rate exceeded"},
	}
	fake.contentErr = map[string]error{
		"p-1": &types.AccessDeniedException{Message: aws.String("denied")},
	}
	fake.effectiveErr = map[string]error{
		"333333333333": &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"},
	}

	s, err := New(fake, Options{Depth: DepthFull}).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if err := s.TargetErrors["p-2"]; err == nil || err.Error() != "TooManyRequestsException: Rate exceeded" {
		t.Errorf("TargetErrors[p-2] = %v", err)
	}
	if s.Policies[0].ContentErr == nil {
		t.Error("p-1 ContentErr should be set")
	}
	if got := s.EffectiveByAccount["333333333333"]; got.Err == nil || got.Err.Error() != "AccessDeniedException: not authorized" {
		t.Errorf("sandbox effective = %+v", got)
	}

	v := policy.Evaluate(*s)
	if v.Result != policy.ResultCompliant {
		t.Errorf("Result = %v, want %v", v.Result, policy.ResultCompliant)
	}
	if len(v.Errors) != 3 {
		t.Errorf("Errors = %v, want 3", v.Errors)
	}
}

func TestCollector_HardFailures(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(f *fakeOrganizations)
		wantNotInUse bool
	}{
		{
			name: "organization not in use",
			setup: func(f *fakeOrganizations) {
				f.orgErr = &types.AWSOrganizationsNotInUseException{Message: aws.String("not in use")}
			},
			wantNotInUse: true,
		},
		{
			name: "not in use reported by error code",
			setup: func(f *fakeOrganizations) {
				f.policiesErr = &smithy.GenericAPIError{Code: "AWSOrganizationsNotInUseException"}
			},
			wantNotInUse: true,
		},
		{
			name: "list policies denied",
			setup: func(f *fakeOrganizations) {
				f.policiesErr = &types.AccessDeniedException{Message: aws.String("denied")}
			},
		},
		{
			name: "list accounts fails",
			setup: func(f *fakeOrganizations) {
				f.accountsErr = errors.New("connection reset")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake()
			tt.setup(fake)

			s, err := New(fake, Options{Depth: DepthFull}).Snapshot(context.Background())
			if err == nil {
				t.Fatalf("Snapshot() = %v, want error", s)
			}
			if errors.Is(err, ErrOrganizationNotFound) != tt.wantNotInUse {
				t.Errorf("errors.Is(ErrOrganizationNotFound) = %v, want %v (%v)", !tt.wantNotInUse, tt.wantNotInUse, err)
			}

			var apiErr *APIError
			if !tt.wantNotInUse && !errors.As(err, &apiErr) {
				t.Errorf("error %v should be an *APIError", err)
			}
		})
	}
}

func TestCollector_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(newFake(), Options{Depth: DepthFull}).Snapshot(ctx); err == nil {
		t.Error("Snapshot should fail with a canceled context")
	}
}
