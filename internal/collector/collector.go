// Package collector reads AI services opt-out policy state from AWS Organizations
// and converts it into a policy.Snapshot.
package collector

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

const tracerName = "github.com/tomoyayamashita/ai-optout/internal/collector"

// OrganizationsAPI is the subset of the Organizations client used by the collector.
// *organizations.Client satisfies it.
type OrganizationsAPI interface {
	DescribeOrganization(ctx context.Context, params *organizations.DescribeOrganizationInput, optFns ...func(*organizations.Options)) (*organizations.DescribeOrganizationOutput, error)
	ListRoots(ctx context.Context, params *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error)
	ListPolicies(ctx context.Context, params *organizations.ListPoliciesInput, optFns ...func(*organizations.Options)) (*organizations.ListPoliciesOutput, error)
	ListTargetsForPolicy(ctx context.Context, params *organizations.ListTargetsForPolicyInput, optFns ...func(*organizations.Options)) (*organizations.ListTargetsForPolicyOutput, error)
	DescribePolicy(ctx context.Context, params *organizations.DescribePolicyInput, optFns ...func(*organizations.Options)) (*organizations.DescribePolicyOutput, error)
	ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
	DescribeEffectivePolicy(ctx context.Context, params *organizations.DescribeEffectivePolicyInput, optFns ...func(*organizations.Options)) (*organizations.DescribeEffectivePolicyOutput, error)
}

var _ OrganizationsAPI = (*organizations.Client)(nil)

// Depth selects how much of the organization is read
type Depth int

const (
	// DepthPolicies reads policies and their targets only
	DepthPolicies Depth = iota
	// DepthFull also reads the organization, policy content, accounts and effective policies
	DepthFull
)

// Options configures a Collector
type Options struct {
	// Concurrency bounds parallel effective policy lookups. Default: 8
	Concurrency int
	Depth       Depth
}

// Collector builds snapshots from the Organizations API
type Collector struct {
	api  OrganizationsAPI
	opts Options
}

// New creates a new Collector
func New(api OrganizationsAPI, opts Options) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Collector{api: api, opts: opts}
}

// NewFromConfig creates a Collector backed by an Organizations client
func NewFromConfig(cfg aws.Config, opts Options) *Collector {
	return New(organizations.NewFromConfig(cfg), opts)
}

// Snapshot reads the current opt-out policy state.
//
// Failures for a single policy or account are recorded in the snapshot.
// Failures that leave nothing to evaluate (listing policies or accounts,
// describing the organization) are returned as errors.
func (c *Collector) Snapshot(ctx context.Context) (*policy.Snapshot, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "collector.Snapshot")
	defer span.End()

	s, err := c.snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("aioptout.organization_id", s.OrganizationID),
		attribute.Int("aioptout.policies", len(s.Policies)),
		attribute.Int("aioptout.accounts", len(s.Accounts)),
	)
	return s, nil
}

func (c *Collector) snapshot(ctx context.Context) (*policy.Snapshot, error) {
	s := &policy.Snapshot{
		TargetsByPolicy:    make(map[string][]policy.PolicyTarget),
		TargetErrors:       make(map[string]error),
		EffectiveByAccount: make(map[string]policy.EffectivePolicyResult),
		PoliciesOnly:       c.opts.Depth == DepthPolicies,
	}

	if c.opts.Depth == DepthFull {
		if err := c.readOrganization(ctx, s); err != nil {
			return nil, err
		}
	}

	policies, err := c.listPolicies(ctx)
	if err != nil {
		return nil, err
	}

	for _, summary := range policies {
		p := policy.Policy{
			ID:   aws.ToString(summary.Id),
			Name: aws.ToString(summary.Name),
		}

		targets, err := c.listTargets(ctx, p.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.TargetErrors[p.ID] = entryError(err)
		} else {
			s.TargetsByPolicy[p.ID] = targets
		}

		if c.opts.Depth == DepthFull {
			p.Content, p.ContentErr = c.readContent(ctx, p.ID)
			if p.ContentErr != nil && ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}

		s.Policies = append(s.Policies, p)
	}

	if c.opts.Depth == DepthFull {
		if err := c.readAccounts(ctx, s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (c *Collector) readOrganization(ctx context.Context, s *policy.Snapshot) error {
	out, err := c.api.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
	if err != nil {
		return wrap("DescribeOrganization", err)
	}
	if out.Organization == nil {
		return fmt.Errorf("DescribeOrganization: %w", ErrOrganizationNotFound)
	}

	s.OrganizationID = aws.ToString(out.Organization.Id)
	s.PolicyTypes = appendPolicyTypes(s.PolicyTypes, out.Organization.AvailablePolicyTypes)

	// Policy types are enabled per root; the organization level list is deprecated
	p := organizations.NewListRootsPaginator(c.api, &organizations.ListRootsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return wrap("ListRoots", err)
		}
		for _, root := range page.Roots {
			s.PolicyTypes = appendPolicyTypes(s.PolicyTypes, root.PolicyTypes)
		}
	}
	return nil
}

func appendPolicyTypes(dst []policy.PolicyTypeStatus, src []types.PolicyTypeSummary) []policy.PolicyTypeStatus {
	for _, pt := range src {
		dst = append(dst, policy.PolicyTypeStatus{
			Type:   string(pt.Type),
			Status: policy.PolicyTypeState(pt.Status),
		})
	}
	return dst
}

func (c *Collector) listPolicies(ctx context.Context) ([]types.PolicySummary, error) {
	var out []types.PolicySummary
	p := organizations.NewListPoliciesPaginator(c.api, &organizations.ListPoliciesInput{
		Filter: types.PolicyTypeAiservicesOptOutPolicy,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, wrap("ListPolicies", err)
		}
		out = append(out, page.Policies...)
	}
	return out, nil
}

func (c *Collector) listTargets(ctx context.Context, policyID string) ([]policy.PolicyTarget, error) {
	var out []policy.PolicyTarget
	p := organizations.NewListTargetsForPolicyPaginator(c.api, &organizations.ListTargetsForPolicyInput{
		PolicyId: aws.String(policyID),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range page.Targets {
			out = append(out, policy.PolicyTarget{
				PolicyID:   policyID,
				TargetID:   aws.ToString(t.TargetId),
				Name:       aws.ToString(t.Name),
				TargetType: policy.TargetType(t.Type),
			})
		}
	}
	return out, nil
}

func (c *Collector) readContent(ctx context.Context, policyID string) (policy.Content, error) {
	out, err := c.api.DescribePolicy(ctx, &organizations.DescribePolicyInput{
		PolicyId: aws.String(policyID),
	})
	if err != nil {
		return policy.Content{}, entryError(err)
	}
	if out.Policy == nil {
		return policy.Content{}, fmt.Errorf("policy %s has no content", policyID)
	}
	return policy.ParseContent(aws.ToString(out.Policy.Content))
}

func (c *Collector) readAccounts(ctx context.Context, s *policy.Snapshot) error {
	p := organizations.NewListAccountsPaginator(c.api, &organizations.ListAccountsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return wrap("ListAccounts", err)
		}
		for _, a := range page.Accounts {
			s.Accounts = append(s.Accounts, policy.Account{
				ID:     aws.ToString(a.Id),
				Name:   aws.ToString(a.Name),
				Status: policy.AccountStatus(a.Status),
			})
		}
	}

	var active []string
	for _, a := range s.Accounts {
		if a.Status == policy.AccountActive {
			active = append(active, a.ID)
		}
	}

	// Each lookup writes its own slot, results are keyed by account id afterwards
	results := make([]policy.EffectivePolicyResult, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, id := range active {
		i, id := i, id
		g.Go(func() error {
			results[i] = c.effectivePolicy(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, id := range active {
		s.EffectiveByAccount[id] = results[i]
	}
	return nil
}

func (c *Collector) effectivePolicy(ctx context.Context, accountID string) policy.EffectivePolicyResult {
	out, err := c.api.DescribeEffectivePolicy(ctx, &organizations.DescribeEffectivePolicyInput{
		PolicyType: types.EffectivePolicyTypeAiservicesOptOutPolicy,
		TargetId:   aws.String(accountID),
	})
	if err != nil {
		if isNoEffectivePolicy(err) {
			return policy.EffectivePolicyResult{Present: false}
		}
		return policy.EffectivePolicyResult{Err: entryError(err)}
	}

	if out.EffectivePolicy == nil || aws.ToString(out.EffectivePolicy.PolicyContent) == "" {
		return policy.EffectivePolicyResult{Present: false}
	}
	return policy.EffectivePolicyResult{
		Present: true,
		Content: aws.ToString(out.EffectivePolicy.PolicyContent),
	}
}
