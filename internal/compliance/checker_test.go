package compliance

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tomoyayamashita/ai-optout/internal/logger"
	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

type staticSource struct {
	snapshot *policy.Snapshot
	err      error
}

func (s staticSource) Snapshot(ctx context.Context) (*policy.Snapshot, error) {
	return s.snapshot, s.err
}

func TestChecker_Run(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(&buf, logger.LevelInfo)

	source := staticSource{snapshot: &policy.Snapshot{
		OrganizationID: "o-abc123",
		PolicyTypes:    []policy.PolicyTypeStatus{{Type: policy.TypeAIServicesOptOut, Status: policy.PolicyTypeEnabled}},
		Policies:       []policy.Policy{{ID: "p-1", Content: policy.DefaultContent()}},
		TargetsByPolicy: map[string][]policy.PolicyTarget{
			"p-1": {{TargetType: policy.TargetRoot}},
		},
		Accounts: []policy.Account{{ID: "a-1", Status: policy.AccountActive}},
		EffectiveByAccount: map[string]policy.EffectivePolicyResult{
			"a-1": {Err: errors.New("AccessDeniedException: denied")},
		},
	}}

	run, err := NewChecker(source, policy.NewEngine(policy.ModeStrict), log).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.ID == "" {
		t.Error("run ID should be set")
	}
	if run.OrganizationID() != "o-abc123" {
		t.Errorf("OrganizationID = %q", run.OrganizationID())
	}
	if !run.Decision.Passed {
		t.Errorf("Passed = false, reason %q", run.Decision.Reason)
	}

	out := buf.String()
	if !strings.Contains(out, `"event":"lookup_failed"`) {
		t.Errorf("log should contain lookup_failed, got %s", out)
	}
	if !strings.Contains(out, `"event":"compliance_check"`) || !strings.Contains(out, run.ID) {
		t.Errorf("log should contain compliance_check for %s, got %s", run.ID, out)
	}
}

func TestChecker_RunFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(&buf, logger.LevelInfo)
	wantErr := errors.New("connection refused")

	run, err := NewChecker(staticSource{err: wantErr}, policy.NewEngine(policy.ModeRule), log).Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
	if run != nil {
		t.Errorf("Run() = %+v, want nil on hard failure", run)
	}
	if !strings.Contains(buf.String(), "compliance_check_failed") {
		t.Errorf("log should contain compliance_check_failed, got %s", buf.String())
	}
}
