// Package rule implements the AWS Config custom rule that reports whether the
// organization has an AI services opt-out policy attached to its root.
package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	"github.com/aws/aws-sdk-go-v2/service/configservice/types"

	"github.com/tomoyayamashita/ai-optout/internal/compliance"
	"github.com/tomoyayamashita/ai-optout/internal/config"
	"github.com/tomoyayamashita/ai-optout/internal/logger"
	"github.com/tomoyayamashita/ai-optout/internal/report"
)

// ConfigAPI is the AWS Config client surface used to submit evaluations
type ConfigAPI interface {
	PutEvaluations(ctx context.Context, params *configservice.PutEvaluationsInput, optFns ...func(*configservice.Options)) (*configservice.PutEvaluationsOutput, error)
}

var _ ConfigAPI = (*configservice.Client)(nil)

// Runner performs one compliance check; *compliance.Checker satisfies it
type Runner interface {
	Run(ctx context.Context) (*compliance.Run, error)
}

// Handler evaluates the rule for a Config event
type Handler struct {
	runner Runner
	config ConfigAPI
	cfg    config.RuleConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewHandler creates a Handler. The runner should use rule mode at policies depth.
func NewHandler(runner Runner, cfgClient ConfigAPI, cfg config.RuleConfig, log *logger.Logger) *Handler {
	return &Handler{
		runner: runner,
		config: cfgClient,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Handle runs the check and returns the rule result.
//
// A check that could not read the organization still yields a NON_COMPLIANT
// result with an "Error checking policy" annotation. The returned error is
// reserved for failing to deliver the evaluation to AWS Config.
func (h *Handler) Handle(ctx context.Context, event events.ConfigEvent) (report.RuleResult, error) {
	var result report.RuleResult

	run, err := h.runner.Run(ctx)
	if err != nil {
		result = report.ForError(err)
	} else {
		result = report.ForVerdict(run.Decision.Verdict)
	}

	h.log.Info("rule_evaluated", result.Annotation, map[string]interface{}{
		"rule":            event.ConfigRuleName,
		"account_id":      event.AccountID,
		"compliance_type": result.ComplianceType,
	})

	if !h.cfg.ReportToConfig || event.ResultToken == "" {
		return result, nil
	}

	if err := h.putEvaluation(ctx, event, result); err != nil {
		h.log.Error("put_evaluations_failed", "Failed to submit evaluation to AWS Config", map[string]interface{}{
			"rule":  event.ConfigRuleName,
			"error": err.Error(),
		})
		return result, err
	}
	return result, nil
}

func (h *Handler) putEvaluation(ctx context.Context, event events.ConfigEvent, result report.RuleResult) error {
	out, err := h.config.PutEvaluations(ctx, &configservice.PutEvaluationsInput{
		ResultToken: aws.String(event.ResultToken),
		Evaluations: []types.Evaluation{{
			ComplianceResourceType: aws.String(h.cfg.ResourceType),
			ComplianceResourceId:   aws.String(event.AccountID),
			ComplianceType:         types.ComplianceType(result.ComplianceType),
			Annotation:             aws.String(truncate(result.Annotation, maxAnnotation)),
			OrderingTimestamp:      aws.Time(h.orderingTimestamp(event.InvokingEvent)),
		}},
	})
	if err != nil {
		return fmt.Errorf("put evaluations: %w", err)
	}
	if len(out.FailedEvaluations) > 0 {
		return fmt.Errorf("put evaluations: %d evaluation(s) rejected", len(out.FailedEvaluations))
	}
	return nil
}

// AWS Config rejects longer annotations
const maxAnnotation = 256

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type invokingEvent struct {
	NotificationCreationTime string `json:"notificationCreationTime"`
}

// orderingTimestamp uses the notification creation time of the invoking event, or now.
func (h *Handler) orderingTimestamp(raw string) time.Time {
	var ie invokingEvent
	if raw != "" && json.Unmarshal([]byte(raw), &ie) == nil && ie.NotificationCreationTime != "" {
		if t, err := time.Parse(time.RFC3339, ie.NotificationCreationTime); err == nil {
			return t
		}
	}
	return h.now()
}
