// Command configrule is the AWS Lambda handler for the AI services opt-out
// AWS Config custom rule.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/configservice"

	"github.com/tomoyayamashita/ai-optout/internal/collector"
	"github.com/tomoyayamashita/ai-optout/internal/compliance"
	"github.com/tomoyayamashita/ai-optout/internal/config"
	"github.com/tomoyayamashita/ai-optout/internal/logger"
	"github.com/tomoyayamashita/ai-optout/internal/policy"
	"github.com/tomoyayamashita/ai-optout/internal/rule"
)

func main() {
	cfg, err := config.LoadRuleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// CloudWatch collects stdout
	log := logger.NewLogger(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		log.Error("aws_config_failed", "Failed to load AWS config", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// The rule only needs policies and their targets
	source := collector.NewFromConfig(awsCfg, collector.Options{Depth: collector.DepthPolicies})
	checker := compliance.NewChecker(source, policy.NewEngine(policy.ModeRule), log)

	handler := rule.NewHandler(checker, configservice.NewFromConfig(awsCfg), *cfg, log)
	lambda.Start(handler.Handle)
}
