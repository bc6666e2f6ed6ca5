package config

import (
	"errors"

	"github.com/spf13/viper"
)

// RuleConfig holds the AWS Config rule Lambda configuration, read from the environment.
type RuleConfig struct {
	// Region is the AWS region; set by the Lambda runtime.
	Region string `mapstructure:"AWS_REGION"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// ReportToConfig sends PutEvaluations when the event carries a result token.
	ReportToConfig bool `mapstructure:"REPORT_TO_CONFIG"`
	// ResourceType is the compliance resource type of the evaluation.
	ResourceType string `mapstructure:"COMPLIANCE_RESOURCE_TYPE"`
}

// LoadRuleConfig builds RuleConfig from the environment via Viper.
func LoadRuleConfig() (*RuleConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("AWS_REGION", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REPORT_TO_CONFIG", true)
	v.SetDefault("COMPLIANCE_RESOURCE_TYPE", "AWS::::Account")

	var cfg RuleConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.ReportToConfig && cfg.ResourceType == "" {
		return nil, errors.New("config: COMPLIANCE_RESOURCE_TYPE must be set when REPORT_TO_CONFIG is true")
	}

	return &cfg, nil
}
