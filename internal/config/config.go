package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputRule = "rule"
)

// Config represents the aioptout configuration
type Config struct {
	AWS         AWSConfig      `yaml:"aws"`
	Mode        string         `yaml:"mode"`
	Concurrency int            `yaml:"concurrency"`
	Output      string         `yaml:"output"`
	Watch       WatchConfig    `yaml:"watch"`
	Template    TemplateConfig `yaml:"template"`
}

// AWSConfig selects the credentials and region used for API calls
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// WatchConfig configures scheduled re-evaluation
type WatchConfig struct {
	Schedule     string   `yaml:"schedule"`
	MetricsAddr  string   `yaml:"metrics_addr"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// TemplateConfig configures the generated CloudFormation template
type TemplateConfig struct {
	PolicyName  string `yaml:"policy_name"`
	Description string `yaml:"description"`
	// RootID targets an existing organization instead of creating one
	RootID string `yaml:"root_id"`
}

// LoadConfig loads configuration with 3-level fallback:
// 1. Explicit path (--config flag)
// 2. Home directory (~/.aioptout/config.yaml)
// 3. Embedded default (passed as defaultData)
func LoadConfig(path string, defaultData []byte) (*Config, error) {
	data, err := readConfig(path, defaultData)
	if err != nil {
		return nil, err
	}

	// Embedded defaults first so partial files only override what they set
	var config Config
	if err := yaml.Unmarshal(defaultData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse default config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func readConfig(path string, defaultData []byte) ([]byte, error) {
	// Level 1: Explicit path
	if path != "" {
		return os.ReadFile(path)
	}

	// Level 2: Home directory
	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, ".aioptout", "config.yaml")
		if fileExists(homeConfig) {
			if data, err := os.ReadFile(homeConfig); err == nil {
				return data, nil
			}
		}
	}

	// Level 3: Embedded default
	return defaultData, nil
}

// Validate checks field values
func (c *Config) Validate() error {
	if _, err := policy.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Output {
	case OutputText, OutputJSON, OutputRule:
	default:
		return fmt.Errorf("config: unknown output %q", c.Output)
	}
	if c.Concurrency <= 0 {
		return errors.New("config: concurrency must be positive")
	}
	if c.Template.PolicyName == "" {
		return errors.New("config: template.policy_name must be set")
	}
	return nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
