// Package template renders the CloudFormation stack that declares the
// organization and its AI services opt-out policy.
package template

import (
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

const (
	organizationResource = "Organization"
	policyResource       = "AIOptOutPolicy"
)

// Options configures the rendered template
type Options struct {
	PolicyName  string
	Description string
	// RootID attaches the policy to an existing root instead of declaring the organization
	RootID string
}

// Template is a CloudFormation template
type Template struct {
	FormatVersion string              `yaml:"AWSTemplateFormatVersion"`
	Description   string              `yaml:"Description"`
	Resources     map[string]Resource `yaml:"Resources"`
	Outputs       map[string]Output   `yaml:"Outputs,omitempty"`
}

// Resource is a CloudFormation resource
type Resource struct {
	Type       string `yaml:"Type"`
	Properties any    `yaml:"Properties"`
}

// Output is a CloudFormation stack output
type Output struct {
	Description string `yaml:"Description"`
	Value       any    `yaml:"Value"`
}

// OrganizationProperties are the AWS::Organizations::Organization properties
type OrganizationProperties struct {
	FeatureSet string `yaml:"FeatureSet"`
}

// PolicyProperties are the AWS::Organizations::Policy properties
type PolicyProperties struct {
	Name        string         `yaml:"Name"`
	Description string         `yaml:"Description,omitempty"`
	Type        string         `yaml:"Type"`
	Content     policy.Content `yaml:"Content"`
	TargetIDs   []any          `yaml:"TargetIds"`
}

// Build assembles the template
func Build(opts Options) (*Template, error) {
	if opts.PolicyName == "" {
		return nil, errors.New("template: policy name must be set")
	}

	t := &Template{
		FormatVersion: "2010-09-09",
		Description:   "AI services opt-out policy for all accounts in the organization",
		Resources:     make(map[string]Resource),
		Outputs:       make(map[string]Output),
	}

	var target any
	if opts.RootID != "" {
		target = opts.RootID
	} else {
		t.Resources[organizationResource] = Resource{
			Type:       "AWS::Organizations::Organization",
			Properties: OrganizationProperties{FeatureSet: "ALL"},
		}
		target = map[string][]string{"Fn::GetAtt": {organizationResource, "RootId"}}
		t.Outputs["RootId"] = Output{
			Description: "Root of the organization",
			Value:       target,
		}
	}

	t.Resources[policyResource] = Resource{
		Type: "AWS::Organizations::Policy",
		Properties: PolicyProperties{
			Name:        opts.PolicyName,
			Description: opts.Description,
			Type:        policy.TypeAIServicesOptOut,
			Content:     policy.DefaultContent(),
			TargetIDs:   []any{target},
		},
	}
	t.Outputs["PolicyId"] = Output{
		Description: "AI services opt-out policy",
		Value:       map[string]string{"Ref": policyResource},
	}

	return t, nil
}

// Render writes the template as YAML
func Render(w io.Writer, opts Options) error {
	t, err := Build(opts)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return enc.Close()
}
