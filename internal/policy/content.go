package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultServiceKey is the services entry that covers every AI service
const DefaultServiceKey = "default"

// Content is an AI services opt-out policy document.
//
// Only the services mapping is interpreted. Service entries are kept as
// decoded values since attached policies use inheritance operators
// ({"@@assign": "optOut"}) while effective policies carry plain values.
type Content struct {
	Services map[string]ServicePolicy `json:"services,omitempty" yaml:"services,omitempty"`
}

// ServicePolicy is the per-service entry of an opt-out policy
type ServicePolicy struct {
	OptOutPolicy any `json:"opt_out_policy,omitempty" yaml:"opt_out_policy,omitempty"`
}

// ParseContent decodes a policy document as returned by the Organizations API
func ParseContent(raw string) (Content, error) {
	var c Content
	if strings.TrimSpace(raw) == "" {
		return c, fmt.Errorf("empty policy content")
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Content{}, fmt.Errorf("failed to parse policy content: %w", err)
	}
	return c, nil
}

// IsComprehensive returns true if the policy applies to all services
func (c Content) IsComprehensive() bool {
	_, ok := c.Services[DefaultServiceKey]
	return ok
}

// DefaultContent returns the policy document that opts every service out
func DefaultContent() Content {
	return Content{
		Services: map[string]ServicePolicy{
			DefaultServiceKey: {
				OptOutPolicy: map[string]string{"@@assign": "optOut"},
			},
		},
	}
}

// JSON returns the compact JSON encoding of the document
func (c Content) JSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
