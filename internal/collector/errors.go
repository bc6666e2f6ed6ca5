package collector

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/smithy-go"
)

// ErrOrganizationNotFound is returned when the account is not part of an organization
var ErrOrganizationNotFound = errors.New("organization not found: AWS Organizations is not in use for this account")

const (
	codeNotInUse              = "AWSOrganizationsNotInUseException"
	codeEffectivePolicyAbsent = "EffectivePolicyNotFoundException"
)

// APIError represents a failed Organizations API call that aborts the snapshot
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("organizations %s failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// wrap classifies an organization-level error
func wrap(op string, err error) error {
	var notInUse *types.AWSOrganizationsNotInUseException
	if errors.As(err, &notInUse) || errorCode(err) == codeNotInUse {
		return fmt.Errorf("%s: %w", op, ErrOrganizationNotFound)
	}
	return &APIError{Op: op, Err: err}
}

// isNoEffectivePolicy reports whether err means the account has no effective policy
func isNoEffectivePolicy(err error) bool {
	var notFound *types.EffectivePolicyNotFoundException
	return errors.As(err, &notFound) || errorCode(err) == codeEffectivePolicyAbsent
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// entryError shortens SDK errors to "Code: message" for per-item reporting
func entryError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}
