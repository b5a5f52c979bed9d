package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRejected is returned when a request fails a validation rule.
	// The concrete error is a *RejectionError.
	ErrRejected = errors.New("leave rejected")

	// ErrUnauthenticated is returned when the caller identity is missing or
	// not in the directory.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned for an unknown leave ID.
	ErrNotFound = errors.New("leave not found")

	// ErrNotAuthorized is returned when the caller may not act on the record.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidState is returned when the record's status forbids the operation.
	ErrInvalidState = errors.New("invalid leave state")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// Rule identifies the validation rule a request failed.
type Rule string

const (
	RuleFutureDated     Rule = "future_dated"
	RuleRangeOrder      Rule = "range_order"
	RuleNoWeekends      Rule = "no_weekends"
	RuleNoOverlap       Rule = "no_overlap"
	RuleSpecialLeadTime Rule = "special_lead_time"
)

// RejectionError carries the failed rule and its human-readable reason.
type RejectionError struct {
	Rule   Rule
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

func reject(rule Rule, reason string) error {
	return &RejectionError{Rule: rule, Reason: reason}
}

// =============================================================================
// HELPERS
// =============================================================================

// IsClientError returns true if the error is caused by the caller's input or
// permissions rather than by infrastructure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing leave.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
