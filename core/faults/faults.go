// Package faults defines the error taxonomy shared across the orchestrator:
// validation, quota-exceeded, not-found, state-conflict, internal-consistency
// and the operator-actionable cancel timeout.
package faults

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound marks a referenced model, job, profile or leaderboard that
// does not exist. Repositories wrap it with context; callers test with
// errors.Is.
var ErrNotFound = errors.New("not found")

// ErrCancelTimeout is returned when the cancel-while-queued poll budget is
// exhausted without the job reaching a stoppable state. Automatic retry
// cannot help at that point, so the message is written for the end user.
var ErrCancelTimeout = errors.New("failed to cancel the job, please contact an administrator")

// ValidationError rejects malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidation returns a ValidationError for the given field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// QuotaExceededError rejects an admission that would exceed a profile's
// compute-minute or model-count quota.
type QuotaExceededError struct {
	ProfileID string
	Reason    string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for profile %s: %s", e.ProfileID, e.Reason)
}

// StateConflictError rejects an operation that is invalid for the current
// status of a model or job, such as stopping a job mid-initialization.
type StateConflictError struct {
	Resource string
	Status   string
	Op       string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s %s while it is %s", e.Op, e.Resource, e.Status)
}

// InternalError marks a violated invariant, such as a stoppable model with
// no candidate job. It is logged at error severity where raised and
// surfaced to callers as a generic internal failure.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string { return "internal error" }

func (e *InternalError) Unwrap() error { return e.Cause }

// NewInternal wraps cause as an internal-consistency fault.
func NewInternal(cause error) error {
	return &InternalError{Cause: cause}
}

// Internalf builds an internal-consistency fault from a format string.
func Internalf(format string, args ...interface{}) error {
	return &InternalError{Cause: errors.Errorf(format, args...)}
}
