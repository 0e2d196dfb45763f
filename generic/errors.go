/*
errors.go - Centralized error types for the engine

ERROR CATEGORIES:
  1. Not found      - missing employee, leave, policy or penalty
  2. Invalid input  - rejected before any mutation (ValidationError)
  3. State conflict - operation not valid in the current state
  4. Config gap     - no matching tier, no cycle configured (skip + warn)

Infrastructure failures are store errors wrapped with context; they are
none of the above and map to 500 at the HTTP layer.

SEE ALSO:
  - api/handlers.go: status code mapping
*/
package generic

import (
	"fmt"

	"github.com/pkg/errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrLeaveNotFound    = errors.New("leave not found")
	ErrPenaltyNotFound  = errors.New("penalty not found")

	// ErrInvalidInput is the root of every ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is the root of every TransitionError.
	ErrInvalidTransition = errors.New("invalid penalty status transition")

	// ErrNoActiveSuspension is returned by both lift paths when the employee
	// has no APPROVED, non-cancelled suspension penalty.
	ErrNoActiveSuspension = errors.New("no active suspension penalty found")

	// ErrNotSuspended is returned when a lift targets an employee whose
	// status is not SUSPENDED.
	ErrNotSuspended = errors.New("employee is not suspended")

	// ErrSuspensionActive is returned when approving a second suspension
	// for an employee who already has one in force.
	ErrSuspensionActive = errors.New("employee already has an active suspension")

	// ErrPayrollRecordMismatch is returned when a penalty already applied to
	// one payroll record is marked applied with another.
	ErrPayrollRecordMismatch = errors.New("penalty already applied to a different payroll record")

	// ErrLeaveClosed is returned when registering a return on a closed leave.
	ErrLeaveClosed = errors.New("leave already closed by an actual return")

	// ErrRunInProgress is returned when a scheduler run is triggered while
	// another is still executing.
	ErrRunInProgress = errors.New("penalty run already in progress")

	ErrNoMatchingTier = errors.New("no penalty tier matches delay")
	ErrNoCycle        = errors.New("no leave cycle configured")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError describes a refused penalty status change.
type TransitionError struct {
	PenaltyID PenaltyID
	From      PenaltyStatus
	To        PenaltyStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("penalty %s: cannot move from %s to %s", e.PenaltyID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrLeaveNotFound) ||
		errors.Is(err, ErrPenaltyNotFound)
}

// IsConflict returns true if the operation is not valid in the current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNoActiveSuspension) ||
		errors.Is(err, ErrNotSuspended) ||
		errors.Is(err, ErrSuspensionActive) ||
		errors.Is(err, ErrPayrollRecordMismatch) ||
		errors.Is(err, ErrLeaveClosed) ||
		errors.Is(err, ErrRunInProgress)
}

// IsConfigGap returns true for non-fatal configuration gaps.
func IsConfigGap(err error) bool {
	return errors.Is(err, ErrNoMatchingTier) || errors.Is(err, ErrNoCycle)
}
