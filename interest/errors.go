/*
errors.go - Centralized error types for the interest engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The pure calculation functions are total: missing policies, non-positive
  amounts and inverted date ranges degrade to zero instead of failing.
  The one hard engine error is ConfigurationError, raised when a policy's
  mode and rate disagree, which means upstream data is corrupted.

ERROR CATEGORIES:
  1. Configuration errors - Corrupted policy data (hard failure)
  2. Ledger errors - Allocation persistence failures
  3. Lookup errors - Missing loans or policy templates

USAGE:
  if errors.Is(err, interest.ErrConfiguration) {
      // surface as data-integrity bug, never as "no interest"
  }

SEE ALSO:
  - policy.go: Policy.Validate returns ConfigurationError
  - lending/service.go: Wraps these errors with loan context
*/
package interest

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration is returned when a policy is internally inconsistent
	// (e.g. MONTHLY mode without a monthly rate).
	ErrConfiguration = errors.New("invalid interest policy configuration")

	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key was already recorded. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when a loan was changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLoanNotFound is returned when a referenced loan doesn't exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrPolicyNotFound is returned when a referenced policy template doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrLoanClosed is returned when a payment targets a closed loan.
	ErrLoanClosed = errors.New("loan is closed")

	// ErrInvalidPayment is returned for malformed payment requests.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrInvalidLoan is returned for malformed loan definitions.
	ErrInvalidLoan = errors.New("invalid loan")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError describes which policy field is inconsistent.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid interest policy: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// LoanClosedError names the closed loan a payment tried to touch.
type LoanClosedError struct {
	LoanID LoanID
}

func (e *LoanClosedError) Error() string {
	return fmt.Sprintf("loan %s is closed", e.LoanID)
}

func (e *LoanClosedError) Unwrap() error {
	return ErrLoanClosed
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrInvalidLoan) ||
		errors.Is(err, ErrLoanClosed) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrPolicyNotFound)
}
