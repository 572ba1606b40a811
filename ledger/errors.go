/*
errors.go - Centralized error types for the entitlement core

PURPOSE:
  All business-rule errors in one place. Every operation boundary returns
  one of these; the transport layer maps them to HTTP statuses. Only
  storage-level failures propagate as plain wrapped errors.

ERROR CATEGORIES:
  1. Not-found errors - missing user/policy/claim/entitlement
  2. Ledger errors - balance and locking violations
  3. Concurrency errors - optimistic-lock conflicts
  4. Authorization errors - missing admin capability or ownership

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, ledger.ErrInsufficientEntitlement) {
        // shortfall details via errors.As(&ledger.InsufficientEntitlementError{})
    }

SEE ALSO:
  - manager.go: Returns these from ledger operations
  - claims/adjudicator.go: Returns these from state transitions
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrClaimNotFound is returned when a referenced claim doesn't exist.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrEntitlementNotFound is returned when no entitlement exists for a
	// (user, policy) pair. Claim submission surfaces this as "no entitlement".
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrAlreadyOwned is returned when a user purchases a policy they
	// already hold. Entitlements are never topped up or duplicated.
	ErrAlreadyOwned = errors.New("policy already owned")

	// ErrInsufficientEntitlement is returned when a debit would drive the
	// remaining balance negative. The entitlement is left untouched.
	ErrInsufficientEntitlement = errors.New("insufficient entitlement")

	// ErrInvalidStatus is returned for a status value outside
	// {pending, approved, rejected}.
	ErrInvalidStatus = errors.New("invalid claim status")

	// ErrClaimLocked is returned when mutating or deleting an approved claim
	// in a way that would strand its debit.
	ErrClaimLocked = errors.New("claim is approved and locked")

	// ErrPolicyInUse is returned when deleting or reshaping a policy that
	// outstanding entitlements still reference.
	ErrPolicyInUse = errors.New("policy has outstanding entitlements")

	// ErrForbidden is returned when the actor lacks the admin capability or
	// does not own the target record.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when an optimistic-lock retry budget is
	// exhausted. The operation had no effect and may be retried by the caller.
	ErrConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientEntitlementError details a balance shortfall.
type InsufficientEntitlementError struct {
	UserID    UserID
	PolicyID  PolicyID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientEntitlementError) Error() string {
	return fmt.Sprintf("insufficient entitlement: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Requested.Sub(e.Available))
}

func (e *InsufficientEntitlementError) Unwrap() error {
	return ErrInsufficientEntitlement
}

// ValidationError reports malformed input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrEntitlementNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to a business-rule
// violation rather than infrastructure failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrAlreadyOwned) ||
		errors.Is(err, ErrInsufficientEntitlement) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrClaimLocked) ||
		errors.Is(err, ErrPolicyInUse) ||
		errors.As(err, &ve)
}
