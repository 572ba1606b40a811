/*
Package ledger provides the entitlement balance core.

PURPOSE:
  This package contains the records and balance arithmetic for depletable
  insurance entitlements. A purchase grants a user a claimable balance
  against one policy; approved claims permanently draw it down. The ledger
  guarantees the balance never goes negative and is never double-spent,
  even under concurrent adjudication.

KEY CONCEPTS IN THIS FILE (types.go):
  - Policy: An immutable-once-held catalog definition
  - Entitlement: A user's remaining claimable balance for one policy
  - Claim: A request to draw down an entitlement, with a status lifecycle
  - Actor: The already-authenticated caller identity

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money, never floats
  2. Type Safety: Strong typing for IDs prevents mixing user/policy/claim IDs
  3. Optimistic Locking: Entitlements carry a version counter; every balance
     write is a compare-and-swap on it
  4. No Ambient State: All collaborators are passed in explicitly

USAGE:
  mgr := ledger.NewManager(store)
  ent, err := mgr.Purchase(ctx, userID, policyID)
  remaining, err := mgr.Debit(ctx, userID, policyID, amount)

SEE ALSO:
  - errors.go: Typed errors for every business-rule violation
  - store.go: Persistence interfaces
  - manager.go: Purchase/Debit/Credit/Query/Withdraw operations
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type PolicyID string
type ClaimID string

// Actor is the authenticated caller identity, handed to the core by the
// transport layer. The core never verifies credentials; it only enforces
// ownership and the admin capability.
type Actor struct {
	UserID  UserID
	IsAdmin bool
}

// CanActFor reports whether the actor may operate on records owned by userID.
func (a Actor) CanActFor(userID UserID) bool {
	return a.IsAdmin || a.UserID == userID
}

// =============================================================================
// POLICY - Catalog definition
// =============================================================================

// Bounds on policy fields. Amounts are in whole currency units.
var (
	MaxPolicyAmount  = decimal.NewFromInt(1_000_000)
	MaxPolicyPremium = decimal.NewFromInt(1_000_000)
)

const MaxPolicyDurationYears = 100

// Policy is a purchasable policy definition. Once any user holds an
// entitlement derived from it, its total amount and duration are frozen.
type Policy struct {
	ID            PolicyID
	Name          string
	TotalAmount   decimal.Decimal
	Premium       decimal.Decimal
	DurationYears int
	CreatedAt     time.Time
}

// =============================================================================
// USER - Minimal registry record
// =============================================================================

// User is the minimal record the ledger needs: existence and the admin flag.
// Credentials and sessions are an external collaborator's concern.
type User struct {
	ID        UserID
	Name      string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}

// =============================================================================
// ENTITLEMENT - Per (user, policy) claimable balance
// =============================================================================

// Entitlement is the unit of mutual exclusion in this system. Remaining is
// mutated only through version-checked balance updates.
//
// Invariant: 0 <= Remaining <= Total after every commit.
type Entitlement struct {
	UserID    UserID
	PolicyID  PolicyID
	Total     decimal.Decimal // policy total amount at purchase time
	Remaining decimal.Decimal
	ExpiresOn time.Time
	Version   int64
	CreatedAt time.Time
}

// ExpiredAt reports whether the entitlement has lapsed at t.
// Expiry is a passive timestamp comparison; nothing sweeps expired records.
func (e *Entitlement) ExpiredAt(t time.Time) bool {
	return t.After(e.ExpiresOn)
}

// CanCover reports whether the remaining balance covers amount.
func (e *Entitlement) CanCover(amount decimal.Decimal) bool {
	return e.Remaining.GreaterThanOrEqual(amount)
}

// =============================================================================
// CLAIM - Draw-down request with a status lifecycle
// =============================================================================

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// ParseClaimStatus validates a raw status value from a caller.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch ClaimStatus(s) {
	case ClaimPending, ClaimApproved, ClaimRejected:
		return ClaimStatus(s), nil
	}
	return "", ErrInvalidStatus
}

// Claim is a request to draw Amount down from the (UserID, PolicyID)
// entitlement. Only claims in ClaimApproved have a ledger effect.
type Claim struct {
	ID        ClaimID
	UserID    UserID
	PolicyID  PolicyID
	Amount    decimal.Decimal
	Status    ClaimStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Approved reports whether the claim currently holds a debit.
func (c *Claim) Approved() bool { return c.Status == ClaimApproved }

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// ParseAmount parses a positive monetary amount from its string form.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "not a valid number"}
	}
	if !d.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return d, nil
}
