/*
store.go - Persistence interfaces for the entitlement core

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Keyed-record access for users, policies, entitlements, claims
  TxStore: Store plus WithTx for atomic multi-record writes

OPTIMISTIC LOCKING CONTRACT:
  The entitlement record is the unit of mutual exclusion. Its balance is
  mutated ONLY through UpdateEntitlementBalance, which is a compare-and-swap
  on the record's version counter:
  - On version match: write the new balance, bump the version
  - On version mismatch: return ErrConflict, write nothing

  Callers retry a bounded number of times (see manager.go) and then surface
  ErrConflict. A lost update is never silent.

ATOMIC UNITS:
  WithTx ensures all-or-nothing semantics. Approving a claim writes the
  claim status AND debits the entitlement; either both commit or neither
  does. Claim-only status writes don't need WithTx.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - manager.go: Entitlement operations built on these interfaces
  - claims/adjudicator.go: Claim lifecycle built on these interfaces
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Keyed-record persistence
// =============================================================================

// Store provides find-by-id access to every record kind the core owns.
// All not-found cases surface the package's sentinel errors so callers can
// branch with errors.Is regardless of the backing implementation.
type Store interface {
	// Users
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id UserID) error

	// Policies. CreatePolicy fails with a ValidationError on a duplicate
	// name; UpdatePolicy fails with ErrPolicyNotFound if the id is unknown.
	CreatePolicy(ctx context.Context, p Policy) error
	UpdatePolicy(ctx context.Context, p Policy) error
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)
	ListPolicies(ctx context.Context) ([]Policy, error)
	DeletePolicy(ctx context.Context, id PolicyID) error

	// Entitlements. CreateEntitlement fails with ErrAlreadyOwned if the
	// (user, policy) pair already holds one.
	CreateEntitlement(ctx context.Context, e Entitlement) error
	GetEntitlement(ctx context.Context, userID UserID, policyID PolicyID) (*Entitlement, error)
	ListEntitlementsByUser(ctx context.Context, userID UserID) ([]Entitlement, error)
	CountEntitlementsByPolicy(ctx context.Context, policyID PolicyID) (int, error)

	// UpdateEntitlementBalance writes newRemaining iff the stored version
	// equals expectVersion, bumping the version. Returns ErrConflict on a
	// version mismatch and ErrEntitlementNotFound if the record is gone.
	UpdateEntitlementBalance(ctx context.Context, userID UserID, policyID PolicyID, newRemaining decimal.Decimal, expectVersion int64) error

	DeleteEntitlement(ctx context.Context, userID UserID, policyID PolicyID) error

	// Claims
	CreateClaim(ctx context.Context, c Claim) error
	GetClaim(ctx context.Context, id ClaimID) (*Claim, error)
	UpdateClaim(ctx context.Context, c Claim) error
	DeleteClaim(ctx context.Context, id ClaimID) error
	ListClaimsByUser(ctx context.Context, userID UserID) ([]Claim, error)
	ListClaimsByEntitlement(ctx context.Context, userID UserID, policyID PolicyID) ([]Claim, error)
	ListClaims(ctx context.Context) ([]Claim, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// Use this when a claim write and a balance write must commit as one unit.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, every write inside it is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
