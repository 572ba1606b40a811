/*
manager.go - Entitlement Manager operations

PURPOSE:
  Owns each user's set of purchased-policy entitlements and exposes the
  atomic operations that mutate them: Purchase, Debit, Credit, Withdraw.

BALANCE MUTATION:
  Every balance change is a read-check-CAS cycle:
  1. Load the entitlement (balance + version)
  2. Check the business rule (debit must not go negative, credit must
     not exceed the purchase-time total)
  3. Compare-and-swap the new balance on the loaded version

  A concurrent writer between steps 1 and 3 makes the CAS fail with
  ErrConflict; the cycle retries up to maxBalanceRetries and then surfaces
  ErrConflict to the caller. A check that fails in step 2 performs no
  mutation at all.

  ApplyDebit/ApplyCredit are exported as single-cycle primitives so the
  claim adjudicator can run the same check-then-decrement inside a WithTx
  alongside its claim-status write.

WITHDRAWAL:
  Withdraw removes an entitlement and cascades to its non-approved claims,
  all in one transaction. It refuses while approved claims exist: removing
  the entitlement would strand an unreversed debit.

SEE ALSO:
  - store.go: UpdateEntitlementBalance CAS contract
  - claims/adjudicator.go: Approval path calling ApplyDebit under WithTx
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// maxBalanceRetries bounds CAS retry cycles before surfacing ErrConflict.
const maxBalanceRetries = 3

// Manager owns entitlement lifecycle and balance arithmetic.
type Manager struct {
	store TxStore

	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewManager(store TxStore) *Manager {
	return &Manager{store: store, now: time.Now}
}

// WithClock overrides the manager's clock. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// =============================================================================
// PURCHASE
// =============================================================================

// Purchase grants userID a fresh entitlement for policyID. The entitlement
// starts at the policy's full amount and expires after the policy duration.
// A second purchase of the same policy fails with ErrAlreadyOwned; the
// existing entitlement is never topped up.
func (m *Manager) Purchase(ctx context.Context, userID UserID, policyID PolicyID) (*Entitlement, error) {
	if _, err := m.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	policy, err := m.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	ent := Entitlement{
		UserID:    userID,
		PolicyID:  policyID,
		Total:     policy.TotalAmount,
		Remaining: policy.TotalAmount,
		ExpiresOn: now.AddDate(policy.DurationYears, 0, 0),
		Version:   1,
		CreatedAt: now,
	}

	if err := m.store.CreateEntitlement(ctx, ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

// =============================================================================
// DEBIT / CREDIT
// =============================================================================

// Debit atomically decrements the entitlement's remaining balance.
// The check-then-decrement is a single linearizable step per entitlement:
// if remaining < amount the balance is untouched and the caller gets
// InsufficientEntitlementError.
func (m *Manager) Debit(ctx context.Context, userID UserID, policyID PolicyID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var remaining decimal.Decimal
	err := retryOnConflict(func() error {
		var err error
		remaining, err = ApplyDebit(ctx, m.store, userID, policyID, amount)
		return err
	})
	return remaining, err
}

// Credit atomically increments the entitlement's remaining balance. It is
// called only from re-adjudication (a claim leaving approved), so the
// credited amount is a previously debited one; the cap against the
// purchase-time total is kept as a hard stop on the ledger invariant.
func (m *Manager) Credit(ctx context.Context, userID UserID, policyID PolicyID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var remaining decimal.Decimal
	err := retryOnConflict(func() error {
		var err error
		remaining, err = ApplyCredit(ctx, m.store, userID, policyID, amount)
		return err
	})
	return remaining, err
}

// ApplyDebit runs one read-check-CAS debit cycle against s. It returns the
// new remaining balance, ErrConflict on a lost CAS, or
// InsufficientEntitlementError (no mutation) when the balance cannot cover
// amount. Callers provide atomicity: either a retry loop (Manager.Debit) or
// a surrounding WithTx (claim approval).
func ApplyDebit(ctx context.Context, s Store, userID UserID, policyID PolicyID, amount decimal.Decimal) (decimal.Decimal, error) {
	ent, err := s.GetEntitlement(ctx, userID, policyID)
	if err != nil {
		return decimal.Zero, err
	}

	if !ent.CanCover(amount) {
		return decimal.Zero, &InsufficientEntitlementError{
			UserID:    userID,
			PolicyID:  policyID,
			Available: ent.Remaining,
			Requested: amount,
		}
	}

	newRemaining := ent.Remaining.Sub(amount)
	if err := s.UpdateEntitlementBalance(ctx, userID, policyID, newRemaining, ent.Version); err != nil {
		return decimal.Zero, err
	}
	return newRemaining, nil
}

// ApplyCredit runs one read-check-CAS credit cycle against s.
// The new balance is capped at the purchase-time total.
func ApplyCredit(ctx context.Context, s Store, userID UserID, policyID PolicyID, amount decimal.Decimal) (decimal.Decimal, error) {
	ent, err := s.GetEntitlement(ctx, userID, policyID)
	if err != nil {
		return decimal.Zero, err
	}

	newRemaining := ent.Remaining.Add(amount)
	if newRemaining.GreaterThan(ent.Total) {
		return decimal.Zero, fmt.Errorf("credit of %s would exceed entitlement total %s: %w",
			amount, ent.Total, ErrConflict)
	}

	if err := s.UpdateEntitlementBalance(ctx, userID, policyID, newRemaining, ent.Version); err != nil {
		return decimal.Zero, err
	}
	return newRemaining, nil
}

// retryOnConflict runs fn up to maxBalanceRetries times, retrying only on
// ErrConflict. The last conflict is surfaced to the caller.
func retryOnConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxBalanceRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("retries exhausted: %w", err)
}

// RetryOnConflict exposes the bounded retry loop to sibling packages that
// run their own WithTx cycles (the claim adjudicator's approval path).
func RetryOnConflict(fn func() error) error {
	return retryOnConflict(fn)
}

// =============================================================================
// QUERY
// =============================================================================

// Query returns the current entitlement for (userID, policyID), or
// ErrEntitlementNotFound.
func (m *Manager) Query(ctx context.Context, userID UserID, policyID PolicyID) (*Entitlement, error) {
	return m.store.GetEntitlement(ctx, userID, policyID)
}

// ListByUser returns all of a user's entitlements.
func (m *Manager) ListByUser(ctx context.Context, userID UserID) ([]Entitlement, error) {
	if _, err := m.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return m.store.ListEntitlementsByUser(ctx, userID)
}

// =============================================================================
// WITHDRAW
// =============================================================================

// Withdraw removes the user's entitlement for policyID, cascading deletion
// of its pending and rejected claims. It fails with ErrClaimLocked while
// approved claims reference the entitlement: deleting it would orphan an
// unreversed debit.
func (m *Manager) Withdraw(ctx context.Context, userID UserID, policyID PolicyID) error {
	return m.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetEntitlement(ctx, userID, policyID); err != nil {
			return err
		}

		claims, err := s.ListClaimsByEntitlement(ctx, userID, policyID)
		if err != nil {
			return err
		}
		for _, c := range claims {
			if c.Approved() {
				return fmt.Errorf("claim %s holds an unreversed debit: %w", c.ID, ErrClaimLocked)
			}
		}
		for _, c := range claims {
			if err := s.DeleteClaim(ctx, c.ID); err != nil {
				return err
			}
		}

		return s.DeleteEntitlement(ctx, userID, policyID)
	})
}
