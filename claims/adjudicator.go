/*
Package claims implements the claim lifecycle state machine.

PURPOSE:
  Owns claim records and the transitions between pending, approved, and
  rejected. Every transition that implies a payout calls into the ledger,
  and the claim-status write and the balance write commit as one unit.

STATE MACHINE:

        Submit
          │
          ▼  admissibility check
    ┌──────────┐  amount <= remaining ┌──────────┐
    │ rejected │◀─────── no ──────────│ pending  │
    └──────────┘                      └──────────┘
          ▲                                │
          │ balance check fails            │ SetStatus(approved)
          │ on approval                    ▼
          │                          ┌──────────┐
          └──────────────────────────│ approved │ (debit applied)
                                     └──────────┘
                                           │
                    SetStatus(pending/rejected) = re-adjudication:
                    compensating credit, then normal lifecycle again

ADMISSIBILITY:
  Submit never debits. A claim whose amount exceeds the remaining balance
  (or whose entitlement has lapsed) is created directly in rejected - the
  request itself succeeds. Debit happens only on approval.

EXACTLY-ONCE LEDGER EFFECT:
  Approval re-reads the entitlement, checks the balance, debits, and writes
  the claim status inside one transaction, retried on CAS conflict.
  Re-approving an already-approved claim is a no-op, never a second debit.

SEE ALSO:
  - ledger/manager.go: ApplyDebit/ApplyCredit primitives used here
  - ledger/store.go: WithTx transaction boundary
*/
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coverline/claims-engine/ledger"
)

// Adjudicator runs the claim state machine over a transactional store.
type Adjudicator struct {
	store ledger.TxStore

	// Swappable for deterministic tests.
	now   func() time.Time
	newID func() ledger.ClaimID
}

func NewAdjudicator(store ledger.TxStore) *Adjudicator {
	return &Adjudicator{
		store: store,
		now:   time.Now,
		newID: func() ledger.ClaimID { return ledger.ClaimID(uuid.NewString()) },
	}
}

// WithClock overrides the adjudicator's clock. Intended for tests.
func (a *Adjudicator) WithClock(now func() time.Time) *Adjudicator {
	a.now = now
	return a
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit files a claim for amount against the actor-visible entitlement
// (userID, policyID). The claim is created pending when admissible and
// rejected otherwise; inadmissibility is not an error. No debit happens here.
func (a *Adjudicator) Submit(ctx context.Context, actor ledger.Actor, userID ledger.UserID, policyID ledger.PolicyID, amount decimal.Decimal) (*ledger.Claim, error) {
	if !actor.CanActFor(userID) {
		return nil, ledger.ErrForbidden
	}
	if !amount.IsPositive() {
		return nil, &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	if _, err := a.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	ent, err := a.store.GetEntitlement(ctx, userID, policyID)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	claim := ledger.Claim{
		ID:        a.newID(),
		UserID:    userID,
		PolicyID:  policyID,
		Amount:    amount,
		Status:    admissibility(ent, amount, now),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.store.CreateClaim(ctx, claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

// admissibility decides pending vs rejected: the amount must fit the
// remaining balance and the entitlement must not have lapsed.
func admissibility(ent *ledger.Entitlement, amount decimal.Decimal, at time.Time) ledger.ClaimStatus {
	if ent.ExpiredAt(at) || !ent.CanCover(amount) {
		return ledger.ClaimRejected
	}
	return ledger.ClaimPending
}

// =============================================================================
// SET STATUS
// =============================================================================

// SetStatus transitions claimID to target. Admin only.
//
//   - target == current status: no-op returning the claim as is. In
//     particular, re-approving an approved claim never debits twice.
//   - -> approved: re-reads the entitlement and debits atomically with the
//     status write. A failed balance check forces the claim to rejected
//     instead (mirrors Submit's fast-path) with no debit.
//   - approved -> pending/rejected: re-adjudication. The prior debit is
//     credited back atomically with the status write.
//   - pending <-> rejected: pure status write, no ledger interaction.
func (a *Adjudicator) SetStatus(ctx context.Context, actor ledger.Actor, claimID ledger.ClaimID, target ledger.ClaimStatus) (*ledger.Claim, error) {
	if !actor.IsAdmin {
		return nil, ledger.ErrForbidden
	}
	if _, err := ledger.ParseClaimStatus(string(target)); err != nil {
		return nil, err
	}

	var result *ledger.Claim
	err := ledger.RetryOnConflict(func() error {
		return a.store.WithTx(ctx, func(s ledger.Store) error {
			claim, err := s.GetClaim(ctx, claimID)
			if err != nil {
				return err
			}

			if claim.Status == target {
				result = claim
				return nil
			}

			switch target {
			case ledger.ClaimApproved:
				if err := a.approve(ctx, s, claim); err != nil {
					return err
				}
			case ledger.ClaimPending, ledger.ClaimRejected:
				if claim.Approved() {
					// Leaving the terminal approved state reverses its debit.
					if _, err := ledger.ApplyCredit(ctx, s, claim.UserID, claim.PolicyID, claim.Amount); err != nil {
						return err
					}
				}
				claim.Status = target
			}

			claim.UpdatedAt = a.now().UTC()
			if err := s.UpdateClaim(ctx, *claim); err != nil {
				return err
			}
			result = claim
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// approve applies the payout for claim inside the caller's transaction,
// mutating claim's status in place. A balance shortfall or a lapsed
// entitlement forces rejection rather than failing the call.
func (a *Adjudicator) approve(ctx context.Context, s ledger.Store, claim *ledger.Claim) error {
	ent, err := s.GetEntitlement(ctx, claim.UserID, claim.PolicyID)
	if err != nil {
		return err
	}
	if ent.ExpiredAt(a.now().UTC()) {
		claim.Status = ledger.ClaimRejected
		return nil
	}

	_, err = ledger.ApplyDebit(ctx, s, claim.UserID, claim.PolicyID, claim.Amount)
	switch {
	case err == nil:
		claim.Status = ledger.ClaimApproved
		return nil
	case isInsufficient(err):
		claim.Status = ledger.ClaimRejected
		return nil
	default:
		return err
	}
}

func isInsufficient(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientEntitlement)
}

// =============================================================================
// UPDATE AMOUNT
// =============================================================================

// UpdateAmount changes a non-approved claim's amount and re-runs
// admissibility exactly as Submit does. An approved claim's amount is
// locked: changing it without reversing its debit would break the
// ledger invariant.
func (a *Adjudicator) UpdateAmount(ctx context.Context, actor ledger.Actor, claimID ledger.ClaimID, newAmount decimal.Decimal) (*ledger.Claim, error) {
	if !newAmount.IsPositive() {
		return nil, &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var result *ledger.Claim
	err := ledger.RetryOnConflict(func() error {
		return a.store.WithTx(ctx, func(s ledger.Store) error {
			claim, err := s.GetClaim(ctx, claimID)
			if err != nil {
				return err
			}
			if !actor.CanActFor(claim.UserID) {
				return ledger.ErrForbidden
			}
			if claim.Approved() {
				return fmt.Errorf("cannot change amount of claim %s: %w", claim.ID, ledger.ErrClaimLocked)
			}

			ent, err := s.GetEntitlement(ctx, claim.UserID, claim.PolicyID)
			if err != nil {
				return err
			}

			claim.Amount = newAmount
			claim.Status = admissibility(ent, newAmount, a.now().UTC())
			claim.UpdatedAt = a.now().UTC()

			if err := s.UpdateClaim(ctx, *claim); err != nil {
				return err
			}
			result = claim
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a pending or rejected claim with no ledger effect.
// Deleting an approved claim is refused: it would leave the entitlement
// permanently debited with nothing referencing the debit. The lock check
// and the delete run in one transaction so an approval cannot land in
// between and have its claim deleted out from under it.
func (a *Adjudicator) Delete(ctx context.Context, actor ledger.Actor, claimID ledger.ClaimID) error {
	return a.store.WithTx(ctx, func(s ledger.Store) error {
		claim, err := s.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if !actor.CanActFor(claim.UserID) {
			return ledger.ErrForbidden
		}
		if claim.Approved() {
			return fmt.Errorf("cannot delete claim %s while approved: %w", claim.ID, ledger.ErrClaimLocked)
		}
		return s.DeleteClaim(ctx, claimID)
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns one claim. Owners see their own; admins see all.
func (a *Adjudicator) Get(ctx context.Context, actor ledger.Actor, claimID ledger.ClaimID) (*ledger.Claim, error) {
	claim, err := a.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(claim.UserID) {
		return nil, ledger.ErrForbidden
	}
	return claim, nil
}

// ListByUser returns all claims filed by userID.
func (a *Adjudicator) ListByUser(ctx context.Context, actor ledger.Actor, userID ledger.UserID) ([]ledger.Claim, error) {
	if !actor.CanActFor(userID) {
		return nil, ledger.ErrForbidden
	}
	return a.store.ListClaimsByUser(ctx, userID)
}

// ListAll returns every claim in the system. Admin only.
func (a *Adjudicator) ListAll(ctx context.Context, actor ledger.Actor) ([]ledger.Claim, error) {
	if !actor.IsAdmin {
		return nil, ledger.ErrForbidden
	}
	return a.store.ListClaims(ctx)
}
