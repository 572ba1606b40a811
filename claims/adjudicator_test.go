package claims_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverline/claims-engine/claims"
	"github.com/coverline/claims-engine/ledger"
	"github.com/coverline/claims-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	admin = ledger.Actor{UserID: "admin", IsAdmin: true}
	owner = ledger.Actor{UserID: "u1"}
	other = ledger.Actor{UserID: "u2"}
)

type fixture struct {
	adj *claims.Adjudicator
	mgr *ledger.Manager
	st  *store.TxMemory
}

// newFixture seeds u1 holding policy p1 with remaining 1000, expiring in a year.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewTxMemory()
	require.NoError(t, st.SaveUser(ctx, ledger.User{ID: "u1", Name: "Ana"}))
	require.NoError(t, st.SaveUser(ctx, ledger.User{ID: "u2", Name: "Ben"}))
	require.NoError(t, st.CreatePolicy(ctx, ledger.Policy{
		ID: "p1", Name: "Home Shield", TotalAmount: dec(1000), Premium: dec(50), DurationYears: 1,
	}))

	mgr := ledger.NewManager(st)
	_, err := mgr.Purchase(ctx, "u1", "p1")
	require.NoError(t, err)

	return &fixture{adj: claims.NewAdjudicator(st), mgr: mgr, st: st}
}

func (f *fixture) remaining(t *testing.T) decimal.Decimal {
	t.Helper()
	ent, err := f.mgr.Query(context.Background(), "u1", "p1")
	require.NoError(t, err)
	return ent.Remaining
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// =============================================================================
// SUBMIT - admissibility
// =============================================================================

func TestSubmit_WithinBalance_Pending(t *testing.T) {
	f := newFixture(t)

	claim, err := f.adj.Submit(context.Background(), owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	assert.Equal(t, ledger.ClaimPending, claim.Status)
	assert.True(t, f.remaining(t).Equal(dec(1000)), "submit never debits")
}

func TestSubmit_OverBalance_FastRejected(t *testing.T) {
	// GIVEN: remaining 1000
	// WHEN: submitting a claim for 1200
	// THEN: the call succeeds but the claim is created rejected, no debit

	f := newFixture(t)

	claim, err := f.adj.Submit(context.Background(), owner, "u1", "p1", dec(1200))
	require.NoError(t, err, "over-balance submission is not an error")

	assert.Equal(t, ledger.ClaimRejected, claim.Status)
	assert.True(t, f.remaining(t).Equal(dec(1000)))
}

func TestSubmit_ExpiredEntitlement_Rejected(t *testing.T) {
	f := newFixture(t)

	// Clock two years past the one-year policy duration.
	f.adj.WithClock(func() time.Time { return time.Now().AddDate(2, 0, 0) })

	claim, err := f.adj.Submit(context.Background(), owner, "u1", "p1", dec(100))
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimRejected, claim.Status)
}

func TestSubmit_NoEntitlement(t *testing.T) {
	f := newFixture(t)

	_, err := f.adj.Submit(context.Background(), other, "u2", "p1", dec(100))
	assert.ErrorIs(t, err, ledger.ErrEntitlementNotFound)
}

func TestSubmit_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.adj.Submit(context.Background(), admin, "ghost", "p1", dec(100))
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

func TestSubmit_ForAnotherUser_Forbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.adj.Submit(context.Background(), other, "u1", "p1", dec(100))
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestSubmit_AdminMayFileForUser(t *testing.T) {
	f := newFixture(t)

	claim, err := f.adj.Submit(context.Background(), admin, "u1", "p1", dec(100))
	require.NoError(t, err)
	assert.Equal(t, ledger.UserID("u1"), claim.UserID)
}

// =============================================================================
// SET STATUS - approval and the ledger effect
// =============================================================================

func TestSetStatus_Approve_Debits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	updated, err := f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)

	assert.Equal(t, ledger.ClaimApproved, updated.Status)
	assert.True(t, f.remaining(t).Equal(dec(600)))
}

func TestSetStatus_ApproveTwice_NoDoubleDebit(t *testing.T) {
	// Re-approving an approved claim is a no-op, never a second debit.
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	_, err = f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)
	again, err := f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)

	assert.Equal(t, ledger.ClaimApproved, again.Status)
	assert.True(t, f.remaining(t).Equal(dec(600)), "second approval must not debit")
}

func TestSetStatus_Approve_BalanceCheckFails_ForcedRejected(t *testing.T) {
	// GIVEN: two pending claims of 700 when remaining is 1000
	// WHEN: both are approved in turn
	// THEN: the second is forced to rejected, not an error, with no debit

	f := newFixture(t)
	ctx := context.Background()

	c1, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(700))
	require.NoError(t, err)
	c2, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(700))
	require.NoError(t, err)

	_, err = f.adj.SetStatus(ctx, admin, c1.ID, ledger.ClaimApproved)
	require.NoError(t, err)

	updated, err := f.adj.SetStatus(ctx, admin, c2.ID, ledger.ClaimApproved)
	require.NoError(t, err, "forced rejection is a success response")
	assert.Equal(t, ledger.ClaimRejected, updated.Status)
	assert.True(t, f.remaining(t).Equal(dec(300)), "only the first approval debits")
}

func TestSetStatus_ReAdjudication_CreditsBack(t *testing.T) {
	// Leaving the approved state reverses its debit.
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)
	_, err = f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)
	require.True(t, f.remaining(t).Equal(dec(600)))

	updated, err := f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimPending)
	require.NoError(t, err)

	assert.Equal(t, ledger.ClaimPending, updated.Status)
	assert.True(t, f.remaining(t).Equal(dec(1000)), "debit reversed on leaving approved")
}

func TestSetStatus_ApproveFromRejected_Allowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(1200))
	require.NoError(t, err)
	require.Equal(t, ledger.ClaimRejected, claim.Status)

	// Still over balance: approval re-checks and forces rejected again.
	updated, err := f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimRejected, updated.Status)
	assert.True(t, f.remaining(t).Equal(dec(1000)))
}

func TestSetStatus_PendingToRejected_NoLedgerEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	updated, err := f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimRejected)
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimRejected, updated.Status)
	assert.True(t, f.remaining(t).Equal(dec(1000)))
}

func TestSetStatus_InvalidValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	_, err = f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimStatus("paid"))
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)
}

func TestSetStatus_NonAdmin_Forbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	_, err = f.adj.SetStatus(ctx, owner, claim.ID, ledger.ClaimApproved)
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

func TestSetStatus_UnknownClaim(t *testing.T) {
	f := newFixture(t)

	_, err := f.adj.SetStatus(context.Background(), admin, "nope", ledger.ClaimApproved)
	assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
}

// =============================================================================
// UPDATE AMOUNT
// =============================================================================

func TestUpdateAmount_RecomputesAdmissibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	// Raise over the balance: claim flips to rejected.
	updated, err := f.adj.UpdateAmount(ctx, owner, claim.ID, dec(1100))
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimRejected, updated.Status)
	assert.True(t, updated.Amount.Equal(dec(1100)))

	// Lower back within balance: claim returns to pending.
	updated, err = f.adj.UpdateAmount(ctx, owner, claim.ID, dec(900))
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimPending, updated.Status)
}

func TestUpdateAmount_ApprovedClaim_Locked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)
	_, err = f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)

	_, err = f.adj.UpdateAmount(ctx, owner, claim.ID, dec(500))
	assert.ErrorIs(t, err, ledger.ErrClaimLocked)

	current, err := f.adj.Get(ctx, admin, claim.ID)
	require.NoError(t, err)
	assert.True(t, current.Amount.Equal(dec(400)), "locked claim keeps its amount")
	assert.True(t, f.remaining(t).Equal(dec(600)))
}

func TestUpdateAmount_OtherUsersClaim_Forbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	_, err = f.adj.UpdateAmount(ctx, other, claim.ID, dec(200))
	assert.ErrorIs(t, err, ledger.ErrForbidden)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_PendingClaim_NoLedgerEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	require.NoError(t, f.adj.Delete(ctx, owner, claim.ID))

	_, err = f.adj.Get(ctx, admin, claim.ID)
	assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
	assert.True(t, f.remaining(t).Equal(dec(1000)))
}

// approveBeforeTx lands an admin approval of claimID right before the next
// transaction opens, standing in for a concurrent SetStatus racing a Delete.
type approveBeforeTx struct {
	ledger.TxStore
	claimID ledger.ClaimID
	once    sync.Once
}

func (s *approveBeforeTx) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.once.Do(func() {
		err := s.TxStore.WithTx(ctx, func(inner ledger.Store) error {
			claim, err := inner.GetClaim(ctx, s.claimID)
			if err != nil {
				return err
			}
			if _, err := ledger.ApplyDebit(ctx, inner, claim.UserID, claim.PolicyID, claim.Amount); err != nil {
				return err
			}
			claim.Status = ledger.ClaimApproved
			return inner.UpdateClaim(ctx, *claim)
		})
		if err != nil {
			panic(err)
		}
	})
	return s.TxStore.WithTx(ctx, fn)
}

func TestDelete_ApprovalWinsTheRace_Refused(t *testing.T) {
	// GIVEN: a pending claim that gets approved an instant before Delete's
	//        transaction begins
	// THEN: Delete sees the approval inside its transaction and refuses,
	//       leaving the claim and its debit intact

	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	racing := claims.NewAdjudicator(&approveBeforeTx{TxStore: f.st, claimID: claim.ID})

	err = racing.Delete(ctx, owner, claim.ID)
	assert.ErrorIs(t, err, ledger.ErrClaimLocked)

	current, err := f.adj.Get(ctx, admin, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimApproved, current.Status, "approved claim survives the delete attempt")
	assert.True(t, f.remaining(t).Equal(dec(600)), "debit stays accounted for")
}

func TestDelete_ApprovedClaim_Locked(t *testing.T) {
	// Deleting an approved claim would strand its debit with no record.
	f := newFixture(t)
	ctx := context.Background()

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)
	_, err = f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)

	err = f.adj.Delete(ctx, owner, claim.ID)
	assert.ErrorIs(t, err, ledger.ErrClaimLocked)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestListAll_AdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	_, err = f.adj.ListAll(ctx, owner)
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	list, err := f.adj.ListAll(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListByUser_OwnerAndAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	_, err = f.adj.ListByUser(ctx, other, "u1")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	mine, err := f.adj.ListByUser(ctx, owner, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	viaAdmin, err := f.adj.ListByUser(ctx, admin, "u1")
	require.NoError(t, err)
	assert.Len(t, viaAdmin, 1)
}

// =============================================================================
// INVARIANTS
// =============================================================================

// approvedSum recomputes total - remaining from the claim records.
func approvedSum(t *testing.T, f *fixture) decimal.Decimal {
	t.Helper()
	list, err := f.st.ListClaimsByEntitlement(context.Background(), "u1", "p1")
	require.NoError(t, err)

	sum := decimal.Zero
	for _, c := range list {
		if c.Status == ledger.ClaimApproved {
			sum = sum.Add(c.Amount)
		}
	}
	return sum
}

func TestInvariant_ApprovedSumMatchesLedger(t *testing.T) {
	// After any mix of transitions, total - remaining equals the sum of
	// currently approved claim amounts.
	f := newFixture(t)
	ctx := context.Background()

	c1, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(300))
	require.NoError(t, err)
	c2, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(500))
	require.NoError(t, err)
	c3, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)

	_, err = f.adj.SetStatus(ctx, admin, c1.ID, ledger.ClaimApproved)
	require.NoError(t, err)
	_, err = f.adj.SetStatus(ctx, admin, c2.ID, ledger.ClaimApproved)
	require.NoError(t, err)
	// c3 approval: only 200 left, forced to rejected.
	_, err = f.adj.SetStatus(ctx, admin, c3.ID, ledger.ClaimApproved)
	require.NoError(t, err)
	// Re-adjudicate c1 back to pending: its 300 is credited back.
	_, err = f.adj.SetStatus(ctx, admin, c1.ID, ledger.ClaimPending)
	require.NoError(t, err)

	want := dec(1000).Sub(approvedSum(t, f))
	assert.True(t, f.remaining(t).Equal(want),
		"remaining %s != total - approved sum %s", f.remaining(t), want)
}

func TestConcurrency_TwoApprovals_ExactlyOneWins(t *testing.T) {
	// GIVEN: remaining 100 and two pending claims of 60 each
	// WHEN: both are approved concurrently
	// THEN: exactly one debits; remaining reads 40, never 100 or -20

	f := newFixture(t)
	ctx := context.Background()

	// Shrink the balance to 100.
	_, err := ledger.NewManager(f.st).Debit(ctx, "u1", "p1", dec(900))
	require.NoError(t, err)

	c1, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(60))
	require.NoError(t, err)
	c2, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(60))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*ledger.Claim, 2)
	for i, id := range []ledger.ClaimID{c1.ID, c2.ID} {
		wg.Add(1)
		go func(i int, id ledger.ClaimID) {
			defer wg.Done()
			c, err := f.adj.SetStatus(ctx, admin, id, ledger.ClaimApproved)
			assert.NoError(t, err)
			results[i] = c
		}(i, id)
	}
	wg.Wait()

	approved := 0
	for _, c := range results {
		if c != nil && c.Status == ledger.ClaimApproved {
			approved++
		}
	}
	assert.Equal(t, 1, approved, "exactly one of the two 60s fits in 100")
	assert.True(t, f.remaining(t).Equal(dec(40)),
		"remaining is 40, never 100 or -20, got %s", f.remaining(t))
}

// =============================================================================
// END TO END
// =============================================================================

func TestScenario_PurchaseSubmitApproveLock(t *testing.T) {
	// Purchase 1000/1y; over-submit rejects without touching the balance;
	// a 400 claim goes pending, approval debits to 600, and the approved
	// claim's amount is locked.

	f := newFixture(t)
	ctx := context.Background()

	over, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(1200))
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimRejected, over.Status)
	assert.True(t, f.remaining(t).Equal(dec(1000)))

	claim, err := f.adj.Submit(ctx, owner, "u1", "p1", dec(400))
	require.NoError(t, err)
	assert.Equal(t, ledger.ClaimPending, claim.Status)

	_, err = f.adj.SetStatus(ctx, admin, claim.ID, ledger.ClaimApproved)
	require.NoError(t, err)
	assert.True(t, f.remaining(t).Equal(dec(600)))

	_, err = f.adj.UpdateAmount(ctx, owner, claim.ID, dec(500))
	assert.ErrorIs(t, err, ledger.ErrClaimLocked)
}
