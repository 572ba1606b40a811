package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverline/claims-engine/ledger"
	"github.com/coverline/claims-engine/ledger/store"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func seedEntitlement(t *testing.T, st ledger.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateEntitlement(ctx, ledger.Entitlement{
		UserID: "u1", PolicyID: "p1",
		Total: dec(1000), Remaining: dec(1000),
		ExpiresOn: time.Now().AddDate(1, 0, 0),
		Version:   1, CreatedAt: time.Now(),
	}))
}

func TestMemory_EntitlementCAS(t *testing.T) {
	st := store.NewMemory()
	seedEntitlement(t, st)
	ctx := context.Background()

	require.NoError(t, st.UpdateEntitlementBalance(ctx, "u1", "p1", dec(600), 1))

	got, err := st.GetEntitlement(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, got.Remaining.Equal(dec(600)))
	assert.Equal(t, int64(2), got.Version)

	err = st.UpdateEntitlementBalance(ctx, "u1", "p1", dec(0), 1)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	got, err = st.GetEntitlement(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, got.Remaining.Equal(dec(600)), "stale write must not land")
}

func TestMemory_DuplicateEntitlement(t *testing.T) {
	st := store.NewMemory()
	seedEntitlement(t, st)

	err := st.CreateEntitlement(context.Background(), ledger.Entitlement{
		UserID: "u1", PolicyID: "p1", Total: dec(500), Remaining: dec(500), Version: 1,
	})
	assert.ErrorIs(t, err, ledger.ErrAlreadyOwned)
}

func TestMemory_PolicyNameUnique(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, st.CreatePolicy(ctx, ledger.Policy{ID: "p1", Name: "Home Shield"}))

	err := st.CreatePolicy(ctx, ledger.Policy{ID: "p2", Name: "Home Shield"})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	// Re-saving the same policy under its own id is not a collision.
	assert.NoError(t, st.UpdatePolicy(ctx, ledger.Policy{ID: "p1", Name: "Home Shield"}))
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// Writes inside a failed transaction must all be undone.
	st := store.NewTxMemory()
	seedEntitlement(t, st)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s ledger.Store) error {
		if err := s.UpdateEntitlementBalance(ctx, "u1", "p1", dec(600), 1); err != nil {
			return err
		}
		now := time.Now()
		if err := s.CreateClaim(ctx, ledger.Claim{
			ID: "c1", UserID: "u1", PolicyID: "p1", Amount: dec(400),
			Status: ledger.ClaimApproved, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return s.UpdateEntitlementBalance(ctx, "u1", "p1", dec(0), 1)
	})
	require.ErrorIs(t, err, ledger.ErrConflict)

	ent, err := st.GetEntitlement(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, ent.Remaining.Equal(dec(1000)))
	assert.Equal(t, int64(1), ent.Version)

	_, err = st.GetClaim(ctx, "c1")
	assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
}

func TestTxMemory_CommitKeepsWrites(t *testing.T) {
	st := store.NewTxMemory()
	seedEntitlement(t, st)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s ledger.Store) error {
		return s.UpdateEntitlementBalance(ctx, "u1", "p1", dec(600), 1)
	})
	require.NoError(t, err)

	ent, err := st.GetEntitlement(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, ent.Remaining.Equal(dec(600)))
}
