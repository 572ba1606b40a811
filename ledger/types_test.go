package ledger_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverline/claims-engine/ledger"
)

func TestActor_CanActFor(t *testing.T) {
	member := ledger.Actor{UserID: "u1"}
	assert.True(t, member.CanActFor("u1"))
	assert.False(t, member.CanActFor("u2"))

	admin := ledger.Actor{UserID: "ops", IsAdmin: true}
	assert.True(t, admin.CanActFor("u1"))
}

func TestEntitlement_ExpiredAt(t *testing.T) {
	deadline := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	e := ledger.Entitlement{ExpiresOn: deadline}

	assert.False(t, e.ExpiredAt(deadline.Add(-time.Hour)))
	assert.False(t, e.ExpiredAt(deadline), "the deadline itself is still covered")
	assert.True(t, e.ExpiredAt(deadline.Add(time.Second)))
}

func TestEntitlement_CanCover(t *testing.T) {
	e := ledger.Entitlement{Remaining: decimal.NewFromInt(100)}

	assert.True(t, e.CanCover(decimal.NewFromInt(99)))
	assert.True(t, e.CanCover(decimal.NewFromInt(100)), "exact drain is covered")
	assert.False(t, e.CanCover(decimal.NewFromInt(101)))
}

func TestParseClaimStatus(t *testing.T) {
	for _, valid := range []string{"pending", "approved", "rejected"} {
		got, err := ledger.ParseClaimStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, ledger.ClaimStatus(valid), got)
	}

	for _, invalid := range []string{"", "paid", "Approved", "APPROVED"} {
		_, err := ledger.ParseClaimStatus(invalid)
		assert.ErrorIs(t, err, ledger.ErrInvalidStatus, "status %q", invalid)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ledger.ParseAmount("123.45")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("123.45")))

	for _, bad := range []string{"", "abc", "0", "-1"} {
		_, err := ledger.ParseAmount(bad)
		var verr *ledger.ValidationError
		assert.ErrorAs(t, err, &verr, "amount %q", bad)
	}
}

func TestInsufficientEntitlementError_Unwraps(t *testing.T) {
	err := fmt.Errorf("debit: %w", &ledger.InsufficientEntitlementError{
		UserID: "u1", PolicyID: "p1",
		Available: decimal.NewFromInt(100), Requested: decimal.NewFromInt(150),
	})

	assert.ErrorIs(t, err, ledger.ErrInsufficientEntitlement)

	var detail *ledger.InsufficientEntitlementError
	require.ErrorAs(t, err, &detail)
	assert.Contains(t, detail.Error(), "shortfall 50")
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, ledger.IsNotFound(ledger.ErrUserNotFound))
	assert.True(t, ledger.IsNotFound(fmt.Errorf("get: %w", ledger.ErrEntitlementNotFound)))
	assert.False(t, ledger.IsNotFound(ledger.ErrConflict))

	assert.True(t, ledger.IsRetryable(ledger.ErrConflict))
	assert.False(t, ledger.IsRetryable(ledger.ErrForbidden))

	assert.True(t, ledger.IsClientError(ledger.ErrAlreadyOwned))
	assert.True(t, ledger.IsClientError(ledger.ErrClaimLocked))
	assert.True(t, ledger.IsClientError(&ledger.ValidationError{Field: "amount", Reason: "must be positive"}))
	assert.False(t, ledger.IsClientError(errors.New("disk on fire")))
	assert.False(t, ledger.IsClientError(ledger.ErrForbidden), "forbidden maps to its own status")
}
