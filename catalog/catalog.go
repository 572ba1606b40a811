/*
Package catalog manages the purchasable policy definitions.

PURPOSE:
  Policies are created and maintained by administrative actors and read by
  the ledger and the adjudicator. From the ledger's perspective a policy is
  read-only after creation: once any entitlement references it, its total
  amount and duration are frozen and deletion is refused. Changing them
  mid-flight would silently reshape outstanding entitlements.

VALIDATION BOUNDS:
  - name: required, unique
  - total amount: positive, at most 1,000,000
  - premium: positive, at most 1,000,000
  - duration: positive, at most 100 years

AUTHORIZATION:
  Create/Update/Delete require the admin capability; listing and reading
  are open to any actor.

SEE ALSO:
  - ledger/types.go: Policy record and bounds
  - ledger/manager.go: Purchase reads the catalog
*/
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coverline/claims-engine/ledger"
)

// Service exposes catalog operations over a ledger store.
type Service struct {
	store ledger.TxStore
	now   func() time.Time
	newID func() ledger.PolicyID
}

func NewService(store ledger.TxStore) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		newID: func() ledger.PolicyID { return ledger.PolicyID(uuid.NewString()) },
	}
}

// PolicyInput carries the caller-supplied policy fields.
type PolicyInput struct {
	Name          string
	TotalAmount   decimal.Decimal
	Premium       decimal.Decimal
	DurationYears int
}

func (in PolicyInput) validate() error {
	if in.Name == "" {
		return &ledger.ValidationError{Field: "name", Reason: "required"}
	}
	if !in.TotalAmount.IsPositive() {
		return &ledger.ValidationError{Field: "total_amount", Reason: "must be positive"}
	}
	if in.TotalAmount.GreaterThan(ledger.MaxPolicyAmount) {
		return &ledger.ValidationError{Field: "total_amount", Reason: "cannot exceed 1000000"}
	}
	if !in.Premium.IsPositive() {
		return &ledger.ValidationError{Field: "premium", Reason: "must be positive"}
	}
	if in.Premium.GreaterThan(ledger.MaxPolicyPremium) {
		return &ledger.ValidationError{Field: "premium", Reason: "cannot exceed 1000000"}
	}
	if in.DurationYears <= 0 {
		return &ledger.ValidationError{Field: "duration", Reason: "must be positive"}
	}
	if in.DurationYears > ledger.MaxPolicyDurationYears {
		return &ledger.ValidationError{Field: "duration", Reason: "cannot exceed 100 years"}
	}
	return nil
}

// =============================================================================
// WRITES (admin only)
// =============================================================================

// Create adds a new policy to the catalog.
func (s *Service) Create(ctx context.Context, actor ledger.Actor, in PolicyInput) (*ledger.Policy, error) {
	if !actor.IsAdmin {
		return nil, ledger.ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	policy := ledger.Policy{
		ID:            s.newID(),
		Name:          in.Name,
		TotalAmount:   in.TotalAmount,
		Premium:       in.Premium,
		DurationYears: in.DurationYears,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreatePolicy(ctx, policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

// Update edits a policy's name or premium at any time. Total amount and
// duration are frozen while any entitlement references the policy; changing
// them would invalidate outstanding balances (versioning is out of scope).
func (s *Service) Update(ctx context.Context, actor ledger.Actor, id ledger.PolicyID, in PolicyInput) (*ledger.Policy, error) {
	if !actor.IsAdmin {
		return nil, ledger.ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var updated *ledger.Policy
	err := s.store.WithTx(ctx, func(st ledger.Store) error {
		existing, err := st.GetPolicy(ctx, id)
		if err != nil {
			return err
		}

		reshaped := !existing.TotalAmount.Equal(in.TotalAmount) ||
			existing.DurationYears != in.DurationYears
		if reshaped {
			held, err := st.CountEntitlementsByPolicy(ctx, id)
			if err != nil {
				return err
			}
			if held > 0 {
				return fmt.Errorf("amount/duration are frozen while held by %d user(s): %w",
					held, ledger.ErrPolicyInUse)
			}
		}

		existing.Name = in.Name
		existing.Premium = in.Premium
		existing.TotalAmount = in.TotalAmount
		existing.DurationYears = in.DurationYears

		if err := st.UpdatePolicy(ctx, *existing); err != nil {
			return err
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a policy. Refused while any entitlement references it.
func (s *Service) Delete(ctx context.Context, actor ledger.Actor, id ledger.PolicyID) error {
	if !actor.IsAdmin {
		return ledger.ErrForbidden
	}
	return s.store.WithTx(ctx, func(st ledger.Store) error {
		if _, err := st.GetPolicy(ctx, id); err != nil {
			return err
		}
		held, err := st.CountEntitlementsByPolicy(ctx, id)
		if err != nil {
			return err
		}
		if held > 0 {
			return fmt.Errorf("held by %d user(s): %w", held, ledger.ErrPolicyInUse)
		}
		return st.DeletePolicy(ctx, id)
	})
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id ledger.PolicyID) (*ledger.Policy, error) {
	return s.store.GetPolicy(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]ledger.Policy, error) {
	return s.store.ListPolicies(ctx)
}

// PolicyOwnership pairs a catalog policy with whether a given user holds it.
type PolicyOwnership struct {
	Policy ledger.Policy
	Bought bool
}

// ListForUser returns the whole catalog annotated with the user's holdings.
func (s *Service) ListForUser(ctx context.Context, userID ledger.UserID) ([]PolicyOwnership, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	policies, err := s.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	ents, err := s.store.ListEntitlementsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	held := make(map[ledger.PolicyID]bool, len(ents))
	for _, e := range ents {
		held[e.PolicyID] = true
	}

	result := make([]PolicyOwnership, 0, len(policies))
	for _, p := range policies {
		result = append(result, PolicyOwnership{Policy: p, Bought: held[p.ID]})
	}
	return result, nil
}
