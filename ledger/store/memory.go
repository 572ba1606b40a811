// Package store provides ledger.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coverline/claims-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	users        map[ledger.UserID]ledger.User
	policies     map[ledger.PolicyID]ledger.Policy
	entitlements map[entKey]ledger.Entitlement
	claims       map[ledger.ClaimID]ledger.Claim
}

type entKey struct {
	UserID   ledger.UserID
	PolicyID ledger.PolicyID
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[ledger.UserID]ledger.User),
		policies:     make(map[ledger.PolicyID]ledger.Policy),
		entitlements: make(map[entKey]ledger.Entitlement),
		claims:       make(map[ledger.ClaimID]ledger.Claim),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id ledger.UserID) (*ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) getUserLocked(id ledger.UserID) (*ledger.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]ledger.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *Memory) DeleteUser(_ context.Context, id ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ledger.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) CreatePolicy(_ context.Context, p ledger.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPolicyLocked(p)
}

func (m *Memory) createPolicyLocked(p ledger.Policy) error {
	for _, existing := range m.policies {
		if existing.Name == p.Name && existing.ID != p.ID {
			return &ledger.ValidationError{Field: "name", Reason: "already in use"}
		}
	}
	m.policies[p.ID] = p
	return nil
}

func (m *Memory) UpdatePolicy(_ context.Context, p ledger.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.ID]; !ok {
		return ledger.ErrPolicyNotFound
	}
	return m.createPolicyLocked(p)
}

func (m *Memory) GetPolicy(_ context.Context, id ledger.PolicyID) (*ledger.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPolicyLocked(id)
}

func (m *Memory) getPolicyLocked(id ledger.PolicyID) (*ledger.Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return nil, ledger.ErrPolicyNotFound
	}
	return &p, nil
}

func (m *Memory) ListPolicies(_ context.Context) ([]ledger.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policies := make([]ledger.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies, nil
}

func (m *Memory) DeletePolicy(_ context.Context, id ledger.PolicyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[id]; !ok {
		return ledger.ErrPolicyNotFound
	}
	delete(m.policies, id)
	return nil
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

func (m *Memory) CreateEntitlement(_ context.Context, e ledger.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEntitlementLocked(e)
}

func (m *Memory) createEntitlementLocked(e ledger.Entitlement) error {
	k := entKey{UserID: e.UserID, PolicyID: e.PolicyID}
	if _, ok := m.entitlements[k]; ok {
		return ledger.ErrAlreadyOwned
	}
	m.entitlements[k] = e
	return nil
}

func (m *Memory) GetEntitlement(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID) (*ledger.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntitlementLocked(userID, policyID)
}

func (m *Memory) getEntitlementLocked(userID ledger.UserID, policyID ledger.PolicyID) (*ledger.Entitlement, error) {
	e, ok := m.entitlements[entKey{UserID: userID, PolicyID: policyID}]
	if !ok {
		return nil, ledger.ErrEntitlementNotFound
	}
	return &e, nil
}

func (m *Memory) ListEntitlementsByUser(_ context.Context, userID ledger.UserID) ([]ledger.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEntitlementsByUserLocked(userID), nil
}

func (m *Memory) listEntitlementsByUserLocked(userID ledger.UserID) []ledger.Entitlement {
	var ents []ledger.Entitlement
	for k, e := range m.entitlements {
		if k.UserID == userID {
			ents = append(ents, e)
		}
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].PolicyID < ents[j].PolicyID })
	return ents
}

func (m *Memory) CountEntitlementsByPolicy(_ context.Context, policyID ledger.PolicyID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for k := range m.entitlements {
		if k.PolicyID == policyID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) UpdateEntitlementBalance(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID, newRemaining decimal.Decimal, expectVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(userID, policyID, newRemaining, expectVersion)
}

func (m *Memory) updateBalanceLocked(userID ledger.UserID, policyID ledger.PolicyID, newRemaining decimal.Decimal, expectVersion int64) error {
	k := entKey{UserID: userID, PolicyID: policyID}
	e, ok := m.entitlements[k]
	if !ok {
		return ledger.ErrEntitlementNotFound
	}
	if e.Version != expectVersion {
		return ledger.ErrConflict
	}
	e.Remaining = newRemaining
	e.Version++
	m.entitlements[k] = e
	return nil
}

func (m *Memory) DeleteEntitlement(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteEntitlementLocked(userID, policyID)
}

func (m *Memory) deleteEntitlementLocked(userID ledger.UserID, policyID ledger.PolicyID) error {
	k := entKey{UserID: userID, PolicyID: policyID}
	if _, ok := m.entitlements[k]; !ok {
		return ledger.ErrEntitlementNotFound
	}
	delete(m.entitlements, k)
	return nil
}

// =============================================================================
// CLAIMS
// =============================================================================

func (m *Memory) CreateClaim(_ context.Context, c ledger.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[c.ID] = c
	return nil
}

func (m *Memory) GetClaim(_ context.Context, id ledger.ClaimID) (*ledger.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getClaimLocked(id)
}

func (m *Memory) getClaimLocked(id ledger.ClaimID) (*ledger.Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, ledger.ErrClaimNotFound
	}
	return &c, nil
}

func (m *Memory) UpdateClaim(_ context.Context, c ledger.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateClaimLocked(c)
}

func (m *Memory) updateClaimLocked(c ledger.Claim) error {
	if _, ok := m.claims[c.ID]; !ok {
		return ledger.ErrClaimNotFound
	}
	m.claims[c.ID] = c
	return nil
}

func (m *Memory) DeleteClaim(_ context.Context, id ledger.ClaimID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteClaimLocked(id)
}

func (m *Memory) deleteClaimLocked(id ledger.ClaimID) error {
	if _, ok := m.claims[id]; !ok {
		return ledger.ErrClaimNotFound
	}
	delete(m.claims, id)
	return nil
}

func (m *Memory) ListClaimsByUser(_ context.Context, userID ledger.UserID) ([]ledger.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var claims []ledger.Claim
	for _, c := range m.claims {
		if c.UserID == userID {
			claims = append(claims, c)
		}
	}
	sortClaims(claims)
	return claims, nil
}

func (m *Memory) ListClaimsByEntitlement(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID) ([]ledger.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listClaimsByEntitlementLocked(userID, policyID), nil
}

func (m *Memory) listClaimsByEntitlementLocked(userID ledger.UserID, policyID ledger.PolicyID) []ledger.Claim {
	var claims []ledger.Claim
	for _, c := range m.claims {
		if c.UserID == userID && c.PolicyID == policyID {
			claims = append(claims, c)
		}
	}
	sortClaims(claims)
	return claims
}

func (m *Memory) ListClaims(_ context.Context) ([]ledger.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	claims := make([]ledger.Claim, 0, len(m.claims))
	for _, c := range m.claims {
		claims = append(claims, c)
	}
	sortClaims(claims)
	return claims, nil
}

func sortClaims(claims []ledger.Claim) {
	sort.Slice(claims, func(i, j int) bool {
		if claims[i].CreatedAt.Equal(claims[j].CreatedAt) {
			return claims[i].ID < claims[j].ID
		}
		return claims[i].CreatedAt.Before(claims[j].CreatedAt)
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// Compile-time check that TxMemory satisfies the full store contract.
var _ ledger.TxStore = (*TxMemory)(nil)

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	users := make(map[ledger.UserID]ledger.User, len(tm.users))
	for k, v := range tm.users {
		users[k] = v
	}
	policies := make(map[ledger.PolicyID]ledger.Policy, len(tm.policies))
	for k, v := range tm.policies {
		policies[k] = v
	}
	ents := make(map[entKey]ledger.Entitlement, len(tm.entitlements))
	for k, v := range tm.entitlements {
		ents[k] = v
	}
	claims := make(map[ledger.ClaimID]ledger.Claim, len(tm.claims))
	for k, v := range tm.claims {
		claims[k] = v
	}
	return memorySnapshot{users: users, policies: policies, entitlements: ents, claims: claims}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.users = s.users
	tm.policies = s.policies
	tm.entitlements = s.entitlements
	tm.claims = s.claims
}

type memorySnapshot struct {
	users        map[ledger.UserID]ledger.User
	policies     map[ledger.PolicyID]ledger.Policy
	entitlements map[entKey]ledger.Entitlement
	claims       map[ledger.ClaimID]ledger.Claim
}

// txMemoryView runs store operations against the parent while the parent's
// lock is already held by WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) SaveUser(_ context.Context, u ledger.User) error {
	tv.parent.users[u.ID] = u
	return nil
}

func (tv *txMemoryView) GetUser(_ context.Context, id ledger.UserID) (*ledger.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txMemoryView) ListUsers(_ context.Context) ([]ledger.User, error) {
	users := make([]ledger.User, 0, len(tv.parent.users))
	for _, u := range tv.parent.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (tv *txMemoryView) DeleteUser(_ context.Context, id ledger.UserID) error {
	if _, ok := tv.parent.users[id]; !ok {
		return ledger.ErrUserNotFound
	}
	delete(tv.parent.users, id)
	return nil
}

func (tv *txMemoryView) CreatePolicy(_ context.Context, p ledger.Policy) error {
	return tv.parent.createPolicyLocked(p)
}

func (tv *txMemoryView) UpdatePolicy(_ context.Context, p ledger.Policy) error {
	if _, ok := tv.parent.policies[p.ID]; !ok {
		return ledger.ErrPolicyNotFound
	}
	return tv.parent.createPolicyLocked(p)
}

func (tv *txMemoryView) GetPolicy(_ context.Context, id ledger.PolicyID) (*ledger.Policy, error) {
	return tv.parent.getPolicyLocked(id)
}

func (tv *txMemoryView) ListPolicies(_ context.Context) ([]ledger.Policy, error) {
	policies := make([]ledger.Policy, 0, len(tv.parent.policies))
	for _, p := range tv.parent.policies {
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies, nil
}

func (tv *txMemoryView) DeletePolicy(_ context.Context, id ledger.PolicyID) error {
	if _, ok := tv.parent.policies[id]; !ok {
		return ledger.ErrPolicyNotFound
	}
	delete(tv.parent.policies, id)
	return nil
}

func (tv *txMemoryView) CreateEntitlement(_ context.Context, e ledger.Entitlement) error {
	return tv.parent.createEntitlementLocked(e)
}

func (tv *txMemoryView) GetEntitlement(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID) (*ledger.Entitlement, error) {
	return tv.parent.getEntitlementLocked(userID, policyID)
}

func (tv *txMemoryView) ListEntitlementsByUser(_ context.Context, userID ledger.UserID) ([]ledger.Entitlement, error) {
	return tv.parent.listEntitlementsByUserLocked(userID), nil
}

func (tv *txMemoryView) CountEntitlementsByPolicy(_ context.Context, policyID ledger.PolicyID) (int, error) {
	count := 0
	for k := range tv.parent.entitlements {
		if k.PolicyID == policyID {
			count++
		}
	}
	return count, nil
}

func (tv *txMemoryView) UpdateEntitlementBalance(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID, newRemaining decimal.Decimal, expectVersion int64) error {
	return tv.parent.updateBalanceLocked(userID, policyID, newRemaining, expectVersion)
}

func (tv *txMemoryView) DeleteEntitlement(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID) error {
	return tv.parent.deleteEntitlementLocked(userID, policyID)
}

func (tv *txMemoryView) CreateClaim(_ context.Context, c ledger.Claim) error {
	tv.parent.claims[c.ID] = c
	return nil
}

func (tv *txMemoryView) GetClaim(_ context.Context, id ledger.ClaimID) (*ledger.Claim, error) {
	return tv.parent.getClaimLocked(id)
}

func (tv *txMemoryView) UpdateClaim(_ context.Context, c ledger.Claim) error {
	return tv.parent.updateClaimLocked(c)
}

func (tv *txMemoryView) DeleteClaim(_ context.Context, id ledger.ClaimID) error {
	return tv.parent.deleteClaimLocked(id)
}

func (tv *txMemoryView) ListClaimsByUser(_ context.Context, userID ledger.UserID) ([]ledger.Claim, error) {
	var claims []ledger.Claim
	for _, c := range tv.parent.claims {
		if c.UserID == userID {
			claims = append(claims, c)
		}
	}
	sortClaims(claims)
	return claims, nil
}

func (tv *txMemoryView) ListClaimsByEntitlement(_ context.Context, userID ledger.UserID, policyID ledger.PolicyID) ([]ledger.Claim, error) {
	return tv.parent.listClaimsByEntitlementLocked(userID, policyID), nil
}

func (tv *txMemoryView) ListClaims(_ context.Context) ([]ledger.Claim, error) {
	claims := make([]ledger.Claim, 0, len(tv.parent.claims))
	for _, c := range tv.parent.claims {
		claims = append(claims, c)
	}
	sortClaims(claims)
	return claims, nil
}
