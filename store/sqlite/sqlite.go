/*
Package sqlite provides a SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  users:        Minimal user registry (existence + admin flag)
  policies:     Catalog definitions, unique name
  entitlements: One row per (user_id, policy_id), version-counted balance
  claims:       Claim records keyed by uuid

OPTIMISTIC LOCKING:
  Entitlement balances change only via

    UPDATE entitlements SET remaining = ?, version = version + 1
    WHERE user_id = ? AND policy_id = ? AND version = ?

  Zero rows affected means either the record vanished
  (ledger.ErrEntitlementNotFound) or a concurrent writer got there first
  (ledger.ErrConflict). Callers retry a bounded number of times.

TRANSACTIONS:
  WithTx wraps fn in BEGIN..COMMIT. The tx view routes every statement
  through the open *sql.Tx, so a claim-status write and its balance write
  commit or roll back as one unit.

DECIMALS:
  Monetary amounts are stored as TEXT in decimal string form and parsed
  back with shopspring/decimal. REAL would reintroduce float drift.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and crash recovery improves.

USAGE:
  store, err := sqlite.New("./data/claims.db")
  mgr := ledger.NewManager(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/coverline/claims-engine/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		total_amount TEXT NOT NULL,
		premium TEXT NOT NULL,
		duration_years INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One entitlement per (user, policy); the composite primary key is what
	-- makes a second purchase fail instead of duplicating or topping up.
	CREATE TABLE IF NOT EXISTS entitlements (
		user_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		total TEXT NOT NULL,
		remaining TEXT NOT NULL,
		expires_on TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, policy_id)
	);

	CREATE INDEX IF NOT EXISTS idx_entitlements_policy
		ON entitlements(policy_id);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_user
		ON claims(user_id);

	-- Hot path for withdrawal cascades and invariant checks
	CREATE INDEX IF NOT EXISTS idx_claims_user_policy
		ON claims(user_id, policy_id);

	CREATE INDEX IF NOT EXISTS idx_claims_status
		ON claims(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every statement helper
// can run inside or outside an explicit transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u ledger.User) error {
	return saveUser(ctx, s.db, u)
}

func saveUser(ctx context.Context, db dbtx, u ledger.User) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, is_admin = excluded.is_admin
	`, u.ID, u.Name, u.Email, u.IsAdmin, u.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, db dbtx, id ledger.UserID) (*ledger.User, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, email, is_admin, created_at FROM users WHERE id = ?
	`, id)

	var (
		u         ledger.User
		email     sql.NullString
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Name, &email, &u.IsAdmin, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Email = email.String
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]ledger.User, error) {
	return listUsers(ctx, s.db)
}

func listUsers(ctx context.Context, db dbtx) ([]ledger.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, email, is_admin, created_at FROM users ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []ledger.User
	for rows.Next() {
		var (
			u         ledger.User
			email     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.Name, &email, &u.IsAdmin, &createdAt); err != nil {
			return nil, err
		}
		u.Email = email.String
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id ledger.UserID) error {
	return deleteUser(ctx, s.db, id)
}

func deleteUser(ctx context.Context, db dbtx, id ledger.UserID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrUserNotFound
	}
	return nil
}

// =============================================================================
// POLICIES
// =============================================================================

func (s *Store) CreatePolicy(ctx context.Context, p ledger.Policy) error {
	return createPolicy(ctx, s.db, p)
}

func createPolicy(ctx context.Context, db dbtx, p ledger.Policy) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO policies (id, name, total_amount, premium, duration_years, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.TotalAmount.String(), p.Premium.String(), p.DurationYears,
		p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err, "policies.name") {
			return &ledger.ValidationError{Field: "name", Reason: "already in use"}
		}
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p ledger.Policy) error {
	return updatePolicy(ctx, s.db, p)
}

func updatePolicy(ctx context.Context, db dbtx, p ledger.Policy) error {
	res, err := db.ExecContext(ctx, `
		UPDATE policies SET name = ?, total_amount = ?, premium = ?, duration_years = ?
		WHERE id = ?
	`, p.Name, p.TotalAmount.String(), p.Premium.String(), p.DurationYears, p.ID)
	if err != nil {
		if isUniqueConstraintError(err, "policies.name") {
			return &ledger.ValidationError{Field: "name", Reason: "already in use"}
		}
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPolicyNotFound
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id ledger.PolicyID) (*ledger.Policy, error) {
	return getPolicy(ctx, s.db, id)
}

func getPolicy(ctx context.Context, db dbtx, id ledger.PolicyID) (*ledger.Policy, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, total_amount, premium, duration_years, created_at
		FROM policies WHERE id = ?
	`, id)

	var (
		p           ledger.Policy
		totalAmount string
		premium     string
		createdAt   string
	)
	err := row.Scan(&p.ID, &p.Name, &totalAmount, &premium, &p.DurationYears, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}
	p.TotalAmount = mustDecimal(totalAmount)
	p.Premium = mustDecimal(premium)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]ledger.Policy, error) {
	return listPolicies(ctx, s.db)
}

func listPolicies(ctx context.Context, db dbtx) ([]ledger.Policy, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, total_amount, premium, duration_years, created_at
		FROM policies ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []ledger.Policy
	for rows.Next() {
		var (
			p           ledger.Policy
			totalAmount string
			premium     string
			createdAt   string
		)
		if err := rows.Scan(&p.ID, &p.Name, &totalAmount, &premium, &p.DurationYears, &createdAt); err != nil {
			return nil, err
		}
		p.TotalAmount = mustDecimal(totalAmount)
		p.Premium = mustDecimal(premium)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (s *Store) DeletePolicy(ctx context.Context, id ledger.PolicyID) error {
	return deletePolicy(ctx, s.db, id)
}

func deletePolicy(ctx context.Context, db dbtx, id ledger.PolicyID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPolicyNotFound
	}
	return nil
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

func (s *Store) CreateEntitlement(ctx context.Context, e ledger.Entitlement) error {
	return createEntitlement(ctx, s.db, e)
}

func createEntitlement(ctx context.Context, db dbtx, e ledger.Entitlement) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entitlements (user_id, policy_id, total, remaining, expires_on, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.UserID, e.PolicyID, e.Total.String(), e.Remaining.String(),
		e.ExpiresOn.UTC().Format(time.RFC3339), e.Version,
		e.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err, "entitlements.user_id") {
			return ledger.ErrAlreadyOwned
		}
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID) (*ledger.Entitlement, error) {
	return getEntitlement(ctx, s.db, userID, policyID)
}

func getEntitlement(ctx context.Context, db dbtx, userID ledger.UserID, policyID ledger.PolicyID) (*ledger.Entitlement, error) {
	row := db.QueryRowContext(ctx, `
		SELECT user_id, policy_id, total, remaining, expires_on, version, created_at
		FROM entitlements WHERE user_id = ? AND policy_id = ?
	`, userID, policyID)

	e, err := scanEntitlementRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entitlement: %w", err)
	}
	return e, nil
}

func scanEntitlementRow(scan func(...any) error) (*ledger.Entitlement, error) {
	var (
		e         ledger.Entitlement
		total     string
		remaining string
		expiresOn string
		createdAt string
	)
	if err := scan(&e.UserID, &e.PolicyID, &total, &remaining, &expiresOn, &e.Version, &createdAt); err != nil {
		return nil, err
	}
	e.Total = mustDecimal(total)
	e.Remaining = mustDecimal(remaining)
	e.ExpiresOn, _ = time.Parse(time.RFC3339, expiresOn)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

func (s *Store) ListEntitlementsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Entitlement, error) {
	return listEntitlementsByUser(ctx, s.db, userID)
}

func listEntitlementsByUser(ctx context.Context, db dbtx, userID ledger.UserID) ([]ledger.Entitlement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, policy_id, total, remaining, expires_on, version, created_at
		FROM entitlements WHERE user_id = ? ORDER BY policy_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entitlements: %w", err)
	}
	defer rows.Close()

	var ents []ledger.Entitlement
	for rows.Next() {
		e, err := scanEntitlementRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		ents = append(ents, *e)
	}
	return ents, rows.Err()
}

func (s *Store) CountEntitlementsByPolicy(ctx context.Context, policyID ledger.PolicyID) (int, error) {
	return countEntitlementsByPolicy(ctx, s.db, policyID)
}

func countEntitlementsByPolicy(ctx context.Context, db dbtx, policyID ledger.PolicyID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entitlements WHERE policy_id = ?`, policyID,
	).Scan(&count)
	return count, err
}

func (s *Store) UpdateEntitlementBalance(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID, newRemaining decimal.Decimal, expectVersion int64) error {
	return updateEntitlementBalance(ctx, s.db, userID, policyID, newRemaining, expectVersion)
}

// updateEntitlementBalance is the compare-and-swap at the heart of the
// ledger. Zero rows affected means either the row is gone or the version
// moved; a second lookup distinguishes the two.
func updateEntitlementBalance(ctx context.Context, db dbtx, userID ledger.UserID, policyID ledger.PolicyID, newRemaining decimal.Decimal, expectVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE entitlements SET remaining = ?, version = version + 1
		WHERE user_id = ? AND policy_id = ? AND version = ?
	`, newRemaining.String(), userID, policyID, expectVersion)
	if err != nil {
		return fmt.Errorf("failed to update entitlement balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if _, err := getEntitlement(ctx, db, userID, policyID); err != nil {
		return err
	}
	return ledger.ErrConflict
}

func (s *Store) DeleteEntitlement(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID) error {
	return deleteEntitlement(ctx, s.db, userID, policyID)
}

func deleteEntitlement(ctx context.Context, db dbtx, userID ledger.UserID, policyID ledger.PolicyID) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM entitlements WHERE user_id = ? AND policy_id = ?`, userID, policyID)
	if err != nil {
		return fmt.Errorf("failed to delete entitlement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrEntitlementNotFound
	}
	return nil
}

// =============================================================================
// CLAIMS
// =============================================================================

func (s *Store) CreateClaim(ctx context.Context, c ledger.Claim) error {
	return createClaim(ctx, s.db, c)
}

func createClaim(ctx context.Context, db dbtx, c ledger.Claim) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO claims (id, user_id, policy_id, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.PolicyID, c.Amount.String(), c.Status,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, id ledger.ClaimID) (*ledger.Claim, error) {
	return getClaim(ctx, s.db, id)
}

func getClaim(ctx context.Context, db dbtx, id ledger.ClaimID) (*ledger.Claim, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, policy_id, amount, status, created_at, updated_at
		FROM claims WHERE id = ?
	`, id)

	c, err := scanClaimRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan claim: %w", err)
	}
	return c, nil
}

func scanClaimRow(scan func(...any) error) (*ledger.Claim, error) {
	var (
		c         ledger.Claim
		amount    string
		createdAt string
		updatedAt string
	)
	if err := scan(&c.ID, &c.UserID, &c.PolicyID, &amount, &c.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Amount = mustDecimal(amount)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func (s *Store) UpdateClaim(ctx context.Context, c ledger.Claim) error {
	return updateClaim(ctx, s.db, c)
}

func updateClaim(ctx context.Context, db dbtx, c ledger.Claim) error {
	res, err := db.ExecContext(ctx, `
		UPDATE claims SET amount = ?, status = ?, updated_at = ? WHERE id = ?
	`, c.Amount.String(), c.Status, c.UpdatedAt.UTC().Format(time.RFC3339), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrClaimNotFound
	}
	return nil
}

func (s *Store) DeleteClaim(ctx context.Context, id ledger.ClaimID) error {
	return deleteClaim(ctx, s.db, id)
}

func deleteClaim(ctx context.Context, db dbtx, id ledger.ClaimID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM claims WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrClaimNotFound
	}
	return nil
}

func (s *Store) ListClaimsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Claim, error) {
	return listClaimsByUser(ctx, s.db, userID)
}

func listClaimsByUser(ctx context.Context, db dbtx, userID ledger.UserID) ([]ledger.Claim, error) {
	return queryClaims(ctx, db, `
		SELECT id, user_id, policy_id, amount, status, created_at, updated_at
		FROM claims WHERE user_id = ? ORDER BY created_at, id
	`, userID)
}

func (s *Store) ListClaimsByEntitlement(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID) ([]ledger.Claim, error) {
	return listClaimsByEntitlement(ctx, s.db, userID, policyID)
}

func listClaimsByEntitlement(ctx context.Context, db dbtx, userID ledger.UserID, policyID ledger.PolicyID) ([]ledger.Claim, error) {
	return queryClaims(ctx, db, `
		SELECT id, user_id, policy_id, amount, status, created_at, updated_at
		FROM claims WHERE user_id = ? AND policy_id = ? ORDER BY created_at, id
	`, userID, policyID)
}

func (s *Store) ListClaims(ctx context.Context) ([]ledger.Claim, error) {
	return listClaims(ctx, s.db)
}

func listClaims(ctx context.Context, db dbtx) ([]ledger.Claim, error) {
	return queryClaims(ctx, db, `
		SELECT id, user_id, policy_id, amount, status, created_at, updated_at
		FROM claims ORDER BY created_at, id
	`)
}

func queryClaims(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Claim, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []ledger.Claim
	for rows.Next() {
		c, err := scanClaimRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The mutex
// serializes writers on top of SQLite's single-writer model so a busy
// database surfaces as queueing rather than SQLITE_BUSY.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every Store call through an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveUser(ctx context.Context, u ledger.User) error {
	return saveUser(ctx, ts.tx, u)
}

func (ts *txStore) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	return getUser(ctx, ts.tx, id)
}

func (ts *txStore) ListUsers(ctx context.Context) ([]ledger.User, error) {
	return listUsers(ctx, ts.tx)
}

func (ts *txStore) DeleteUser(ctx context.Context, id ledger.UserID) error {
	return deleteUser(ctx, ts.tx, id)
}

func (ts *txStore) CreatePolicy(ctx context.Context, p ledger.Policy) error {
	return createPolicy(ctx, ts.tx, p)
}

func (ts *txStore) UpdatePolicy(ctx context.Context, p ledger.Policy) error {
	return updatePolicy(ctx, ts.tx, p)
}

func (ts *txStore) GetPolicy(ctx context.Context, id ledger.PolicyID) (*ledger.Policy, error) {
	return getPolicy(ctx, ts.tx, id)
}

func (ts *txStore) ListPolicies(ctx context.Context) ([]ledger.Policy, error) {
	return listPolicies(ctx, ts.tx)
}

func (ts *txStore) DeletePolicy(ctx context.Context, id ledger.PolicyID) error {
	return deletePolicy(ctx, ts.tx, id)
}

func (ts *txStore) CreateEntitlement(ctx context.Context, e ledger.Entitlement) error {
	return createEntitlement(ctx, ts.tx, e)
}

func (ts *txStore) GetEntitlement(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID) (*ledger.Entitlement, error) {
	return getEntitlement(ctx, ts.tx, userID, policyID)
}

func (ts *txStore) ListEntitlementsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Entitlement, error) {
	return listEntitlementsByUser(ctx, ts.tx, userID)
}

func (ts *txStore) CountEntitlementsByPolicy(ctx context.Context, policyID ledger.PolicyID) (int, error) {
	return countEntitlementsByPolicy(ctx, ts.tx, policyID)
}

func (ts *txStore) UpdateEntitlementBalance(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID, newRemaining decimal.Decimal, expectVersion int64) error {
	return updateEntitlementBalance(ctx, ts.tx, userID, policyID, newRemaining, expectVersion)
}

func (ts *txStore) DeleteEntitlement(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID) error {
	return deleteEntitlement(ctx, ts.tx, userID, policyID)
}

func (ts *txStore) CreateClaim(ctx context.Context, c ledger.Claim) error {
	return createClaim(ctx, ts.tx, c)
}

func (ts *txStore) GetClaim(ctx context.Context, id ledger.ClaimID) (*ledger.Claim, error) {
	return getClaim(ctx, ts.tx, id)
}

func (ts *txStore) UpdateClaim(ctx context.Context, c ledger.Claim) error {
	return updateClaim(ctx, ts.tx, c)
}

func (ts *txStore) DeleteClaim(ctx context.Context, id ledger.ClaimID) error {
	return deleteClaim(ctx, ts.tx, id)
}

func (ts *txStore) ListClaimsByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Claim, error) {
	return listClaimsByUser(ctx, ts.tx, userID)
}

func (ts *txStore) ListClaimsByEntitlement(ctx context.Context, userID ledger.UserID, policyID ledger.PolicyID) ([]ledger.Claim, error) {
	return listClaimsByEntitlement(ctx, ts.tx, userID, policyID)
}

func (ts *txStore) ListClaims(ctx context.Context) ([]ledger.Claim, error) {
	return listClaims(ctx, ts.tx)
}

// =============================================================================
// HELPERS
// =============================================================================

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// isUniqueConstraintError matches SQLite's UNIQUE violation text for a
// specific column. PRIMARY KEY violations report the first key column.
func isUniqueConstraintError(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
