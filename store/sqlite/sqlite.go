/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the loan ledger persistence interfaces using SQLite. In
  production, the same patterns apply to PostgreSQL with only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  interest.Store:       Loans, payments and allocations
  interest.TxStore:     Atomic read-allocate-write
  interest.PolicyStore: Reusable rate templates

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on payments or allocations
  - Loans are updated only through optimistic version checks
  - Corrections are new payments, never edits

KEY TABLES:
  loans:       Loan state, policy snapshot (policy_json) and version
  payments:    One row per payment, idempotency key unique
  allocations: Per-loan split of a payment; the autoincrement sequence
               orders allocations sharing a payment date
  policies:    Policy templates

MONEY & DATES:
  Amounts are stored as decimal strings, never REAL. Calendar dates are
  stored as YYYY-MM-DD so lexical order is chronological order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction; the txStore view it hands out must not call back into
  the locking methods.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - interest/store.go: Interface definitions
  - interest/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/factory"
	"github.com/warp/debt-ledger/interest"
)

var (
	_ interest.TxStore     = (*Store)(nil)
	_ interest.PolicyStore = (*Store)(nil)
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	policies *factory.PolicyFactory
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, policies: factory.NewPolicyFactory()}
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

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Loans
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		principal TEXT NOT NULL,
		remaining_principal TEXT NOT NULL,
		accrued_interest TEXT NOT NULL,
		start_date TEXT NOT NULL,
		due_date TEXT,
		policy_id TEXT NOT NULL DEFAULT '',
		policy_json TEXT,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_start_date
		ON loans(start_date, id);

	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		note TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Allocations (append-only ledger)
	CREATE TABLE IF NOT EXISTS allocations (
		sequence INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		loan_id TEXT NOT NULL REFERENCES loans(id),
		principal_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Replay hot path: a loan's allocations in ledger order
	CREATE INDEX IF NOT EXISTS idx_allocations_loan
		ON allocations(loan_id, sequence);

	-- Policy templates
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mode TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS (interest.Store interface)
// =============================================================================

// SaveLoan inserts a loan at Version 1 or updates it from Version-1.
// Any other version is a lost update.
func (s *Store) SaveLoan(ctx context.Context, loan interest.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLoan(ctx, s.db, loan)
}

func (s *Store) saveLoan(ctx context.Context, db querier, loan interest.Loan) error {
	var policyJSON sql.NullString
	if loan.Policy != nil {
		doc, err := s.policies.MarshalPolicy(loan.Policy)
		if err != nil {
			return err
		}
		policyJSON = sql.NullString{String: doc, Valid: true}
	}
	var dueDate sql.NullString
	if loan.DueDate != nil {
		dueDate = sql.NullString{String: loan.DueDate.String(), Valid: true}
	}
	now := time.Now().UTC()

	if loan.Version == 1 {
		createdAt := loan.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO loans
			(id, principal, remaining_principal, accrued_interest, start_date, due_date,
			 policy_id, policy_json, status, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			loan.ID,
			loan.Principal.String(),
			loan.RemainingPrincipal.String(),
			loan.AccruedInterest.String(),
			loan.StartDate.String(),
			dueDate,
			loan.PolicyID,
			policyJSON,
			loan.Status,
			loan.Version,
			createdAt.Format(time.RFC3339),
			now.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return interest.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert loan: %w", err)
		}
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE loans SET
			remaining_principal = ?,
			accrued_interest = ?,
			due_date = ?,
			policy_id = ?,
			policy_json = ?,
			status = ?,
			version = ?,
			updated_at = ?
		WHERE id = ? AND version = ?
	`,
		loan.RemainingPrincipal.String(),
		loan.AccruedInterest.String(),
		dueDate,
		loan.PolicyID,
		policyJSON,
		loan.Status,
		loan.Version,
		now.Format(time.RFC3339),
		loan.ID,
		loan.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if n == 0 {
		return interest.ErrConcurrentModification
	}
	return nil
}

// GetLoan returns interest.ErrLoanNotFound for an unknown ID.
func (s *Store) GetLoan(ctx context.Context, id interest.LoanID) (interest.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getLoan(ctx, s.db, id)
}

const loanColumns = `id, principal, remaining_principal, accrued_interest, start_date, due_date,
	policy_id, policy_json, status, version, created_at`

func (s *Store) getLoan(ctx context.Context, db querier, id interest.LoanID) (interest.Loan, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = ?", id)
	if err != nil {
		return interest.Loan{}, fmt.Errorf("failed to query loan: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return interest.Loan{}, err
		}
		return interest.Loan{}, interest.ErrLoanNotFound
	}
	return s.scanLoan(rows)
}

// ListLoans returns all loans ordered by start date.
func (s *Store) ListLoans(ctx context.Context) ([]interest.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLoans(ctx, s.db)
}

func (s *Store) listLoans(ctx context.Context, db querier) ([]interest.Loan, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+loanColumns+" FROM loans ORDER BY start_date ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []interest.Loan
	for rows.Next() {
		loan, err := s.scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func (s *Store) scanLoan(rows *sql.Rows) (interest.Loan, error) {
	var (
		loan               interest.Loan
		principal          string
		remainingPrincipal string
		accruedInterest    string
		startDate          string
		dueDate            sql.NullString
		policyJSON         sql.NullString
		createdAt          string
	)

	err := rows.Scan(
		&loan.ID, &principal, &remainingPrincipal, &accruedInterest, &startDate, &dueDate,
		&loan.PolicyID, &policyJSON, &loan.Status, &loan.Version, &createdAt,
	)
	if err != nil {
		return loan, fmt.Errorf("failed to scan loan: %w", err)
	}

	if loan.Principal, err = decimal.NewFromString(principal); err != nil {
		return loan, fmt.Errorf("loan %s: bad principal: %w", loan.ID, err)
	}
	if loan.RemainingPrincipal, err = decimal.NewFromString(remainingPrincipal); err != nil {
		return loan, fmt.Errorf("loan %s: bad remaining_principal: %w", loan.ID, err)
	}
	if loan.AccruedInterest, err = decimal.NewFromString(accruedInterest); err != nil {
		return loan, fmt.Errorf("loan %s: bad accrued_interest: %w", loan.ID, err)
	}
	if loan.StartDate, err = interest.ParseDate(startDate); err != nil {
		return loan, fmt.Errorf("loan %s: %w", loan.ID, err)
	}
	if dueDate.Valid {
		d, err := interest.ParseDate(dueDate.String)
		if err != nil {
			return loan, fmt.Errorf("loan %s: %w", loan.ID, err)
		}
		loan.DueDate = &d
	}
	if policyJSON.Valid && policyJSON.String != "" {
		// a corrupted policy surfaces as ConfigurationError to the caller
		p, err := s.policies.ParsePolicy(policyJSON.String)
		if err != nil {
			return loan, fmt.Errorf("loan %s: %w", loan.ID, err)
		}
		loan.Policy = p
	}
	loan.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return loan, nil
}

// =============================================================================
// PAYMENTS & ALLOCATIONS
// =============================================================================

// AppendPayment records a payment and its allocations atomically.
func (s *Store) AppendPayment(ctx context.Context, payment interest.Payment, allocs []interest.PaymentAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.appendPayment(ctx, sqlTx, payment, allocs); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) appendPayment(ctx context.Context, db querier, payment interest.Payment, allocs []interest.PaymentAllocation) error {
	for _, a := range allocs {
		var exists int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM loans WHERE id = ?", a.LoanID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check loan: %w", err)
		}
		if exists == 0 {
			return interest.ErrLoanNotFound
		}
	}

	if payment.ID == "" {
		payment.ID = interest.PaymentID(uuid.NewString())
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(ctx, `
		INSERT INTO payments (id, amount, payment_date, note, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		payment.ID,
		payment.Amount.String(),
		payment.PaymentDate.String(),
		nullString(payment.Note),
		nullString(payment.IdempotencyKey),
		now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return interest.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	for _, a := range allocs {
		if a.ID == "" {
			a.ID = interest.AllocationID(uuid.NewString())
		}
		createdAt := now
		if !a.CreatedAt.IsZero() {
			createdAt = a.CreatedAt.UTC().Format(time.RFC3339)
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO allocations (id, payment_id, loan_id, principal_paid, interest_paid, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			a.ID,
			payment.ID,
			a.LoanID,
			a.PrincipalPaid.String(),
			a.InterestPaid.String(),
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
	}
	return nil
}

// Allocations returns a loan's allocations ordered by payment date, then creation order.
func (s *Store) Allocations(ctx context.Context, loanID interest.LoanID) ([]interest.PaymentAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allocations(ctx, s.db, loanID)
}

func (s *Store) allocations(ctx context.Context, db querier, loanID interest.LoanID) ([]interest.PaymentAllocation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.sequence, a.id, a.loan_id, a.principal_paid, a.interest_paid, a.created_at,
		       p.id, p.amount, p.payment_date, p.note, p.idempotency_key
		FROM allocations a
		JOIN payments p ON p.id = a.payment_id
		WHERE a.loan_id = ?
		ORDER BY p.payment_date ASC, a.sequence ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocs []interest.PaymentAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

func scanAllocation(rows *sql.Rows) (interest.PaymentAllocation, error) {
	var (
		a              interest.PaymentAllocation
		principalPaid  string
		interestPaid   string
		createdAt      string
		amount         string
		paymentDate    string
		note           sql.NullString
		idempotencyKey sql.NullString
	)

	err := rows.Scan(
		&a.Sequence, &a.ID, &a.LoanID, &principalPaid, &interestPaid, &createdAt,
		&a.Payment.ID, &amount, &paymentDate, &note, &idempotencyKey,
	)
	if err != nil {
		return a, fmt.Errorf("failed to scan allocation: %w", err)
	}

	if a.PrincipalPaid, err = decimal.NewFromString(principalPaid); err != nil {
		return a, fmt.Errorf("allocation %s: bad principal_paid: %w", a.ID, err)
	}
	if a.InterestPaid, err = decimal.NewFromString(interestPaid); err != nil {
		return a, fmt.Errorf("allocation %s: bad interest_paid: %w", a.ID, err)
	}
	if a.Payment.Amount, err = decimal.NewFromString(amount); err != nil {
		return a, fmt.Errorf("payment %s: bad amount: %w", a.Payment.ID, err)
	}
	if a.Payment.PaymentDate, err = interest.ParseDate(paymentDate); err != nil {
		return a, fmt.Errorf("payment %s: %w", a.Payment.ID, err)
	}
	a.Payment.Note = note.String
	a.Payment.IdempotencyKey = idempotencyKey.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return a, nil
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return exists(ctx, s.db, idempotencyKey)
}

func exists(ctx context.Context, db querier, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// =============================================================================
// TRANSACTIONAL STORE (interest.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store interest.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveLoan(ctx context.Context, loan interest.Loan) error {
	return ts.parent.saveLoan(ctx, ts.tx, loan)
}

func (ts *txStore) GetLoan(ctx context.Context, id interest.LoanID) (interest.Loan, error) {
	return ts.parent.getLoan(ctx, ts.tx, id)
}

func (ts *txStore) ListLoans(ctx context.Context) ([]interest.Loan, error) {
	return ts.parent.listLoans(ctx, ts.tx)
}

func (ts *txStore) AppendPayment(ctx context.Context, payment interest.Payment, allocs []interest.PaymentAllocation) error {
	return ts.parent.appendPayment(ctx, ts.tx, payment, allocs)
}

func (ts *txStore) Allocations(ctx context.Context, loanID interest.LoanID) ([]interest.PaymentAllocation, error) {
	return ts.parent.allocations(ctx, ts.tx, loanID)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, ts.tx, idempotencyKey)
}

// =============================================================================
// POLICY STORE (interest.PolicyStore interface)
// =============================================================================

// SavePolicy upserts a policy template. The stored version increments on update.
func (s *Store) SavePolicy(ctx context.Context, policy interest.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.policies.MarshalPolicy(&policy)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO policies (id, name, mode, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mode = excluded.mode,
			config_json = excluded.config_json,
			version = policies.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, query,
		policy.ID, policy.Name, policy.Mode(), config, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy template by ID.
func (s *Store) GetPolicy(ctx context.Context, id interest.PolicyID) (*interest.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var config string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM policies WHERE id = ?", id).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interest.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query policy: %w", err)
	}
	return s.policies.ParsePolicy(config)
}

// ListPolicies returns all policy templates ordered by ID.
func (s *Store) ListPolicies(ctx context.Context) ([]interest.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM policies ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []interest.Policy
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		p, err := s.policies.ParsePolicy(config)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

// DeletePolicy removes a policy template. Loans keep their own policy snapshot.
func (s *Store) DeletePolicy(ctx context.Context, id interest.PolicyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM policies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return interest.ErrPolicyNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
