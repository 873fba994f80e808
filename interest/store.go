/*
store.go - Persistence interface for loans and the allocation ledger

PURPOSE:
  Defines the interface between the engine's callers and the database.
  Allocations are append-only; loans carry only derived snapshot fields
  (remaining principal, carried interest, status) that are rewritten after
  each payment under optimistic versioning.

KEY INTERFACES:
  Store:         Loans, payments and allocations
  TxStore:       Atomic read-compute-write around a payment
  PolicyStore:   Named policy templates

APPEND-ONLY CONTRACT:
  - AppendPayment(): One payment and its allocations, all-or-nothing
  - NO Update() or Delete() on allocations

IDEMPOTENCY:
  A payment may carry an idempotency key. If the key already exists the
  write is rejected with ErrDuplicateIdempotencyKey, which protects against
  network retries and double submits.

OPTIMISTIC VERSIONING:
  SaveLoan with Version N succeeds only if the stored loan still has
  Version N-1 (or does not exist when N == 1). Otherwise it returns
  ErrConcurrentModification.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - interest/store/memory.go: In-memory for testing
*/
package interest

import "context"

// Store persists loans and their allocation ledger.
type Store interface {
	// SaveLoan inserts or updates a loan, enforcing Version ordering.
	SaveLoan(ctx context.Context, loan Loan) error

	// GetLoan returns ErrLoanNotFound when the loan doesn't exist.
	GetLoan(ctx context.Context, id LoanID) (Loan, error)

	ListLoans(ctx context.Context) ([]Loan, error)

	// AppendPayment records a payment and its allocations atomically and
	// assigns each allocation's Sequence.
	AppendPayment(ctx context.Context, payment Payment, allocations []PaymentAllocation) error

	// Allocations returns a loan's allocations ordered by payment date, then Sequence.
	Allocations(ctx context.Context, loanID LoanID) ([]PaymentAllocation, error)

	// Exists checks if a payment idempotency key was already used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TxStore wraps Store with transaction support.
// If fn returns an error, every write made through the Store it received is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// PolicyStore persists reusable policy templates.
type PolicyStore interface {
	SavePolicy(ctx context.Context, policy Policy) error
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)
	ListPolicies(ctx context.Context) ([]Policy, error)

	// DeletePolicy returns ErrPolicyNotFound for an unknown id.
	DeletePolicy(ctx context.Context, id PolicyID) error
}
