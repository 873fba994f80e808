/*
Package interest provides the interest accrual and payment allocation engine.

PURPOSE:
  Given a loan's principal, an interest policy, a payment history and an
  explicit "today", the engine computes how much interest has accrued since
  the last settlement point and how a new payment splits between outstanding
  interest and outstanding principal.

KEY CONCEPTS IN THIS FILE (types.go):
  - Loan: Principal, remaining principal, cached accrued interest, policy
  - Payment: Money received on a date
  - PaymentAllocation: The part of one payment applied to one loan
  - LoanStatus: OPEN, OVERDUE, CLOSED

DESIGN PRINCIPLES:
  1. Purity: No clocks, no I/O. "Today" is always an argument.
  2. Precision: decimal.Decimal everywhere, results are never rounded here.
  3. Replayability: Accrued interest is re-derived from the allocation ledger;
     Loan.AccruedInterest is only a cache of the last ledger mutation.
  4. Append-only: Allocations are never modified once recorded.

USAGE:
  var r interest.Replayer
  accrued, err := r.AccruedInterestAsOf(loan, allocations, interest.NewDate(2024, 3, 1))

  result := interest.Allocate(amount, targets, interest.StrategyInterestFirst)

SEE ALSO:
  - accrual.go: Interest over a date range
  - replay.go: Accrual start from the ledger
  - allocation.go: Payment waterfall
  - legal.go: Statutory ceiling check
*/
package interest

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string
type PaymentID string
type AllocationID string

// =============================================================================
// LOAN
// =============================================================================

type LoanStatus string

const (
	StatusOpen    LoanStatus = "OPEN"
	StatusOverdue LoanStatus = "OVERDUE"
	StatusClosed  LoanStatus = "CLOSED"
)

type Loan struct {
	ID LoanID

	// Principal is the original amount lent. Immutable once created.
	Principal decimal.Decimal

	// RemainingPrincipal only decreases, and only through allocated payments.
	RemainingPrincipal decimal.Decimal

	// AccruedInterest is the unpaid interest as of the last ledger mutation.
	// A cache: the current value is re-derived by the Replayer.
	AccruedInterest decimal.Decimal

	StartDate Date
	DueDate   *Date // display only; interest keeps accruing past it

	PolicyID PolicyID
	Policy   *Policy // nil = interest-free

	Status LoanStatus

	// Version increments on every persisted mutation.
	Version int64

	CreatedAt time.Time
}

// NewLoan returns a loan in its initial state.
func NewLoan(id LoanID, principal decimal.Decimal, startDate Date, policy *Policy) Loan {
	loan := Loan{
		ID:                 id,
		Principal:          principal,
		RemainingPrincipal: principal,
		AccruedInterest:    decimal.Zero,
		StartDate:          startDate,
		Policy:             policy,
		Status:             StatusOpen,
		Version:            1,
	}
	if policy != nil {
		loan.PolicyID = policy.ID
	}
	return loan
}

// IsOverdue reports whether the due date has passed on an unsettled loan.
func (l Loan) IsOverdue(today Date) bool {
	return l.Status != StatusClosed && l.DueDate != nil && today.After(*l.DueDate)
}

// DeriveStatus computes the status from balances and the due date.
// CLOSED is sticky.
func (l Loan) DeriveStatus(today Date) LoanStatus {
	if l.Status == StatusClosed {
		return StatusClosed
	}
	if !l.RemainingPrincipal.IsPositive() && !l.AccruedInterest.IsPositive() {
		return StatusClosed
	}
	if l.DueDate != nil && today.After(*l.DueDate) {
		return StatusOverdue
	}
	return StatusOpen
}

// =============================================================================
// PAYMENT & ALLOCATION
// =============================================================================

type Payment struct {
	ID             PaymentID
	Amount         decimal.Decimal
	PaymentDate    Date
	Note           string
	IdempotencyKey string
}

// PaymentAllocation is the part of one payment applied to one loan.
// Invariant: PrincipalPaid + InterestPaid <= Payment.Amount.
type PaymentAllocation struct {
	ID            AllocationID
	Payment       Payment
	LoanID        LoanID
	PrincipalPaid decimal.Decimal
	InterestPaid  decimal.Decimal

	// Sequence is the store-assigned creation order. Breaks ties between
	// allocations sharing a payment date.
	Sequence int64

	CreatedAt time.Time
}

// Total returns PrincipalPaid + InterestPaid.
func (a PaymentAllocation) Total() decimal.Decimal {
	return a.PrincipalPaid.Add(a.InterestPaid)
}
