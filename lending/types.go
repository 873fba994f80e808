package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/interest"
)

// Store is everything the service persists: loans, the allocation ledger
// and policy templates.
type Store interface {
	interest.TxStore
	interest.PolicyStore
}

// NewLoan describes a loan to originate.
type NewLoan struct {
	// ID is optional; a UUID is assigned when empty.
	ID        interest.LoanID
	Principal decimal.Decimal
	StartDate interest.Date
	DueDate   *interest.Date

	// Policy is an inline policy. It wins over PolicyID.
	Policy *interest.Policy

	// PolicyID names a stored template. The loan keeps its own copy, so a
	// later template change does not reprice existing loans.
	PolicyID interest.PolicyID
}

// CreatedLoan is a persisted loan plus the advisory rate classification.
type CreatedLoan struct {
	Loan           interest.Loan
	Classification interest.Classification
}

// InterestQuote is a loan's interest position on one day.
type InterestQuote struct {
	LoanID        interest.LoanID
	AsOf          interest.Date
	AccrualStart  interest.Date
	EffectiveFrom interest.Date

	// Computed is the interest re-derived from the ledger since AccrualStart.
	Computed decimal.Decimal

	// Display is the interest owed on AsOf: carried interest plus Computed.
	Display decimal.Decimal

	RemainingPrincipal decimal.Decimal
	Status             interest.LoanStatus

	// Breakdown is filled by QuoteDetail only.
	Breakdown []interest.AccrualSegment

	// Cached reports whether Computed came from the snapshot cache.
	Cached bool
}

// TotalDue is the payoff amount on AsOf.
func (q InterestQuote) TotalDue() decimal.Decimal {
	return q.RemainingPrincipal.Add(q.Display)
}

// PaymentRequest applies one payment across one or more loans.
type PaymentRequest struct {
	LoanIDs []interest.LoanID
	Amount  decimal.Decimal

	// PaymentDate defaults to the service clock's today.
	PaymentDate interest.Date

	// Strategy defaults to the service's configured strategy.
	Strategy *interest.Strategy

	IdempotencyKey string
	Note           string
}

// LoanPosition is one loan's obligations at payment time and the result.
type LoanPosition struct {
	LoanID          interest.LoanID
	InterestDue     decimal.Decimal
	PrincipalBefore decimal.Decimal
	InterestPaid    decimal.Decimal
	PrincipalPaid   decimal.Decimal
	PrincipalAfter  decimal.Decimal
	CarriedInterest decimal.Decimal
	Status          interest.LoanStatus
}

// PaymentResult is returned by both ApplyPayment and PreviewPayment.
type PaymentResult struct {
	Payment     interest.Payment
	Strategy    interest.Strategy
	Allocations []interest.PaymentAllocation
	Positions   []LoanPosition
	Unallocated decimal.Decimal

	// Preview is true when nothing was persisted.
	Preview bool
}
