/*
replay.go - Accrued interest re-derived from the allocation ledger

PURPOSE:
  The allocation history is the source of truth. Current accrued interest is
  never read from a running counter; it is recomputed for any "today" from
  the loan, its policy and its allocations.

CORE INVARIANT:
  The interest clock restarts at the most recent payment, regardless of how
  that payment was split between interest and principal.

    start = latest allocation payment date, else loan.StartDate
    accrued = Accrue(loan.RemainingPrincipal, loan.Policy, start, today)

CARRIED INTEREST:
  Loan.AccruedInterest holds the unpaid interest carried over from the
  period that ended at the last payment. The restarted period only covers
  the days after it, so the two never overlap:

    due = carried + Accrue(remainingPrincipal, policy, start, today)

  DisplayInterest(fresh, stale) is the guard for comparing a fresh value
  against an older snapshot of the same period. It is not a way to combine
  carried and newly accrued interest.

SEE ALSO:
  - accrual.go: Accrue
  - grace.go: Optional grace-day stage
  - cache.go: Snapshot cache with explicit invalidation
*/
package interest

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Replayer derives accrued interest from a loan's allocation history.
// The zero value reproduces the plain restart-at-last-payment rule.
type Replayer struct {
	Grace GraceMode
}

// AccrualStart returns the date the interest clock last restarted.
func (r Replayer) AccrualStart(loan Loan, allocations []PaymentAllocation) Date {
	latest, ok := LatestAllocation(allocations)
	if !ok {
		return loan.StartDate
	}
	return latest.Payment.PaymentDate
}

// EffectiveStart is AccrualStart passed through the configured grace stage.
func (r Replayer) EffectiveStart(loan Loan, allocations []PaymentAllocation) Date {
	start := r.AccrualStart(loan, allocations)
	switch r.Grace {
	case GraceEveryRestart:
		return EffectiveFrom(start, loan.Policy)
	case GraceFromOrigination:
		if len(allocations) == 0 {
			return EffectiveFrom(start, loan.Policy)
		}
	}
	return start
}

// AccruedInterestAsOf computes interest accrued since the last restart.
// A loan without a policy returns its cached AccruedInterest unchanged.
func (r Replayer) AccruedInterestAsOf(loan Loan, allocations []PaymentAllocation, today Date) (decimal.Decimal, error) {
	if loan.Policy == nil {
		return loan.AccruedInterest, nil
	}
	return Accrue(loan.RemainingPrincipal, loan.Policy, r.EffectiveStart(loan, allocations), today)
}

// Breakdown returns the month segments behind AccruedInterestAsOf.
func (r Replayer) Breakdown(loan Loan, allocations []PaymentAllocation, today Date) ([]AccrualSegment, error) {
	return Breakdown(loan.RemainingPrincipal, loan.Policy, r.EffectiveStart(loan, allocations), today)
}

// InterestDue is the interest owed on today: the carried unpaid interest
// plus what accrued since the last restart. A loan without a policy owes
// only its carry.
func (r Replayer) InterestDue(loan Loan, allocations []PaymentAllocation, today Date) (decimal.Decimal, error) {
	if loan.Policy == nil {
		return loan.AccruedInterest, nil
	}
	accrued, err := Accrue(loan.RemainingPrincipal, loan.Policy, r.EffectiveStart(loan, allocations), today)
	if err != nil {
		return decimal.Zero, err
	}
	return accrued.Add(loan.AccruedInterest), nil
}

// DisplayInterest never shows less than an older snapshot of the same period.
func DisplayInterest(computed, snapshot decimal.Decimal) decimal.Decimal {
	return decimal.Max(computed, snapshot)
}

// LatestAllocation returns the allocation with the latest payment date,
// ties broken by creation order.
func LatestAllocation(allocations []PaymentAllocation) (PaymentAllocation, bool) {
	if len(allocations) == 0 {
		return PaymentAllocation{}, false
	}
	sorted := SortAllocationsDesc(allocations)
	return sorted[0], true
}

// SortAllocationsDesc returns a copy ordered by payment date descending,
// then by Sequence descending. The input is not modified.
func SortAllocationsDesc(allocations []PaymentAllocation) []PaymentAllocation {
	sorted := make([]PaymentAllocation, len(allocations))
	copy(sorted, allocations)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].Payment.PaymentDate, sorted[j].Payment.PaymentDate
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return sorted[i].Sequence > sorted[j].Sequence
	})
	return sorted
}
