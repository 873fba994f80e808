/*
allocation.go - Payment waterfall across one or more loans

PURPOSE:
  Splits a received amount across loan obligations following a strategy.
  Amounts beyond every target's obligations are returned as Unallocated,
  never discarded and never over-applied.

STRATEGIES:
  INTEREST_FIRST (default):
    For each target in order: interest, then principal.
  PRINCIPAL_FIRST:
    For each target in order: principal, then interest.
  FIFO:
    Targets sorted by origination (oldest first, stable), then INTEREST_FIRST.
    The oldest loan is fully serviced before later ones receive anything.

GUARANTEE:
  sum(PrincipalPaid) + sum(InterestPaid) + Unallocated == amount  (amount > 0)

EXAMPLE:
  result := Allocate(dec("150"), []Target{{
      LoanID: "loan-1", AccruedInterest: dec("100"), RemainingPrincipal: dec("500"),
  }}, StrategyInterestFirst)
  // result.Allocations[0]: InterestPaid 100, PrincipalPaid 50
*/
package interest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STRATEGY
// =============================================================================

type Strategy int

const (
	StrategyInterestFirst Strategy = iota
	StrategyPrincipalFirst
	StrategyFIFO
)

func (s Strategy) String() string {
	switch s {
	case StrategyPrincipalFirst:
		return "PRINCIPAL_FIRST"
	case StrategyFIFO:
		return "FIFO"
	default:
		return "INTEREST_FIRST"
	}
}

// ParseStrategy accepts the strategy names case-insensitively. Empty means INTEREST_FIRST.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INTEREST_FIRST":
		return StrategyInterestFirst, nil
	case "PRINCIPAL_FIRST":
		return StrategyPrincipalFirst, nil
	case "FIFO":
		return StrategyFIFO, nil
	default:
		return StrategyInterestFirst, fmt.Errorf("unknown allocation strategy %q", s)
	}
}

// =============================================================================
// TARGETS & RESULTS
// =============================================================================

// Target is one loan's outstanding obligations at payment time.
type Target struct {
	LoanID             LoanID
	RemainingPrincipal decimal.Decimal
	AccruedInterest    decimal.Decimal

	// OriginatedAt orders targets for FIFO.
	OriginatedAt Date
}

type Allocation struct {
	LoanID        LoanID
	InterestPaid  decimal.Decimal
	PrincipalPaid decimal.Decimal
}

func (a Allocation) Total() decimal.Decimal { return a.InterestPaid.Add(a.PrincipalPaid) }

type AllocationResult struct {
	Allocations []Allocation
	Unallocated decimal.Decimal
}

// Allocated returns the amount applied across all allocations.
func (r AllocationResult) Allocated() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations {
		total = total.Add(a.Total())
	}
	return total
}

// For returns the allocation for a loan, if any.
func (r AllocationResult) For(id LoanID) (Allocation, bool) {
	for _, a := range r.Allocations {
		if a.LoanID == id {
			return a, true
		}
	}
	return Allocation{}, false
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocate splits amount across targets. A non-positive amount is a no-op.
// Targets with no obligations are skipped and get no allocation entry.
func Allocate(amount decimal.Decimal, targets []Target, strategy Strategy) AllocationResult {
	if !amount.IsPositive() {
		return AllocationResult{Unallocated: decimal.Zero}
	}

	ordered := targets
	if strategy == StrategyFIFO {
		ordered = make([]Target, len(targets))
		copy(ordered, targets)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].OriginatedAt.Before(ordered[j].OriginatedAt)
		})
	}

	remaining := amount
	var allocations []Allocation
	for _, t := range ordered {
		if !remaining.IsPositive() {
			break
		}
		interestDue := nonNegative(t.AccruedInterest)
		principalDue := nonNegative(t.RemainingPrincipal)
		if interestDue.IsZero() && principalDue.IsZero() {
			continue
		}

		var a Allocation
		a.LoanID = t.LoanID
		switch strategy {
		case StrategyPrincipalFirst:
			a.PrincipalPaid, remaining = take(remaining, principalDue)
			a.InterestPaid, remaining = take(remaining, interestDue)
		default: // INTEREST_FIRST, FIFO
			a.InterestPaid, remaining = take(remaining, interestDue)
			a.PrincipalPaid, remaining = take(remaining, principalDue)
		}
		allocations = append(allocations, a)
	}

	return AllocationResult{Allocations: allocations, Unallocated: remaining}
}

// take returns min(available, due) and what is left of available.
func take(available, due decimal.Decimal) (paid, left decimal.Decimal) {
	paid = decimal.Min(available, due)
	return paid, available.Sub(paid)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
