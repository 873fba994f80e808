package interest_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-ledger/interest"
)

func target(id string, principal, accrued string, originated interest.Date) interest.Target {
	return interest.Target{
		LoanID:             interest.LoanID(id),
		RemainingPrincipal: dec(principal),
		AccruedInterest:    dec(accrued),
		OriginatedAt:       originated,
	}
}

func TestAllocate_InterestFirstPrecedence(t *testing.T) {
	// GIVEN: A loan owing 100 interest and 500 principal
	// WHEN: Paying 150 interest-first
	// THEN: Interest is cleared first, the rest reduces principal

	result := interest.Allocate(dec("150"), []interest.Target{target("a", "500", "100", date(2024, 1, 1))}, interest.StrategyInterestFirst)
	require.Len(t, result.Allocations, 1)

	a := result.Allocations[0]
	assertDecEqual(t, dec("100"), a.InterestPaid)
	assertDecEqual(t, dec("50"), a.PrincipalPaid)
	assert.True(t, result.Unallocated.IsZero())
}

func TestAllocate_PartialInterestOnly(t *testing.T) {
	result := interest.Allocate(dec("40"), []interest.Target{target("a", "500", "100", date(2024, 1, 1))}, interest.StrategyInterestFirst)
	a, ok := result.For("a")
	require.True(t, ok)
	assertDecEqual(t, dec("40"), a.InterestPaid)
	assert.True(t, a.PrincipalPaid.IsZero())
}

func TestAllocate_PrincipalFirst(t *testing.T) {
	result := interest.Allocate(dec("550"), []interest.Target{target("a", "500", "100", date(2024, 1, 1))}, interest.StrategyPrincipalFirst)
	a, ok := result.For("a")
	require.True(t, ok)
	assertDecEqual(t, dec("500"), a.PrincipalPaid)
	assertDecEqual(t, dec("50"), a.InterestPaid)
}

func TestAllocate_FIFOOldestFirst(t *testing.T) {
	targets := []interest.Target{
		target("newer", "300", "10", date(2024, 3, 1)),
		target("older", "200", "20", date(2023, 6, 1)),
	}

	result := interest.Allocate(dec("250"), targets, interest.StrategyFIFO)
	require.Len(t, result.Allocations, 2)
	assert.Equal(t, interest.LoanID("older"), result.Allocations[0].LoanID)

	older, _ := result.For("older")
	assertDecEqual(t, dec("20"), older.InterestPaid)
	assertDecEqual(t, dec("200"), older.PrincipalPaid)

	newer, _ := result.For("newer")
	assertDecEqual(t, dec("10"), newer.InterestPaid)
	assertDecEqual(t, dec("20"), newer.PrincipalPaid)

	// caller's slice keeps its order
	assert.Equal(t, interest.LoanID("newer"), targets[0].LoanID)
}

func TestAllocate_OverpaymentLeavesRemainder(t *testing.T) {
	result := interest.Allocate(dec("1000"), []interest.Target{target("a", "500", "100", date(2024, 1, 1))}, interest.StrategyInterestFirst)
	assertDecEqual(t, dec("600"), result.Allocated())
	assertDecEqual(t, dec("400"), result.Unallocated)
}

func TestAllocate_NonPositiveAmountIsNoOp(t *testing.T) {
	targets := []interest.Target{target("a", "500", "100", date(2024, 1, 1))}
	for _, amount := range []string{"0", "-25"} {
		result := interest.Allocate(dec(amount), targets, interest.StrategyInterestFirst)
		assert.Empty(t, result.Allocations, amount)
		assert.True(t, result.Unallocated.IsZero(), amount)
	}
}

func TestAllocate_SkipsSettledTargets(t *testing.T) {
	targets := []interest.Target{
		target("settled", "0", "0", date(2023, 1, 1)),
		target("negative", "-5", "-1", date(2023, 2, 1)),
		target("open", "100", "0", date(2023, 3, 1)),
	}
	result := interest.Allocate(dec("30"), targets, interest.StrategyFIFO)
	require.Len(t, result.Allocations, 1)
	assert.Equal(t, interest.LoanID("open"), result.Allocations[0].LoanID)
	assertDecEqual(t, dec("30"), result.Allocations[0].PrincipalPaid)
}

func TestAllocate_Conservation(t *testing.T) {
	targets := []interest.Target{
		target("a", "1234.56", "78.90", date(2023, 1, 10)),
		target("b", "99.99", "0.01", date(2022, 5, 2)),
		target("c", "0", "12.5", date(2024, 7, 7)),
	}
	strategies := []interest.Strategy{interest.StrategyInterestFirst, interest.StrategyPrincipalFirst, interest.StrategyFIFO}
	amounts := []string{"0.01", "12.5", "100", "1300", "1425.96", "5000"}

	for _, s := range strategies {
		for _, amt := range amounts {
			result := interest.Allocate(dec(amt), targets, s)
			assertDecEqual(t, dec(amt), result.Allocated().Add(result.Unallocated), s.String(), amt)

			for _, a := range result.Allocations {
				assert.False(t, a.InterestPaid.IsNegative())
				assert.False(t, a.PrincipalPaid.IsNegative())
			}
		}
	}
}

func TestAllocate_NeverExceedsObligations(t *testing.T) {
	targets := []interest.Target{target("a", "80", "20", date(2024, 1, 1))}
	result := interest.Allocate(decimal.NewFromInt(1_000_000), targets, interest.StrategyPrincipalFirst)
	a, _ := result.For("a")
	assert.True(t, a.PrincipalPaid.LessThanOrEqual(dec("80")))
	assert.True(t, a.InterestPaid.LessThanOrEqual(dec("20")))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want interest.Strategy
	}{
		{"", interest.StrategyInterestFirst},
		{"interest_first", interest.StrategyInterestFirst},
		{"PRINCIPAL_FIRST", interest.StrategyPrincipalFirst},
		{" fifo ", interest.StrategyFIFO},
	}
	for _, tt := range tests {
		got, err := interest.ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := interest.ParseStrategy("LIFO")
	assert.Error(t, err)
	assert.Equal(t, "FIFO", interest.StrategyFIFO.String())
}
