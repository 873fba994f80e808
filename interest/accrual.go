package interest

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL CALCULATOR - Interest owed over a date range
// =============================================================================

// AccrualSegment is one calendar-month slice of an accrual range.
type AccrualSegment struct {
	Start       Date
	End         Date // exclusive
	Days        int
	DaysInMonth int // 0 for DAILY policies
	Interest    decimal.Decimal
}

// Accrue computes simple interest on principal over [from, to).
//
// Degrades to zero for a nil policy, a non-positive principal or an empty
// range. A corrupted policy fails with ConfigurationError even when the
// result would be zero.
// Grace days are not applied here; see EffectiveFrom.
func Accrue(principal decimal.Decimal, policy *Policy, from, to Date) (decimal.Decimal, error) {
	segments, err := Breakdown(principal, policy, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, s := range segments {
		total = total.Add(s.Interest)
	}
	return total, nil
}

// Breakdown returns the per-segment detail behind Accrue. The segment
// interests sum to Accrue's result.
func Breakdown(principal decimal.Decimal, policy *Policy, from, to Date) ([]AccrualSegment, error) {
	if policy == nil {
		return nil, nil
	}
	if err := validateRate(policy); err != nil {
		return nil, err
	}
	if !principal.IsPositive() || !to.After(from) {
		return nil, nil
	}

	switch rate := policy.Rate.(type) {
	case DailyRate:
		return dailySegments(principal, rate, from, to), nil
	case MonthlyRate:
		return monthlySegments(principal, rate, from, to), nil
	default:
		return nil, &ConfigurationError{Field: "rate", Reason: "unknown rate variant"}
	}
}

func validateRate(policy *Policy) error {
	if policy.Rate == nil {
		return &ConfigurationError{Field: "rate", Reason: "policy has no rate for any mode"}
	}
	if policy.Rate.Value().IsNegative() {
		return &ConfigurationError{Field: "rate", Reason: "negative rate"}
	}
	return nil
}

// DAILY: principal x dailyRate x days. One segment, no month sensitivity.
func dailySegments(principal decimal.Decimal, rate DailyRate, from, to Date) []AccrualSegment {
	days := DaysBetween(from, to)
	return []AccrualSegment{{
		Start:    from,
		End:      to,
		Days:     days,
		Interest: principal.Mul(rate.Rate).Mul(decimal.NewFromInt(int64(days))),
	}}
}

// MONTHLY: each day is charged monthlyRate / daysInMonth(thatMonth).
// Multiplying before dividing keeps a full month exactly equal to the monthly rate.
func monthlySegments(principal decimal.Decimal, rate MonthlyRate, from, to Date) []AccrualSegment {
	monthlyCharge := principal.Mul(rate.Rate)

	var out []AccrualSegment
	for _, seg := range MonthSegments(from, to) {
		days := seg.Days()
		dim := seg.DaysInMonth()
		out = append(out, AccrualSegment{
			Start:       seg.Start,
			End:         seg.End,
			Days:        days,
			DaysInMonth: dim,
			Interest: monthlyCharge.
				Mul(decimal.NewFromInt(int64(days))).
				Div(decimal.NewFromInt(int64(dim))),
		})
	}
	return out
}
