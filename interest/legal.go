package interest

import "github.com/shopspring/decimal"

// DefaultLegalCeilingPercent is the statutory personal-loan ceiling (percent per year).
var DefaultLegalCeilingPercent = decimal.NewFromInt(15)

var (
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
	daysPerYear   = decimal.NewFromInt(365)
)

// Classification is advisory metadata; it never blocks a policy from being used.
type Classification struct {
	AnnualizedRatePercent decimal.Decimal
	CeilingPercent        decimal.Decimal
	IsCompliant           bool
}

// LegalRateChecker flags policies whose annualized rate exceeds a ceiling.
// The zero value uses DefaultLegalCeilingPercent.
type LegalRateChecker struct {
	CeilingPercent decimal.Decimal
}

func (c LegalRateChecker) ceiling() decimal.Decimal {
	if c.CeilingPercent.IsZero() {
		return DefaultLegalCeilingPercent
	}
	return c.CeilingPercent
}

// Classify annualizes the policy rate (x12 for MONTHLY, x365 for DAILY).
// A nil policy is interest-free and therefore compliant.
func (c LegalRateChecker) Classify(policy *Policy) (Classification, error) {
	ceiling := c.ceiling()
	if policy == nil {
		return Classification{AnnualizedRatePercent: decimal.Zero, CeilingPercent: ceiling, IsCompliant: true}, nil
	}
	if err := validateRate(policy); err != nil {
		return Classification{}, err
	}

	annual := AnnualizedRatePercent(policy.Rate)
	return Classification{
		AnnualizedRatePercent: annual,
		CeilingPercent:        ceiling,
		IsCompliant:           annual.LessThanOrEqual(ceiling),
	}, nil
}

func AnnualizedRatePercent(rate Rate) decimal.Decimal {
	switch r := rate.(type) {
	case MonthlyRate:
		return r.Rate.Mul(hundred).Mul(monthsPerYear)
	case DailyRate:
		return r.Rate.Mul(hundred).Mul(daysPerYear)
	default:
		return decimal.Zero
	}
}
