/*
policy.go - Interest policy definitions

PURPOSE:
  Describes how a loan accrues interest. A policy is immutable once attached
  to a loan; changing terms means creating a new policy.

MODES:
  MONTHLY:
    - A monthly rate (0.015 = 1.5%/month) prorated per calendar day
    - Each day is charged 1/N of the monthly rate, N = that month's length
    - AnchorDay documents the nominal cycle day; it does not change the math

  DAILY:
    - A daily rate applied to every whole day, no month sensitivity

The rate is a tagged union (MonthlyRate | DailyRate), so a policy cannot
carry the wrong rate field for its mode. Data coming from outside the type
system (JSON, database rows) is checked by the factory package, which
returns a ConfigurationError on a mismatch.

EXAMPLE:
  policy := &Policy{
      Rate:      MonthlyRate{Rate: decimal.RequireFromString("0.015"), AnchorDay: 5},
      GraceDays: 10,
  }

SEE ALSO:
  - accrual.go: Uses the policy to compute interest
  - grace.go: Applies GraceDays as a separate stage
  - legal.go: Annualizes the rate for compliance flagging
  - factory/policy.go: JSON/YAML to Policy conversion
*/
package interest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MODE
// =============================================================================

type Mode string

const (
	ModeMonthly Mode = "MONTHLY"
	ModeDaily   Mode = "DAILY"
)

// =============================================================================
// RATE - Sealed variant type
// =============================================================================

// Rate is either MonthlyRate or DailyRate. The unexported method seals the set.
type Rate interface {
	Mode() Mode
	Value() decimal.Decimal
	isRate()
}

// MonthlyRate is a per-month fraction prorated by actual month length.
type MonthlyRate struct {
	Rate decimal.Decimal

	// AnchorDay is the nominal day-of-month the cycle is referenced to (1-31).
	AnchorDay int
}

func (MonthlyRate) Mode() Mode               { return ModeMonthly }
func (r MonthlyRate) Value() decimal.Decimal { return r.Rate }
func (MonthlyRate) isRate()                  {}

// DailyRate is a per-day fraction.
type DailyRate struct {
	Rate decimal.Decimal
}

func (DailyRate) Mode() Mode               { return ModeDaily }
func (r DailyRate) Value() decimal.Decimal { return r.Rate }
func (DailyRate) isRate()                  {}

// =============================================================================
// POLICY
// =============================================================================

type PolicyID string

// Policy defines how a loan accrues interest.
type Policy struct {
	ID   PolicyID
	Name string
	Rate Rate

	// GraceDays is the number of days after accrual start with no interest.
	// Applied by EffectiveFrom, never inside Accrue.
	GraceDays int
}

// Mode returns the policy mode, or "" when the rate is missing.
func (p *Policy) Mode() Mode {
	if p == nil || p.Rate == nil {
		return ""
	}
	return p.Rate.Mode()
}

// Validate checks the invariants that the type system cannot express.
func (p *Policy) Validate() error {
	if p.Rate == nil {
		return &ConfigurationError{Field: "rate", Reason: "policy has no rate for any mode"}
	}
	if p.Rate.Value().IsNegative() {
		return &ConfigurationError{Field: "rate", Reason: fmt.Sprintf("negative %s rate %s", p.Rate.Mode(), p.Rate.Value())}
	}
	if mr, ok := p.Rate.(MonthlyRate); ok && (mr.AnchorDay < 1 || mr.AnchorDay > 31) {
		return &ConfigurationError{Field: "anchor_day", Reason: fmt.Sprintf("must be 1-31, got %d", mr.AnchorDay)}
	}
	if p.GraceDays < 0 {
		return &ConfigurationError{Field: "grace_days", Reason: fmt.Sprintf("must be non-negative, got %d", p.GraceDays)}
	}
	return nil
}

// NewMonthlyPolicy builds a validated MONTHLY policy.
func NewMonthlyPolicy(rate decimal.Decimal, anchorDay, graceDays int) (*Policy, error) {
	p := &Policy{Rate: MonthlyRate{Rate: rate, AnchorDay: anchorDay}, GraceDays: graceDays}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewDailyPolicy builds a validated DAILY policy.
func NewDailyPolicy(rate decimal.Decimal, graceDays int) (*Policy, error) {
	p := &Policy{Rate: DailyRate{Rate: rate}, GraceDays: graceDays}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
