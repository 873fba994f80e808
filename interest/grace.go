package interest

import "fmt"

// GraceMode selects when a policy's grace days postpone the accrual clock.
type GraceMode string

const (
	// GraceNone never applies grace days. Accrual starts at the replayed start.
	GraceNone GraceMode = "none"

	// GraceFromOrigination applies grace days only while the clock still runs
	// from the loan start date (no payment recorded yet).
	GraceFromOrigination GraceMode = "origination"

	// GraceEveryRestart applies grace days after the loan start and after every payment.
	GraceEveryRestart GraceMode = "every_restart"
)

func ParseGraceMode(s string) (GraceMode, error) {
	switch GraceMode(s) {
	case "", GraceNone:
		return GraceNone, nil
	case GraceFromOrigination, GraceEveryRestart:
		return GraceMode(s), nil
	default:
		return "", fmt.Errorf("unknown grace mode %q", s)
	}
}

// EffectiveFrom advances an accrual start by the policy's grace days.
// A nil policy or zero grace leaves the start unchanged.
func EffectiveFrom(start Date, policy *Policy) Date {
	if policy == nil || policy.GraceDays <= 0 {
		return start
	}
	return start.AddDays(policy.GraceDays)
}
