package interest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-ledger/interest"
)

func TestLegalRateChecker_MonthlyAtCeiling(t *testing.T) {
	// 1.25%/month annualizes to exactly 15% and is still compliant
	var checker interest.LegalRateChecker

	c, err := checker.Classify(monthly("0.0125"))
	require.NoError(t, err)
	assertDecEqual(t, dec("15"), c.AnnualizedRatePercent)
	assert.True(t, c.IsCompliant)

	c, err = checker.Classify(monthly("0.0126"))
	require.NoError(t, err)
	assertDecEqual(t, dec("15.12"), c.AnnualizedRatePercent)
	assert.False(t, c.IsCompliant)
}

func TestLegalRateChecker_Daily(t *testing.T) {
	var checker interest.LegalRateChecker
	c, err := checker.Classify(daily("0.0005"))
	require.NoError(t, err)
	assertDecEqual(t, dec("18.25"), c.AnnualizedRatePercent)
	assertDecEqual(t, dec("15"), c.CeilingPercent)
	assert.False(t, c.IsCompliant)
}

func TestLegalRateChecker_NilPolicyIsCompliant(t *testing.T) {
	var checker interest.LegalRateChecker
	c, err := checker.Classify(nil)
	require.NoError(t, err)
	assert.True(t, c.IsCompliant)
	assert.True(t, c.AnnualizedRatePercent.IsZero())
}

func TestLegalRateChecker_CustomCeiling(t *testing.T) {
	checker := interest.LegalRateChecker{CeilingPercent: dec("20")}
	c, err := checker.Classify(daily("0.0005"))
	require.NoError(t, err)
	assert.True(t, c.IsCompliant)
	assertDecEqual(t, dec("20"), c.CeilingPercent)
}

func TestLegalRateChecker_CorruptedPolicy(t *testing.T) {
	var checker interest.LegalRateChecker
	_, err := checker.Classify(&interest.Policy{})
	assert.ErrorIs(t, err, interest.ErrConfiguration)
}
