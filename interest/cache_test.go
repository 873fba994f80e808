package interest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-ledger/interest"
)

func TestMemoryCache_PutGetInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := interest.NewMemoryCache()

	miss, err := cache.Get(ctx, "loan-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	loan := testLoan(monthly("0.02"))
	snap := interest.Snapshot{LoanID: loan.ID, AsOf: date(2024, 2, 1), LoanVersion: loan.Version, Computed: dec("200"), Display: dec("200")}
	require.NoError(t, cache.Put(ctx, snap))

	got, err := cache.Get(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Matches(loan, date(2024, 2, 1)))
	assert.False(t, got.Matches(loan, date(2024, 2, 2)))

	loan.Version++
	assert.False(t, got.Matches(loan, date(2024, 2, 1)), "stale after a ledger mutation")

	require.NoError(t, cache.Invalidate(ctx, loan.ID))
	got, err = cache.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
