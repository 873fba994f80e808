package interest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Cached interest quote, invalidated on every ledger mutation
// =============================================================================

// Snapshot is a computed quote for one loan on one day.
// It is valid only while the loan is still at LoanVersion.
type Snapshot struct {
	LoanID        LoanID          `json:"loan_id"`
	AsOf          Date            `json:"as_of"`
	LoanVersion   int64           `json:"loan_version"`
	AccrualStart  Date            `json:"accrual_start"`
	EffectiveFrom Date            `json:"effective_from"`
	Computed      decimal.Decimal `json:"computed"`
	Display       decimal.Decimal `json:"display"`
}

// Matches reports whether the snapshot can answer a quote for loan at asOf.
func (s Snapshot) Matches(loan Loan, asOf Date) bool {
	return s.LoanID == loan.ID && s.LoanVersion == loan.Version && s.AsOf.Equal(asOf)
}

// SnapshotCache stores the latest quote per loan.
type SnapshotCache interface {
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, id LoanID) (*Snapshot, error)
	Put(ctx context.Context, snapshot Snapshot) error
	Invalidate(ctx context.Context, id LoanID) error
}

// =============================================================================
// MEMORY CACHE
// =============================================================================

type MemoryCache struct {
	mu        sync.RWMutex
	snapshots map[LoanID]Snapshot
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{snapshots: make(map[LoanID]Snapshot)}
}

func (c *MemoryCache) Get(_ context.Context, id LoanID) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snapshots[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *MemoryCache) Put(_ context.Context, snapshot Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snapshot.LoanID] = snapshot
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, id LoanID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, id)
	return nil
}
