package lending

import (
	"sort"
	"sync"

	"github.com/warp/debt-ledger/interest"
)

// loanLocks serializes payment application per loan.
// Multi-loan payments take their locks in sorted ID order.
type loanLocks struct {
	mu    sync.Mutex
	locks map[interest.LoanID]*loanLock
}

type loanLock struct {
	mu   sync.Mutex
	refs int
}

func newLoanLocks() *loanLocks {
	return &loanLocks{locks: make(map[interest.LoanID]*loanLock)}
}

// Lock acquires every id and returns the matching unlock function.
// ids must not contain duplicates.
func (l *loanLocks) Lock(ids []interest.LoanID) func() {
	sorted := make([]interest.LoanID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	held := make([]*loanLock, 0, len(sorted))
	for _, id := range sorted {
		lk := l.acquire(id)
		lk.mu.Lock()
		held = append(held, lk)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(sorted[i])
		}
	}
}

func (l *loanLocks) acquire(id interest.LoanID) *loanLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &loanLock{}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

func (l *loanLocks) release(id interest.LoanID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk := l.locks[id]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports how many ids currently have a lock entry.
func (l *loanLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
