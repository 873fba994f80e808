package lending

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/debt-ledger/interest"
)

func TestLoanLocks_ReleaseCleansUp(t *testing.T) {
	locks := newLoanLocks()

	unlock := locks.Lock([]interest.LoanID{"b", "a"})
	assert.Equal(t, 2, locks.size())
	unlock()
	assert.Equal(t, 0, locks.size())
}

func TestLoanLocks_OverlappingSetsDoNotDeadlock(t *testing.T) {
	locks := newLoanLocks()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.Lock([]interest.LoanID{"a", "b"})
			counter++
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locks.Lock([]interest.LoanID{"b", "a"})
			counter++
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock ordering deadlocked")
	}
	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, locks.size())
}
