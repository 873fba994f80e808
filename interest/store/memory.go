// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/debt-ledger/interest"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	loans       map[interest.LoanID]interest.Loan
	allocations map[interest.LoanID][]interest.PaymentAllocation
	idempotency map[string]bool
	policies    map[interest.PolicyID]interest.Policy
	sequence    int64
}

func NewMemory() *Memory {
	return &Memory{
		loans:       make(map[interest.LoanID]interest.Loan),
		allocations: make(map[interest.LoanID][]interest.PaymentAllocation),
		idempotency: make(map[string]bool),
		policies:    make(map[interest.PolicyID]interest.Policy),
	}
}

func (m *Memory) SaveLoan(_ context.Context, loan interest.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLoanLocked(loan)
}

func (m *Memory) saveLoanLocked(loan interest.Loan) error {
	existing, ok := m.loans[loan.ID]
	switch {
	case !ok && loan.Version != 1:
		return interest.ErrConcurrentModification
	case ok && existing.Version != loan.Version-1:
		return interest.ErrConcurrentModification
	}
	if loan.CreatedAt.IsZero() {
		if ok {
			loan.CreatedAt = existing.CreatedAt
		} else {
			loan.CreatedAt = time.Now().UTC()
		}
	}
	m.loans[loan.ID] = loan
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id interest.LoanID) (interest.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLoanLocked(id)
}

func (m *Memory) getLoanLocked(id interest.LoanID) (interest.Loan, error) {
	loan, ok := m.loans[id]
	if !ok {
		return interest.Loan{}, interest.ErrLoanNotFound
	}
	return loan, nil
}

func (m *Memory) ListLoans(_ context.Context) ([]interest.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLoansLocked(), nil
}

func (m *Memory) listLoansLocked() []interest.Loan {
	result := make([]interest.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// AppendPayment adds a payment's allocations atomically. Append-only.
func (m *Memory) AppendPayment(_ context.Context, payment interest.Payment, allocs []interest.PaymentAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(payment, allocs)
}

func (m *Memory) appendLocked(payment interest.Payment, allocs []interest.PaymentAllocation) error {
	// Check idempotency and loan existence first (atomic check)
	if payment.IdempotencyKey != "" && m.idempotency[payment.IdempotencyKey] {
		return interest.ErrDuplicateIdempotencyKey
	}
	for _, a := range allocs {
		if _, ok := m.loans[a.LoanID]; !ok {
			return interest.ErrLoanNotFound
		}
	}

	now := time.Now().UTC()
	for _, a := range allocs {
		m.sequence++
		a.Sequence = m.sequence
		a.Payment = payment
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}

		txs := m.allocations[a.LoanID]
		// Binary search for insertion point keeps the slice ordered by payment date
		i := sort.Search(len(txs), func(i int) bool {
			return txs[i].Payment.PaymentDate.After(a.Payment.PaymentDate)
		})
		txs = append(txs, interest.PaymentAllocation{})
		copy(txs[i+1:], txs[i:])
		txs[i] = a
		m.allocations[a.LoanID] = txs
	}

	if payment.IdempotencyKey != "" {
		m.idempotency[payment.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Allocations(_ context.Context, loanID interest.LoanID) ([]interest.PaymentAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocationsLocked(loanID), nil
}

func (m *Memory) allocationsLocked(loanID interest.LoanID) []interest.PaymentAllocation {
	result := make([]interest.PaymentAllocation, len(m.allocations[loanID]))
	copy(result, m.allocations[loanID])
	return result
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// POLICY TEMPLATES
// =============================================================================

func (m *Memory) SavePolicy(_ context.Context, policy interest.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.ID] = policy
	return nil
}

func (m *Memory) GetPolicy(_ context.Context, id interest.PolicyID) (*interest.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, interest.ErrPolicyNotFound
	}
	return &p, nil
}

func (m *Memory) ListPolicies(_ context.Context) ([]interest.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]interest.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) DeletePolicy(_ context.Context, id interest.PolicyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[id]; !ok {
		return interest.ErrPolicyNotFound
	}
	delete(m.policies, id)
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(interest.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	loans       map[interest.LoanID]interest.Loan
	allocations map[interest.LoanID][]interest.PaymentAllocation
	idempotency map[string]bool
	sequence    int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	loans := make(map[interest.LoanID]interest.Loan, len(tm.loans))
	for k, v := range tm.loans {
		loans[k] = v
	}
	allocs := make(map[interest.LoanID][]interest.PaymentAllocation, len(tm.allocations))
	for k, v := range tm.allocations {
		allocs[k] = append([]interest.PaymentAllocation{}, v...)
	}
	idemp := make(map[string]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idemp[k] = v
	}
	return memorySnapshot{loans: loans, allocations: allocs, idempotency: idemp, sequence: tm.sequence}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.loans = s.loans
	tm.allocations = s.allocations
	tm.idempotency = s.idempotency
	tm.sequence = s.sequence
}

// txMemoryView runs with the parent's lock already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) SaveLoan(_ context.Context, loan interest.Loan) error {
	return tv.parent.saveLoanLocked(loan)
}

func (tv *txMemoryView) GetLoan(_ context.Context, id interest.LoanID) (interest.Loan, error) {
	return tv.parent.getLoanLocked(id)
}

func (tv *txMemoryView) ListLoans(_ context.Context) ([]interest.Loan, error) {
	return tv.parent.listLoansLocked(), nil
}

func (tv *txMemoryView) AppendPayment(_ context.Context, payment interest.Payment, allocs []interest.PaymentAllocation) error {
	return tv.parent.appendLocked(payment, allocs)
}

func (tv *txMemoryView) Allocations(_ context.Context, loanID interest.LoanID) ([]interest.PaymentAllocation, error) {
	return tv.parent.allocationsLocked(loanID), nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
