/*
handlers_test.go - HTTP tests for the debt ledger API

Tests run through the full chi router against the in-memory transactional
store with a fixed clock (2024-03-01).
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-ledger/interest"
	"github.com/warp/debt-ledger/interest/store"
	"github.com/warp/debt-ledger/lending"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestHandler(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	svc := lending.NewService(store.NewTxMemory(),
		lending.WithClock(interest.FixedClock{Day: interest.NewDate(2024, 3, 1)}),
		lending.WithLogger(zaptest.NewLogger(t)),
	)
	h := NewHandler(svc, zaptest.NewLogger(t))
	return h, NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createMonthlyLoan creates a loan with an inline MONTHLY policy.
func createMonthlyLoan(t *testing.T, router http.Handler, id, principal, rate, start string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/loans", map[string]any{
		"id":         id,
		"principal":  principal,
		"start_date": start,
		"policy":     map[string]any{"mode": "MONTHLY", "monthly_rate": rate},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// LOANS
// =============================================================================

func TestCreateLoan(t *testing.T) {
	// GIVEN: A 3%/month inline policy
	// WHEN: Creating a loan
	// THEN: The loan is OPEN at version 1 and flagged above the 15% ceiling

	_, router := newTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/loans", map[string]any{
		"id":         "loan-1",
		"principal":  10000,
		"start_date": "2024-01-01",
		"due_date":   "2024-12-31",
		"policy":     map[string]any{"mode": "monthly", "monthly_rate": "0.03"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[CreateLoanResponse](t, rec)
	assert.Equal(t, "loan-1", resp.Loan.ID)
	assert.Equal(t, "10000.00", resp.Loan.Principal)
	assert.Equal(t, "10000.00", resp.Loan.RemainingPrincipal)
	assert.Equal(t, "OPEN", resp.Loan.Status)
	assert.Equal(t, int64(1), resp.Loan.Version)
	require.NotNil(t, resp.Loan.Policy)
	assert.Equal(t, "MONTHLY", resp.Loan.Policy.Mode)
	assert.Equal(t, "36", resp.Classification.AnnualizedRatePercent)
	assert.False(t, resp.Classification.IsCompliant)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-12-31", decode[LoanDTO](t, rec).DueDate.String())

	rec = do(t, router, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LoanDTO](t, rec), 1)
}

func TestCreateLoan_Errors(t *testing.T) {
	_, router := newTestHandler(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"zero principal", map[string]any{"principal": "0", "start_date": "2024-01-01"}, http.StatusBadRequest},
		{"bad date", map[string]any{"principal": "10", "start_date": "01/01/2024"}, http.StatusBadRequest},
		{"mode mismatch", map[string]any{
			"principal": "10", "start_date": "2024-01-01",
			"policy": map[string]any{"mode": "MONTHLY", "daily_rate": "0.001"},
		}, http.StatusUnprocessableEntity},
		{"unknown template", map[string]any{"principal": "10", "start_date": "2024-01-01", "policy_id": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/loans", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	_, router := newTestHandler(t)

	for _, path := range []string{"/api/loans/ghost", "/api/loans/ghost/interest", "/api/loans/ghost/allocations"} {
		rec := do(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// =============================================================================
// INTEREST
// =============================================================================

func TestGetInterest(t *testing.T) {
	// GIVEN: 10,000 at 3%/month from 2024-01-01
	// WHEN: Quoting on 2024-02-01, twice
	// THEN: 300.00 both times, the second from the snapshot cache

	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "10000", "0.03", "2024-01-01")

	rec := do(t, router, http.MethodGet, "/api/loans/loan-1/interest?as_of=2024-02-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[InterestDTO](t, rec)
	assert.Equal(t, "300.00", q.ComputedInterest)
	assert.Equal(t, "300.00", q.DisplayInterest)
	assert.Equal(t, "10300.00", q.TotalDue)
	assert.Equal(t, "2024-01-01", q.AccrualStart.String())
	assert.False(t, q.Cached)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/interest?as_of=2024-02-01", nil)
	assert.True(t, decode[InterestDTO](t, rec).Cached)

	// as_of defaults to the clock's 2024-03-01
	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/interest?detail=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q = decode[InterestDTO](t, rec)
	assert.Equal(t, "2024-03-01", q.AsOf.String())
	assert.Equal(t, "600.00", q.ComputedInterest)
	require.Len(t, q.Breakdown, 2)
	assert.Equal(t, 29, q.Breakdown[1].Days)
}

func TestGetInterest_BadParams(t *testing.T) {
	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "10000", "0.03", "2024-01-01")

	rec := do(t, router, http.MethodGet, "/api/loans/loan-1/interest?as_of=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/interest?detail=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayLoan_InterestFirst(t *testing.T) {
	// GIVEN: 500 principal with 100 interest due on 2024-02-01 (20%/month)
	// WHEN: Paying 150
	// THEN: 100 covers interest, 50 goes to principal

	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "500", "0.2", "2024-01-01")

	rec := do(t, router, http.MethodPost, "/api/loans/loan-1/payments", map[string]any{
		"amount":       "150",
		"payment_date": "2024-02-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[PaymentResultDTO](t, rec)
	assert.Equal(t, "INTEREST_FIRST", res.Strategy)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, "100.00", res.Allocations[0].InterestPaid)
	assert.Equal(t, "50.00", res.Allocations[0].PrincipalPaid)
	assert.Equal(t, "450.00", res.Positions[0].PrincipalAfter)
	assert.Equal(t, "0.00", res.Unallocated)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/allocations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	allocs := decode[[]AllocationDTO](t, rec)
	require.Len(t, allocs, 1)
	assert.Equal(t, res.PaymentID, allocs[0].PaymentID)
	assert.Equal(t, "150.00", allocs[0].Total)
}

func TestApplyPayment_IdempotencyHeader(t *testing.T) {
	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "1000", "0.01", "2024-01-01")

	send := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]any{"loan_ids": []string{"loan-1"}, "amount": "10"})
		req := httptest.NewRequest(http.MethodPost, "/api/payments", bytes.NewReader(body))
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, "retry-me", decode[PaymentResultDTO](t, first).IdempotencyKey)

	second := send()
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestApplyPayment_MultiLoanFIFO(t *testing.T) {
	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "newer", "1000", "0", "2024-02-01")
	createMonthlyLoan(t, router, "older", "200", "0", "2023-01-01")

	rec := do(t, router, http.MethodPost, "/api/payments", map[string]any{
		"loan_ids":     []string{"newer", "older"},
		"amount":       "500",
		"payment_date": "2024-02-15",
		"strategy":     "fifo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[PaymentResultDTO](t, rec)
	assert.Equal(t, "FIFO", res.Strategy)
	require.Len(t, res.Positions, 2)
	assert.Equal(t, "older", res.Positions[0].LoanID)
	assert.Equal(t, "CLOSED", res.Positions[0].Status)
	assert.Equal(t, "300.00", res.Positions[1].PrincipalPaid)

	// closed loans reject further payments
	rec = do(t, router, http.MethodPost, "/api/loans/older/payments", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "closed")
}

func TestApplyPayment_Validation(t *testing.T) {
	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "1000", "0.01", "2024-01-01")

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"invalid json", "[", http.StatusBadRequest},
		{"no loans", map[string]any{"amount": "10"}, http.StatusBadRequest},
		{"negative", map[string]any{"loan_ids": []string{"loan-1"}, "amount": "-1"}, http.StatusBadRequest},
		{"bad strategy", map[string]any{"loan_ids": []string{"loan-1"}, "amount": "1", "strategy": "LIFO"}, http.StatusBadRequest},
		{"unknown loan", map[string]any{"loan_ids": []string{"ghost"}, "amount": "1"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/payments", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestPreviewPayment_NothingPersisted(t *testing.T) {
	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "10000", "0.03", "2024-01-01")

	rec := do(t, router, http.MethodPost, "/api/payments/preview", map[string]any{
		"loan_ids":     []string{"loan-1"},
		"amount":       "1000",
		"payment_date": "2024-02-01",
		"strategy":     "PRINCIPAL_FIRST",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[PaymentResultDTO](t, rec)
	assert.True(t, res.Preview)
	assert.Equal(t, "1000.00", res.Positions[0].PrincipalPaid)
	assert.Equal(t, "300.00", res.Positions[0].CarriedInterest)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/allocations", nil)
	assert.Empty(t, decode[[]AllocationDTO](t, rec))
}

// =============================================================================
// POLICIES
// =============================================================================

func TestPolicies(t *testing.T) {
	_, router := newTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/policies", map[string]any{
		"id": "consumer", "name": "Consumer", "mode": "MONTHLY", "monthly_rate": "0.0125",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[PolicyDTO](t, rec)
	require.NotNil(t, created.Classification)
	assert.True(t, created.Classification.IsCompliant)
	assert.Equal(t, 1, created.AnchorDay)

	rec = do(t, router, http.MethodGet, "/api/policies/consumer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Consumer", decode[PolicyDTO](t, rec).Name)

	rec = do(t, router, http.MethodGet, "/api/policies", nil)
	assert.Len(t, decode[[]PolicyDTO](t, rec), 1)

	rec = do(t, router, http.MethodPost, "/api/loans", map[string]any{
		"id": "from-template", "principal": "1000", "start_date": "2024-01-01", "policy_id": "consumer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "consumer", decode[CreateLoanResponse](t, rec).Loan.PolicyID)

	rec = do(t, router, http.MethodGet, "/api/policies/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/policies/consumer", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/policies/consumer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/loans/from-template", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, decode[LoanDTO](t, rec).Policy, "loan keeps its policy copy")

	rec = do(t, router, http.MethodPost, "/api/policies", map[string]any{"mode": "DAILY", "daily_rate": "0.001"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "template id required")
}

func TestClassifyPolicy(t *testing.T) {
	_, router := newTestHandler(t)

	tests := []struct {
		rate      string
		percent   string
		compliant bool
	}{
		{"0.0125", "15", true},
		{"0.0126", "15.12", false},
	}
	for _, tt := range tests {
		rec := do(t, router, http.MethodPost, "/api/policies/classify", map[string]any{"mode": "MONTHLY", "monthly_rate": tt.rate})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		c := decode[ClassificationDTO](t, rec)
		assert.Equal(t, tt.percent, c.AnnualizedRatePercent)
		assert.Equal(t, tt.compliant, c.IsCompliant)
	}

	rec := do(t, router, http.MethodPost, "/api/policies/classify", map[string]any{"mode": "WEEKLY"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// ADMIN, HEALTH & METRICS
// =============================================================================

func TestRefreshStatuses(t *testing.T) {
	_, router := newTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/loans", map[string]any{
		"id": "late", "principal": "100", "start_date": "2024-01-01", "due_date": "2024-02-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/admin/refresh-statuses?as_of=2024-01-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[map[string]int](t, rec)["updated"])

	rec = do(t, router, http.MethodPost, "/api/admin/refresh-statuses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["updated"])

	rec = do(t, router, http.MethodGet, "/api/loans/late", nil)
	assert.Equal(t, "OVERDUE", decode[LoanDTO](t, rec).Status)
}

func TestHealth(t *testing.T) {
	h, router := newTestHandler(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.Ping = func(context.Context) error { return errors.New("database is locked") }
	rec = do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database is locked", decode[HealthResponse](t, rec).Error)
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "1000", "0.01", "2024-01-01")
	rec := do(t, router, http.MethodPost, "/api/loans/loan-1/payments", map[string]any{"amount": "10"})
	require.Equal(t, http.StatusCreated, rec.Code)
	do(t, router, http.MethodGet, "/api/loans/loan-1/interest", nil)

	rec = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ledger_payments_total{outcome="applied"} 1`)
	assert.Contains(t, body, `ledger_interest_quotes_total{cache="miss"} 1`)
	assert.Contains(t, body, `route="/api/loans/{id}/payments"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{interest.ErrDuplicateIdempotencyKey, http.StatusConflict},
		{fmt.Errorf("save: %w", interest.ErrConcurrentModification), http.StatusConflict},
		{interest.ErrLoanNotFound, http.StatusNotFound},
		{interest.ErrPolicyNotFound, http.StatusNotFound},
		{&interest.ConfigurationError{Field: "rate", Reason: "x"}, http.StatusUnprocessableEntity},
		{&interest.LoanClosedError{LoanID: "l"}, http.StatusBadRequest},
		{interest.ErrInvalidPayment, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestMoney(t *testing.T) {
	_, router := newTestHandler(t)
	createMonthlyLoan(t, router, "loan-1", "1000.005", "0.01", "2024-01-01")

	rec := do(t, router, http.MethodGet, "/api/loans/loan-1", nil)
	assert.True(t, strings.HasPrefix(decode[LoanDTO](t, rec).Principal, "1000.0"))
}
