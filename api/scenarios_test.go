package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-ledger/interest"
)

func TestListScenarios(t *testing.T) {
	_, router := newTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	assert.Len(t, list, len(scenarioLoaders))
	for _, s := range list {
		assert.Contains(t, scenarioLoaders, s.ID)
	}
}

func TestLoadScenario_AllLoad(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			_, router := newTestHandler(t)
			rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[LoadScenarioResponse](t, rec).LoanIDs)
		})
	}
}

func TestLoadScenario_MonthlyRestart(t *testing.T) {
	// GIVEN: The monthly-restart scenario (paid 1,300 on 2024-02-01)
	// WHEN: Quoting on 2024-03-01
	// THEN: February accrues on 9,000 only

	_, router := newTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "monthly-restart"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/loans/monthly-restart-1/interest?as_of=2024-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[InterestDTO](t, rec)
	assert.Equal(t, "270.00", q.ComputedInterest)
	assert.Equal(t, "9000.00", q.RemainingPrincipal)

	// loading twice collides on loan ids
	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "monthly-restart"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadScenario_DailyPayday(t *testing.T) {
	_, router := newTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "daily-payday"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/loans/daily-payday-1/interest?as_of=2024-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "150.00", decode[InterestDTO](t, rec).ComputedInterest)
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, router := newTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestStatusScheduler_SweepsOnStart(t *testing.T) {
	h, router := newTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/loans", map[string]any{
		"id": "late", "principal": "100", "start_date": "2024-01-01", "due_date": "2024-02-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	s := NewStatusScheduler(h, time.Hour)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		loan, err := h.Service.GetLoan(context.Background(), "late")
		return err == nil && loan.Status == interest.StatusOverdue
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatusScheduler_Disabled(t *testing.T) {
	h, _ := newTestHandler(t)
	s := NewStatusScheduler(h, 0)
	s.Start()
	assert.Nil(t, s.ticker)
	s.Stop()
}
