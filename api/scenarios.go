/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the ledger with loans and
	payments demonstrating specific engine behaviour.

AVAILABLE SCENARIOS:

	monthly-restart:  3%/month loan, one payment; the interest clock restarts
	daily-payday:     Short DAILY loan with a due date
	multi-loan-fifo:  Two loans paid by one FIFO payment
	grace-period:     MONTHLY policy with 10 grace days
	over-ceiling:     DAILY rate above the legal ceiling (flagged, still usable)

HOW SCENARIOS WORK:
 1. Create policy templates via the factory (where the scenario uses one)
 2. Create loans with fixed ids prefixed by the scenario id
 3. Optionally apply payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "monthly-restart"}

NOTE:
	Scenarios do not reset the store. Loading one twice fails because its
	loan ids already exist.

SEE ALSO:
  - handlers.go: Loan and payment handlers
  - factory/policy.go: Policy JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/interest"
	"github.com/warp/debt-ledger/lending"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "monthly-restart",
		Name:        "Monthly Clock Restart",
		Description: "10,000 at 3%/month from 2024-01-01, paid 1,300 on 2024-02-01",
	},
	{
		ID:          "daily-payday",
		Name:        "Daily Payday Loan",
		Description: "10,000 at 0.05%/day, due after 30 days",
	},
	{
		ID:          "multi-loan-fifo",
		Name:        "Multi-Loan FIFO",
		Description: "Two loans, one payment applied oldest first",
	},
	{
		ID:          "grace-period",
		Name:        "Grace Period",
		Description: "2%/month template with 10 grace days",
	},
	{
		ID:          "over-ceiling",
		Name:        "Over Legal Ceiling",
		Description: "0.1%/day (36.5% a year) loan flagged as non-compliant",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) ([]string, error)

var scenarioLoaders = map[string]scenarioLoader{
	"monthly-restart": loadMonthlyRestartScenario,
	"daily-payday":    loadDailyPaydayScenario,
	"multi-loan-fifo": loadMultiLoanFIFOScenario,
	"grace-period":    loadGracePeriodScenario,
	"over-ceiling":    loadOverCeilingScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ids, err := load(r.Context(), h)
	if err != nil {
		h.respondError(w, "Failed to load scenario", err)
		return
	}

	h.Logger.Info("scenario loaded", zap.String("scenario_id", req.ScenarioID), zap.Strings("loan_ids", ids))
	writeJSON(w, http.StatusCreated, LoadScenarioResponse{ScenarioID: req.ScenarioID, LoanIDs: ids})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadMonthlyRestartScenario(ctx context.Context, h *Handler) ([]string, error) {
	policy, err := h.PolicyFactory.ParsePolicy(`{"id":"monthly-3","name":"3% monthly","mode":"MONTHLY","monthly_rate":"0.03"}`)
	if err != nil {
		return nil, err
	}
	id, err := scenarioLoan(ctx, h, "monthly-restart-1", "10000", "2024-01-01", "", policy)
	if err != nil {
		return nil, err
	}
	if err := scenarioPayment(ctx, h, "1300", "2024-02-01", nil, id); err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func loadDailyPaydayScenario(ctx context.Context, h *Handler) ([]string, error) {
	policy, err := h.PolicyFactory.ParsePolicy(`{"id":"daily-5bp","name":"0.05% daily","mode":"DAILY","daily_rate":"0.0005"}`)
	if err != nil {
		return nil, err
	}
	id, err := scenarioLoan(ctx, h, "daily-payday-1", "10000", "2024-01-01", "2024-01-31", policy)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func loadMultiLoanFIFOScenario(ctx context.Context, h *Handler) ([]string, error) {
	older, err := h.PolicyFactory.ParsePolicy(`{"mode":"MONTHLY","monthly_rate":"0.01"}`)
	if err != nil {
		return nil, err
	}
	newer, err := h.PolicyFactory.ParsePolicy(`{"mode":"MONTHLY","monthly_rate":"0.015"}`)
	if err != nil {
		return nil, err
	}

	a, err := scenarioLoan(ctx, h, "multi-loan-fifo-older", "3000", "2023-06-01", "", older)
	if err != nil {
		return nil, err
	}
	b, err := scenarioLoan(ctx, h, "multi-loan-fifo-newer", "5000", "2024-01-01", "", newer)
	if err != nil {
		return nil, err
	}

	fifo := interest.StrategyFIFO
	if err := scenarioPayment(ctx, h, "3500", "2024-03-01", &fifo, b, a); err != nil {
		return nil, err
	}
	return []string{a, b}, nil
}

func loadGracePeriodScenario(ctx context.Context, h *Handler) ([]string, error) {
	policy, err := h.PolicyFactory.ParsePolicy(`{"id":"grace-2","name":"2% monthly, 10 grace days","mode":"MONTHLY","monthly_rate":"0.02","grace_days":10}`)
	if err != nil {
		return nil, err
	}
	if _, err := h.Service.SavePolicyTemplate(ctx, policy); err != nil {
		return nil, err
	}

	created, err := h.Service.CreateLoan(ctx, lending.NewLoan{
		ID:        "grace-period-1",
		Principal: decimal.NewFromInt(2500),
		StartDate: mustDate("2024-04-01"),
		PolicyID:  policy.ID,
	})
	if err != nil {
		return nil, err
	}
	return []string{string(created.Loan.ID)}, nil
}

func loadOverCeilingScenario(ctx context.Context, h *Handler) ([]string, error) {
	policy, err := h.PolicyFactory.ParsePolicy(`{"id":"daily-10bp","name":"0.1% daily","mode":"DAILY","daily_rate":"0.001"}`)
	if err != nil {
		return nil, err
	}
	id, err := scenarioLoan(ctx, h, "over-ceiling-1", "800", "2024-05-01", "2024-06-01", policy)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scenarioLoan(ctx context.Context, h *Handler, id, principal, start, due string, policy *interest.Policy) (string, error) {
	nl := lending.NewLoan{
		ID:        interest.LoanID(id),
		Principal: decimal.RequireFromString(principal),
		StartDate: mustDate(start),
		Policy:    policy,
	}
	if due != "" {
		d := mustDate(due)
		nl.DueDate = &d
	}
	created, err := h.Service.CreateLoan(ctx, nl)
	if err != nil {
		return "", err
	}
	return string(created.Loan.ID), nil
}

func scenarioPayment(ctx context.Context, h *Handler, amount, date string, strategy *interest.Strategy, ids ...string) error {
	req := lending.PaymentRequest{
		Amount:      decimal.RequireFromString(amount),
		PaymentDate: mustDate(date),
		Strategy:    strategy,
		Note:        "scenario",
	}
	for _, id := range ids {
		req.LoanIDs = append(req.LoanIDs, interest.LoanID(id))
	}
	res, err := h.Service.ApplyPayment(ctx, req)
	if err != nil {
		return err
	}
	h.Metrics.paymentApplied(res)
	return nil
}

func mustDate(s string) interest.Date {
	d, err := interest.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
