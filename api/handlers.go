/*
handlers.go - HTTP API handlers for the debt ledger

PURPOSE:
  Exposes the lending service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to lending.Service.

ENDPOINTS:
  Loans:
    GET    /api/loans                      List all loans
    POST   /api/loans                      Create loan (inline policy or policy_id)
    GET    /api/loans/{id}                 Get loan
    GET    /api/loans/{id}/interest        Interest quote (?as_of=YYYY-MM-DD&detail=true)
    GET    /api/loans/{id}/allocations     Allocation ledger
    POST   /api/loans/{id}/payments        Pay a single loan

  Payments:
    POST   /api/payments                   Pay one or more loans
    POST   /api/payments/preview           Same allocation, nothing persisted

  Policies:
    GET    /api/policies                   List templates
    POST   /api/policies                   Create or replace a template
    GET    /api/policies/{id}              Get template
    DELETE /api/policies/{id}              Delete template (loans keep their copy)
    POST   /api/policies/classify          Annualized rate vs legal ceiling

  Admin:
    POST   /api/admin/refresh-statuses     Re-derive OPEN/OVERDUE (?as_of=)

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with a status from statusFor:
  - 400: Validation errors, invalid input, closed loan
  - 404: Loan or policy not found
  - 409: Duplicate idempotency key, concurrent modification
  - 422: Inconsistent policy configuration
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - lending/service.go: Operations behind every endpoint
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/debt-ledger/factory"
	"github.com/warp/debt-ledger/interest"
	"github.com/warp/debt-ledger/lending"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service       *lending.Service
	PolicyFactory *factory.PolicyFactory
	Logger        *zap.Logger
	Metrics       *Metrics

	// Ping checks the backing store for /healthz. Optional.
	Ping func(ctx context.Context) error
}

// NewHandler creates a handler with a fresh metrics registry.
func NewHandler(svc *lending.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Service:       svc,
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger,
		Metrics:       NewMetrics(),
	}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns all loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Service.ListLoans(r.Context())
	if err != nil {
		h.respondError(w, "Failed to list loans", err)
		return
	}

	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(h.PolicyFactory, l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLoan returns a single loan.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := interest.LoanID(chi.URLParam(r, "id"))

	loan, err := h.Service.GetLoan(r.Context(), id)
	if err != nil {
		h.respondError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(h.PolicyFactory, loan))
}

// CreateLoan originates a loan.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	nl := lending.NewLoan{
		ID:        interest.LoanID(req.ID),
		Principal: req.Principal,
		StartDate: req.StartDate,
		DueDate:   req.DueDate,
		PolicyID:  interest.PolicyID(req.PolicyID),
	}
	if req.Policy != nil {
		policy, err := h.PolicyFactory.FromJSON(*req.Policy)
		if err != nil {
			h.respondError(w, "Invalid policy", err)
			return
		}
		nl.Policy = policy
	}

	created, err := h.Service.CreateLoan(r.Context(), nl)
	if err != nil {
		h.respondError(w, "Failed to create loan", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateLoanResponse{
		Loan:           toLoanDTO(h.PolicyFactory, created.Loan),
		Classification: toClassificationDTO(created.Classification),
	})
}

// GetInterest returns the interest quote for a loan.
// as_of defaults to today; detail=true adds the per-month breakdown.
func (h *Handler) GetInterest(w http.ResponseWriter, r *http.Request) {
	id := interest.LoanID(chi.URLParam(r, "id"))

	asOf, err := dateParam(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}
	detail := false
	if v := r.URL.Query().Get("detail"); v != "" {
		if detail, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid detail flag", err)
			return
		}
	}

	var q lending.InterestQuote
	if detail {
		q, err = h.Service.QuoteDetail(r.Context(), id, asOf)
	} else {
		q, err = h.Service.Quote(r.Context(), id, asOf)
	}
	if err != nil {
		h.respondError(w, "Failed to compute interest", err)
		return
	}

	h.Metrics.quoteServed(q.Cached)
	writeJSON(w, http.StatusOK, toInterestDTO(q))
}

// GetAllocations returns the loan's allocation ledger in replay order.
func (h *Handler) GetAllocations(w http.ResponseWriter, r *http.Request) {
	id := interest.LoanID(chi.URLParam(r, "id"))

	allocs, err := h.Service.Allocations(r.Context(), id)
	if err != nil {
		h.respondError(w, "Failed to get allocations", err)
		return
	}

	dtos := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		dtos[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// PayLoan applies a payment to the loan in the URL.
func (h *Handler) PayLoan(w http.ResponseWriter, r *http.Request) {
	var dto PaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	dto.LoanIDs = []string{chi.URLParam(r, "id")}
	h.applyPayment(w, r, dto, false)
}

// ApplyPayment applies a payment across the listed loans.
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var dto PaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	h.applyPayment(w, r, dto, false)
}

// PreviewPayment shows how a payment would be allocated.
func (h *Handler) PreviewPayment(w http.ResponseWriter, r *http.Request) {
	var dto PaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	h.applyPayment(w, r, dto, true)
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request, dto PaymentRequestDTO, preview bool) {
	if dto.IdempotencyKey == "" {
		dto.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	req, err := toPaymentRequest(dto)
	if err != nil {
		h.Metrics.paymentRejected()
		h.respondError(w, "Invalid payment", err)
		return
	}

	var res lending.PaymentResult
	if preview {
		res, err = h.Service.PreviewPayment(r.Context(), req)
	} else {
		res, err = h.Service.ApplyPayment(r.Context(), req)
	}
	if err != nil {
		h.Metrics.paymentRejected()
		h.respondError(w, "Failed to apply payment", err)
		return
	}

	h.Metrics.paymentApplied(res)
	status := http.StatusCreated
	if preview {
		status = http.StatusOK
	}
	writeJSON(w, status, toPaymentResultDTO(res))
}

func toPaymentRequest(dto PaymentRequestDTO) (lending.PaymentRequest, error) {
	req := lending.PaymentRequest{
		Amount:         dto.Amount,
		IdempotencyKey: dto.IdempotencyKey,
		Note:           dto.Note,
	}
	for _, id := range dto.LoanIDs {
		req.LoanIDs = append(req.LoanIDs, interest.LoanID(id))
	}
	if dto.PaymentDate != nil {
		req.PaymentDate = *dto.PaymentDate
	}
	if dto.Strategy != "" {
		s, err := interest.ParseStrategy(dto.Strategy)
		if err != nil {
			return lending.PaymentRequest{}, fmt.Errorf("%w: %v", interest.ErrInvalidPayment, err)
		}
		req.Strategy = &s
	}
	return req, nil
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all policy templates.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Service.ListPolicyTemplates(r.Context())
	if err != nil {
		h.respondError(w, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, 0, len(policies))
	for i := range policies {
		dtos = append(dtos, h.policyDTO(&policies[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePolicy stores a policy template from its JSON document.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	policy, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		h.respondError(w, "Invalid policy", err)
		return
	}
	classification, err := h.Service.SavePolicyTemplate(r.Context(), policy)
	if err != nil {
		h.respondError(w, "Failed to save policy", err)
		return
	}

	c := toClassificationDTO(classification)
	writeJSON(w, http.StatusCreated, PolicyDTO{PolicyJSON: h.PolicyFactory.ToJSON(policy), Classification: &c})
}

// GetPolicy returns a single policy template.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := interest.PolicyID(chi.URLParam(r, "id"))

	policy, err := h.Service.GetPolicyTemplate(r.Context(), id)
	if err != nil {
		h.respondError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.policyDTO(policy))
}

// DeletePolicy removes a policy template.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := interest.PolicyID(chi.URLParam(r, "id"))

	if err := h.Service.DeletePolicyTemplate(r.Context(), id); err != nil {
		h.respondError(w, "Failed to delete policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClassifyPolicy reports a policy's annualized rate against the legal
// ceiling without storing it.
func (h *Handler) ClassifyPolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	policy, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		h.respondError(w, "Invalid policy", err)
		return
	}
	classification, err := h.Service.ClassifyPolicy(policy)
	if err != nil {
		h.respondError(w, "Failed to classify policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassificationDTO(classification))
}

func (h *Handler) policyDTO(p *interest.Policy) PolicyDTO {
	dto := PolicyDTO{PolicyJSON: h.PolicyFactory.ToJSON(p)}
	if c, err := h.Service.ClassifyPolicy(p); err == nil {
		cd := toClassificationDTO(c)
		dto.Classification = &cd
	}
	return dto
}

// =============================================================================
// ADMIN & HEALTH
// =============================================================================

// RefreshStatuses runs the status sweep on demand.
func (h *Handler) RefreshStatuses(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	n, err := h.Service.RefreshStatuses(r.Context(), asOf)
	h.Metrics.statusesChanged(n)
	if err != nil {
		h.respondError(w, "Failed to refresh statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respondError maps err to a status and logs server-side failures.
func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

// statusFor maps domain errors to HTTP status codes.
// Duplicate keys are client errors too, so 409 is checked first.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interest.ErrDuplicateIdempotencyKey), interest.IsRetryable(err):
		return http.StatusConflict
	case interest.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, interest.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case interest.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func dateParam(r *http.Request, name string) (interest.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return interest.Date{}, nil
	}
	return interest.ParseDate(v)
}
