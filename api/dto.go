/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the interest engine types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  The engine never rounds. Responses render amounts with 2 decimals
  (money()); rates and percentages keep full precision. Requests accept
  amounts as JSON strings or numbers.

DATES:
  Calendar dates are "YYYY-MM-DD" (interest.Date). Audit timestamps are RFC3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/factory"
	"github.com/warp/debt-ledger/interest"
	"github.com/warp/debt-ledger/lending"
)

// =============================================================================
// LOANS
// =============================================================================

// LoanDTO represents a loan in API responses.
type LoanDTO struct {
	ID                 string              `json:"id"`
	Principal          string              `json:"principal"`
	RemainingPrincipal string              `json:"remaining_principal"`
	AccruedInterest    string              `json:"accrued_interest"`
	StartDate          interest.Date       `json:"start_date"`
	DueDate            *interest.Date      `json:"due_date,omitempty"`
	PolicyID           string              `json:"policy_id,omitempty"`
	Policy             *factory.PolicyJSON `json:"policy,omitempty"`
	Status             string              `json:"status"`
	Version            int64               `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
}

// CreateLoanRequest is the body for POST /api/loans.
// Either an inline policy or a policy_id may be given; neither means interest-free.
type CreateLoanRequest struct {
	ID        string              `json:"id,omitempty"`
	Principal decimal.Decimal     `json:"principal"`
	StartDate interest.Date       `json:"start_date"`
	DueDate   *interest.Date      `json:"due_date,omitempty"`
	Policy    *factory.PolicyJSON `json:"policy,omitempty"`
	PolicyID  string              `json:"policy_id,omitempty"`
}

type CreateLoanResponse struct {
	Loan           LoanDTO           `json:"loan"`
	Classification ClassificationDTO `json:"classification"`
}

// =============================================================================
// INTEREST
// =============================================================================

// InterestDTO is a loan's interest position on as_of.
type InterestDTO struct {
	LoanID             string              `json:"loan_id"`
	AsOf               interest.Date       `json:"as_of"`
	AccrualStart       interest.Date       `json:"accrual_start"`
	EffectiveFrom      interest.Date       `json:"effective_from"`
	ComputedInterest   string              `json:"computed_interest"`
	DisplayInterest    string              `json:"display_interest"`
	RemainingPrincipal string              `json:"remaining_principal"`
	TotalDue           string              `json:"total_due"`
	Status             string              `json:"status"`
	Cached             bool                `json:"cached"`
	Breakdown          []AccrualSegmentDTO `json:"breakdown,omitempty"`
}

type AccrualSegmentDTO struct {
	Start       interest.Date `json:"start"`
	End         interest.Date `json:"end"`
	Days        int           `json:"days"`
	DaysInMonth int           `json:"days_in_month,omitempty"`
	Interest    string        `json:"interest"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRequestDTO is the body for POST /api/payments and /api/payments/preview.
// For POST /api/loans/{id}/payments the loan comes from the URL and loan_ids is ignored.
type PaymentRequestDTO struct {
	LoanIDs        []string        `json:"loan_ids"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentDate    *interest.Date  `json:"payment_date,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Note           string          `json:"note,omitempty"`
}

// AllocationDTO is one ledger entry.
type AllocationDTO struct {
	ID            string        `json:"id"`
	PaymentID     string        `json:"payment_id"`
	LoanID        string        `json:"loan_id"`
	PaymentDate   interest.Date `json:"payment_date"`
	PrincipalPaid string        `json:"principal_paid"`
	InterestPaid  string        `json:"interest_paid"`
	Total         string        `json:"total"`
	Sequence      int64         `json:"sequence,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type PositionDTO struct {
	LoanID          string `json:"loan_id"`
	InterestDue     string `json:"interest_due"`
	PrincipalBefore string `json:"principal_before"`
	InterestPaid    string `json:"interest_paid"`
	PrincipalPaid   string `json:"principal_paid"`
	PrincipalAfter  string `json:"principal_after"`
	CarriedInterest string `json:"carried_interest"`
	Status          string `json:"status"`
}

// PaymentResultDTO is returned by the payment and preview endpoints.
type PaymentResultDTO struct {
	PaymentID      string          `json:"payment_id"`
	Amount         string          `json:"amount"`
	PaymentDate    interest.Date   `json:"payment_date"`
	Strategy       string          `json:"strategy"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Allocations    []AllocationDTO `json:"allocations"`
	Positions      []PositionDTO   `json:"positions"`
	Unallocated    string          `json:"unallocated"`
	Preview        bool            `json:"preview"`
}

// =============================================================================
// POLICIES
// =============================================================================

// PolicyDTO wraps a stored template with its rate classification.
type PolicyDTO struct {
	factory.PolicyJSON
	Classification *ClassificationDTO `json:"classification,omitempty"`
}

type ClassificationDTO struct {
	AnnualizedRatePercent string `json:"annualized_rate_percent"`
	CeilingPercent        string `json:"ceiling_percent"`
	IsCompliant           bool   `json:"is_compliant"`
}

// =============================================================================
// SCENARIOS & MISC
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	ScenarioID string   `json:"scenario_id"`
	LoanIDs    []string `json:"loan_ids"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toLoanDTO(pf *factory.PolicyFactory, l interest.Loan) LoanDTO {
	dto := LoanDTO{
		ID:                 string(l.ID),
		Principal:          money(l.Principal),
		RemainingPrincipal: money(l.RemainingPrincipal),
		AccruedInterest:    money(l.AccruedInterest),
		StartDate:          l.StartDate,
		DueDate:            l.DueDate,
		PolicyID:           string(l.PolicyID),
		Status:             string(l.Status),
		Version:            l.Version,
		CreatedAt:          l.CreatedAt,
	}
	if l.Policy != nil {
		pj := pf.ToJSON(l.Policy)
		dto.Policy = &pj
	}
	return dto
}

func toClassificationDTO(c interest.Classification) ClassificationDTO {
	return ClassificationDTO{
		AnnualizedRatePercent: c.AnnualizedRatePercent.String(),
		CeilingPercent:        c.CeilingPercent.String(),
		IsCompliant:           c.IsCompliant,
	}
}

func toInterestDTO(q lending.InterestQuote) InterestDTO {
	dto := InterestDTO{
		LoanID:             string(q.LoanID),
		AsOf:               q.AsOf,
		AccrualStart:       q.AccrualStart,
		EffectiveFrom:      q.EffectiveFrom,
		ComputedInterest:   money(q.Computed),
		DisplayInterest:    money(q.Display),
		RemainingPrincipal: money(q.RemainingPrincipal),
		TotalDue:           money(q.TotalDue()),
		Status:             string(q.Status),
		Cached:             q.Cached,
	}
	for _, seg := range q.Breakdown {
		dto.Breakdown = append(dto.Breakdown, AccrualSegmentDTO{
			Start:       seg.Start,
			End:         seg.End,
			Days:        seg.Days,
			DaysInMonth: seg.DaysInMonth,
			Interest:    money(seg.Interest),
		})
	}
	return dto
}

func toAllocationDTO(a interest.PaymentAllocation) AllocationDTO {
	return AllocationDTO{
		ID:            string(a.ID),
		PaymentID:     string(a.Payment.ID),
		LoanID:        string(a.LoanID),
		PaymentDate:   a.Payment.PaymentDate,
		PrincipalPaid: money(a.PrincipalPaid),
		InterestPaid:  money(a.InterestPaid),
		Total:         money(a.Total()),
		Sequence:      a.Sequence,
		CreatedAt:     a.CreatedAt,
	}
}

func toPaymentResultDTO(res lending.PaymentResult) PaymentResultDTO {
	dto := PaymentResultDTO{
		PaymentID:      string(res.Payment.ID),
		Amount:         money(res.Payment.Amount),
		PaymentDate:    res.Payment.PaymentDate,
		Strategy:       res.Strategy.String(),
		IdempotencyKey: res.Payment.IdempotencyKey,
		Allocations:    make([]AllocationDTO, 0, len(res.Allocations)),
		Positions:      make([]PositionDTO, 0, len(res.Positions)),
		Unallocated:    money(res.Unallocated),
		Preview:        res.Preview,
	}
	for _, a := range res.Allocations {
		dto.Allocations = append(dto.Allocations, toAllocationDTO(a))
	}
	for _, p := range res.Positions {
		dto.Positions = append(dto.Positions, PositionDTO{
			LoanID:          string(p.LoanID),
			InterestDue:     money(p.InterestDue),
			PrincipalBefore: money(p.PrincipalBefore),
			InterestPaid:    money(p.InterestPaid),
			PrincipalPaid:   money(p.PrincipalPaid),
			PrincipalAfter:  money(p.PrincipalAfter),
			CarriedInterest: money(p.CarriedInterest),
			Status:          string(p.Status),
		})
	}
	return dto
}
