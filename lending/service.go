/*
Package lending orchestrates the interest engine over a persistent ledger.

PURPOSE:
  The interest package is pure: it computes from (loan, allocations, today).
  This package supplies the state around it. It loads loans and their
  allocation history, injects "today" from a Clock, serializes payments per
  loan and persists the result atomically.

PAYMENT FLOW (ApplyPayment):
  1. Validate the request (amount > 0, at least one loan, no duplicates)
  2. Reject a reused idempotency key early
  3. Lock the touched loans in sorted ID order
  4. Inside TxStore.WithTx:
     a. Load each loan and its allocations; CLOSED loans are rejected
     b. interest due = carried interest + interest replayed since the restart
     c. Allocate(amount, targets, strategy)
     d. AppendPayment(payment, allocations)
     e. SaveLoan with Version+1: principal reduced, unpaid interest carried,
        status derived from the new balances
  5. Invalidate the snapshot cache of every touched loan

QUOTES:
  Quote serves Computed/Display from the snapshot cache when the snapshot
  matches the loan's current Version and the requested day. Cache errors
  are logged and never fail a quote.

SEE ALSO:
  - interest/replay.go: Replayer
  - interest/allocation.go: Allocate
  - interest/cache.go: SnapshotCache
*/
package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/interest"
	"go.uber.org/zap"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store    Store
	cache    interest.SnapshotCache
	replayer interest.Replayer
	checker  interest.LegalRateChecker
	strategy interest.Strategy
	clock    interest.Clock
	logger   *zap.Logger
	locks    *loanLocks
	newID    func() string
}

type Option func(*Service)

// WithCache replaces the default in-process snapshot cache.
func WithCache(cache interest.SnapshotCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithGraceMode(mode interest.GraceMode) Option {
	return func(s *Service) { s.replayer.Grace = mode }
}

func WithStrategy(strategy interest.Strategy) Option {
	return func(s *Service) { s.strategy = strategy }
}

func WithLegalCeiling(percent decimal.Decimal) Option {
	return func(s *Service) { s.checker.CeilingPercent = percent }
}

func WithClock(clock interest.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator overrides UUID generation for loans, payments and allocations.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cache:    interest.NewMemoryCache(),
		strategy: interest.StrategyInterestFirst,
		clock:    interest.SystemClock{Location: time.UTC},
		logger:   zap.NewNop(),
		locks:    newLoanLocks(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the service clock's current date.
func (s *Service) Today() interest.Date {
	return s.clock.Today()
}

func (s *Service) DefaultStrategy() interest.Strategy {
	return s.strategy
}

// =============================================================================
// LOANS
// =============================================================================

// CreateLoan validates and persists a new loan at Version 1.
func (s *Service) CreateLoan(ctx context.Context, req NewLoan) (CreatedLoan, error) {
	if !req.Principal.IsPositive() {
		return CreatedLoan{}, fmt.Errorf("%w: principal must be positive, got %s", interest.ErrInvalidLoan, req.Principal)
	}
	if req.StartDate.IsZero() {
		return CreatedLoan{}, fmt.Errorf("%w: start date is required", interest.ErrInvalidLoan)
	}
	if req.DueDate != nil && req.DueDate.Before(req.StartDate) {
		return CreatedLoan{}, fmt.Errorf("%w: due date %s is before start date %s", interest.ErrInvalidLoan, req.DueDate, req.StartDate)
	}

	policy, err := s.resolvePolicy(ctx, req)
	if err != nil {
		return CreatedLoan{}, err
	}
	classification, err := s.checker.Classify(policy)
	if err != nil {
		return CreatedLoan{}, err
	}

	id := req.ID
	if id == "" {
		id = interest.LoanID(s.newID())
	}
	loan := interest.NewLoan(id, req.Principal, req.StartDate, policy)
	loan.DueDate = req.DueDate
	loan.CreatedAt = time.Now().UTC()

	if err := s.store.SaveLoan(ctx, loan); err != nil {
		if errors.Is(err, interest.ErrConcurrentModification) {
			return CreatedLoan{}, fmt.Errorf("%w: loan %s already exists", interest.ErrInvalidLoan, id)
		}
		return CreatedLoan{}, fmt.Errorf("save loan: %w", err)
	}

	s.logger.Info("loan created",
		zap.String("loan_id", string(loan.ID)),
		zap.String("principal", loan.Principal.String()),
		zap.String("mode", string(policy.Mode())),
		zap.Bool("rate_compliant", classification.IsCompliant),
	)
	if !classification.IsCompliant {
		s.logger.Warn("loan rate above legal ceiling",
			zap.String("loan_id", string(loan.ID)),
			zap.String("annualized_percent", classification.AnnualizedRatePercent.String()),
			zap.String("ceiling_percent", classification.CeilingPercent.String()),
		)
	}
	return CreatedLoan{Loan: loan, Classification: classification}, nil
}

func (s *Service) resolvePolicy(ctx context.Context, req NewLoan) (*interest.Policy, error) {
	switch {
	case req.Policy != nil:
		if err := req.Policy.Validate(); err != nil {
			return nil, err
		}
		p := *req.Policy
		return &p, nil
	case req.PolicyID != "":
		return s.store.GetPolicy(ctx, req.PolicyID)
	default:
		return nil, nil
	}
}

func (s *Service) GetLoan(ctx context.Context, id interest.LoanID) (interest.Loan, error) {
	return s.store.GetLoan(ctx, id)
}

func (s *Service) ListLoans(ctx context.Context) ([]interest.Loan, error) {
	return s.store.ListLoans(ctx)
}

// Allocations returns the loan's ledger. Unknown loans are ErrLoanNotFound.
func (s *Service) Allocations(ctx context.Context, id interest.LoanID) ([]interest.PaymentAllocation, error) {
	if _, err := s.store.GetLoan(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Allocations(ctx, id)
}

// =============================================================================
// QUOTES
// =============================================================================

// Quote returns the loan's interest position on today (zero means the clock's today).
func (s *Service) Quote(ctx context.Context, id interest.LoanID, today interest.Date) (InterestQuote, error) {
	if today.IsZero() {
		today = s.clock.Today()
	}
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return InterestQuote{}, err
	}

	if snap := s.cachedSnapshot(ctx, loan, today); snap != nil {
		return InterestQuote{
			LoanID:             loan.ID,
			AsOf:               today,
			AccrualStart:       snap.AccrualStart,
			EffectiveFrom:      snap.EffectiveFrom,
			Computed:           snap.Computed,
			Display:            snap.Display,
			RemainingPrincipal: loan.RemainingPrincipal,
			Status:             loan.DeriveStatus(today),
			Cached:             true,
		}, nil
	}

	return s.computeQuote(ctx, loan, today, false)
}

// QuoteDetail is Quote with the per-month breakdown. It always recomputes.
func (s *Service) QuoteDetail(ctx context.Context, id interest.LoanID, today interest.Date) (InterestQuote, error) {
	if today.IsZero() {
		today = s.clock.Today()
	}
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return InterestQuote{}, err
	}
	return s.computeQuote(ctx, loan, today, true)
}

func (s *Service) computeQuote(ctx context.Context, loan interest.Loan, today interest.Date, detail bool) (InterestQuote, error) {
	allocs, err := s.store.Allocations(ctx, loan.ID)
	if err != nil {
		return InterestQuote{}, fmt.Errorf("load allocations: %w", err)
	}

	computed, err := s.replayer.AccruedInterestAsOf(loan, allocs, today)
	if err != nil {
		return InterestQuote{}, err
	}
	due, err := s.replayer.InterestDue(loan, allocs, today)
	if err != nil {
		return InterestQuote{}, err
	}

	q := InterestQuote{
		LoanID:             loan.ID,
		AsOf:               today,
		AccrualStart:       s.replayer.AccrualStart(loan, allocs),
		EffectiveFrom:      s.replayer.EffectiveStart(loan, allocs),
		Computed:           computed,
		Display:            due,
		RemainingPrincipal: loan.RemainingPrincipal,
		Status:             loan.DeriveStatus(today),
	}
	if detail {
		if q.Breakdown, err = s.replayer.Breakdown(loan, allocs, today); err != nil {
			return InterestQuote{}, err
		}
	}

	snap := interest.Snapshot{
		LoanID:        loan.ID,
		AsOf:          today,
		LoanVersion:   loan.Version,
		AccrualStart:  q.AccrualStart,
		EffectiveFrom: q.EffectiveFrom,
		Computed:      q.Computed,
		Display:       q.Display,
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.logger.Warn("snapshot cache put failed", zap.String("loan_id", string(loan.ID)), zap.Error(err))
	}
	return q, nil
}

func (s *Service) cachedSnapshot(ctx context.Context, loan interest.Loan, today interest.Date) *interest.Snapshot {
	snap, err := s.cache.Get(ctx, loan.ID)
	if err != nil {
		s.logger.Warn("snapshot cache get failed", zap.String("loan_id", string(loan.ID)), zap.Error(err))
		return nil
	}
	if snap == nil || !snap.Matches(loan, today) {
		return nil
	}
	return snap
}

// =============================================================================
// PAYMENTS
// =============================================================================

// ApplyPayment allocates and persists a payment atomically.
func (s *Service) ApplyPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := validatePayment(req); err != nil {
		return PaymentResult{}, err
	}
	if req.IdempotencyKey != "" {
		used, err := s.store.Exists(ctx, req.IdempotencyKey)
		if err != nil {
			return PaymentResult{}, fmt.Errorf("check idempotency key: %w", err)
		}
		if used {
			return PaymentResult{}, interest.ErrDuplicateIdempotencyKey
		}
	}

	unlock := s.locks.Lock(req.LoanIDs)
	defer unlock()

	var result PaymentResult
	err := s.store.WithTx(ctx, func(tx interest.Store) error {
		plan, err := s.plan(ctx, tx, req)
		if err != nil {
			return err
		}
		if len(plan.result.Allocations) == 0 {
			return fmt.Errorf("%w: nothing outstanding on the selected loans", interest.ErrInvalidPayment)
		}

		if err := tx.AppendPayment(ctx, plan.result.Payment, plan.result.Allocations); err != nil {
			return err
		}
		for _, loan := range plan.updated {
			if err := tx.SaveLoan(ctx, loan); err != nil {
				return fmt.Errorf("save loan %s: %w", loan.ID, err)
			}
		}
		result = plan.result
		return nil
	})
	if err != nil {
		s.logger.Warn("payment rejected",
			zap.Strings("loan_ids", loanIDStrings(req.LoanIDs)),
			zap.String("amount", req.Amount.String()),
			zap.Error(err),
		)
		return PaymentResult{}, err
	}

	for _, a := range result.Allocations {
		if err := s.cache.Invalidate(ctx, a.LoanID); err != nil {
			s.logger.Error("snapshot cache invalidate failed", zap.String("loan_id", string(a.LoanID)), zap.Error(err))
		}
	}

	s.logger.Info("payment applied",
		zap.String("payment_id", string(result.Payment.ID)),
		zap.String("amount", result.Payment.Amount.String()),
		zap.String("payment_date", result.Payment.PaymentDate.String()),
		zap.Stringer("strategy", result.Strategy),
		zap.Int("allocations", len(result.Allocations)),
		zap.String("unallocated", result.Unallocated.String()),
	)
	return result, nil
}

// PreviewPayment runs the same allocation as ApplyPayment without persisting.
func (s *Service) PreviewPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := validatePayment(req); err != nil {
		return PaymentResult{}, err
	}
	plan, err := s.plan(ctx, s.store, req)
	if err != nil {
		return PaymentResult{}, err
	}
	plan.result.Preview = true
	return plan.result, nil
}

type paymentPlan struct {
	result  PaymentResult
	updated []interest.Loan
}

func (s *Service) plan(ctx context.Context, st interest.Store, req PaymentRequest) (paymentPlan, error) {
	date := req.PaymentDate
	if date.IsZero() {
		date = s.clock.Today()
	}
	strategy := s.strategy
	if req.Strategy != nil {
		strategy = *req.Strategy
	}

	loans := make(map[interest.LoanID]interest.Loan, len(req.LoanIDs))
	dues := make(map[interest.LoanID]decimal.Decimal, len(req.LoanIDs))
	targets := make([]interest.Target, 0, len(req.LoanIDs))

	for _, id := range req.LoanIDs {
		loan, err := st.GetLoan(ctx, id)
		if err != nil {
			return paymentPlan{}, err
		}
		if loan.Status == interest.StatusClosed {
			return paymentPlan{}, &interest.LoanClosedError{LoanID: id}
		}
		allocs, err := st.Allocations(ctx, id)
		if err != nil {
			return paymentPlan{}, fmt.Errorf("load allocations: %w", err)
		}
		due, err := s.replayer.InterestDue(loan, allocs, date)
		if err != nil {
			return paymentPlan{}, err
		}

		loans[id] = loan
		dues[id] = due
		targets = append(targets, interest.Target{
			LoanID:             id,
			RemainingPrincipal: loan.RemainingPrincipal,
			AccruedInterest:    due,
			OriginatedAt:       loan.StartDate,
		})
	}

	allocation := interest.Allocate(req.Amount, targets, strategy)

	payment := interest.Payment{
		ID:             interest.PaymentID(s.newID()),
		Amount:         req.Amount,
		PaymentDate:    date,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	now := time.Now().UTC()

	plan := paymentPlan{result: PaymentResult{
		Payment:     payment,
		Strategy:    strategy,
		Unallocated: allocation.Unallocated,
	}}

	for _, a := range allocation.Allocations {
		loan := loans[a.LoanID]
		due := dues[a.LoanID]

		plan.result.Allocations = append(plan.result.Allocations, interest.PaymentAllocation{
			ID:            interest.AllocationID(s.newID()),
			Payment:       payment,
			LoanID:        a.LoanID,
			PrincipalPaid: a.PrincipalPaid,
			InterestPaid:  a.InterestPaid,
			CreatedAt:     now,
		})

		before := loan.RemainingPrincipal
		loan.RemainingPrincipal = loan.RemainingPrincipal.Sub(a.PrincipalPaid)
		loan.AccruedInterest = due.Sub(a.InterestPaid)
		loan.Status = loan.DeriveStatus(date)
		loan.Version++
		plan.updated = append(plan.updated, loan)

		plan.result.Positions = append(plan.result.Positions, LoanPosition{
			LoanID:          a.LoanID,
			InterestDue:     due,
			PrincipalBefore: before,
			InterestPaid:    a.InterestPaid,
			PrincipalPaid:   a.PrincipalPaid,
			PrincipalAfter:  loan.RemainingPrincipal,
			CarriedInterest: loan.AccruedInterest,
			Status:          loan.Status,
		})
	}
	return plan, nil
}

func validatePayment(req PaymentRequest) error {
	if len(req.LoanIDs) == 0 {
		return fmt.Errorf("%w: at least one loan is required", interest.ErrInvalidPayment)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", interest.ErrInvalidPayment, req.Amount)
	}
	seen := make(map[interest.LoanID]bool, len(req.LoanIDs))
	for _, id := range req.LoanIDs {
		if id == "" {
			return fmt.Errorf("%w: empty loan id", interest.ErrInvalidPayment)
		}
		if seen[id] {
			return fmt.Errorf("%w: loan %s listed twice", interest.ErrInvalidPayment, id)
		}
		seen[id] = true
	}
	return nil
}

func loanIDStrings(ids []interest.LoanID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// =============================================================================
// POLICY TEMPLATES
// =============================================================================

// SavePolicyTemplate validates and stores a reusable policy.
func (s *Service) SavePolicyTemplate(ctx context.Context, policy *interest.Policy) (interest.Classification, error) {
	if policy == nil {
		return interest.Classification{}, &interest.ConfigurationError{Field: "policy", Reason: "missing"}
	}
	if policy.ID == "" {
		return interest.Classification{}, &interest.ConfigurationError{Field: "id", Reason: "template id is required"}
	}
	if err := policy.Validate(); err != nil {
		return interest.Classification{}, err
	}
	classification, err := s.checker.Classify(policy)
	if err != nil {
		return interest.Classification{}, err
	}
	if err := s.store.SavePolicy(ctx, *policy); err != nil {
		return interest.Classification{}, fmt.Errorf("save policy: %w", err)
	}
	s.logger.Info("policy template saved",
		zap.String("policy_id", string(policy.ID)),
		zap.String("mode", string(policy.Mode())),
		zap.Bool("rate_compliant", classification.IsCompliant),
	)
	return classification, nil
}

func (s *Service) GetPolicyTemplate(ctx context.Context, id interest.PolicyID) (*interest.Policy, error) {
	return s.store.GetPolicy(ctx, id)
}

func (s *Service) ListPolicyTemplates(ctx context.Context) ([]interest.Policy, error) {
	return s.store.ListPolicies(ctx)
}

// DeletePolicyTemplate removes a template. Loans created from it keep their copy.
func (s *Service) DeletePolicyTemplate(ctx context.Context, id interest.PolicyID) error {
	if err := s.store.DeletePolicy(ctx, id); err != nil {
		return err
	}
	s.logger.Info("policy template deleted", zap.String("policy_id", string(id)))
	return nil
}

// ClassifyPolicy reports the annualized rate against the configured ceiling.
func (s *Service) ClassifyPolicy(policy *interest.Policy) (interest.Classification, error) {
	return s.checker.Classify(policy)
}

// LoadPresets stores every preset template, overwriting same-ID templates.
func (s *Service) LoadPresets(ctx context.Context, presets []*interest.Policy) error {
	for _, p := range presets {
		if _, err := s.SavePolicyTemplate(ctx, p); err != nil {
			return fmt.Errorf("preset %s: %w", p.ID, err)
		}
	}
	return nil
}
