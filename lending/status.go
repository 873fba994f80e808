package lending

import (
	"context"
	"fmt"

	"github.com/warp/debt-ledger/interest"
	"go.uber.org/zap"
)

// RefreshStatuses re-derives the status of every unsettled loan as of today
// and persists the ones that changed (typically OPEN → OVERDUE).
// A zero today means the clock's today. Returns the number of loans updated.
func (s *Service) RefreshStatuses(ctx context.Context, today interest.Date) (int, error) {
	if today.IsZero() {
		today = s.clock.Today()
	}
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return 0, fmt.Errorf("list loans: %w", err)
	}

	updated := 0
	for _, loan := range loans {
		if loan.Status == interest.StatusClosed || loan.DeriveStatus(today) == loan.Status {
			continue
		}
		changed, err := s.refreshStatus(ctx, loan.ID, today)
		if err != nil {
			return updated, fmt.Errorf("refresh %s: %w", loan.ID, err)
		}
		if changed {
			updated++
		}
	}
	return updated, nil
}

func (s *Service) refreshStatus(ctx context.Context, id interest.LoanID, today interest.Date) (bool, error) {
	unlock := s.locks.Lock([]interest.LoanID{id})
	defer unlock()

	changed := false
	err := s.store.WithTx(ctx, func(tx interest.Store) error {
		loan, err := tx.GetLoan(ctx, id)
		if err != nil {
			return err
		}
		status := loan.DeriveStatus(today)
		if status == loan.Status {
			return nil
		}
		s.logger.Info("loan status changed",
			zap.String("loan_id", string(id)),
			zap.String("from", string(loan.Status)),
			zap.String("to", string(status)),
		)
		loan.Status = status
		loan.Version++
		changed = true
		return tx.SaveLoan(ctx, loan)
	})
	if err != nil {
		return false, err
	}
	if changed {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.Error("snapshot cache invalidate failed", zap.String("loan_id", string(id)), zap.Error(err))
		}
	}
	return changed, nil
}
