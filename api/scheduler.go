/*
scheduler.go - Automated loan status sweep

PURPOSE:
  Periodically re-derives loan statuses so that loans past their due date
  show as OVERDUE without waiting for a payment or a manual refresh.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Delegates to lending.Service.RefreshStatuses, which takes the same
    per-loan locks as payments
  - Counts persisted transitions in ledger_status_transitions_total

USAGE:
  scheduler := NewStatusScheduler(handler, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RefreshStatuses endpoint (manual sweep)
  - lending/status.go: RefreshStatuses
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatusScheduler handles the periodic status sweep.
type StatusScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStatusScheduler creates a scheduler. A non-positive interval disables it.
func NewStatusScheduler(handler *Handler, interval time.Duration) *StatusScheduler {
	return &StatusScheduler{
		Handler:       handler,
		CheckInterval: interval,
	}
}

// Start begins the scheduler.
func (ss *StatusScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.CheckInterval <= 0 {
		ss.Handler.Logger.Info("status scheduler disabled")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.stop = make(chan struct{})
	ss.wg.Add(1)

	go ss.run()

	ss.Handler.Logger.Info("status scheduler started", zap.Duration("interval", ss.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (ss *StatusScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.Handler.Logger.Info("status scheduler stopped")
	}
}

func (ss *StatusScheduler) run() {
	defer ss.wg.Done()

	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *StatusScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), ss.CheckInterval)
	defer cancel()

	start := time.Now()
	n, err := ss.Handler.Service.RefreshStatuses(ctx, ss.Handler.Service.Today())
	ss.Handler.Metrics.statusesChanged(n)
	if err != nil {
		ss.Handler.Logger.Error("status sweep failed", zap.Int("updated", n), zap.Error(err))
		return
	}
	if n > 0 {
		ss.Handler.Logger.Info("status sweep completed",
			zap.Int("updated", n),
			zap.Duration("took", time.Since(start)),
		)
	}
}
