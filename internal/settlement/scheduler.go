package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// PayoutCalendar decides whether a moment falls on a payout day.
type PayoutCalendar interface {
	IsPayoutDay(now time.Time) (bool, error)
}

// PendingLister lists unprocessed payroll entries.
type PendingLister interface {
	Pending(ctx context.Context) ([]*model.PayrollEntry, error)
}

// Scheduler settles every pending payroll entry once per payout day.
type Scheduler struct {
	engine   *Engine
	calendar PayoutCalendar
	pending  PendingLister
	logger   *zap.Logger
	now      func() time.Time

	lastRun string
}

// NewScheduler creates a Scheduler.
func NewScheduler(engine *Engine, calendar PayoutCalendar, pending PendingLister, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		calendar: calendar,
		pending:  pending,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Tick runs a payout round when today is a payout day that has not been
// run yet. It returns the batch results, or nil when nothing ran.
func (s *Scheduler) Tick(ctx context.Context) ([]BatchResult, error) {
	now := s.now()
	day := now.Format(time.DateOnly)
	if day == s.lastRun {
		return nil, nil
	}
	ok, err := s.calendar.IsPayoutDay(now)
	if err != nil || !ok {
		return nil, err
	}

	entries, err := s.pending.Pending(ctx)
	if err != nil {
		return nil, err
	}
	reqs := make([]PayrollRequest, 0, len(entries))
	for _, e := range entries {
		reqs = append(reqs, PayrollRequest{WorkerID: e.WorkerID})
	}
	results := s.engine.SettleBatch(ctx, reqs)
	s.lastRun = day

	approved := 0
	for _, r := range results {
		if r.Decision != nil && r.Decision.Outcome == model.OutcomeApprove {
			approved++
		}
	}
	s.logger.Info("payout round complete",
		zap.String("day", day),
		zap.Int("pending", len(reqs)),
		zap.Int("approved", approved),
	)
	return results, nil
}

// Start calls Tick every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Warn("payout round failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
