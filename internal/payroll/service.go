// Package payroll assigns wages to workers and releases them once the
// employer is compliant and funded.
//
// Each worker has at most one live entry. An entry moves from pending to
// processed exactly once; a pending entry may be retried indefinitely while
// its employer is non-compliant.
package payroll

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
)

// Employers is the compliance view payroll depends on.
type Employers interface {
	CheckCompliance(ctx context.Context, employerID string) (bool, error)
	Account(ctx context.Context, employerID string) (*model.EmployerAccount, error)
	DebitPayrollFunds(ctx context.Context, employerID string, amount uint64) error
}

// Result is the outcome of Process.
type Result struct {
	Entry     *model.PayrollEntry `json:"entry"`
	Processed bool                `json:"processed"`
	Reason    string              `json:"reason,omitempty"`
	TxHash    string              `json:"tx_hash,omitempty"`
}

// Service is the payroll component.
type Service struct {
	store     *ledger.Store
	employers Employers
	transport transport.Transport
	emitter   events.Emitter
	logger    *zap.Logger
	now       func() time.Time

	processing *ledger.Locker
	// funding serializes the check-transfer-debit sequence per employer so
	// two workers of one employer cannot both pass the funds check.
	funding *ledger.Locker
}

// NewService creates a payroll Service. t should already be bridge-guarded.
func NewService(store *ledger.Store, employers Employers, t transport.Transport, emitter events.Emitter, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		employers:  employers,
		transport:  t,
		emitter:    emitter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		processing: ledger.NewLocker(),
		funding:    ledger.NewLocker(),
	}
}

func entryKey(workerID string) string { return ledger.PrefixPayroll + workerID }

// Assign creates a pending entry. A worker with a pending entry cannot be
// assigned again until it is processed; a processed entry is replaced.
func (s *Service) Assign(ctx context.Context, workerID, employerID string, amount int64) (*model.PayrollEntry, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if workerID == "" || employerID == "" {
		return nil, &model.ErrValidation{Msg: "worker id and employer id are required"}
	}

	entry, err := ledger.Mutate(ctx, s.store, entryKey(workerID),
		func() (*model.PayrollEntry, error) { return &model.PayrollEntry{}, nil },
		func(e *model.PayrollEntry) error {
			if e.ID != "" && e.Status == model.PayrollPending {
				return &model.ErrValidation{Msg: fmt.Sprintf("worker %s already has a pending payroll entry", workerID)}
			}
			*e = model.PayrollEntry{
				ID:         uuid.NewString(),
				WorkerID:   workerID,
				EmployerID: employerID,
				Amount:     uint64(amount),
				Status:     model.PayrollPending,
				CreatedAt:  s.now(),
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("payroll assigned",
		zap.String("worker_id", workerID),
		zap.String("employer_id", employerID),
		zap.Int64("amount", amount),
	)
	return entry, nil
}

// Entry returns the worker's current entry.
func (s *Service) Entry(ctx context.Context, workerID string) (*model.PayrollEntry, error) {
	return ledger.Get[model.PayrollEntry](ctx, s.store, entryKey(workerID))
}

// Pending lists every pending entry.
func (s *Service) Pending(ctx context.Context) ([]*model.PayrollEntry, error) {
	all, err := ledger.List[model.PayrollEntry](ctx, s.store, ledger.PrefixPayroll)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.Status == model.PayrollPending {
			out = append(out, e)
		}
	}
	return out, nil
}

// Process releases the worker's pending wages. A non-compliant employer
// yields Processed=false and leaves the entry untouched. The transfer runs
// before the entry and the employer's funds are updated. Locks are taken
// worker first, then employer.
func (s *Service) Process(ctx context.Context, workerID string, now time.Time) (*Result, error) {
	unlock := s.processing.Lock(workerID)
	defer unlock()

	entry, err := s.Entry(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if entry.Status == model.PayrollProcessed {
		return nil, model.ErrAlreadyProcessed
	}

	compliant, err := s.employers.CheckCompliance(ctx, entry.EmployerID)
	if err != nil {
		return nil, err
	}
	if !compliant {
		s.logger.Info("payroll not processed",
			zap.String("worker_id", workerID),
			zap.String("employer_id", entry.EmployerID),
		)
		return &Result{Entry: entry, Processed: false, Reason: model.ReasonNotProcessed}, nil
	}

	unlockFunds := s.funding.Lock(entry.EmployerID)
	defer unlockFunds()

	acct, err := s.employers.Account(ctx, entry.EmployerID)
	if err != nil {
		return nil, err
	}
	if acct.PayrollFunds < entry.Amount {
		return nil, fmt.Errorf("%w: employer %s has %d of %d", model.ErrInsufficientBalance, entry.EmployerID, acct.PayrollFunds, entry.Amount)
	}

	receipt, err := s.transport.ExecuteTransfer(ctx, transport.Transfer{
		Reference: entry.ID,
		Recipient: workerID,
		SubjectID: entry.EmployerID,
		Category:  model.CategoryPayroll,
		Amount:    entry.Amount,
		Memo:      "payroll",
	})
	if err != nil {
		if model.IsDomain(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTransferFailed, err)
	}

	if err := s.employers.DebitPayrollFunds(ctx, entry.EmployerID, entry.Amount); err != nil {
		s.logger.Error("payroll funds debit failed after confirmed transfer",
			zap.String("employer_id", entry.EmployerID),
			zap.String("tx_hash", receipt.TxHash),
			zap.Error(err),
		)
		return nil, fmt.Errorf("debit payroll funds after transfer %s: %w", receipt.TxHash, err)
	}

	processedAt := now.UTC()
	entry, err = ledger.Mutate(ctx, s.store, entryKey(workerID), ledger.NotFound[model.PayrollEntry], func(e *model.PayrollEntry) error {
		if e.Status != model.PayrollPending {
			return model.ErrAlreadyProcessed
		}
		e.Status = model.PayrollProcessed
		e.ProcessedAt = &processedAt
		e.TxHash = receipt.TxHash
		return nil
	})
	if err != nil {
		s.logger.Error("payroll entry update failed after confirmed transfer",
			zap.String("worker_id", workerID),
			zap.String("tx_hash", receipt.TxHash),
			zap.Error(err),
		)
		return nil, err
	}

	s.emitter.Emit(ctx, model.Event{
		Type:      model.EventPayrollProcessed,
		SubjectID: workerID,
		Category:  model.CategoryPayroll,
		Amount:    entry.Amount,
		Detail: map[string]string{
			"employer_id": entry.EmployerID,
			"entry_id":    entry.ID,
			"tx_hash":     receipt.TxHash,
			"amount":      strconv.FormatUint(entry.Amount, 10),
		},
	})
	return &Result{Entry: entry, Processed: true, TxHash: receipt.TxHash}, nil
}
