package trustpool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/proof"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
)

// Withdrawal is the result of a successful withdrawal.
type Withdrawal struct {
	WorkerID  string               `json:"worker_id"`
	Kind      model.WithdrawalKind `json:"kind"`
	Amount    uint64               `json:"amount"`
	Recipient string               `json:"recipient"`
	TxHash    string               `json:"tx_hash"`
	Remaining uint64               `json:"remaining"`
}

// Custodian is the trust pool component.
type Custodian struct {
	store     *ledger.Store
	transport transport.Transport
	verifier  proof.Verifier
	emitter   events.Emitter
	logger    *zap.Logger
	now       func() time.Time

	// withdrawals serializes the check-transfer-debit sequence per worker
	// so two withdrawals cannot both pass the balance check.
	withdrawals *ledger.Locker
}

// NewCustodian creates a Custodian. t should already be bridge-guarded.
func NewCustodian(store *ledger.Store, t transport.Transport, v proof.Verifier, emitter events.Emitter, logger *zap.Logger) *Custodian {
	return &Custodian{
		store:       store,
		transport:   t,
		verifier:    proof.Guard(v),
		emitter:     emitter,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		withdrawals: ledger.NewLocker(),
	}
}

func poolKey(workerID string) string { return ledger.PrefixTrustPool + workerID }

// Contribute adds amount to the worker's balance, creating the record on
// first contribution.
func (c *Custodian) Contribute(ctx context.Context, workerID string, amount int64) (*model.TrustPoolRecord, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if workerID == "" {
		return nil, &model.ErrValidation{Msg: "worker id is required"}
	}

	rec, err := ledger.Mutate(ctx, c.store, poolKey(workerID),
		func() (*model.TrustPoolRecord, error) { return &model.TrustPoolRecord{WorkerID: workerID}, nil },
		func(r *model.TrustPoolRecord) error {
			r.TotalContributed += uint64(amount)
			r.LastContributionAt = c.now()
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("contribute: %w", err)
	}

	c.emitter.Emit(ctx, model.Event{
		Type:      model.EventContributionMade,
		SubjectID: workerID,
		Category:  model.CategoryTrustFund,
		Amount:    uint64(amount),
		Detail:    map[string]string{"total": strconv.FormatUint(rec.TotalContributed, 10)},
	})
	return rec, nil
}

// Balance returns the worker's record. Unseen workers are ErrNotFound.
func (c *Custodian) Balance(ctx context.Context, workerID string) (*model.TrustPoolRecord, error) {
	return ledger.Get[model.TrustPoolRecord](ctx, c.store, poolKey(workerID))
}

// Withdraw dispatches on req.Kind.
func (c *Custodian) Withdraw(ctx context.Context, req model.WithdrawalRequest) (*Withdrawal, error) {
	switch req.Kind {
	case model.WithdrawalFullRedemption:
		return c.Redeem(ctx, req)
	case model.WithdrawalPartialQuorum:
		return c.WithdrawQuorum(ctx, req)
	}
	return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown withdrawal kind %q", req.Kind)}
}

// Redeem releases funds to a KYC-verified child identity.
func (c *Custodian) Redeem(ctx context.Context, req model.WithdrawalRequest) (*Withdrawal, error) {
	if req.Amount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if !req.KYCVerified || req.ChildID == "" {
		return nil, fmt.Errorf("%w: receiving identity is not KYC verified", model.ErrUnauthorized)
	}
	verified, err := c.IsKYCVerified(ctx, req.ChildID)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, fmt.Errorf("%w: %s is not in the KYC registry", model.ErrUnauthorized, req.ChildID)
	}

	unlock := c.withdrawals.Lock(req.WorkerID)
	defer unlock()
	return c.release(ctx, req, req.ChildID, model.EventFundsRedeemed)
}

// WithdrawQuorum releases funds approved by exactly three distinct other
// parties whose approval set is proven as one Merkle inclusion.
func (c *Custodian) WithdrawQuorum(ctx context.Context, req model.WithdrawalRequest) (*Withdrawal, error) {
	if req.Amount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if err := checkApprovers(req.WorkerID, req.Approvers); err != nil {
		return nil, err
	}
	verdict, err := c.verifier.Verify(ctx, proof.ApprovalSetSubject(req.WorkerID, req.Approvers), req.Proof, proof.KindMerkleInclusion)
	if err != nil {
		return nil, fmt.Errorf("verify approval set: %w", err)
	}
	if verdict != proof.Valid {
		return nil, fmt.Errorf("%w: approval set not proven", model.ErrProofInvalid)
	}

	unlock := c.withdrawals.Lock(req.WorkerID)
	defer unlock()
	return c.release(ctx, req, req.WorkerID, model.EventQuorumWithdrawal)
}

func checkApprovers(workerID string, approvers []string) error {
	if len(approvers) != model.QuorumSize {
		return fmt.Errorf("%w: need exactly %d approvers, got %d", model.ErrUnauthorized, model.QuorumSize, len(approvers))
	}
	seen := make(map[string]struct{}, len(approvers))
	for _, a := range approvers {
		if a == "" || a == workerID {
			return fmt.Errorf("%w: invalid approver %q", model.ErrUnauthorized, a)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("%w: duplicate approver %q", model.ErrUnauthorized, a)
		}
		seen[a] = struct{}{}
	}
	return nil
}

// release checks the balance, transfers, then debits. The caller holds the
// worker's withdrawal lock.
func (c *Custodian) release(ctx context.Context, req model.WithdrawalRequest, recipient string, evType model.EventType) (*Withdrawal, error) {
	amount := uint64(req.Amount)

	rec, err := c.Balance(ctx, req.WorkerID)
	if err != nil {
		return nil, err
	}
	if amount > rec.TotalContributed {
		return nil, model.ErrInsufficientBalance
	}

	receipt, err := c.transport.ExecuteTransfer(ctx, transport.Transfer{
		Reference: uuid.NewString(),
		Recipient: recipient,
		SubjectID: req.WorkerID,
		Category:  model.CategoryTrustFund,
		Amount:    amount,
		Memo:      string(req.Kind),
	})
	if err != nil {
		if model.IsDomain(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTransferFailed, err)
	}

	rec, err = ledger.Mutate(ctx, c.store, poolKey(req.WorkerID), ledger.NotFound[model.TrustPoolRecord], func(r *model.TrustPoolRecord) error {
		if amount > r.TotalContributed {
			return model.ErrInsufficientBalance
		}
		r.TotalContributed -= amount
		return nil
	})
	if err != nil {
		c.logger.Error("trust pool debit failed after confirmed transfer",
			zap.String("worker_id", req.WorkerID),
			zap.String("tx_hash", receipt.TxHash),
			zap.Uint64("amount", amount),
			zap.Error(err),
		)
		if errors.Is(err, model.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("debit after transfer %s: %w", receipt.TxHash, err)
	}

	c.emitter.Emit(ctx, model.Event{
		Type:      evType,
		SubjectID: req.WorkerID,
		Category:  model.CategoryTrustFund,
		Amount:    amount,
		Detail: map[string]string{
			"recipient": recipient,
			"tx_hash":   receipt.TxHash,
			"remaining": strconv.FormatUint(rec.TotalContributed, 10),
		},
	})
	return &Withdrawal{
		WorkerID:  req.WorkerID,
		Kind:      req.Kind,
		Amount:    amount,
		Recipient: recipient,
		TxHash:    receipt.TxHash,
		Remaining: rec.TotalContributed,
	}, nil
}
