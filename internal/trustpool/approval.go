package trustpool

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// Approval collects approvers for a pending quorum withdrawal.
type Approval struct {
	ID        string    `json:"id"`
	WorkerID  string    `json:"worker_id"`
	Amount    int64     `json:"amount"`
	Approvers []string  `json:"approvers"`
	CreatedAt time.Time `json:"created_at"`
}

// Complete reports whether the quorum has been reached.
func (a *Approval) Complete() bool { return len(a.Approvers) == model.QuorumSize }

func approvalKey(id string) string { return ledger.PrefixApproval + id }

// OpenApproval starts collecting approvals for a withdrawal by workerID.
func (c *Custodian) OpenApproval(ctx context.Context, workerID string, amount int64) (*Approval, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if workerID == "" {
		return nil, &model.ErrValidation{Msg: "worker id is required"}
	}
	a := &Approval{
		ID:        uuid.NewString(),
		WorkerID:  workerID,
		Amount:    amount,
		Approvers: []string{},
		CreatedAt: c.now(),
	}
	if err := ledger.Put(ctx, c.store, approvalKey(a.ID), a); err != nil {
		return nil, fmt.Errorf("open approval: %w", err)
	}
	return a, nil
}

// Approve adds approverID to the request. Approving twice is a no-op; the
// requester can never approve their own withdrawal.
func (c *Custodian) Approve(ctx context.Context, requestID, approverID string) (*Approval, error) {
	if approverID == "" {
		return nil, &model.ErrValidation{Msg: "approver id is required"}
	}
	return ledger.Mutate(ctx, c.store, approvalKey(requestID), ledger.NotFound[Approval], func(a *Approval) error {
		if approverID == a.WorkerID {
			return fmt.Errorf("%w: worker cannot approve own withdrawal", model.ErrUnauthorized)
		}
		if slices.Contains(a.Approvers, approverID) {
			return nil
		}
		if a.Complete() {
			return &model.ErrValidation{Msg: "quorum already complete"}
		}
		a.Approvers = append(a.Approvers, approverID)
		return nil
	})
}

// Approval returns a collection by id.
func (c *Custodian) Approval(ctx context.Context, requestID string) (*Approval, error) {
	return ledger.Get[Approval](ctx, c.store, approvalKey(requestID))
}
