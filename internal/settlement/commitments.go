package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// CommitmentRecord is the last root published for a contract.
type CommitmentRecord struct {
	ContractID string    `json:"contract_id"`
	Root       string    `json:"root"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func commitmentKey(contractID string) string { return ledger.PrefixCommitment + contractID }

// UpdateCommitment stores root as the current commitment for contractID.
func (e *Engine) UpdateCommitment(ctx context.Context, contractID, root string) (*CommitmentRecord, error) {
	if contractID == "" || root == "" {
		return nil, &model.ErrValidation{Msg: "contract id and root are required"}
	}
	rec := &CommitmentRecord{ContractID: contractID, Root: root, UpdatedAt: e.now()}
	if err := ledger.Put(ctx, e.store, commitmentKey(contractID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Commitment returns the stored root, or "" when none was ever stored.
func (e *Engine) Commitment(ctx context.Context, contractID string) (string, error) {
	rec, err := ledger.Get[CommitmentRecord](ctx, e.store, commitmentKey(contractID))
	if errors.Is(err, model.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Root, nil
}

// Trusted implements proof.TrustedRoots: a root is trusted while it is the
// current commitment of some contract.
func (e *Engine) Trusted(ctx context.Context, root string) (bool, error) {
	if root == "" {
		return false, nil
	}
	recs, err := ledger.List[CommitmentRecord](ctx, e.store, ledger.PrefixCommitment)
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if strings.EqualFold(r.Root, root) {
			return true, nil
		}
	}
	return false, nil
}
