// Package transport moves funds on the external ledger. The settlement core
// only sees the Transport interface; the bridge enforcer wraps every
// implementation before it reaches a domain component.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// ErrUnconfirmed is returned when the ledger did not confirm a transfer.
var ErrUnconfirmed = errors.New("transfer not confirmed")

// Transfer is one movement of funds to a recipient.
type Transfer struct {
	Reference string             `json:"reference"` // caller-chosen idempotency reference
	Recipient string             `json:"recipient"`
	SubjectID string             `json:"subject_id"` // worker or employer the movement is booked against
	Category  model.FundCategory `json:"category"`
	Amount    uint64             `json:"amount"`
	Memo      string             `json:"memo,omitempty"`
}

// Validate rejects transfers no ledger would accept.
func (t Transfer) Validate() error {
	if t.Amount == 0 {
		return model.ErrInvalidAmount
	}
	if t.Recipient == "" {
		return &model.ErrValidation{Msg: "transfer recipient is required"}
	}
	if t.Category == "" {
		return &model.ErrValidation{Msg: "transfer category is required"}
	}
	return nil
}

// Receipt is the ledger's confirmation of a transfer.
type Receipt struct {
	TxHash      string             `json:"tx_hash"`
	Reference   string             `json:"reference"`
	Category    model.FundCategory `json:"category"`
	Amount      uint64             `json:"amount"`
	ConfirmedAt time.Time          `json:"confirmed_at"`
}

// Transport executes transfers. ExecuteTransfer returns only after the
// ledger confirmed the movement; any error means no funds moved.
type Transport interface {
	ExecuteTransfer(ctx context.Context, t Transfer) (Receipt, error)
}
