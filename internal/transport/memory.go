package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process ledger. It records every confirmed transfer
// and can be told to fail.
type Memory struct {
	mu        sync.Mutex
	transfers []Receipt
	failNext  []error
	now       func() time.Time
}

// NewMemory creates an empty Memory transport.
func NewMemory() *Memory {
	return &Memory{now: func() time.Time { return time.Now().UTC() }}
}

// FailNext makes the next ExecuteTransfer call return err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, err)
}

// ExecuteTransfer implements Transport.
func (m *Memory) ExecuteTransfer(ctx context.Context, t Transfer) (Receipt, error) {
	if err := t.Validate(); err != nil {
		return Receipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return Receipt{}, err
	}

	ref := t.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	sum := sha256.Sum256([]byte(ref + "|" + t.Recipient + "|" + string(t.Category)))
	r := Receipt{
		TxHash:      hex.EncodeToString(sum[:]),
		Reference:   ref,
		Category:    t.Category,
		Amount:      t.Amount,
		ConfirmedAt: m.now(),
	}
	m.transfers = append(m.transfers, r)
	return r, nil
}

// Transfers returns a copy of every confirmed transfer.
func (m *Memory) Transfers() []Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Receipt(nil), m.transfers...)
}

// Total sums the confirmed amounts.
func (m *Memory) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum uint64
	for _, r := range m.transfers {
		sum += r.Amount
	}
	return sum
}
