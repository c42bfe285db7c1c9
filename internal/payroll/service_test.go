package payroll_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/compliance"
	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/payroll"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
)

var ctx = context.Background()

type fixture struct {
	svc  *payroll.Service
	gate *compliance.Gate
	mem  *transport.Memory
	rec  *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewStore(ledger.NewMemoryStore())
	rec := &events.Recorder{}
	gate := compliance.NewGate(store, rec, zap.NewNop(), compliance.Config{})
	mem := transport.NewMemory()
	return &fixture{
		svc:  payroll.NewService(store, gate, mem, rec, zap.NewNop()),
		gate: gate,
		mem:  mem,
		rec:  rec,
	}
}

func (f *fixture) fund(t *testing.T, employer string, taxes int64, funds uint64) {
	t.Helper()
	_, err := f.gate.RecordTaxPayment(ctx, employer, taxes)
	require.NoError(t, err)
	require.NoError(t, f.gate.UpdatePayrollFunding(ctx, employer, funds))
}

func TestProcess_compliantEmployer(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "3001", 15000, 8000)

	_, err := f.svc.Assign(ctx, "w1", "3001", 5000)
	require.NoError(t, err)

	res, err := f.svc.Process(ctx, "w1", time.Now())
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Equal(t, model.PayrollProcessed, res.Entry.Status)
	assert.NotNil(t, res.Entry.ProcessedAt)
	assert.NotEmpty(t, res.TxHash)

	acct, _ := f.gate.Account(ctx, "3001")
	assert.EqualValues(t, 3000, acct.PayrollFunds)
	assert.EqualValues(t, 5000, f.mem.Total())
	assert.Len(t, f.rec.OfType(model.EventPayrollProcessed), 1)

	_, err = f.svc.Process(ctx, "w1", time.Now())
	assert.ErrorIs(t, err, model.ErrAlreadyProcessed)
	assert.EqualValues(t, 5000, f.mem.Total())
}

func TestProcess_nonCompliantLeavesEntryPending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gate.UpdatePayrollFunding(ctx, "3002", 10000))
	before, err := f.svc.Assign(ctx, "w2", "3002", 5000)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := f.svc.Process(ctx, "w2", time.Now())
		require.NoError(t, err)
		assert.False(t, res.Processed)
		assert.Equal(t, model.ReasonNotProcessed, res.Reason)
	}

	after, err := f.svc.Entry(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, model.PayrollPending, after.Status)
	assert.Nil(t, after.ProcessedAt)
	assert.Empty(t, f.mem.Transfers())

	// Retried until compliant.
	_, _ = f.gate.RecordTaxPayment(ctx, "3002", 1)
	res, err := f.svc.Process(ctx, "w2", time.Now())
	require.NoError(t, err)
	assert.True(t, res.Processed)
}

func TestProcess_insufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "e", 100, 4999)
	_, _ = f.svc.Assign(ctx, "w1", "e", 5000)

	_, err := f.svc.Process(ctx, "w1", time.Now())
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)

	e, _ := f.svc.Entry(ctx, "w1")
	assert.Equal(t, model.PayrollPending, e.Status)
	assert.Empty(t, f.mem.Transfers())
}

func TestProcess_transferFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "e", 100, 5000)
	_, _ = f.svc.Assign(ctx, "w1", "e", 5000)

	f.mem.FailNext(assert.AnError)
	_, err := f.svc.Process(ctx, "w1", time.Now())
	assert.ErrorIs(t, err, model.ErrTransferFailed)

	e, _ := f.svc.Entry(ctx, "w1")
	assert.Equal(t, model.PayrollPending, e.Status)
	acct, _ := f.gate.Account(ctx, "e")
	assert.EqualValues(t, 5000, acct.PayrollFunds)
}

func TestProcess_concurrentCallsProcessOnce(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "e", 100, 100000)
	_, _ = f.svc.Assign(ctx, "w1", "e", 5000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Process(ctx, "w1", time.Now())
		}()
	}
	wg.Wait()
	assert.Len(t, f.mem.Transfers(), 1)
}

// slowTransport holds each transfer briefly and records the peak number of
// transfers in flight at once.
type slowTransport struct {
	inner    *transport.Memory
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowTransport) ExecuteTransfer(ctx context.Context, t transport.Transfer) (transport.Receipt, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)
	return s.inner.ExecuteTransfer(ctx, t)
}

func TestProcess_sameEmployerWorkersShareFunds(t *testing.T) {
	store := ledger.NewStore(ledger.NewMemoryStore())
	gate := compliance.NewGate(store, events.Nop{}, zap.NewNop(), compliance.Config{})
	slow := &slowTransport{inner: transport.NewMemory()}
	svc := payroll.NewService(store, gate, slow, events.Nop{}, zap.NewNop())

	_, err := gate.RecordTaxPayment(ctx, "E", 100)
	require.NoError(t, err)
	require.NoError(t, gate.UpdatePayrollFunding(ctx, "E", 5000))
	_, err = svc.Assign(ctx, "wa", "E", 5000)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, "wb", "E", 5000)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, w := range []string{"wa", "wb"} {
		wg.Add(1)
		go func(i int, w string) {
			defer wg.Done()
			_, errs[i] = svc.Process(ctx, w, time.Now())
		}(i, w)
	}
	wg.Wait()

	assert.EqualValues(t, 1, slow.peak.Load(), "transfers for one employer must not overlap")
	assert.EqualValues(t, 5000, slow.inner.Total())

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInsufficientBalance):
			short++
		default:
			assert.Failf(t, "unexpected error", "%v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)

	acct, _ := gate.Account(ctx, "E")
	assert.EqualValues(t, 0, acct.PayrollFunds)
	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// retryingStore runs every update twice, the way an optimistic backend
// retries after a conflict. Between the attempts it writes the value
// returned by conflict, standing in for a concurrent writer.
type retryingStore struct {
	*ledger.MemoryStore
	conflict func(key string) []byte
}

func (r *retryingStore) Update(ctx context.Context, key string, fn ledger.UpdateFunc) error {
	for attempt := 0; attempt < 2; attempt++ {
		old, err := r.Get(ctx, key)
		found := err == nil
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		value, err := fn(old, found)
		if err != nil {
			return err
		}
		if attempt == 0 {
			if v := r.conflict(key); v != nil {
				if err := r.Put(ctx, key, v); err != nil {
					return err
				}
				continue
			}
		}
		return r.Put(ctx, key, value)
	}
	return nil
}

func TestAssign_retryAfterConcurrentInsert(t *testing.T) {
	live, err := json.Marshal(model.PayrollEntry{
		ID: "live-entry", WorkerID: "w1", EmployerID: "e", Amount: 700, Status: model.PayrollPending,
	})
	require.NoError(t, err)
	backend := &retryingStore{
		MemoryStore: ledger.NewMemoryStore(),
		conflict:    func(string) []byte { return live },
	}
	store := ledger.NewStore(backend)
	gate := compliance.NewGate(store, events.Nop{}, zap.NewNop(), compliance.Config{})
	svc := payroll.NewService(store, gate, transport.NewMemory(), events.Nop{}, zap.NewNop())

	_, err = svc.Assign(ctx, "w1", "e", 100)
	var valErr *model.ErrValidation
	assert.ErrorAs(t, err, &valErr)

	e, err := svc.Entry(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "live-entry", e.ID)
	assert.EqualValues(t, 700, e.Amount)
}

func TestAssign(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Assign(ctx, "w1", "e", 0)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	first, err := f.svc.Assign(ctx, "w1", "e", 100)
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, "w1", "e", 200)
	var valErr *model.ErrValidation
	assert.ErrorAs(t, err, &valErr, "pending entry cannot be overwritten")

	f.fund(t, "e", 1, 100)
	_, err = f.svc.Process(ctx, "w1", time.Now())
	require.NoError(t, err)

	second, err := f.svc.Assign(ctx, "w1", "e", 200)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.PayrollPending, second.Status)

	pending, err := f.svc.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.svc.Entry(ctx, "nobody")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPayoutPolicy(t *testing.T) {
	p, err := payroll.NewPayoutPolicy("")
	require.NoError(t, err)
	assert.Equal(t, payroll.DefaultPayoutExpr, p.String())

	ok, err := p.IsPayoutDay(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = p.IsPayoutDay(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	fridays, err := payroll.NewPayoutPolicy("now.getDayOfWeek() == 5")
	require.NoError(t, err)
	ok, _ = fridays.IsPayoutDay(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	assert.True(t, ok)

	_, err = payroll.NewPayoutPolicy("now.getDate()")
	assert.Error(t, err)
}
