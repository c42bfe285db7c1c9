package compliance_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/compliance"
	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

var ctx = context.Background()

func newGate(t *testing.T) (*compliance.Gate, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	return compliance.NewGate(ledger.NewStore(ledger.NewMemoryStore()), rec, zap.NewNop(), compliance.Config{}), rec
}

func TestUnknownEmployerIsNotCompliant(t *testing.T) {
	g, _ := newGate(t)
	ok, err := g.CheckCompliance(ctx, "3002")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordTaxPayment(t *testing.T) {
	g, rec := newGate(t)

	total, err := g.RecordTaxPayment(ctx, "3001", 15000)
	require.NoError(t, err)
	assert.EqualValues(t, 15000, total)

	ok, _ := g.CheckCompliance(ctx, "3001")
	assert.True(t, ok)

	total, err = g.RecordTaxPayment(ctx, "3001", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 15001, total)
	assert.Len(t, rec.OfType(model.EventTaxPaymentRecorded), 2)
}

func TestRecordTaxPayment_rejectsNonPositive(t *testing.T) {
	g, _ := newGate(t)
	for _, amt := range []int64{0, -1} {
		_, err := g.RecordTaxPayment(ctx, "e", amt)
		assert.ErrorIs(t, err, model.ErrInvalidAmount)
	}
	ok, _ := g.CheckCompliance(ctx, "e")
	assert.False(t, ok)
}

func TestAnyPaymentMakesCompliantRegardlessOfThreshold(t *testing.T) {
	g, _ := newGate(t)
	_, err := g.RecordTaxPayment(ctx, "e", 1)
	require.NoError(t, err)

	st, err := g.Standing(ctx, "e")
	require.NoError(t, err)
	assert.True(t, st.Account.Compliant)
	assert.False(t, st.MeetsThreshold)
	assert.EqualValues(t, compliance.DefaultThreshold, st.Threshold)
}

func TestEnforcePenalty(t *testing.T) {
	g, rec := newGate(t)

	res, err := g.EnforcePenalty(ctx, "3002")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.EqualValues(t, -5000, res.TaxesPaid, "balance may go negative")

	ok, _ := g.CheckCompliance(ctx, "3002")
	assert.False(t, ok)
	assert.Len(t, rec.OfType(model.EventPenaltyEnforced), 1)

	_, _ = g.RecordTaxPayment(ctx, "3002", 100)
	res, err = g.EnforcePenalty(ctx, "3002")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "no penalty applied", res.Message)
	assert.EqualValues(t, -4900, res.TaxesPaid)
}

func TestPayrollFunding(t *testing.T) {
	g, _ := newGate(t)
	require.NoError(t, g.UpdatePayrollFunding(ctx, "e", 100))
	require.NoError(t, g.UpdatePayrollFunding(ctx, "e", 70))

	assert.ErrorIs(t, g.DebitPayrollFunds(ctx, "e", 71), model.ErrInsufficientBalance)
	require.NoError(t, g.DebitPayrollFunds(ctx, "e", 70))

	acct, err := g.Account(ctx, "e")
	require.NoError(t, err)
	assert.Zero(t, acct.PayrollFunds)
	assert.False(t, acct.Compliant, "funding does not change compliance")
}

func TestConcurrentPaymentsAreNotLost(t *testing.T) {
	g, _ := newGate(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.RecordTaxPayment(ctx, "e", 10)
		}()
	}
	wg.Wait()

	acct, err := g.Account(ctx, "e")
	require.NoError(t, err)
	assert.EqualValues(t, 500, acct.TaxesPaid)
}
