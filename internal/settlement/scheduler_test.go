package settlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/payroll"
	"github.com/PNWBNW/Proven-National-Worker/internal/settlement"
)

func TestScheduler_runsOncePerPayoutDay(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.RecordTaxPayment(ctx, "3001", 15000)
	require.NoError(t, err)
	require.NoError(t, f.gate.UpdatePayrollFunding(ctx, "3001", 10000))
	_, err = f.payroll.Assign(ctx, "w1", "3001", 4000)
	require.NoError(t, err)
	_, err = f.payroll.Assign(ctx, "w2", "3002", 4000)
	require.NoError(t, err)

	policy, err := payroll.NewPayoutPolicy("")
	require.NoError(t, err)
	s := settlement.NewScheduler(f.engine, policy, f.payroll, zap.NewNop())

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	settlement.SetSchedulerClock(s, func() time.Time { return now })
	results, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, results, "the 2nd is not a payout day")

	now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	results, err = s.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	outcomes := map[string]model.Outcome{}
	for _, r := range results {
		require.NotNil(t, r.Decision, r.Error)
		outcomes[r.WorkerID] = r.Decision.Outcome
	}
	assert.Equal(t, model.OutcomeApprove, outcomes["w1"])
	assert.Equal(t, model.OutcomeReject, outcomes["w2"])
	assert.EqualValues(t, 4000, f.mem.Total())

	now = now.Add(3 * time.Hour)
	results, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, results, "second tick on the same day is a no-op")
}
