package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/audit"
	"github.com/PNWBNW/Proven-National-Worker/internal/bridge"
	"github.com/PNWBNW/Proven-National-Worker/internal/compliance"
	"github.com/PNWBNW/Proven-National-Worker/internal/events"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/payroll"
	"github.com/PNWBNW/Proven-National-Worker/internal/proof"
	"github.com/PNWBNW/Proven-National-Worker/internal/settlement"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
	"github.com/PNWBNW/Proven-National-Worker/internal/trustpool"
)

var ctx = context.Background()

var (
	healthy   = &model.NetworkSignal{GasFee: 10, Latency: 50 * time.Millisecond}
	congested = &model.NetworkSignal{GasFee: 100, Latency: 50 * time.Millisecond}
	slow      = &model.NetworkSignal{GasFee: 10, Latency: 500 * time.Millisecond}
)

// verifiedWorkers stands in for the worker registry.
type verifiedWorkers map[string]bool

func (v verifiedWorkers) IsVerified(_ context.Context, id string) (bool, error) { return v[id], nil }

// eligibility accepts the opening "w9-open" for worker w9 only.
func eligibility() proof.Verifier {
	return proof.NewRouter().Handle(proof.KindZKEligibility,
		proof.NewMiMCVerifier(proof.CommitmentMap{"w9": proof.MiMCCommitHex([]byte("w9-open"))}))
}

type fixture struct {
	engine    *settlement.Engine
	gate      *compliance.Gate
	payroll   *payroll.Service
	custodian *trustpool.Custodian
	mem       *transport.Memory
	log       *audit.MemoryLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewStore(ledger.NewMemoryStore())
	log := audit.NewMemoryLog()
	rec := &events.Recorder{}
	mem := transport.NewMemory()
	enforcer, err := bridge.New(mem, rec, zap.NewNop())
	require.NoError(t, err)

	f := &fixture{mem: mem, log: log}
	f.gate = compliance.NewGate(store, rec, zap.NewNop(), compliance.Config{})
	f.payroll = payroll.NewService(store, f.gate, enforcer, rec, zap.NewNop())

	// The engine's commitments are the trusted roots for approval-set proofs.
	var engine *settlement.Engine
	roots := proof.VerifierFunc(func(ctx context.Context, subject string, p []byte, k proof.Kind) (proof.Verdict, error) {
		return proof.NewMerkleVerifier(engine).Verify(ctx, subject, p, k)
	})
	f.custodian = trustpool.NewCustodian(store, enforcer, roots, rec, zap.NewNop())
	workers := verifiedWorkers{"w1": true, "w2": true, "w3": true}
	engine = settlement.New(store, f.gate, f.payroll, f.custodian, eligibility(), workers, log, zap.NewNop(), settlement.Config{})
	f.engine = engine
	return f
}

func (f *fixture) auditLen(t *testing.T) int {
	t.Helper()
	n, err := f.log.Len(ctx)
	require.NoError(t, err)
	return n
}

func TestDecide(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.UpdateCommitment(ctx, "c1", "root-a")
	require.NoError(t, err)

	d, err := f.engine.Decide(ctx, settlement.Request{ContractID: "c1", Commitment: "root-a", Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApprove, d.Outcome)
	assert.Equal(t, "c1", d.Target)

	_, err = f.engine.UpdateCommitment(ctx, "c2", "ab12cd")
	require.NoError(t, err)
	d, err = f.engine.Decide(ctx, settlement.Request{ContractID: "c2", Commitment: "AB12CD", Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApprove, d.Outcome, "hex roots compare case-insensitively")
	ok, err := f.engine.Trusted(ctx, "AB12CD")
	require.NoError(t, err)
	assert.True(t, ok)

	d, err = f.engine.Decide(ctx, settlement.Request{ContractID: "c1", Commitment: "root-b", Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, d.Outcome)
	assert.Equal(t, model.ReasonUndecided, d.Reason)
}

func TestDecide_missingRootAlwaysMismatches(t *testing.T) {
	f := newFixture(t)
	for _, provided := range []string{"", "anything"} {
		d, err := f.engine.Decide(ctx, settlement.Request{ContractID: "unknown", Commitment: provided})
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeReject, d.Outcome)
		assert.Equal(t, model.ReasonUndecided, d.Reason)
	}
}

func TestDecide_unhealthyNetworkEscalatesEvenWhenMatching(t *testing.T) {
	f := newFixture(t)
	_, _ = f.engine.UpdateCommitment(ctx, "c1", "root-a")

	for _, sig := range []*model.NetworkSignal{congested, slow} {
		d, err := f.engine.Decide(ctx, settlement.Request{ContractID: "c1", Commitment: "root-a", Signal: sig})
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeEscalate, d.Outcome)
		assert.Equal(t, model.ReasonNetworkCongestion, d.Reason)
	}
}

func TestDecide_usesObservedNetworkStatus(t *testing.T) {
	f := newFixture(t)
	_, _ = f.engine.UpdateCommitment(ctx, "c1", "root-a")
	assert.True(t, f.engine.NetworkHealthy())

	f.engine.UpdateNetworkStatus(ctx, *congested)
	assert.False(t, f.engine.NetworkHealthy())
	d, err := f.engine.Decide(ctx, settlement.Request{ContractID: "c1", Commitment: "root-a"})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeEscalate, d.Outcome)

	// An explicit signal overrides the observed one.
	d, err = f.engine.Decide(ctx, settlement.Request{ContractID: "c1", Commitment: "root-a", Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApprove, d.Outcome)
}

func TestEveryDecisionIsAudited(t *testing.T) {
	f := newFixture(t)
	start := f.auditLen(t)

	d1, _ := f.engine.Decide(ctx, settlement.Request{SubjectID: "s", ContractID: "c1", Commitment: "x"})
	d2, _ := f.engine.Decide(ctx, settlement.Request{SubjectID: "s", ContractID: "c1", Commitment: "x"})
	assert.Equal(t, start+2, f.auditLen(t))
	assert.Equal(t, d1.InputsHash, d2.InputsHash, "same inputs hash identically")

	e, err := f.log.Get(ctx, d2.AuditIndex)
	require.NoError(t, err)
	assert.Equal(t, audit.ActionDecision, e.Action)
	assert.Equal(t, model.OutcomeReject, e.Outcome)
	require.NoError(t, f.log.Verify(ctx))
}

func TestScenario3001_compliantEmployerApproved(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.RecordTaxPayment(ctx, "3001", 15000)
	require.NoError(t, err)
	require.NoError(t, f.gate.UpdatePayrollFunding(ctx, "3001", 5000))
	entry, err := f.payroll.Assign(ctx, "w1", "3001", 5000)
	require.NoError(t, err)
	_, err = f.engine.UpdateCommitment(ctx, "payroll-3001", "root-3001")
	require.NoError(t, err)

	d, err := f.engine.SettlePayroll(ctx, settlement.PayrollRequest{
		WorkerID: "w1", ContractID: "payroll-3001", Commitment: "root-3001", Signal: healthy,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApprove, d.Outcome)
	assert.Equal(t, entry.ID, d.Target)
	require.NotNil(t, d.Payroll)
	assert.True(t, d.Payroll.Processed)
	assert.EqualValues(t, 5000, f.mem.Total())

	again, err := f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, again.Outcome)
	assert.Equal(t, "already_processed", again.Code)
}

func TestScenario3002_nonCompliantLeavesEntryPending(t *testing.T) {
	f := newFixture(t)
	ok, err := f.gate.CheckCompliance(ctx, "3002")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.gate.UpdatePayrollFunding(ctx, "3002", 5000))
	before, err := f.payroll.Assign(ctx, "w2", "3002", 5000)
	require.NoError(t, err)

	d, err := f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w2", Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, d.Outcome)
	assert.Equal(t, model.ReasonNotProcessed, d.Reason)

	after, err := f.payroll.Entry(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, model.PayrollPending, after.Status)
	assert.Empty(t, f.mem.Transfers())
}

func TestSettlePayroll_gates(t *testing.T) {
	f := newFixture(t)
	_, _ = f.gate.RecordTaxPayment(ctx, "e", 1)
	_ = f.gate.UpdatePayrollFunding(ctx, "e", 100)
	_, _ = f.payroll.Assign(ctx, "w1", "e", 100)

	d, err := f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w1", Signal: congested})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeEscalate, d.Outcome)

	d, err = f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w1", ContractID: "c", Commitment: "r", Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, d.Outcome)
	assert.Equal(t, model.ReasonUndecided, d.Reason)

	d, err = f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, "not_found", d.Code)

	assert.Empty(t, f.mem.Transfers())
}

func TestSettlePayroll_insufficientFundsRejects(t *testing.T) {
	f := newFixture(t)
	_, _ = f.gate.RecordTaxPayment(ctx, "e", 1)
	_, _ = f.payroll.Assign(ctx, "w1", "e", 100)

	d, err := f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, d.Outcome)
	assert.Equal(t, "insufficient_balance", d.Code)
}

func TestSettlePayroll_eligibility(t *testing.T) {
	f := newFixture(t)
	_, _ = f.gate.RecordTaxPayment(ctx, "e", 1)
	_ = f.gate.UpdatePayrollFunding(ctx, "e", 1000)
	_, _ = f.payroll.Assign(ctx, "w9", "e", 100)
	_, _ = f.payroll.Assign(ctx, "w8", "e", 100)

	// w9 is not registered and brings no proof.
	d, err := f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w9", Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, d.Outcome)
	assert.Equal(t, "proof_invalid", d.Code)

	d, err = f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w9", Proof: []byte("forged"), Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, d.Outcome)
	assert.Equal(t, "proof_invalid", d.Code)

	// Another worker's opening does not transfer.
	d, err = f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w8", Proof: []byte("w9-open"), Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, "proof_invalid", d.Code)

	assert.Empty(t, f.mem.Transfers())
	e, _ := f.payroll.Entry(ctx, "w9")
	assert.Equal(t, model.PayrollPending, e.Status)

	d, err = f.engine.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w9", Proof: []byte("w9-open"), Signal: healthy})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApprove, d.Outcome)
	assert.EqualValues(t, 100, f.mem.Total())
}

func quorumProof(t *testing.T, f *fixture, worker string, approvers []string) []byte {
	t.Helper()
	tree, err := proof.BuildTree([]string{proof.ApprovalSetSubject(worker, approvers)})
	require.NoError(t, err)
	_, err = f.engine.UpdateCommitment(ctx, "quorum-roots", tree.Root)
	require.NoError(t, err)
	raw, err := tree.ProveJSON(proof.ApprovalSetSubject(worker, approvers))
	require.NoError(t, err)
	return raw
}

func TestScenarioW1_insufficientBalanceWithValidQuorum(t *testing.T) {
	f := newFixture(t)
	_, err := f.custodian.Contribute(ctx, "w1", 1000)
	require.NoError(t, err)
	approvers := []string{"a1", "a2", "a3"}

	d, err := f.engine.SettleWithdrawal(ctx, settlement.WithdrawalRequest{
		WithdrawalRequest: model.WithdrawalRequest{
			WorkerID: "w1", Amount: 1500, Kind: model.WithdrawalPartialQuorum,
			Approvers: approvers, Proof: quorumProof(t, f, "w1", approvers),
		},
		Signal: healthy,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeReject, d.Outcome)
	assert.Equal(t, "insufficient_balance", d.Code)

	rec, _ := f.custodian.Balance(ctx, "w1")
	assert.EqualValues(t, 1000, rec.TotalContributed)
}

func TestSettleWithdrawal_viaApprovals(t *testing.T) {
	f := newFixture(t)
	_, _ = f.custodian.Contribute(ctx, "w1", 1000)
	a, err := f.custodian.OpenApproval(ctx, "w1", 400)
	require.NoError(t, err)
	_, _ = f.custodian.Approve(ctx, a.ID, "a1")

	req := settlement.WithdrawalRequest{
		WithdrawalRequest: model.WithdrawalRequest{WorkerID: "w1"},
		ApprovalID:        a.ID,
	}
	d, err := f.engine.SettleWithdrawal(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeEscalate, d.Outcome)
	assert.Equal(t, model.ReasonAwaitingQuorum, d.Reason)

	_, _ = f.custodian.Approve(ctx, a.ID, "a2")
	_, _ = f.custodian.Approve(ctx, a.ID, "a3")
	req.Proof = quorumProof(t, f, "w1", []string{"a1", "a2", "a3"})

	d, err = f.engine.SettleWithdrawal(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeApprove, d.Outcome)
	require.NotNil(t, d.Withdrawal)
	assert.EqualValues(t, 600, d.Withdrawal.Remaining)
	assert.Equal(t, d.Withdrawal.TxHash, d.Target)

	other := req
	other.WorkerID = "w2"
	d, err = f.engine.SettleWithdrawal(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "unauthorized", d.Code)
}

func TestSettleWithdrawal_unhealthyNetworkBeforeAnything(t *testing.T) {
	f := newFixture(t)
	d, err := f.engine.SettleWithdrawal(ctx, settlement.WithdrawalRequest{
		WithdrawalRequest: model.WithdrawalRequest{WorkerID: "w1", Amount: -1},
		Signal:            slow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeEscalate, d.Outcome)
}

func TestSettleBatch_independentSubjects(t *testing.T) {
	f := newFixture(t)
	_, _ = f.gate.RecordTaxPayment(ctx, "good", 1)
	_ = f.gate.UpdatePayrollFunding(ctx, "good", 1000)
	_, _ = f.payroll.Assign(ctx, "w1", "good", 100)
	_, _ = f.payroll.Assign(ctx, "w2", "bad", 100)
	_, _ = f.payroll.Assign(ctx, "w3", "good", 100)

	results := f.engine.SettleBatch(ctx, []settlement.PayrollRequest{
		{WorkerID: "w1"}, {WorkerID: "w2"}, {WorkerID: "w3"},
	})
	require.Len(t, results, 3)
	assert.Equal(t, model.OutcomeApprove, results[0].Decision.Outcome)
	assert.Equal(t, model.OutcomeReject, results[1].Decision.Outcome)
	assert.Equal(t, model.OutcomeApprove, results[2].Decision.Outcome)
	assert.EqualValues(t, 200, f.mem.Total())
}

type corruptPayroll struct{}

func (corruptPayroll) Entry(context.Context, string) (*model.PayrollEntry, error) {
	return nil, model.ErrCorrupt
}

func (corruptPayroll) Process(context.Context, string, time.Time) (*payroll.Result, error) {
	return nil, errors.New("unreachable")
}

func TestCorruptionFailsRequestWithoutDecision(t *testing.T) {
	store := ledger.NewStore(ledger.NewMemoryStore())
	log := audit.NewMemoryLog()
	gate := compliance.NewGate(store, events.Nop{}, zap.NewNop(), compliance.Config{})
	e := settlement.New(store, gate, corruptPayroll{}, nil, eligibility(), nil, log, zap.NewNop(), settlement.Config{})

	_, err := e.SettlePayroll(ctx, settlement.PayrollRequest{WorkerID: "w1"})
	assert.ErrorIs(t, err, model.ErrCorrupt)
	n, _ := log.Len(ctx)
	assert.Equal(t, 1, n, "only genesis")

	results := e.SettleBatch(ctx, []settlement.PayrollRequest{{WorkerID: "w1"}})
	assert.NotEmpty(t, results[0].Error)
}

func TestTrustedRoots(t *testing.T) {
	f := newFixture(t)
	ok, err := f.engine.Trusted(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _ = f.engine.UpdateCommitment(ctx, "c1", "r1")
	ok, _ = f.engine.Trusted(ctx, "r1")
	assert.True(t, ok)

	_, _ = f.engine.UpdateCommitment(ctx, "c1", "r2")
	ok, _ = f.engine.Trusted(ctx, "r1")
	assert.False(t, ok, "superseded roots are no longer trusted")
}
