package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/audit"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
	"github.com/PNWBNW/Proven-National-Worker/internal/payroll"
	"github.com/PNWBNW/Proven-National-Worker/internal/proof"
	"github.com/PNWBNW/Proven-National-Worker/internal/trustpool"
)

const tracerName = "github.com/PNWBNW/Proven-National-Worker/internal/settlement"

// Decision kinds, used in snapshots and metrics.
const (
	KindCommitment = "commitment"
	KindPayroll    = "payroll"
	KindWithdrawal = "withdrawal"
)

// Codes for rejections that do not come from a domain error.
const (
	CodeCommitmentMismatch = "commitment_mismatch"
	CodeNotCompliant       = "not_compliant"
	CodeNetwork            = "network_unhealthy"
	CodeAwaitingQuorum     = "awaiting_quorum"
)

// How a payroll subject's eligibility was established.
const (
	EligibilityProof      = "zk_proof"
	EligibilityRegistered = "registered_worker"
)

// Compliance is the compliance view the engine consults.
type Compliance interface {
	CheckCompliance(ctx context.Context, employerID string) (bool, error)
}

// Payroll is the payroll component.
type Payroll interface {
	Entry(ctx context.Context, workerID string) (*model.PayrollEntry, error)
	Process(ctx context.Context, workerID string, now time.Time) (*payroll.Result, error)
}

// Custodian is the trust pool component.
type Custodian interface {
	Withdraw(ctx context.Context, req model.WithdrawalRequest) (*trustpool.Withdrawal, error)
	Approval(ctx context.Context, requestID string) (*trustpool.Approval, error)
}

// Workers reports workers whose identity and KYC proofs were verified at
// registration.
type Workers interface {
	IsVerified(ctx context.Context, workerID string) (bool, error)
}

// Config tunes the engine.
type Config struct {
	Thresholds Thresholds
}

// Request asks for a commitment decision on a contract.
type Request struct {
	SubjectID  string               `json:"subject_id"`
	ContractID string               `json:"contract_id"`
	Commitment string               `json:"commitment"`
	Signal     *model.NetworkSignal `json:"signal,omitempty"`
}

// PayrollRequest asks to settle a worker's pending payroll entry. When
// ContractID is set the commitment gate applies as in Decide. Proof is a
// zk_eligibility opening for the worker; without one the worker must be
// registered and verified.
type PayrollRequest struct {
	WorkerID   string               `json:"worker_id"`
	ContractID string               `json:"contract_id,omitempty"`
	Commitment string               `json:"commitment,omitempty"`
	Proof      []byte               `json:"proof,omitempty"`
	Signal     *model.NetworkSignal `json:"signal,omitempty"`
}

// WithdrawalRequest asks to settle a trust pool withdrawal. ApprovalID, when
// set, supplies the approvers collected through the custodian.
type WithdrawalRequest struct {
	model.WithdrawalRequest
	ApprovalID string               `json:"approval_id,omitempty"`
	Signal     *model.NetworkSignal `json:"signal,omitempty"`
}

// Decision is the structured outcome returned to callers.
type Decision struct {
	model.DecisionRecord
	Kind       string                `json:"kind"`
	AuditIndex int                   `json:"audit_index"`
	Payroll    *payroll.Result       `json:"payroll,omitempty"`
	Withdrawal *trustpool.Withdrawal `json:"withdrawal,omitempty"`
}

// BatchResult is one subject's result in SettleBatch. Exactly one of
// Decision and Error is set.
type BatchResult struct {
	WorkerID string    `json:"worker_id"`
	Decision *Decision `json:"decision,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// DecisionRecorder observes every recorded decision.
type DecisionRecorder func(kind string, outcome model.Outcome, code string)

// Engine is the settlement decision engine.
type Engine struct {
	store      *ledger.Store
	compliance Compliance
	payroll    Payroll
	custodian  Custodian
	proofs     proof.Verifier
	workers    Workers
	log        audit.Log
	logger     *zap.Logger
	tracer     trace.Tracer
	cfg        Config
	now        func() time.Time

	netMu   sync.RWMutex
	network *model.NetworkSignal

	onDecision DecisionRecorder
	onNetwork  func(model.NetworkSignal, bool)
}

// New creates an Engine. proofs checks payroll eligibility proofs; workers
// may be nil, in which case every payroll request must carry a proof.
func New(store *ledger.Store, c Compliance, p Payroll, cust Custodian, proofs proof.Verifier, workers Workers, log audit.Log, logger *zap.Logger, cfg Config) *Engine {
	if cfg.Thresholds.MaxGasFee == 0 {
		cfg.Thresholds.MaxGasFee = DefaultThresholds.MaxGasFee
	}
	if cfg.Thresholds.MaxLatency == 0 {
		cfg.Thresholds.MaxLatency = DefaultThresholds.MaxLatency
	}
	return &Engine{
		store:      store,
		compliance: c,
		payroll:    p,
		custodian:  cust,
		proofs:     proofs,
		workers:    workers,
		log:        log,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetDecisionRecorder installs a metrics callback.
func (e *Engine) SetDecisionRecorder(fn DecisionRecorder) { e.onDecision = fn }

// SetNetworkObserver is called with every network update and its health.
func (e *Engine) SetNetworkObserver(fn func(model.NetworkSignal, bool)) { e.onNetwork = fn }

// snapshot is everything a decision consulted. Its canonical hash is the
// decision's InputsHash.
type snapshot struct {
	Kind               string               `json:"kind"`
	SubjectID          string               `json:"subject_id"`
	ContractID         string               `json:"contract_id,omitempty"`
	ProvidedCommitment string               `json:"provided_commitment,omitempty"`
	StoredCommitment   *string              `json:"stored_commitment,omitempty"`
	Network            *model.NetworkSignal `json:"network,omitempty"`
	NetworkHealthy     bool                 `json:"network_healthy"`
	EmployerID         string               `json:"employer_id,omitempty"`
	EntryID            string               `json:"entry_id,omitempty"`
	EntryStatus        model.PayrollStatus  `json:"entry_status,omitempty"`
	Compliant          *bool                `json:"compliant,omitempty"`
	Amount             int64                `json:"amount,omitempty"`
	WithdrawalKind     model.WithdrawalKind `json:"withdrawal_kind,omitempty"`
	ChildID            string               `json:"child_id,omitempty"`
	KYCVerified        bool                 `json:"kyc_verified,omitempty"`
	Approvers          []string             `json:"approvers,omitempty"`
	ApprovalID         string               `json:"approval_id,omitempty"`
	ProofDigest        string               `json:"proof_digest,omitempty"`
	Eligibility        string               `json:"eligibility,omitempty"`
}

// verdict is a decision before it is recorded.
type verdict struct {
	outcome model.Outcome
	reason  string
	code    string
	target  string
}

func approve(target string) *verdict { return &verdict{outcome: model.OutcomeApprove, target: target} }

func reject(reason, code string) *verdict {
	return &verdict{outcome: model.OutcomeReject, reason: reason, code: code}
}

func rejectErr(err error) *verdict { return reject(err.Error(), model.ErrorCode(err)) }

// networkGate escalates on an unhealthy signal. It returns nil to continue.
func (e *Engine) networkGate(explicit *model.NetworkSignal, snap *snapshot) *verdict {
	sig := e.signal(explicit)
	snap.Network = sig
	snap.NetworkHealthy = sig == nil || e.cfg.Thresholds.Healthy(*sig)
	if !snap.NetworkHealthy {
		return &verdict{outcome: model.OutcomeEscalate, reason: model.ReasonNetworkCongestion, code: CodeNetwork}
	}
	return nil
}

// commitmentGate rejects unless provided equals a stored, non-empty root.
// Roots are hex, so the comparison ignores case as Trusted does.
func (e *Engine) commitmentGate(ctx context.Context, contractID, provided string, snap *snapshot) (*verdict, error) {
	stored, err := e.Commitment(ctx, contractID)
	if err != nil {
		return nil, err
	}
	snap.ContractID = contractID
	snap.ProvidedCommitment = provided
	snap.StoredCommitment = &stored
	if stored == "" || !strings.EqualFold(stored, provided) {
		return reject(model.ReasonUndecided, CodeCommitmentMismatch), nil
	}
	return nil, nil
}

// eligibilityGate rejects a payroll subject that neither carries a valid
// zk_eligibility proof nor is a verified registered worker.
func (e *Engine) eligibilityGate(ctx context.Context, workerID string, raw []byte, snap *snapshot) (*verdict, error) {
	if len(raw) > 0 {
		snap.ProofDigest = proofDigest(raw)
		v, err := e.proofs.Verify(ctx, workerID, raw, proof.KindZKEligibility)
		if err != nil {
			return nil, fmt.Errorf("verify eligibility proof: %w", err)
		}
		if v != proof.Valid {
			return rejectErr(fmt.Errorf("%w: eligibility proof rejected for worker %s", model.ErrProofInvalid, workerID)), nil
		}
		snap.Eligibility = EligibilityProof
		return nil, nil
	}
	if e.workers != nil {
		ok, err := e.workers.IsVerified(ctx, workerID)
		if err != nil {
			return nil, err
		}
		if ok {
			snap.Eligibility = EligibilityRegistered
			return nil, nil
		}
	}
	return rejectErr(fmt.Errorf("%w: worker %s has no eligibility proof and is not a verified worker", model.ErrProofInvalid, workerID)), nil
}

func proofDigest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Decide runs the generic commitment decision for a contract.
func (e *Engine) Decide(ctx context.Context, req Request) (*Decision, error) {
	ctx, span := e.start(ctx, KindCommitment, req.SubjectID)
	defer span.End()

	subject := req.SubjectID
	if subject == "" {
		subject = req.ContractID
	}
	snap := &snapshot{Kind: KindCommitment, SubjectID: subject}

	if v := e.networkGate(req.Signal, snap); v != nil {
		return e.record(ctx, span, snap, v)
	}
	if req.ContractID == "" {
		return e.record(ctx, span, snap, rejectErr(&model.ErrValidation{Msg: "contract id is required"}))
	}
	v, err := e.commitmentGate(ctx, req.ContractID, req.Commitment, snap)
	if err != nil {
		return nil, e.fail(span, err)
	}
	if v == nil {
		v = approve(req.ContractID)
	}
	return e.record(ctx, span, snap, v)
}

// SettlePayroll settles one worker's pending payroll entry.
func (e *Engine) SettlePayroll(ctx context.Context, req PayrollRequest) (*Decision, error) {
	ctx, span := e.start(ctx, KindPayroll, req.WorkerID)
	defer span.End()

	snap := &snapshot{Kind: KindPayroll, SubjectID: req.WorkerID}
	if v := e.networkGate(req.Signal, snap); v != nil {
		return e.record(ctx, span, snap, v)
	}
	if req.WorkerID == "" {
		return e.record(ctx, span, snap, rejectErr(&model.ErrValidation{Msg: "worker id is required"}))
	}
	if req.ContractID != "" {
		v, err := e.commitmentGate(ctx, req.ContractID, req.Commitment, snap)
		if err != nil {
			return nil, e.fail(span, err)
		}
		if v != nil {
			return e.record(ctx, span, snap, v)
		}
	}

	entry, err := e.payroll.Entry(ctx, req.WorkerID)
	if err != nil {
		if model.IsDomain(err) {
			return e.record(ctx, span, snap, rejectErr(err))
		}
		return nil, e.fail(span, err)
	}
	snap.EmployerID = entry.EmployerID
	snap.EntryID = entry.ID
	snap.EntryStatus = entry.Status
	snap.Amount = int64(entry.Amount)

	v, err := e.eligibilityGate(ctx, req.WorkerID, req.Proof, snap)
	if err != nil {
		return nil, e.fail(span, err)
	}
	if v != nil {
		return e.record(ctx, span, snap, v)
	}

	compliant, err := e.compliance.CheckCompliance(ctx, entry.EmployerID)
	if err != nil {
		return nil, e.fail(span, err)
	}
	snap.Compliant = &compliant

	res, err := e.payroll.Process(ctx, req.WorkerID, e.now())
	if err != nil {
		if model.IsDomain(err) {
			return e.record(ctx, span, snap, rejectErr(err))
		}
		return nil, e.fail(span, err)
	}
	if !res.Processed {
		d, err := e.record(ctx, span, snap, reject(res.Reason, CodeNotCompliant))
		if d != nil {
			d.Payroll = res
		}
		return d, err
	}

	d, err := e.record(ctx, span, snap, approve(res.Entry.ID))
	if d != nil {
		d.Payroll = res
	}
	return d, err
}

// SettleWithdrawal settles a trust pool withdrawal.
func (e *Engine) SettleWithdrawal(ctx context.Context, req WithdrawalRequest) (*Decision, error) {
	ctx, span := e.start(ctx, KindWithdrawal, req.WorkerID)
	defer span.End()

	snap := &snapshot{
		Kind:           KindWithdrawal,
		SubjectID:      req.WorkerID,
		Amount:         req.Amount,
		WithdrawalKind: req.Kind,
		ChildID:        req.ChildID,
		KYCVerified:    req.KYCVerified,
		ApprovalID:     req.ApprovalID,
	}
	if len(req.Proof) > 0 {
		snap.ProofDigest = proofDigest(req.Proof)
	}
	if v := e.networkGate(req.Signal, snap); v != nil {
		return e.record(ctx, span, snap, v)
	}

	wreq := req.WithdrawalRequest
	if req.ApprovalID != "" {
		a, err := e.custodian.Approval(ctx, req.ApprovalID)
		if err != nil {
			if model.IsDomain(err) {
				return e.record(ctx, span, snap, rejectErr(err))
			}
			return nil, e.fail(span, err)
		}
		if a.WorkerID != req.WorkerID {
			return e.record(ctx, span, snap, rejectErr(fmt.Errorf("%w: approval belongs to another worker", model.ErrUnauthorized)))
		}
		wreq.Kind = model.WithdrawalPartialQuorum
		wreq.Approvers = a.Approvers
		if wreq.Amount == 0 {
			wreq.Amount = a.Amount
		}
		snap.WithdrawalKind = wreq.Kind
		snap.Amount = wreq.Amount
		if !a.Complete() && wreq.Amount > 0 {
			snap.Approvers = a.Approvers
			return e.record(ctx, span, snap, &verdict{
				outcome: model.OutcomeEscalate,
				reason:  model.ReasonAwaitingQuorum,
				code:    CodeAwaitingQuorum,
			})
		}
	}
	snap.Approvers = wreq.Approvers

	w, err := e.custodian.Withdraw(ctx, wreq)
	if err != nil {
		if model.IsDomain(err) {
			return e.record(ctx, span, snap, rejectErr(err))
		}
		return nil, e.fail(span, err)
	}
	d, err := e.record(ctx, span, snap, approve(w.TxHash))
	if d != nil {
		d.Withdrawal = w
	}
	return d, err
}

// SettleBatch settles each request independently, in order. A failure for
// one subject neither stops nor rolls back the others.
func (e *Engine) SettleBatch(ctx context.Context, reqs []PayrollRequest) []BatchResult {
	out := make([]BatchResult, 0, len(reqs))
	for _, req := range reqs {
		r := BatchResult{WorkerID: req.WorkerID}
		d, err := e.SettlePayroll(ctx, req)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Decision = d
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) start(ctx context.Context, kind, subject string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "settlement."+kind,
		trace.WithAttributes(attribute.String("pnw.subject_id", subject)))
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.logger.Error("settlement request failed", zap.Error(err))
	return err
}

// record appends the decision to the audit log. A failed append is logged
// and reported through AuditIndex -1; side effects may already have
// happened, so the decision is still returned.
func (e *Engine) record(ctx context.Context, span trace.Span, snap *snapshot, v *verdict) (*Decision, error) {
	hash, err := audit.InputsHash(snap)
	if err != nil {
		return nil, e.fail(span, fmt.Errorf("hash decision inputs: %w", err))
	}

	d := &Decision{
		DecisionRecord: model.DecisionRecord{
			SubjectID:  snap.SubjectID,
			InputsHash: hash,
			Outcome:    v.outcome,
			Reason:     v.reason,
			Code:       v.code,
			Target:     v.target,
			DecidedAt:  e.now(),
		},
		Kind:       snap.Kind,
		AuditIndex: -1,
	}

	entry, err := e.log.Append(ctx, audit.Record{
		SubjectID:  d.SubjectID,
		Action:     audit.ActionDecision,
		Actor:      audit.ActorFrom(ctx),
		Outcome:    d.Outcome,
		Reason:     d.Reason,
		Code:       d.Code,
		Target:     d.Target,
		InputsHash: d.InputsHash,
	})
	if err != nil {
		e.logger.Error("decision audit append failed",
			zap.String("subject_id", d.SubjectID),
			zap.String("outcome", string(d.Outcome)),
			zap.Error(err),
		)
	} else {
		d.AuditIndex = entry.Index
		d.DecidedAt = entry.Timestamp
	}

	span.SetAttributes(
		attribute.String("pnw.outcome", string(d.Outcome)),
		attribute.String("pnw.code", d.Code),
	)
	e.logger.Debug("settlement decision",
		zap.String("kind", d.Kind),
		zap.String("subject_id", d.SubjectID),
		zap.String("outcome", string(d.Outcome)),
		zap.String("reason", d.Reason),
	)
	if e.onDecision != nil {
		e.onDecision(d.Kind, d.Outcome, d.Code)
	}
	return d, nil
}
