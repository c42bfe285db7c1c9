package client

import (
	"encoding/json"
	"time"
)

// Outcome is a settlement verdict.
type Outcome string

const (
	OutcomeApprove  Outcome = "approve"
	OutcomeEscalate Outcome = "escalate"
	OutcomeReject   Outcome = "reject"
)

// Operator is an authenticated desk at the settlement service.
type Operator struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token    string   `json:"token"`
	Operator Operator `json:"operator"`
}

// EmployerAccount is an employer's tax and payroll standing.
type EmployerAccount struct {
	ID           string    `json:"id"`
	TaxesPaid    int64     `json:"taxes_paid"`
	Compliant    bool      `json:"compliant"`
	PayrollFunds uint64    `json:"payroll_funds"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Standing is an account read against the informational threshold.
type Standing struct {
	Account        EmployerAccount `json:"account"`
	Threshold      int64           `json:"threshold"`
	MeetsThreshold bool            `json:"meets_threshold"`
}

// PenaltyResult reports what EnforcePenalty did.
type PenaltyResult struct {
	Applied   bool   `json:"applied"`
	Amount    int64  `json:"amount"`
	TaxesPaid int64  `json:"taxes_paid"`
	Message   string `json:"message"`
}

// TrustPoolRecord is a worker's trust pool balance.
type TrustPoolRecord struct {
	WorkerID           string    `json:"worker_id"`
	TotalContributed   uint64    `json:"total_contributed"`
	LastContributionAt time.Time `json:"last_contribution_at"`
}

// KYCRecord is a custodian's KYC attestation for a child identity.
type KYCRecord struct {
	ID          string     `json:"id"`
	Verified    bool       `json:"verified"`
	Attestation string     `json:"attestation"`
	VerifiedAt  time.Time  `json:"verified_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Approval collects approvers for a quorum withdrawal.
type Approval struct {
	ID        string    `json:"id"`
	WorkerID  string    `json:"worker_id"`
	Amount    int64     `json:"amount"`
	Approvers []string  `json:"approvers"`
	CreatedAt time.Time `json:"created_at"`
}

// ApprovalStatus is an approval and whether its quorum is complete.
type ApprovalStatus struct {
	Approval Approval `json:"approval"`
	Complete bool     `json:"complete"`
}

// PayrollEntry is a wage assignment from an employer to a worker.
type PayrollEntry struct {
	ID          string     `json:"id"`
	WorkerID    string     `json:"worker_id"`
	EmployerID  string     `json:"employer_id"`
	Amount      uint64     `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	TxHash      string     `json:"tx_hash,omitempty"`
}

// NetworkSignal is a ledger network observation. Latency is in
// nanoseconds on the wire.
type NetworkSignal struct {
	GasFee     uint64        `json:"gas_fee"`
	Latency    time.Duration `json:"latency"`
	ObservedAt time.Time     `json:"observed_at,omitempty"`
}

// DecideRequest asks for a commitment decision on a contract.
type DecideRequest struct {
	SubjectID  string         `json:"subject_id"`
	ContractID string         `json:"contract_id"`
	Commitment string         `json:"commitment"`
	Signal     *NetworkSignal `json:"signal,omitempty"`
}

// PayrollRequest asks to settle a worker's pending payroll entry. Proof is
// the worker's eligibility opening; registered workers may omit it.
type PayrollRequest struct {
	WorkerID   string         `json:"worker_id"`
	ContractID string         `json:"contract_id,omitempty"`
	Commitment string         `json:"commitment,omitempty"`
	Proof      []byte         `json:"proof,omitempty"`
	Signal     *NetworkSignal `json:"signal,omitempty"`
}

// Withdrawal kinds.
const (
	WithdrawalFullRedemption = "full_redemption"
	WithdrawalPartialQuorum  = "partial_quorum"
)

// WithdrawalRequest asks to settle a trust pool withdrawal.
type WithdrawalRequest struct {
	WorkerID    string         `json:"worker_id"`
	Amount      int64          `json:"amount"`
	Kind        string         `json:"kind"`
	ChildID     string         `json:"child_id,omitempty"`
	KYCVerified bool           `json:"kyc_verified,omitempty"`
	Approvers   []string       `json:"approvers,omitempty"`
	Proof       []byte         `json:"proof,omitempty"`
	ApprovalID  string         `json:"approval_id,omitempty"`
	Signal      *NetworkSignal `json:"signal,omitempty"`
}

// Decision is a settlement verdict. Payroll and Withdrawal carry the side
// effects of an approved settlement and are left raw.
type Decision struct {
	SubjectID  string          `json:"subject_id"`
	InputsHash string          `json:"inputs_hash"`
	Outcome    Outcome         `json:"outcome"`
	Reason     string          `json:"reason"`
	Code       string          `json:"code,omitempty"`
	Target     string          `json:"target,omitempty"`
	DecidedAt  time.Time       `json:"decided_at"`
	Kind       string          `json:"kind"`
	AuditIndex int             `json:"audit_index"`
	Payroll    json.RawMessage `json:"payroll,omitempty"`
	Withdrawal json.RawMessage `json:"withdrawal,omitempty"`
}

// BatchResult is one subject's result from SettleBatch.
type BatchResult struct {
	WorkerID string    `json:"worker_id"`
	Decision *Decision `json:"decision,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// NetworkStatus is the service's latest view of the ledger network.
type NetworkStatus struct {
	Observed   bool      `json:"observed"`
	Healthy    bool      `json:"healthy"`
	GasFee     uint64    `json:"gas_fee"`
	LatencyMS  int64     `json:"latency_ms"`
	ObservedAt time.Time `json:"observed_at"`
}

// Worker is a registered worker identity.
type Worker struct {
	ID           string    `json:"id"`
	Type         int       `json:"type"`
	Industry     string    `json:"industry"`
	Verified     bool      `json:"verified"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RegisterWorkerRequest is the payload for RegisterWorker.
type RegisterWorkerRequest struct {
	ID            string `json:"id"`
	Type          int    `json:"type"`
	Industry      string `json:"industry"`
	IdentityProof []byte `json:"identity_proof"`
	KYCProof      []byte `json:"kyc_proof"`
}

// AuditEntry is one link of the audit hash chain.
type AuditEntry struct {
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"timestamp"`
	SubjectID  string    `json:"subject_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Code       string    `json:"code,omitempty"`
	Target     string    `json:"target,omitempty"`
	InputsHash string    `json:"inputs_hash"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

// AuditOverview is the chain length and head hash.
type AuditOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}
