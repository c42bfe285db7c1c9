package model

import "time"

// EmployerAccount is the tax and payroll standing of one employer.
//
// TaxesPaid is signed: a penalty enforced against an employer that has paid
// less than the penalty leaves a negative balance, which is read as debt.
type EmployerAccount struct {
	ID           string    `json:"id"            db:"id"`
	TaxesPaid    int64     `json:"taxes_paid"    db:"taxes_paid"`
	Compliant    bool      `json:"compliant"     db:"compliant"`
	PayrollFunds uint64    `json:"payroll_funds" db:"payroll_funds"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}

// TrustPoolRecord is a worker's balance in the trust pool.
// Created on first contribution and never deleted, only zeroed.
type TrustPoolRecord struct {
	WorkerID           string    `json:"worker_id"            db:"worker_id"`
	TotalContributed   uint64    `json:"total_contributed"    db:"total_contributed"`
	LastContributionAt time.Time `json:"last_contribution_at" db:"last_contribution_at"`
}

// PayrollStatus is the lifecycle state of a payroll entry.
type PayrollStatus string

const (
	PayrollPending   PayrollStatus = "pending"
	PayrollProcessed PayrollStatus = "processed"
)

// PayrollEntry is a wage assignment from an employer to a worker.
// It moves from pending to processed exactly once.
type PayrollEntry struct {
	ID          string        `json:"id"                     db:"id"`
	WorkerID    string        `json:"worker_id"              db:"worker_id"`
	EmployerID  string        `json:"employer_id"            db:"employer_id"`
	Amount      uint64        `json:"amount"                 db:"amount"`
	Status      PayrollStatus `json:"status"                 db:"status"`
	CreatedAt   time.Time     `json:"created_at"             db:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty" db:"processed_at"`
	TxHash      string        `json:"tx_hash,omitempty"      db:"tx_hash"`
}

// WithdrawalKind selects the trust pool withdrawal path.
type WithdrawalKind string

const (
	// WithdrawalFullRedemption releases funds to a KYC-verified child identity.
	WithdrawalFullRedemption WithdrawalKind = "full_redemption"
	// WithdrawalPartialQuorum releases funds on approval from three other workers.
	WithdrawalPartialQuorum WithdrawalKind = "partial_quorum"
)

// QuorumSize is the exact number of distinct approvers a partial withdrawal needs.
const QuorumSize = 3

// WithdrawalRequest is transient; it lives for one decision call and is
// only persisted as the audit entry recording that decision.
type WithdrawalRequest struct {
	WorkerID string         `json:"worker_id"`
	Amount   int64          `json:"amount"`
	Kind     WithdrawalKind `json:"kind"`

	// Full redemption.
	ChildID     string `json:"child_id,omitempty"`
	KYCVerified bool   `json:"kyc_verified,omitempty"`

	// Partial quorum.
	Approvers []string `json:"approvers,omitempty"`
	Proof     []byte   `json:"proof,omitempty"`
}

// WorkerType distinguishes citizen and immigrant worker programmes.
type WorkerType int

const (
	WorkerTypePNcW WorkerType = 0
	WorkerTypePNiW WorkerType = 1
)

// Valid reports whether t is a known worker type.
func (t WorkerType) Valid() bool { return t == WorkerTypePNcW || t == WorkerTypePNiW }

func (t WorkerType) String() string {
	switch t {
	case WorkerTypePNcW:
		return "pncw"
	case WorkerTypePNiW:
		return "pniw"
	}
	return "unknown"
}

// Worker is a registered worker identity.
type Worker struct {
	ID           string     `json:"id"            db:"id"`
	Type         WorkerType `json:"type"          db:"type"`
	Industry     string     `json:"industry"      db:"industry"`
	Verified     bool       `json:"verified"      db:"verified"`
	RegisteredAt time.Time  `json:"registered_at" db:"registered_at"`
}
