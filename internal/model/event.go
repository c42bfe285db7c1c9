package model

import "time"

// EventType names an auditable domain event.
type EventType string

const (
	EventTaxPaymentRecorded   EventType = "tax_payment_recorded"
	EventPenaltyEnforced      EventType = "penalty_enforced"
	EventContributionMade     EventType = "contribution_made"
	EventFundsRedeemed        EventType = "funds_redeemed"
	EventQuorumWithdrawal     EventType = "quorum_withdrawal"
	EventPayrollProcessed     EventType = "payroll_processed"
	EventInvalidBridgeAttempt EventType = "invalid_bridge_attempt"
	EventKYCVerified          EventType = "kyc_verified"
	EventKYCRevoked           EventType = "kyc_revoked"
	EventWorkerRegistered     EventType = "worker_registered"
)

// Event is published to the audit log and every configured event sink.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	SubjectID string            `json:"subject_id"`
	Category  FundCategory      `json:"category,omitempty"`
	Amount    uint64            `json:"amount,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	At        time.Time         `json:"at"`
}
