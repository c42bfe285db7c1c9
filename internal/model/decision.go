package model

import "time"

// Outcome is the verdict of a settlement decision.
type Outcome string

const (
	OutcomeApprove  Outcome = "approve"
	OutcomeEscalate Outcome = "escalate"
	OutcomeReject   Outcome = "reject"
)

// Reasons shared by the decision engine and its callers.
const (
	ReasonNetworkCongestion = "network congestion, governance vote required"
	ReasonUndecided         = "undecided"
	ReasonNotProcessed      = "not processed: employer not compliant"
	ReasonAwaitingQuorum    = "awaiting quorum approval"
)

// DecisionRecord is the audit artifact written once per decision call.
type DecisionRecord struct {
	SubjectID  string    `json:"subject_id"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason"`
	Code       string    `json:"code,omitempty"`
	Target     string    `json:"target,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// NetworkSignal is an observation of ledger network health.
type NetworkSignal struct {
	GasFee     uint64        `json:"gas_fee"`
	Latency    time.Duration `json:"latency"`
	ObservedAt time.Time     `json:"observed_at"`
}
