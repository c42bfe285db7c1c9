package model

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProofInvalid        = errors.New("proof invalid")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrPolicyViolation     = errors.New("policy violation")
	ErrTransferFailed      = errors.New("transfer failed")

	// ErrCorrupt marks stored state that cannot be decoded. It is the only
	// domain error that fails a request instead of becoming a decision.
	ErrCorrupt = errors.New("corrupt ledger record")
)

// ErrValidation is returned when the caller supplies malformed input.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// ErrorCode maps an error to the stable code surfaced in decisions and API
// responses. Unknown errors map to "internal".
func ErrorCode(err error) string {
	var valErr *ErrValidation
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrProofInvalid):
		return "proof_invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.As(err, &valErr):
		return "invalid_request"
	}
	return "internal"
}

// IsDomain reports whether err is an expected business outcome that the
// settlement engine turns into a decision rather than a failure.
func IsDomain(err error) bool {
	switch ErrorCode(err) {
	case "", "corrupt", "internal":
		return false
	}
	return true
}
