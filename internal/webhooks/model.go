package webhooks

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// Subscribable lists the event types a subscription may name.
var Subscribable = []model.EventType{
	model.EventTaxPaymentRecorded,
	model.EventPenaltyEnforced,
	model.EventContributionMade,
	model.EventFundsRedeemed,
	model.EventQuorumWithdrawal,
	model.EventPayrollProcessed,
	model.EventInvalidBridgeAttempt,
	model.EventKYCVerified,
	model.EventKYCRevoked,
	model.EventWorkerRegistered,
}

// Subscription is an operator's registration for event deliveries.
type Subscription struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	OperatorID string    `json:"operator_id" db:"operator_id"`
	URL        string    `json:"url"         db:"url"`
	Events     []string  `json:"events"      db:"events"`
	Secret     string    `json:"-"           db:"secret"` // never returned in API responses
	Active     bool      `json:"active"      db:"active"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	ID             uuid.UUID `json:"id"              db:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id" db:"subscription_id"`
	EventID        string    `json:"event_id"        db:"event_id"`
	EventType      string    `json:"event_type"      db:"event_type"`
	StatusCode     int       `json:"status_code"     db:"status_code"`
	Attempt        int       `json:"attempt"         db:"attempt"`
	Success        bool      `json:"success"         db:"success"`
	ErrorMessage   string    `json:"error_message"   db:"error_message"`
	DeliveredAt    time.Time `json:"delivered_at"    db:"delivered_at"`
}

// CreateSubscriptionRequest is the payload for creating a subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required"`
}

// Validate rejects unknown event types.
func (r *CreateSubscriptionRequest) Validate() error {
	for _, e := range r.Events {
		known := false
		for _, s := range Subscribable {
			if string(s) == e {
				known = true
				break
			}
		}
		if !known {
			return &model.ErrValidation{Msg: fmt.Sprintf("unknown event type %q", e)}
		}
	}
	return nil
}
