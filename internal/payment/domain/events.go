package domain

import "time"

// Notification types consumed from the payment provider.
const (
	TypePaymentSucceeded = "payment_intent.succeeded"
	TypePaymentFailed    = "payment_intent.payment_failed"
	TypePaymentCanceled  = "payment_intent.canceled"
	TypeChargeRefunded   = "charge.refunded"
)

// PaymentEvent is a provider notification normalized to what order
// reconciliation needs. Delivery is at-least-once and unordered.
type PaymentEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	PaymentRef    string    `json:"payment_ref"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
