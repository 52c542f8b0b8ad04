package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusRefunded  Status = "refunded"
)

var statusByType = map[string]Status{
	TypePaymentSucceeded: StatusSucceeded,
	TypePaymentFailed:    StatusFailed,
	TypePaymentCanceled:  StatusCanceled,
	TypeChargeRefunded:   StatusRefunded,
}

// Payment records one applied payment event against an order.
type Payment struct {
	EventID       string
	OrderID       string
	PaymentRef    string
	Amount        int64
	Currency      string
	Status        Status
	FailureReason string
	CreatedAt     time.Time
}

func NewPayment(orderID string, ev PaymentEvent, now time.Time) Payment {
	return Payment{
		EventID:       ev.EventID,
		OrderID:       orderID,
		PaymentRef:    ev.PaymentRef,
		Amount:        ev.Amount,
		Currency:      strings.ToUpper(ev.Currency),
		Status:        statusByType[ev.Type],
		FailureReason: ev.FailureReason,
		CreatedAt:     now,
	}
}
