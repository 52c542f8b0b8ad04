package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrIllegalTransition = errors.New("illegal order transition")

// Trigger is a payment notification type that may move an order.
type Trigger string

const (
	TriggerPaymentSucceeded Trigger = "payment_intent.succeeded"
	TriggerPaymentFailed    Trigger = "payment_intent.payment_failed"
	TriggerPaymentCanceled  Trigger = "payment_intent.canceled"
	TriggerChargeRefunded   Trigger = "charge.refunded"
)

// Effect is the inventory operation to run for every item of the order.
type Effect string

const (
	EffectConfirm Effect = "confirm"
	EffectRelease Effect = "release"
	EffectRestock Effect = "restock"
)

// Transition is the before/after snapshot of one decided state change.
type Transition struct {
	Before  Order
	After   Order
	Trigger Trigger
	Effect  Effect
}

func (t Transition) StatusChanged() bool {
	return t.Before.Status != t.After.Status
}

type rule struct {
	from    PaymentStatus
	payment PaymentStatus
	status  OrderStatus // empty keeps the current status
	effect  Effect
}

var rules = map[Trigger]rule{
	TriggerPaymentSucceeded: {from: PaymentPending, payment: PaymentPaid, status: StatusProcessing, effect: EffectConfirm},
	TriggerPaymentFailed:    {from: PaymentPending, payment: PaymentFailed, effect: EffectRelease},
	TriggerPaymentCanceled:  {from: PaymentPending, payment: PaymentCancelled, status: StatusCancelled, effect: EffectRelease},
	TriggerChargeRefunded:   {from: PaymentPaid, payment: PaymentRefunded, status: StatusRefunded, effect: EffectRestock},
}

// statusEdges lists the order status moves that exist. Self-loops are always
// allowed.
var statusEdges = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCancelled, StatusRefunded},
}

func IsKnownTrigger(t Trigger) bool {
	_, ok := rules[t]
	return ok
}

func CanMoveStatus(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Decide computes the transition a trigger causes on o. It never mutates o.
// A failed precondition returns ErrIllegalTransition.
func Decide(o Order, trigger Trigger, now time.Time) (Transition, error) {
	r, ok := rules[trigger]
	if !ok {
		return Transition{}, fmt.Errorf("%w: unknown trigger %q", ErrIllegalTransition, trigger)
	}
	if o.PaymentStatus != r.from {
		return Transition{}, fmt.Errorf("%w: %s requires payment_status=%s, order %s has %s",
			ErrIllegalTransition, trigger, r.from, o.ID, o.PaymentStatus)
	}

	after := o
	after.Items = append([]OrderItem(nil), o.Items...)
	after.PaymentStatus = r.payment
	if r.status != "" {
		if !CanMoveStatus(o.Status, r.status) {
			return Transition{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, r.status)
		}
		after.Status = r.status
	}
	after.UpdatedAt = now

	return Transition{Before: o, After: after, Trigger: trigger, Effect: r.effect}, nil
}
