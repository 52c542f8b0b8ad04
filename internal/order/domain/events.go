package domain

import "github.com/shopspring/decimal"

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderCreated struct {
	OrderID    string          `json:"order_id"`
	Number     string          `json:"number"`
	UserID     string          `json:"user_id"`
	PaymentRef string          `json:"payment_ref"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	Items      []OrderItem     `json:"items"`
}

type OrderStatusChanged struct {
	OrderID          string        `json:"order_id"`
	Number           string        `json:"number"`
	OldStatus        OrderStatus   `json:"old_status"`
	NewStatus        OrderStatus   `json:"new_status"`
	OldPaymentStatus PaymentStatus `json:"old_payment_status"`
	NewPaymentStatus PaymentStatus `json:"new_payment_status"`
	Trigger          Trigger       `json:"trigger"`
}

func NewOrderCreated(o Order) OrderCreated {
	return OrderCreated{
		OrderID:    o.ID,
		Number:     o.Number,
		UserID:     o.UserID,
		PaymentRef: o.PaymentRef,
		Total:      o.Total,
		Currency:   o.Currency,
		Items:      o.Items,
	}
}

func NewOrderStatusChanged(t Transition) OrderStatusChanged {
	return OrderStatusChanged{
		OrderID:          t.After.ID,
		Number:           t.After.Number,
		OldStatus:        t.Before.Status,
		NewStatus:        t.After.Status,
		OldPaymentStatus: t.Before.PaymentStatus,
		NewPaymentStatus: t.After.PaymentStatus,
		Trigger:          t.Trigger,
	}
}
