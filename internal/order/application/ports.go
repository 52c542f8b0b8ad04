package application

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/marketplace/internal/order/domain"
)

type OrderRepository interface {
	// Create stores a new order and its OrderCreated outbox event atomically.
	Create(ctx context.Context, o domain.Order, event domain.OrderCreated) error
	Get(ctx context.Context, id string) (domain.Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (domain.Order, error)
	// ListByUser returns at most limit orders of userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	// SaveTransition writes t.After only if the stored payment status still
	// equals t.Before.PaymentStatus, otherwise it returns ErrConcurrentUpdate.
	// A status change is recorded on the outbox in the same transaction.
	SaveTransition(ctx context.Context, t domain.Transition) error
}

// Inventory is the order-scoped side of the reservation manager.
type Inventory interface {
	ReserveFor(ctx context.Context, orderID, productID string, qty int) error
	ReleaseFor(ctx context.Context, orderID, productID string, qty int) error
	ConfirmFor(ctx context.Context, orderID, productID string, qty int) error
	CancelFor(ctx context.Context, orderID, productID string, qty int) error
}

type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

type Catalog interface {
	Product(ctx context.Context, id string) (Product, error)
}

// Discounter returns the discount a coupon grants on amount, or
// ErrInvalidCoupon.
type Discounter interface {
	Discount(ctx context.Context, code, userID string, amount decimal.Decimal) (decimal.Decimal, error)
}

type Intent struct {
	Ref          string
	ClientSecret string
}

type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (Intent, error)
}
