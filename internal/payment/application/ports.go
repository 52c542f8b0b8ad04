package application

import (
	"context"

	orderdomain "github.com/dmehra2102/marketplace/internal/order/domain"
	"github.com/dmehra2102/marketplace/internal/payment/domain"
)

// Orders is the slice of the order repository reconciliation needs.
type Orders interface {
	GetByPaymentRef(ctx context.Context, ref string) (orderdomain.Order, error)
	SaveTransition(ctx context.Context, t orderdomain.Transition) error
}

type Inventory interface {
	ReleaseFor(ctx context.Context, orderID, productID string, qty int) error
	ConfirmFor(ctx context.Context, orderID, productID string, qty int) error
	CancelFor(ctx context.Context, orderID, productID string, qty int) error
}

type PaymentRepository interface {
	// Save is a no-op for an EventID that is already stored.
	Save(ctx context.Context, p domain.Payment) error
}

// Deduplicator remembers event ids that were fully handled.
type Deduplicator interface {
	Done(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Verifier authenticates a raw delivery and decodes it. Authentication
// failures wrap ErrInvalidSignature; anything else is a payload problem.
type Verifier interface {
	Verify(payload []byte, signature string) (domain.PaymentEvent, error)
}
