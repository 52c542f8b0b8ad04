package application

import (
	"context"

	"github.com/dmehra2102/marketplace/internal/inventory/domain"
)

// MutateFunc receives the locked stock row and, for order-scoped calls, the
// reservation record of (orderID, productID). res is nil when orderID is empty.
// Changes are persisted only when the function returns nil.
type MutateFunc func(stock *domain.Stock, res *domain.Reservation) error

type Ledger interface {
	// Mutate runs fn as one unit of work holding the product's exclusive lock.
	Mutate(ctx context.Context, productID, orderID string, fn MutateFunc) error
	Stock(ctx context.Context, productID string) (domain.Stock, error)
	Reservations(ctx context.Context, orderID string) ([]domain.Reservation, error)
}
