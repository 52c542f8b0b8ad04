// Package inventory adapts an in-process reservation manager to the order
// service's Inventory port.
package inventory

import (
	"context"
	"errors"
	"fmt"

	invapp "github.com/dmehra2102/marketplace/internal/inventory/application"
	invdomain "github.com/dmehra2102/marketplace/internal/inventory/domain"
	"github.com/dmehra2102/marketplace/internal/order/application"
)

type Local struct {
	svc *invapp.Service
}

var _ application.Inventory = (*Local)(nil)

func NewLocal(svc *invapp.Service) *Local {
	return &Local{svc: svc}
}

func (l *Local) ReserveFor(ctx context.Context, orderID, productID string, qty int) error {
	return translate(l.svc.ReserveFor(ctx, orderID, productID, qty))
}

func (l *Local) ReleaseFor(ctx context.Context, orderID, productID string, qty int) error {
	return translate(l.svc.ReleaseFor(ctx, orderID, productID, qty))
}

func (l *Local) ConfirmFor(ctx context.Context, orderID, productID string, qty int) error {
	return translate(l.svc.ConfirmFor(ctx, orderID, productID, qty))
}

func (l *Local) CancelFor(ctx context.Context, orderID, productID string, qty int) error {
	return translate(l.svc.CancelFor(ctx, orderID, productID, qty))
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, invdomain.ErrInsufficientStock):
		return fmt.Errorf("%w: %w", application.ErrOutOfStock, err)
	case errors.Is(err, invdomain.ErrProductNotFound):
		return fmt.Errorf("%w: %w", application.ErrProductNotFound, err)
	case errors.Is(err, invdomain.ErrInvalidQuantity):
		return fmt.Errorf("%w: %w", application.ErrInvalidQuantity, err)
	case errors.Is(err, invdomain.ErrLockTimeout):
		return fmt.Errorf("%w: %w", application.ErrInventoryBusy, err)
	default:
		return err
	}
}
