package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dmehra2102/marketplace/internal/inventory/domain"
)

var ErrMissingOrderID = errors.New("order id is required")

// Service is the reservation manager: every call is a single short unit of
// work against one product row.
type Service struct {
	log     *slog.Logger
	ledger  Ledger
	retries uint64
	now     func() time.Time
}

func NewService(log *slog.Logger, ledger Ledger, retries int) *Service {
	if retries < 0 {
		retries = 0
	}
	return &Service{
		log:     log,
		ledger:  ledger,
		retries: uint64(retries),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Reserve(ctx context.Context, productID string, qty int) error {
	return s.mutate(ctx, "reserve", productID, "", func(stock *domain.Stock, _ *domain.Reservation) error {
		return stock.Reserve(qty)
	})
}

func (s *Service) Release(ctx context.Context, productID string, qty int) error {
	return s.mutate(ctx, "release", productID, "", func(stock *domain.Stock, _ *domain.Reservation) error {
		_, err := stock.Release(qty)
		return err
	})
}

func (s *Service) Confirm(ctx context.Context, productID string, qty int) error {
	return s.mutate(ctx, "confirm", productID, "", func(stock *domain.Stock, _ *domain.Reservation) error {
		return stock.Confirm(qty)
	})
}

func (s *Service) Cancel(ctx context.Context, productID string, qty int) error {
	return s.mutate(ctx, "cancel", productID, "", func(stock *domain.Stock, _ *domain.Reservation) error {
		return stock.Restock(qty)
	})
}

// ReserveFor takes a hold attributed to orderID. A second call for the same
// order and product leaves the existing hold as it is.
func (s *Service) ReserveFor(ctx context.Context, orderID, productID string, qty int) error {
	if orderID == "" {
		return ErrMissingOrderID
	}
	return s.mutate(ctx, "reserve", productID, orderID, func(stock *domain.Stock, res *domain.Reservation) error {
		if res.Exists() {
			s.log.Debug("reservation already recorded", "order_id", orderID, "product_id", productID, "state", res.State)
			return nil
		}
		if err := stock.Reserve(qty); err != nil {
			return err
		}
		res.Quantity = qty
		res.MoveTo(domain.ReservationHeld, s.now())
		return nil
	})
}

func (s *Service) ReleaseFor(ctx context.Context, orderID, productID string, qty int) error {
	return s.settle(ctx, "release", orderID, productID, qty, domain.ReservationReleased, func(stock *domain.Stock, q int) error {
		_, err := stock.Release(q)
		return err
	})
}

func (s *Service) ConfirmFor(ctx context.Context, orderID, productID string, qty int) error {
	return s.settle(ctx, "confirm", orderID, productID, qty, domain.ReservationConfirmed, func(stock *domain.Stock, q int) error {
		return stock.Confirm(q)
	})
}

// CancelFor returns the units of a confirmed sale to stock.
func (s *Service) CancelFor(ctx context.Context, orderID, productID string, qty int) error {
	return s.settle(ctx, "cancel", orderID, productID, qty, domain.ReservationRestocked, func(stock *domain.Stock, q int) error {
		return stock.Restock(q)
	})
}

func (s *Service) Stock(ctx context.Context, productID string) (domain.Stock, error) {
	return s.ledger.Stock(ctx, productID)
}

func (s *Service) Reservations(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return s.ledger.Reservations(ctx, orderID)
}

func (s *Service) settle(ctx context.Context, op, orderID, productID string, qty int, next domain.ReservationState, apply func(*domain.Stock, int) error) error {
	if orderID == "" {
		return ErrMissingOrderID
	}
	return s.mutate(ctx, op, productID, orderID, func(stock *domain.Stock, res *domain.Reservation) error {
		if !res.Exists() {
			// Hold taken without a record (another instance or a direct Reserve).
			res.Quantity = qty
		} else if !res.CanMoveTo(next) {
			s.log.Info("reservation already settled", "op", op, "order_id", orderID, "product_id", productID, "state", res.State)
			return nil
		}
		if err := apply(stock, res.Quantity); err != nil {
			return err
		}
		res.MoveTo(next, s.now())
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, op, productID, orderID string, fn MutateFunc) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(20*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
	), s.retries), ctx)

	err := backoff.RetryNotify(func() error {
		err := s.ledger.Mutate(ctx, productID, orderID, fn)
		if err != nil && !errors.Is(err, domain.ErrLockTimeout) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		s.log.Warn("stock lock contention, retrying", "op", op, "product_id", productID, "wait", wait, "err", err)
	})
	if err != nil {
		s.log.Info("stock operation rejected", "op", op, "product_id", productID, "order_id", orderID, "err", err)
		return err
	}
	s.log.Debug("stock operation committed", "op", op, "product_id", productID, "order_id", orderID)
	return nil
}
