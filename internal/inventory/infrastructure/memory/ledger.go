package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/marketplace/internal/inventory/application"
	"github.com/dmehra2102/marketplace/internal/inventory/domain"
	"github.com/dmehra2102/marketplace/pkg/lock"
)

type resKey struct{ orderID, productID string }

// Ledger keeps stock and reservations in process memory. It is used by tests
// and by a single inventory-service instance running without postgres.
type Ledger struct {
	locks       *lock.Keyed
	lockTimeout time.Duration

	mu           sync.RWMutex
	stock        map[string]domain.Stock
	reservations map[resKey]domain.Reservation
}

var _ application.Ledger = (*Ledger)(nil)

func NewLedger(lockTimeout time.Duration) *Ledger {
	return &Ledger{
		locks:        lock.NewKeyed(),
		lockTimeout:  lockTimeout,
		stock:        make(map[string]domain.Stock),
		reservations: make(map[resKey]domain.Reservation),
	}
}

// Seed sets the physical count of a product and clears its holds.
func (l *Ledger) Seed(productID string, qty int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] = domain.Stock{ProductID: productID, StockQuantity: qty}
}

func (l *Ledger) Mutate(ctx context.Context, productID, orderID string, fn application.MutateFunc) error {
	lctx := ctx
	if l.lockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, l.lockTimeout)
		defer cancel()
	}
	unlock, err := l.locks.Lock(lctx, productID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Join(domain.ErrLockTimeout, err)
	}
	defer unlock()

	l.mu.RLock()
	stock, ok := l.stock[productID]
	var res *domain.Reservation
	if orderID != "" {
		r, found := l.reservations[resKey{orderID, productID}]
		if !found {
			r = domain.Reservation{OrderID: orderID, ProductID: productID}
		}
		res = &r
	}
	l.mu.RUnlock()
	if !ok {
		return &domain.StockError{ProductID: productID, Err: domain.ErrProductNotFound}
	}

	if err := fn(&stock, res); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] = stock
	if res != nil && res.Exists() {
		l.reservations[resKey{orderID, productID}] = *res
	}
	return nil
}

func (l *Ledger) Stock(_ context.Context, productID string) (domain.Stock, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.stock[productID]
	if !ok {
		return domain.Stock{}, &domain.StockError{ProductID: productID, Err: domain.ErrProductNotFound}
	}
	return s, nil
}

func (l *Ledger) Reservations(_ context.Context, orderID string) ([]domain.Reservation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Reservation
	for k, r := range l.reservations {
		if k.orderID == orderID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
