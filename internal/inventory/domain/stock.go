package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	// ErrLockTimeout is transient: the caller may retry with backoff.
	ErrLockTimeout = errors.New("stock lock timeout")
)

// StockError names the product an inventory failure refers to.
type StockError struct {
	ProductID string
	Requested int
	Available int
	Err       error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %s: %v (requested %d, available %d)", e.ProductID, e.Err, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return e.Err }

// Stock is the durable (stock, reserved) pair of a product.
// 0 <= ReservedQuantity <= StockQuantity holds after every committed mutation.
type Stock struct {
	ProductID        string
	StockQuantity    int
	ReservedQuantity int
}

func (s Stock) Available() int {
	return s.StockQuantity - s.ReservedQuantity
}

func (s *Stock) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if s.Available() < qty {
		return &StockError{ProductID: s.ProductID, Requested: qty, Available: s.Available(), Err: ErrInsufficientStock}
	}
	s.ReservedQuantity += qty
	return nil
}

// Release returns up to qty reserved units and reports how many were released.
func (s *Stock) Release(qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	released := min(qty, s.ReservedQuantity)
	s.ReservedQuantity -= released
	return released, nil
}

// Confirm turns qty units into a sale: the hold is clamp-released and the
// physical count is decremented.
func (s *Stock) Confirm(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	released := min(qty, s.ReservedQuantity)
	reserved := s.ReservedQuantity - released
	stock := s.StockQuantity - qty
	if stock < reserved {
		return &StockError{ProductID: s.ProductID, Requested: qty, Available: s.StockQuantity - reserved, Err: ErrInsufficientStock}
	}
	s.ReservedQuantity = reserved
	s.StockQuantity = stock
	return nil
}

// Restock puts qty units back on the shelf. Holds are not touched.
func (s *Stock) Restock(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.StockQuantity += qty
	return nil
}
