package application

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrOutOfStock       = errors.New("product out of stock")
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidCoupon    = errors.New("invalid or expired coupon code")
	ErrPaymentProvider  = errors.New("payment provider error")
	ErrOrderNotFound    = errors.New("order not found")
	ErrConcurrentUpdate = errors.New("order changed concurrently")
	// ErrInventoryBusy is transient: the stock row stayed locked or the
	// inventory service could not be reached.
	ErrInventoryBusy = errors.New("inventory temporarily unavailable")
)

// OutOfStockError names the product a checkout could not reserve.
type OutOfStockError struct {
	ProductID string
	Err       error
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock: %v", e.ProductID, e.Err)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

func (e *OutOfStockError) Unwrap() error { return e.Err }
