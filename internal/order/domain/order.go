package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

var ErrPaymentRefAlreadySet = errors.New("payment reference already set")

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is plain data. Status fields change only through Decide.
type Order struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	UserID        string          `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Items         []OrderItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	ShipTo        ShippingInfo    `json:"ship_to"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewOrder builds a pending order and computes its subtotal from the items.
func NewOrder(id, userID string, items []OrderItem, shipTo ShippingInfo, currency string, now time.Time) Order {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return Order{
		ID:            id,
		Number:        NewOrderNumber(),
		UserID:        userID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           decimal.Zero,
		ShippingFee:   decimal.Zero,
		Discount:      decimal.Zero,
		Total:         subtotal,
		Currency:      currency,
		ShipTo:        shipTo,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyTotals sets tax, shipping and discount and recomputes the total,
// rounded to two places.
func (o *Order) ApplyTotals(taxRate, shipping, discount decimal.Decimal) {
	o.Tax = o.Subtotal.Mul(taxRate).Round(2)
	o.ShippingFee = shipping.Round(2)
	o.Discount = discount.Round(2)
	o.Total = o.Subtotal.Add(o.Tax).Add(o.ShippingFee).Sub(o.Discount).Round(2)
	if o.Total.IsNegative() {
		o.Total = decimal.Zero
	}
}

// AttachPaymentRef binds the order to the provider's payment. It can be done
// once.
func (o *Order) AttachPaymentRef(ref string) error {
	if o.PaymentRef != "" && o.PaymentRef != ref {
		return ErrPaymentRefAlreadySet
	}
	o.PaymentRef = ref
	return nil
}

// AmountMinor is the total in the currency's minor unit.
func (o Order) AmountMinor() int64 {
	return o.Total.Shift(2).Round(0).IntPart()
}

// NewOrderNumber returns "ORD-" followed by 13 upper-case hex characters.
func NewOrderNumber() string {
	var b [7]byte
	_, _ = rand.Read(b[:])
	return "ORD-" + strings.ToUpper(hex.EncodeToString(b[:])[:13])
}
