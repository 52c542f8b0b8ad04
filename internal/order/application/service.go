package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/marketplace/internal/order/domain"
)

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	UserID     string              `json:"user_id"`
	Items      []CartItem          `json:"items"`
	ShipTo     domain.ShippingInfo `json:"ship_to"`
	CouponCode string              `json:"coupon_code,omitempty"`
}

type Checkout struct {
	Order        domain.Order `json:"order"`
	ClientSecret string       `json:"client_secret"`
}

type Pricing struct {
	Currency string
	TaxRate  decimal.Decimal
	Shipping decimal.Decimal
}

type Service struct {
	log        *slog.Logger
	repo       OrderRepository
	inv        Inventory
	catalog    Catalog
	discounter Discounter
	payments   PaymentProvider
	pricing    Pricing
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string
}

func NewService(log *slog.Logger, repo OrderRepository, inv Inventory, catalog Catalog, discounter Discounter, payments PaymentProvider, pricing Pricing) *Service {
	return &Service{
		log:        log,
		repo:       repo,
		inv:        inv,
		catalog:    catalog,
		discounter: discounter,
		payments:   payments,
		pricing:    pricing,
		tracer:     otel.Tracer("order-service"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// CreateOrder reserves every cart line, prices the order, opens a payment
// intent and persists the order as (pending, pending). Any failure after the
// first reservation releases everything taken for this attempt.
func (s *Service) CreateOrder(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	out, err := s.createOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Checkout{}, err
	}
	span.SetAttributes(attribute.String("order_id", out.Order.ID), attribute.String("payment_ref", out.Order.PaymentRef))
	return out, nil
}

func (s *Service) createOrder(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	lines, err := mergeLines(req.Items)
	if err != nil {
		return Checkout{}, err
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		p, err := s.catalog.Product(ctx, line.ProductID)
		if err != nil {
			return Checkout{}, fmt.Errorf("product %s: %w", line.ProductID, err)
		}
		items = append(items, domain.OrderItem{ProductID: p.ID, Name: p.Name, Quantity: line.Quantity, UnitPrice: p.Price})
	}

	order := domain.NewOrder(s.newID(), req.UserID, items, req.ShipTo, s.pricing.Currency, s.now())
	log := s.log.With("order_id", order.ID, "user_id", req.UserID)

	reserved := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if err := s.inv.ReserveFor(ctx, order.ID, item.ProductID, item.Quantity); err != nil {
			s.releaseAll(ctx, log, order.ID, reserved)
			if errors.Is(err, ErrOutOfStock) {
				log.Info("checkout rejected, out of stock", "product_id", item.ProductID)
				return Checkout{}, &OutOfStockError{ProductID: item.ProductID, Err: err}
			}
			return Checkout{}, fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}
		reserved = append(reserved, item)
	}

	discount := decimal.Zero
	if req.CouponCode != "" {
		if s.discounter == nil {
			s.releaseAll(ctx, log, order.ID, reserved)
			return Checkout{}, ErrInvalidCoupon
		}
		discount, err = s.discounter.Discount(ctx, req.CouponCode, req.UserID, order.Subtotal)
		if err != nil {
			s.releaseAll(ctx, log, order.ID, reserved)
			if errors.Is(err, ErrInvalidCoupon) {
				return Checkout{}, err
			}
			return Checkout{}, fmt.Errorf("coupon %s: %w", req.CouponCode, err)
		}
		order.CouponCode = req.CouponCode
	}
	order.ApplyTotals(s.pricing.TaxRate, s.pricing.Shipping, discount)

	intent, err := s.payments.CreatePaymentIntent(ctx, order.AmountMinor(), order.Currency, map[string]string{
		"order_id":     order.ID,
		"order_number": order.Number,
		"user_id":      order.UserID,
	})
	if err != nil {
		log.Error("failed to create payment intent", "err", err)
		s.releaseAll(ctx, log, order.ID, reserved)
		return Checkout{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	if err := order.AttachPaymentRef(intent.Ref); err != nil {
		s.releaseAll(ctx, log, order.ID, reserved)
		return Checkout{}, err
	}

	if err := s.repo.Create(ctx, order, domain.NewOrderCreated(order)); err != nil {
		log.Error("failed to persist order", "err", err)
		s.releaseAll(ctx, log, order.ID, reserved)
		return Checkout{}, fmt.Errorf("persist order: %w", err)
	}

	log.Info("order created", "number", order.Number, "payment_ref", order.PaymentRef, "total", order.Total.StringFixed(2))
	return Checkout{Order: order, ClientSecret: intent.ClientSecret}, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// GetForUser hides orders of other users behind ErrOrderNotFound.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (domain.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.UserID != userID {
		return domain.Order{}, ErrOrderNotFound
	}
	return o, nil
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListForUser returns the user's orders, newest first. A limit outside
// 1..MaxListLimit falls back to DefaultListLimit.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// releaseAll runs even when the request context is already done.
func (s *Service) releaseAll(ctx context.Context, log *slog.Logger, orderID string, items []domain.OrderItem) {
	ctx = context.WithoutCancel(ctx)
	for _, item := range items {
		if err := s.inv.ReleaseFor(ctx, orderID, item.ProductID, item.Quantity); err != nil {
			log.Error("failed to release reservation", "product_id", item.ProductID, "qty", item.Quantity, "err", err)
		}
	}
}

// MaxQuantity is the largest quantity one order line may carry; it is what
// the inventory wire format can represent.
const MaxQuantity = math.MaxInt32

// mergeLines validates the cart and folds repeated products into one line,
// keeping first-seen order.
func mergeLines(items []CartItem) ([]CartItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	idx := make(map[string]int, len(items))
	out := make([]CartItem, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
		if i, ok := idx[it.ProductID]; ok {
			if out[i].Quantity > MaxQuantity-it.Quantity {
				return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}
