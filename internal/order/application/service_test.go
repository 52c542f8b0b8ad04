package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	invapp "github.com/dmehra2102/marketplace/internal/inventory/application"
	invdomain "github.com/dmehra2102/marketplace/internal/inventory/domain"
	invmem "github.com/dmehra2102/marketplace/internal/inventory/infrastructure/memory"
	"github.com/dmehra2102/marketplace/internal/order/application"
	"github.com/dmehra2102/marketplace/internal/order/domain"
	"github.com/dmehra2102/marketplace/internal/order/infrastructure/inventory"
	"github.com/dmehra2102/marketplace/internal/order/infrastructure/memory"
)

type fakeCatalog map[string]application.Product

func (c fakeCatalog) Product(_ context.Context, id string) (application.Product, error) {
	p, ok := c[id]
	if !ok {
		return application.Product{}, application.ErrProductNotFound
	}
	return p, nil
}

type fakeDiscounter struct {
	code   string
	amount decimal.Decimal
}

func (d fakeDiscounter) Discount(_ context.Context, code, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	if code != d.code {
		return decimal.Zero, application.ErrInvalidCoupon
	}
	return d.amount, nil
}

type fakePayments struct {
	err      error
	amount   int64
	metadata map[string]string
}

func (p *fakePayments) CreatePaymentIntent(_ context.Context, amount int64, _ string, metadata map[string]string) (application.Intent, error) {
	if p.err != nil {
		return application.Intent{}, p.err
	}
	p.amount, p.metadata = amount, metadata
	return application.Intent{Ref: "pi_" + metadata["order_id"], ClientSecret: "secret"}, nil
}

type failingRepo struct {
	*memory.Repository
}

func (failingRepo) Create(context.Context, domain.Order, domain.OrderCreated) error {
	return errors.New("db down")
}

type CheckoutSuite struct {
	suite.Suite
	ctx      context.Context
	ledger   *invmem.Ledger
	stock    *invapp.Service
	repo     *memory.Repository
	payments *fakePayments
	svc      *application.Service
}

func (s *CheckoutSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx = context.Background()
	s.ledger = invmem.NewLedger(time.Second)
	s.ledger.Seed("mug", 10)
	s.ledger.Seed("cap", 1)
	s.stock = invapp.NewService(log, s.ledger, 1)
	s.repo = memory.NewRepository()
	s.payments = &fakePayments{}
	s.svc = s.newService(s.repo)
}

func (s *CheckoutSuite) newService(repo application.OrderRepository) *application.Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := fakeCatalog{
		"mug":   {ID: "mug", Name: "Mug", Price: decimal.RequireFromString("12.50")},
		"cap":   {ID: "cap", Name: "Cap", Price: decimal.RequireFromString("20.00")},
		"ghost": {ID: "ghost", Name: "Ghost", Price: decimal.RequireFromString("1.00")},
	}
	return application.NewService(log, repo, inventory.NewLocal(s.stock), catalog,
		fakeDiscounter{code: "SAVE5", amount: decimal.RequireFromString("5")}, s.payments,
		application.Pricing{Currency: "usd", TaxRate: decimal.RequireFromString("0.10"), Shipping: decimal.Zero})
}

func (s *CheckoutSuite) reserved(id string) int {
	st, err := s.stock.Stock(s.ctx, id)
	s.Require().NoError(err)
	return st.ReservedQuantity
}

func (s *CheckoutSuite) TestCreateOrder() {
	out, err := s.svc.CreateOrder(s.ctx, application.CheckoutRequest{
		UserID:     "u1",
		Items:      []application.CartItem{{ProductID: "mug", Quantity: 1}, {ProductID: "mug", Quantity: 1}},
		CouponCode: "SAVE5",
	})
	s.Require().NoError(err)

	o := out.Order
	s.Equal(domain.StatusPending, o.Status)
	s.Equal(domain.PaymentPending, o.PaymentStatus)
	s.Equal("pi_"+o.ID, o.PaymentRef)
	s.Equal("secret", out.ClientSecret)
	s.Require().Len(o.Items, 1)
	s.Equal(2, o.Items[0].Quantity)
	s.Equal("25.00", o.Subtotal.StringFixed(2))
	s.Equal("2.50", o.Tax.StringFixed(2))
	s.Equal("22.50", o.Total.StringFixed(2))
	s.Equal(int64(2250), s.payments.amount)
	s.Equal(o.Number, s.payments.metadata["order_number"])
	s.Equal(2, s.reserved("mug"))

	stored, err := s.svc.Get(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.PaymentRef, stored.PaymentRef)

	events := s.repo.Events()
	s.Require().Len(events, 1)
	s.Equal(domain.EventOrderCreated, events[0].Type)
}

func (s *CheckoutSuite) TestOutOfStockReleasesEarlierLines() {
	_, err := s.svc.CreateOrder(s.ctx, application.CheckoutRequest{
		UserID: "u1",
		Items:  []application.CartItem{{ProductID: "mug", Quantity: 3}, {ProductID: "cap", Quantity: 2}},
	})
	s.ErrorIs(err, application.ErrOutOfStock)
	s.ErrorIs(err, invdomain.ErrInsufficientStock)

	var oos *application.OutOfStockError
	s.Require().ErrorAs(err, &oos)
	s.Equal("cap", oos.ProductID)

	s.Equal(0, s.reserved("mug"))
	s.Equal(0, s.reserved("cap"))
	s.Empty(s.repo.Events())
}

func (s *CheckoutSuite) TestValidationErrors() {
	_, err := s.svc.CreateOrder(s.ctx, application.CheckoutRequest{UserID: "u1"})
	s.ErrorIs(err, application.ErrEmptyCart)

	_, err = s.svc.CreateOrder(s.ctx, application.CheckoutRequest{UserID: "u1", Items: []application.CartItem{{ProductID: "mug", Quantity: 0}}})
	s.ErrorIs(err, application.ErrInvalidQuantity)

	_, err = s.svc.CreateOrder(s.ctx, application.CheckoutRequest{UserID: "u1", Items: []application.CartItem{{ProductID: "mug", Quantity: application.MaxQuantity + 1}}})
	s.ErrorIs(err, application.ErrInvalidQuantity)

	_, err = s.svc.CreateOrder(s.ctx, application.CheckoutRequest{UserID: "u1", Items: []application.CartItem{
		{ProductID: "mug", Quantity: application.MaxQuantity},
		{ProductID: "mug", Quantity: 1},
	}})
	s.ErrorIs(err, application.ErrInvalidQuantity, "merged lines must stay in range")

	_, err = s.svc.CreateOrder(s.ctx, application.CheckoutRequest{UserID: "u1", Items: []application.CartItem{{ProductID: "nope", Quantity: 1}}})
	s.ErrorIs(err, application.ErrProductNotFound)
}

func (s *CheckoutSuite) TestProductMissingFromLedger() {
	_, err := s.svc.CreateOrder(s.ctx, application.CheckoutRequest{
		UserID: "u1",
		Items:  []application.CartItem{{ProductID: "mug", Quantity: 1}, {ProductID: "ghost", Quantity: 1}},
	})
	s.ErrorIs(err, application.ErrProductNotFound)
	s.Equal(0, s.reserved("mug"))
}

func (s *CheckoutSuite) TestInvalidCouponReleases() {
	_, err := s.svc.CreateOrder(s.ctx, application.CheckoutRequest{
		UserID:     "u1",
		Items:      []application.CartItem{{ProductID: "mug", Quantity: 2}},
		CouponCode: "BOGUS",
	})
	s.ErrorIs(err, application.ErrInvalidCoupon)
	s.Equal(0, s.reserved("mug"))
}

func (s *CheckoutSuite) TestPaymentProviderFailureReleases() {
	s.payments.err = errors.New("card network down")
	_, err := s.svc.CreateOrder(s.ctx, application.CheckoutRequest{
		UserID: "u1",
		Items:  []application.CartItem{{ProductID: "mug", Quantity: 2}, {ProductID: "cap", Quantity: 1}},
	})
	s.ErrorIs(err, application.ErrPaymentProvider)
	s.Equal(0, s.reserved("mug"))
	s.Equal(0, s.reserved("cap"))
}

func (s *CheckoutSuite) TestPersistenceFailureReleases() {
	svc := s.newService(failingRepo{s.repo})
	_, err := svc.CreateOrder(s.ctx, application.CheckoutRequest{
		UserID: "u1",
		Items:  []application.CartItem{{ProductID: "mug", Quantity: 4}},
	})
	s.Error(err)
	s.Equal(0, s.reserved("mug"))
}

func (s *CheckoutSuite) TestGetUnknown() {
	_, err := s.svc.Get(s.ctx, "missing")
	s.ErrorIs(err, application.ErrOrderNotFound)
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}
