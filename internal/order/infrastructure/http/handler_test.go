package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invapp "github.com/dmehra2102/marketplace/internal/inventory/application"
	invmem "github.com/dmehra2102/marketplace/internal/inventory/infrastructure/memory"
	"github.com/dmehra2102/marketplace/internal/order/application"
	"github.com/dmehra2102/marketplace/internal/order/domain"
	"github.com/dmehra2102/marketplace/internal/order/infrastructure/inventory"
	"github.com/dmehra2102/marketplace/internal/order/infrastructure/memory"
	"github.com/dmehra2102/marketplace/pkg/idempotency"
)

type catalog map[string]application.Product

func (c catalog) Product(_ context.Context, id string) (application.Product, error) {
	p, ok := c[id]
	if !ok {
		return application.Product{}, application.ErrProductNotFound
	}
	return p, nil
}

type payments struct {
	err   error
	calls int
}

func (p *payments) CreatePaymentIntent(_ context.Context, _ int64, _ string, md map[string]string) (application.Intent, error) {
	p.calls++
	if p.err != nil {
		return application.Intent{}, p.err
	}
	return application.Intent{Ref: "pi_" + md["order_id"], ClientSecret: "cs_" + md["order_id"]}, nil
}

type busyOrders struct{}

func (busyOrders) CreateOrder(context.Context, application.CheckoutRequest) (application.Checkout, error) {
	return application.Checkout{}, application.ErrInventoryBusy
}

func (busyOrders) GetForUser(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, application.ErrOrderNotFound
}

func (busyOrders) ListForUser(context.Context, string, int) ([]domain.Order, error) {
	return nil, nil
}

type fixture struct {
	router   http.Handler
	payments *payments
	stock    *invapp.Service
}

func newFixture(t *testing.T, idem func(http.Handler) http.Handler) fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := invmem.NewLedger(time.Second)
	ledger.Seed("mug", 3)
	stock := invapp.NewService(log, ledger, 1)
	pay := &payments{}
	svc := application.NewService(log, memory.NewRepository(), inventory.NewLocal(stock),
		catalog{
			"mug":   {ID: "mug", Name: "Mug", Price: decimal.RequireFromString("12.50")},
			"ghost": {ID: "ghost", Name: "Ghost", Price: decimal.RequireFromString("1.00")},
		},
		nil, pay,
		application.Pricing{Currency: "usd", TaxRate: decimal.RequireFromString("0.10"), Shipping: decimal.Zero})
	return fixture{router: NewHandler(log, svc, idem).Routes(), payments: pay, stock: stock}
}

func (f fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetOrder(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/orders", `{"user_id":"u1","items":[{"product_id":"mug","quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Order struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			PaymentStatus string `json:"payment_status"`
			PaymentRef    string `json:"payment_ref"`
			Total         string `json:"total"`
		} `json:"order"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "pending", out.Order.Status)
	assert.Equal(t, "pending", out.Order.PaymentStatus)
	assert.Equal(t, "pi_"+out.Order.ID, out.Order.PaymentRef)
	assert.Equal(t, "cs_"+out.Order.ID, out.ClientSecret)
	assert.Equal(t, "27.5", out.Order.Total)

	rec = f.do(http.MethodGet, "/orders/"+out.Order.ID, "", HeaderUserID, "u1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), out.Order.ID)

	rec = f.do(http.MethodGet, "/orders/nope", "", HeaderUserID, "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderReadsAreScopedToUser(t *testing.T) {
	f := newFixture(t, nil)
	var ids []string
	for _, user := range []string{"u1", "u2", "u1"} {
		rec := f.do(http.MethodPost, "/orders", `{"user_id":"`+user+`","items":[{"product_id":"mug","quantity":1}],"ship_to":{"name":"`+user+`"}}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var out struct {
			Order struct {
				ID string `json:"id"`
			} `json:"order"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		ids = append(ids, out.Order.ID)
	}

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/orders/"+ids[0], "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/"+ids[1], "", HeaderUserID, "u1").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/orders/"+ids[1], "", HeaderUserID, "u2").Code)

	rec := f.do(http.MethodGet, "/orders", "", HeaderUserID, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Orders []struct {
			ID     string `json:"id"`
			UserID string `json:"user_id"`
		} `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Orders, 2)
	for _, o := range list.Orders {
		assert.Equal(t, "u1", o.UserID)
		assert.NotEqual(t, ids[1], o.ID)
	}

	rec = f.do(http.MethodGet, "/orders?limit=1", "", HeaderUserID, "u1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Orders, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/orders?limit=x", "", HeaderUserID, "u1").Code)
	rec = f.do(http.MethodGet, "/orders", "", HeaderUserID, "u3")
	assert.JSONEq(t, `{"orders":[]}`, rec.Body.String())
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "no user", body: `{"items":[{"product_id":"mug","quantity":1}]}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "empty cart", body: `{"user_id":"u1","items":[]}`, status: http.StatusBadRequest, code: "empty_cart"},
		{name: "zero quantity", body: `{"user_id":"u1","items":[{"product_id":"mug","quantity":0}]}`, status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "coupon without discounter", body: `{"user_id":"u1","items":[{"product_id":"mug","quantity":1}],"coupon_code":"X"}`, status: http.StatusBadRequest, code: "invalid_coupon"},
		{name: "unknown product", body: `{"user_id":"u1","items":[{"product_id":"nope","quantity":1}]}`, status: http.StatusNotFound, code: "product_not_found"},
		{name: "not in ledger", body: `{"user_id":"u1","items":[{"product_id":"ghost","quantity":1}]}`, status: http.StatusNotFound, code: "product_not_found"},
		{name: "out of stock", body: `{"user_id":"u1","items":[{"product_id":"mug","quantity":4}]}`, status: http.StatusConflict, code: "out_of_stock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(http.MethodPost, "/orders", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
			if tt.code == "out_of_stock" {
				assert.Equal(t, "mug", resp.ProductID)
			}
		})
	}
}

func TestCreateOrderProviderFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.payments.err = errors.New("stripe down")

	rec := f.do(http.MethodPost, "/orders", `{"user_id":"u1","items":[{"product_id":"mug","quantity":2}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	st, err := f.stock.Stock(context.Background(), "mug")
	require.NoError(t, err)
	assert.Zero(t, st.ReservedQuantity)
}

func TestCreateOrderInventoryBusy(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), busyOrders{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"user_id":"u1","items":[{"product_id":"mug","quantity":1}]}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := newFixture(t, idempotency.Middleware(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb, time.Hour))
	body := `{"user_id":"u1","items":[{"product_id":"mug","quantity":1}]}`

	first := f.do(http.MethodPost, "/orders", body, idempotency.HeaderKey, "k1")
	second := f.do(http.MethodPost, "/orders", body, idempotency.HeaderKey, "k1")

	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, f.payments.calls)

	st, err := f.stock.Stock(context.Background(), "mug")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ReservedQuantity)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
}
