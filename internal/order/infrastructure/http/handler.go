package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/marketplace/internal/order/application"
	"github.com/dmehra2102/marketplace/internal/order/domain"
)

type Orders interface {
	CreateOrder(ctx context.Context, req application.CheckoutRequest) (application.Checkout, error)
	GetForUser(ctx context.Context, userID, id string) (domain.Order, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}

// HeaderUserID carries the caller identity set by the gateway in front of
// this service. Order reads are scoped to it.
const HeaderUserID = "X-User-ID"

type Handler struct {
	log    *slog.Logger
	orders Orders
	idem   func(http.Handler) http.Handler
	tracer trace.Tracer
}

// NewHandler serves checkout. idem, when not nil, wraps order creation so
// retried requests with the same Idempotency-Key get the first response.
func NewHandler(log *slog.Logger, orders Orders, idem func(http.Handler) http.Handler) *Handler {
	return &Handler{
		log:    log,
		orders: orders,
		idem:   idem,
		tracer: otel.Tracer("order-http"),
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	ProductID string `json:"product_id,omitempty"`
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idem != nil {
		create = h.idem(create)
	}
	r.Method(http.MethodPost, "/orders", create)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "POST /orders")
	defer span.End()

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "invalid JSON body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "user_id is required"})
		return
	}

	out, err := h.orders.CreateOrder(ctx, req)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var oos *application.OutOfStockError
	switch {
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "out_of_stock", Message: err.Error(), ProductID: oos.ProductID})
	case errors.Is(err, application.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty_cart", Message: err.Error()})
	case errors.Is(err, application.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_quantity", Message: err.Error()})
	case errors.Is(err, application.ErrInvalidCoupon):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_coupon", Message: err.Error()})
	case errors.Is(err, application.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "product_not_found", Message: err.Error()})
	case errors.Is(err, application.ErrPaymentProvider):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "payment_provider", Message: "payment could not be initialised"})
	case errors.Is(err, application.ErrInventoryBusy):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "inventory_busy", Message: "try again"})
	default:
		h.log.Error("checkout failed", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	o, err := h.orders.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, application.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
	case err != nil:
		h.log.Error("get order failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	orders, err := h.orders.ListForUser(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("list orders failed", "user_id", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: HeaderUserID + " header is required"})
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
