package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/marketplace/internal/payment/application"
)

// maxBodyBytes matches the largest event Stripe delivers.
const maxBodyBytes = 65536

type Webhooks interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (application.Ack, error)
}

type Handler struct {
	log      *slog.Logger
	webhooks Webhooks
}

func NewHandler(log *slog.Logger, webhooks Webhooks) *Handler {
	return &Handler{log: log, webhooks: webhooks}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe", h.stripe)
	return r
}

// stripe answers 200 for every handled delivery, including duplicates and
// ignored types. A 500 asks the provider to redeliver.
func (h *Handler) stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}

	ack, err := h.webhooks.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, application.ErrInvalidSignature):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
	case errors.Is(err, application.ErrMalformedEvent):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "malformed event"})
	case err != nil:
		h.log.Error("webhook handling failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "retry later"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ack": ack})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
