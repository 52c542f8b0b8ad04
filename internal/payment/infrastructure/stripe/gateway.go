// Package stripe talks to Stripe: it opens PaymentIntents at checkout and
// turns signed webhook deliveries into payment events.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	orderapp "github.com/dmehra2102/marketplace/internal/order/application"
	"github.com/dmehra2102/marketplace/internal/payment/application"
	"github.com/dmehra2102/marketplace/internal/payment/domain"
)

type Gateway struct {
	log     *slog.Logger
	intents paymentintent.Client
}

var _ orderapp.PaymentProvider = (*Gateway)(nil)

// NewGateway uses backend when it is not nil, otherwise the default API
// backend.
func NewGateway(log *slog.Logger, secretKey string, backend stripe.Backend) *Gateway {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Gateway{log: log, intents: paymentintent.Client{B: backend, Key: secretKey}}
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (orderapp.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(strings.ToLower(currency)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if n := metadata["order_number"]; n != "" {
		params.Description = stripe.String("Order #" + n)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return orderapp.Intent{}, err
	}
	g.log.Info("stripe payment intent created", "order_id", metadata["order_id"], "payment_ref", pi.ID)
	return orderapp.Intent{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// Verifier checks the Stripe-Signature header against the endpoint secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify authenticates before decoding. Only authentication failures wrap
// application.ErrInvalidSignature.
func (v *Verifier) Verify(payload []byte, signature string) (domain.PaymentEvent, error) {
	if err := webhook.ValidatePayload(payload, signature, v.secret); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", application.ErrInvalidSignature, err)
	}
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return toPaymentEvent(ev)
}

func toPaymentEvent(ev stripe.Event) (domain.PaymentEvent, error) {
	out := domain.PaymentEvent{
		EventID:    ev.ID,
		Type:       string(ev.Type),
		OccurredAt: time.Unix(ev.Created, 0).UTC(),
	}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("decode payment intent: %w", err)
		}
		out.PaymentRef = pi.ID
		out.Amount = pi.Amount
		out.Currency = string(pi.Currency)
		if pi.LastPaymentError != nil {
			out.FailureReason = pi.LastPaymentError.Msg
		}
	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return out, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.PaymentRef = ch.PaymentIntent.ID
		}
		out.Amount = ch.AmountRefunded
		out.Currency = string(ch.Currency)
	}
	return out, nil
}
