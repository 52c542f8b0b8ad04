package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	orderapp "github.com/dmehra2102/marketplace/internal/order/application"
	orderdomain "github.com/dmehra2102/marketplace/internal/order/domain"
	"github.com/dmehra2102/marketplace/internal/payment/domain"
	"github.com/dmehra2102/marketplace/pkg/lock"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed payment event")
)

// Ack is how a delivered event was acknowledged. Every Ack means the
// provider must not redeliver.
type Ack string

const (
	AckApplied    Ack = "applied"
	AckDuplicate  Ack = "duplicate"
	AckIgnored    Ack = "ignored"
	AckUnknownRef Ack = "unknown_ref"
	AckNoop       Ack = "noop"
)

// Processor reconciles payment notifications against orders. Events for one
// payment reference are handled one at a time.
type Processor struct {
	log      *slog.Logger
	orders   Orders
	inv      Inventory
	payments PaymentRepository
	locker   lock.Locker
	dedup    Deduplicator
	verifier Verifier
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Processor)

// WithDeduplicator adds an event-id ledger in front of the precondition
// checks.
func WithDeduplicator(d Deduplicator) Option { return func(p *Processor) { p.dedup = d } }

func WithVerifier(v Verifier) Option { return func(p *Processor) { p.verifier = v } }

func NewProcessor(log *slog.Logger, orders Orders, inv Inventory, payments PaymentRepository, locker lock.Locker, opts ...Option) *Processor {
	p := &Processor{
		log:      log,
		orders:   orders,
		inv:      inv,
		payments: payments,
		locker:   locker,
		tracer:   otel.Tracer("payment-processor"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleWebhook verifies a raw provider delivery and handles it. A bad
// signature mutates nothing.
func (p *Processor) HandleWebhook(ctx context.Context, payload []byte, signature string) (Ack, error) {
	if p.verifier == nil {
		return "", fmt.Errorf("%w: no verifier configured", ErrInvalidSignature)
	}
	ev, err := p.verifier.Verify(payload, signature)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		p.log.Warn("webhook signature rejected", "err", err)
		return "", err
	case err != nil:
		p.log.Error("webhook payload rejected", "err", err)
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	p.log.Info("webhook received", "event_id", ev.EventID, "type", ev.Type)
	return p.Handle(ctx, ev)
}

// Handle applies one payment event. Only transient failures are returned;
// the caller should arrange redelivery for them.
func (p *Processor) Handle(ctx context.Context, ev domain.PaymentEvent) (Ack, error) {
	ctx, span := p.tracer.Start(ctx, "HandlePaymentEvent", trace.WithAttributes(
		attribute.String("event_id", ev.EventID),
		attribute.String("event_type", ev.Type),
		attribute.String("payment_ref", ev.PaymentRef),
	))
	defer span.End()

	ack, err := p.handle(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("ack", string(ack)))
	return ack, nil
}

func (p *Processor) handle(ctx context.Context, ev domain.PaymentEvent) (Ack, error) {
	log := p.log.With("event_id", ev.EventID, "type", ev.Type, "payment_ref", ev.PaymentRef)

	trigger := orderdomain.Trigger(ev.Type)
	if !orderdomain.IsKnownTrigger(trigger) {
		log.Info("unhandled payment event type")
		return AckIgnored, nil
	}
	if ev.PaymentRef == "" {
		log.Warn("payment event without payment reference")
		return AckUnknownRef, nil
	}

	dedup := p.dedup != nil && ev.EventID != ""
	if dedup {
		done, err := p.dedup.Done(ctx, ev.EventID)
		if err != nil {
			// The preconditions below still protect against double effects.
			log.Warn("event dedup unavailable", "err", err)
		} else if done {
			log.Info("duplicate payment event skipped")
			return AckDuplicate, nil
		}
	}

	ack, err := p.reconcile(ctx, log, trigger, ev)
	if err != nil {
		return "", err
	}
	// Unknown refs stay unmarked: the order may be committed by a slower writer.
	if dedup && (ack == AckApplied || ack == AckNoop) {
		if merr := p.dedup.Mark(context.WithoutCancel(ctx), ev.EventID); merr != nil {
			log.Warn("event dedup mark failed", "err", merr)
		}
	}
	return ack, nil
}

func (p *Processor) reconcile(ctx context.Context, log *slog.Logger, trigger orderdomain.Trigger, ev domain.PaymentEvent) (Ack, error) {
	unlock, err := p.locker.Lock(ctx, ev.PaymentRef)
	if err != nil {
		return "", fmt.Errorf("lock payment %s: %w", ev.PaymentRef, err)
	}
	defer unlock()

	order, err := p.orders.GetByPaymentRef(ctx, ev.PaymentRef)
	if errors.Is(err, orderapp.ErrOrderNotFound) {
		log.Warn("no order for payment reference")
		return AckUnknownRef, nil
	}
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	log = log.With("order_id", order.ID)

	t, err := orderdomain.Decide(order, trigger, p.now())
	if errors.Is(err, orderdomain.ErrIllegalTransition) {
		log.Info("payment event does not apply", "status", order.Status, "payment_status", order.PaymentStatus, "reason", err)
		return AckNoop, nil
	}
	if err != nil {
		return "", err
	}

	if err := p.applyEffect(ctx, log, t); err != nil {
		return "", err
	}

	if err := p.payments.Save(ctx, domain.NewPayment(order.ID, ev, p.now())); err != nil {
		return "", fmt.Errorf("save payment: %w", err)
	}

	if err := p.orders.SaveTransition(ctx, t); err != nil {
		return "", fmt.Errorf("save order: %w", err)
	}

	p.logTransition(log, t)
	return AckApplied, nil
}

// applyEffect runs the inventory side of a transition for every item. The
// order-scoped operations are idempotent, so a redelivery after a partial
// failure only applies what is missing. Business rejections are logged and
// do not block the payment state.
func (p *Processor) applyEffect(ctx context.Context, log *slog.Logger, t orderdomain.Transition) error {
	for _, item := range t.After.Items {
		var err error
		switch t.Effect {
		case orderdomain.EffectConfirm:
			err = p.inv.ConfirmFor(ctx, t.After.ID, item.ProductID, item.Quantity)
		case orderdomain.EffectRelease:
			err = p.inv.ReleaseFor(ctx, t.After.ID, item.ProductID, item.Quantity)
		case orderdomain.EffectRestock:
			err = p.inv.CancelFor(ctx, t.After.ID, item.ProductID, item.Quantity)
		}
		switch {
		case err == nil:
		case errors.Is(err, orderapp.ErrOutOfStock), errors.Is(err, orderapp.ErrProductNotFound), errors.Is(err, orderapp.ErrInvalidQuantity):
			log.Error("inventory effect rejected", "effect", t.Effect, "product_id", item.ProductID, "qty", item.Quantity, "err", err)
		default:
			return fmt.Errorf("inventory %s %s: %w", t.Effect, item.ProductID, err)
		}
	}
	return nil
}

func (p *Processor) logTransition(log *slog.Logger, t orderdomain.Transition) {
	attrs := []any{
		"number", t.After.Number,
		"old_status", t.Before.Status, "new_status", t.After.Status,
		"old_payment_status", t.Before.PaymentStatus, "new_payment_status", t.After.PaymentStatus,
	}
	switch {
	case !t.StatusChanged():
		log.Info("payment status updated", attrs...)
	case t.After.Status == orderdomain.StatusCancelled:
		log.Warn("order cancelled", attrs...)
	default:
		log.Info("order status changed", attrs...)
	}
}
