package outbox

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/marketplace/pkg/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher publishes outbox events to one topic, keyed by aggregate id so
// the events of an order stay ordered within a partition.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
	tracer   trace.Tracer
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic, tracer: otel.Tracer("outbox")}
}

// Dispatch forwards the stored trace context rather than the relay's own,
// so consumers join the trace of the request that wrote the event.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	ctx, span := d.tracer.Start(ctx, "outbox.publish", trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(
		attribute.String("messaging.destination.name", d.topic),
		attribute.String("event_type", event.Type),
		attribute.Int64("event_id", event.ID),
	))
	defer span.End()

	headers := make(tracing.HeaderCarrier, 0, len(event.Headers)+3)
	for k, v := range event.Headers {
		headers.Set(k, v)
	}
	headers.Set("event_type", event.Type)
	headers.Set("event_id", strconv.FormatInt(event.ID, 10))
	if event.Traceparent != "" {
		headers.Set(tracing.TraceparentHeader, event.Traceparent)
	}

	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.ID, "type", event.Type, "aggregate_id", event.AggregateID)
	return nil
}
