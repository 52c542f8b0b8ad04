package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/marketplace/internal/payment/application"
	"github.com/dmehra2102/marketplace/internal/payment/domain"
	"github.com/dmehra2102/marketplace/pkg/idempotency"
	"github.com/dmehra2102/marketplace/pkg/tracing"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Handler interface {
	Handle(ctx context.Context, ev domain.PaymentEvent) (application.Ack, error)
}

// Consumer feeds payment events from a topic into the processor. A message
// is committed only once it has been handled, so transient failures are
// retried in place and survive restarts. Its offset is remembered only
// after handling succeeds.
type Consumer struct {
	log     *slog.Logger
	reader  Reader
	handler Handler
	idem    *idempotency.Store
	tracer  trace.Tracer
	backoff func() backoff.BackOff
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, handler Handler, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(log, r, handler, idem)
}

func newConsumer(log *slog.Logger, reader Reader, handler Handler, idem *idempotency.Store) *Consumer {
	return &Consumer{
		log:     log,
		reader:  reader,
		handler: handler,
		idem:    idem,
		tracer:  otel.Tracer("payment-consumer"),
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(100*time.Millisecond),
				backoff.WithMaxInterval(10*time.Second),
				backoff.WithMaxElapsedTime(0),
			)
		},
	}
}

// Run returns nil when ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.consume(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) consume(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	done, err := c.idem.Done(ctx, key)
	if err != nil {
		c.log.Warn("idempotency check failed", "key", key, "err", err)
	} else if done {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentEvent", trace.WithAttributes(
		attribute.String("topic", msg.Topic),
		attribute.Int64("offset", msg.Offset),
	))
	defer span.End()

	var ev domain.PaymentEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed, message dropped", "key", key, "err", err)
		return nil
	}

	op := func() error {
		ack, err := c.handler.Handle(msgCtx, ev)
		if err != nil {
			c.log.Warn("payment event handling failed, retrying", "event_id", ev.EventID, "err", err)
			return err
		}
		c.log.Info("payment event consumed", "event_id", ev.EventID, "type", ev.Type, "ack", ack)
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoff(), ctx)); err != nil {
		span.RecordError(err)
		return errors.Join(err, ctx.Err())
	}
	if err := c.idem.Mark(context.WithoutCancel(ctx), key); err != nil {
		c.log.Warn("idempotency mark failed", "key", key, "err", err)
	}
	return nil
}
