package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestHeaderCarrier(t *testing.T) {
	c := HeaderCarrier{{Key: "source", Value: []byte("order-service")}}
	c.Set(TraceparentHeader, "a")
	c.Set(TraceparentHeader, parent)

	assert.Equal(t, parent, c.Get(TraceparentHeader))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"source", TraceparentHeader}, c.Keys())
}

func TestKafkaHeadersContinueTrace(t *testing.T) {
	shutdown, err := Init(context.Background(), "test", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx := ExtractKafkaHeaders(context.Background(), []kafka.Header{{Key: TraceparentHeader, Value: []byte(parent)}})

	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.Equal(t, parent, Traceparent(ctx))
}

func TestTraceparentWithoutSpan(t *testing.T) {
	assert.Empty(t, Traceparent(context.Background()))
}
