package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type memStore struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
	failed  map[int64]string
}

func (s *memStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(batchSize, len(s.pending))
	out := append([]Event(nil), s.pending[:n]...)
	s.pending = s.pending[n:]
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = msg
	return nil
}

func (s *memStore) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

func (s *memStore) snapshot() ([]int64, map[int64]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make(map[int64]string, len(s.failed))
	for k, v := range s.failed {
		failed[k] = v
	}
	return append([]int64(nil), s.sent...), failed
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail map[string]bool
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.fail[string(m.Key)] {
			return errors.New("broker unavailable")
		}
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelayPublishesPendingEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &memStore{
		pending: []Event{
			{ID: 1, AggregateID: "o1", Type: "OrderCreated", Payload: []byte(`{}`), Traceparent: "00-abc-def-01"},
			{ID: 2, AggregateID: "o2", Type: "OrderStatusChanged", Payload: []byte(`{}`), Headers: map[string]string{"source": "order-service"}},
			{ID: 3, AggregateID: "bad", Type: "OrderCreated", Payload: []byte(`{}`)},
		},
		failed: map[int64]string{},
	}
	producer := &fakeProducer{fail: map[string]bool{"bad": true}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := NewRelay(log, store, NewDispatcher(log, producer, "order.events"), "relay-1", WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		sent, failed := store.snapshot()
		return len(sent) == 2 && len(failed) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	sent, failed := store.snapshot()
	assert.Equal(t, []int64{1, 2}, sent)
	assert.Contains(t, failed[3], "broker unavailable")

	require.Len(t, producer.msgs, 2)
	first := producer.msgs[0]
	assert.Equal(t, "order.events", first.Topic)
	assert.Equal(t, "o1", string(first.Key))
	assert.Equal(t, "OrderCreated", header(first, "event_type"))
	assert.Equal(t, "1", header(first, "event_id"))
	assert.Equal(t, "00-abc-def-01", header(first, "traceparent"))
	assert.Equal(t, "order-service", header(producer.msgs[1], "source"))
}
