package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/dmehra2102/marketplace/internal/order/application"
	"github.com/dmehra2102/marketplace/internal/order/domain"
	"github.com/dmehra2102/marketplace/pkg/outbox"
)

// Repository keeps orders in memory and records the events that would have
// been written to the outbox.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	byRef  map[string]string
	events []outbox.Event
}

var _ application.OrderRepository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		orders: make(map[string]domain.Order),
		byRef:  make(map[string]string),
	}
}

func (r *Repository) Create(_ context.Context, o domain.Order, event domain.OrderCreated) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	if o.PaymentRef != "" {
		r.byRef[o.PaymentRef] = o.ID
	}
	r.append(o.ID, domain.EventOrderCreated, payload)
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, application.ErrOrderNotFound
	}
	return o, nil
}

func (r *Repository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) GetByPaymentRef(ctx context.Context, ref string) (domain.Order, error) {
	r.mu.RLock()
	id, ok := r.byRef[ref]
	r.mu.RUnlock()
	if !ok {
		return domain.Order{}, application.ErrOrderNotFound
	}
	return r.Get(ctx, id)
}

func (r *Repository) SaveTransition(_ context.Context, t domain.Transition) error {
	var payload []byte
	if t.StatusChanged() {
		var err error
		if payload, err = json.Marshal(domain.NewOrderStatusChanged(t)); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[t.After.ID]
	if !ok {
		return application.ErrOrderNotFound
	}
	if cur.PaymentStatus != t.Before.PaymentStatus {
		return application.ErrConcurrentUpdate
	}
	r.orders[t.After.ID] = t.After
	if payload != nil {
		r.append(t.After.ID, domain.EventOrderStatusChanged, payload)
	}
	return nil
}

func (r *Repository) append(orderID, eventType string, payload []byte) {
	r.events = append(r.events, outbox.Event{
		ID:            int64(len(r.events) + 1),
		AggregateType: "order",
		AggregateID:   orderID,
		Type:          eventType,
		Payload:       payload,
		Status:        outbox.StatusPending,
	})
}

// Events returns the recorded outbox events in write order.
func (r *Repository) Events() []outbox.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]outbox.Event(nil), r.events...)
}
