package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/marketplace/internal/payment/domain"
)

type Repository struct {
	mu       sync.Mutex
	payments []domain.Payment
	seen     map[string]bool
}

func NewRepository() *Repository {
	return &Repository{seen: make(map[string]bool)}
}

func (r *Repository) Save(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[p.EventID] {
		return nil
	}
	r.seen[p.EventID] = true
	r.payments = append(r.payments, p)
	return nil
}

func (r *Repository) Payments() []domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Payment(nil), r.payments...)
}
