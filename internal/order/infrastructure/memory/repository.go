package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-payment-saga/internal/order/domain"
)

type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewRepository() *Repository {
	return &Repository{orders: make(map[string]domain.Order)}
}

func (r *Repository) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o.ID = uuid.NewString()
	o.Version = 1
	r.orders[o.ID] = *o
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (r *Repository) Update(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return domain.ErrVersionConflict
	}

	o.Version++
	r.orders[o.ID] = *o
	return nil
}
