package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-payment-saga/internal/payment/domain"
)

// Repository keeps payments in insertion order per order id so the latest
// payment in a status is found without scanning every record.
type Repository struct {
	mu       sync.RWMutex
	payments map[string]domain.Payment
	byOrder  map[string][]string
}

func NewRepository() *Repository {
	return &Repository{
		payments: make(map[string]domain.Payment),
		byOrder:  make(map[string][]string),
	}
}

func (r *Repository) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.ID = uuid.NewString()
	r.payments[p.ID] = clonePayment(*p)
	r.byOrder[p.OrderID] = append(r.byOrder[p.OrderID], p.ID)
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *Repository) Update(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	r.payments[p.ID] = clonePayment(*p)
	return nil
}

func (r *Repository) LatestByOrder(_ context.Context, orderID string, status domain.Status) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOrder[orderID]
	for i := len(ids) - 1; i >= 0; i-- {
		if p := r.payments[ids[i]]; p.Status == status {
			return clonePayment(p), nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *Repository) ByOrder(orderID string) []domain.Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Payment, 0, len(r.byOrder[orderID]))
	for _, id := range r.byOrder[orderID] {
		out = append(out, clonePayment(r.payments[id]))
	}
	return out
}

func clonePayment(p domain.Payment) domain.Payment {
	if p.ExternalPaymentID != nil {
		ext := *p.ExternalPaymentID
		p.ExternalPaymentID = &ext
	}
	return p
}
