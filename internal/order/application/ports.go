package application

import (
	"context"

	"github.com/dmehra2102/order-payment-saga/internal/order/domain"
)

// OrderRepository assigns Order.ID and Version on Create. Update succeeds only
// when o.Version matches the stored version and bumps it on success.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
}
