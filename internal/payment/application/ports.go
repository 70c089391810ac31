package application

import (
	"context"

	"github.com/dmehra2102/order-payment-saga/internal/payment/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, id string) (domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment) error
	// LatestByOrder returns the most recently created payment of the order in
	// the given status, or domain.ErrPaymentNotFound.
	LatestByOrder(ctx context.Context, orderID string, status domain.Status) (domain.Payment, error)
}

type AuthorizeRequest struct {
	OrderID        string
	UserID         string
	AmountCents    int64
	IdempotencyKey string
}

type AuthorizeResult struct {
	ExternalPaymentID string
	Status            string
}

type CancelResult struct {
	Status string
}

// Gateway is the external payment provider. Both calls are synchronous and
// report transport or provider failures as errors.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
	Cancel(ctx context.Context, externalPaymentID string) (CancelResult, error)
}
