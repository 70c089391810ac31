package application

import (
	"context"

	sagadomain "github.com/dmehra2102/order-payment-saga/internal/orchestrator/domain"
	payapp "github.com/dmehra2102/order-payment-saga/internal/payment/application"
)

// PaymentProcessor is the part of payment/application.Processor the
// coordinator drives.
type PaymentProcessor interface {
	ProcessExternalPayment(ctx context.Context, userID, orderID string, amount int64) (payapp.PaymentResult, error)
	CancelExternalPayment(ctx context.Context, orderID string) error
}

// Journal records workflow steps. A failing journal never changes the
// outcome of the workflow.
type Journal interface {
	Record(ctx context.Context, ev sagadomain.SagaEvent) error
}

// RequestGuard deduplicates caller request keys. Claim reports true for the
// first caller of a key within its TTL.
type RequestGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, sagadomain.SagaEvent) error { return nil }
