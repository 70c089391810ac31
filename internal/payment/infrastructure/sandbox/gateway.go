package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-payment-saga/internal/payment/application"
)

var ErrUnknownPayment = errors.New("unknown external payment")

const (
	statusSuccess   = "SUCCESS"
	statusDeclined  = "DECLINED"
	statusCancelled = "CANCELLED"
)

// Gateway is a deterministic stand-in for a payment provider. It approves
// amounts up to approvalLimit and declines the rest. Replaying an
// idempotency key returns the first answer given for it.
type Gateway struct {
	log           *slog.Logger
	approvalLimit int64

	mu     sync.Mutex
	byKey  map[string]application.AuthorizeResult
	status map[string]string
}

func NewGateway(log *slog.Logger, approvalLimit int64) *Gateway {
	return &Gateway{
		log:           log,
		approvalLimit: approvalLimit,
		byKey:         make(map[string]application.AuthorizeResult),
		status:        make(map[string]string),
	}
}

func (g *Gateway) Authorize(ctx context.Context, req application.AuthorizeRequest) (application.AuthorizeResult, error) {
	if err := ctx.Err(); err != nil {
		return application.AuthorizeResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if req.IdempotencyKey != "" {
		if res, ok := g.byKey[req.IdempotencyKey]; ok {
			g.log.Info("sandbox authorize replayed", "idempotency_key", req.IdempotencyKey, "external_payment_id", res.ExternalPaymentID)
			return res, nil
		}
	}

	var res application.AuthorizeResult
	if req.AmountCents > 0 && req.AmountCents <= g.approvalLimit {
		res = application.AuthorizeResult{ExternalPaymentID: "sbx_" + uuid.NewString(), Status: statusSuccess}
		g.status[res.ExternalPaymentID] = statusSuccess
	} else {
		res = application.AuthorizeResult{Status: statusDeclined}
	}
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = res
	}

	g.log.Info("sandbox authorize", "order_id", req.OrderID, "amount_cents", req.AmountCents, "status", res.Status)
	return res, nil
}

func (g *Gateway) Cancel(ctx context.Context, externalPaymentID string) (application.CancelResult, error) {
	if err := ctx.Err(); err != nil {
		return application.CancelResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.status[externalPaymentID]; !ok {
		return application.CancelResult{}, fmt.Errorf("%w: %s", ErrUnknownPayment, externalPaymentID)
	}
	g.status[externalPaymentID] = statusCancelled
	g.log.Info("sandbox cancel", "external_payment_id", externalPaymentID)
	return application.CancelResult{Status: statusCancelled}, nil
}

// Status returns the provider-side status of an authorization.
func (g *Gateway) Status(externalPaymentID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.status[externalPaymentID]
	return s, ok
}
