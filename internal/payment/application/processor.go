package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-payment-saga/internal/payment/domain"
	"github.com/dmehra2102/order-payment-saga/pkg/metrics"
)

const DefaultGatewayTimeout = 5 * time.Second

type PaymentResult struct {
	PaymentID string
	Status    domain.Status
}

// Processor owns the Payment lifecycle and is the only caller of the Gateway.
type Processor struct {
	log     *slog.Logger
	repo    PaymentRepository
	gateway Gateway
	metrics *metrics.SagaMetrics
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time
}

func NewProcessor(log *slog.Logger, repo PaymentRepository, gateway Gateway, m *metrics.SagaMetrics, gatewayTimeout time.Duration) *Processor {
	if gatewayTimeout <= 0 {
		gatewayTimeout = DefaultGatewayTimeout
	}
	return &Processor{
		log:     log,
		repo:    repo,
		gateway: gateway,
		metrics: m,
		tracer:  otel.Tracer("payment-processor"),
		timeout: gatewayTimeout,
		now:     time.Now,
	}
}

// ProcessPayment settles a payment locally without contacting the gateway.
func (p *Processor) ProcessPayment(ctx context.Context, userID, orderID string, amount int64) (PaymentResult, error) {
	pay := domain.NewPayment(userID, orderID, amount, newIdempotencyKey(orderID))
	if err := p.repo.Create(ctx, &pay); err != nil {
		return PaymentResult{}, fmt.Errorf("create payment: %w", err)
	}

	if amount <= 0 {
		return PaymentResult{PaymentID: pay.ID, Status: domain.StatusFailed}, p.rejectAmount(ctx, &pay)
	}

	pay.SetStatus(domain.StatusSuccess, p.now())
	if err := p.repo.Update(ctx, &pay); err != nil {
		return PaymentResult{}, fmt.Errorf("update payment %s: %w", pay.ID, err)
	}
	return PaymentResult{PaymentID: pay.ID, Status: pay.Status}, nil
}

// ProcessExternalPayment records a PROCESSING payment, asks the gateway to
// authorize it and stores whatever the gateway answered. A non-success answer
// yields ErrExternalPaymentFailed; a gateway error is returned wrapped.
func (p *Processor) ProcessExternalPayment(ctx context.Context, userID, orderID string, amount int64) (PaymentResult, error) {
	ctx, span := p.tracer.Start(ctx, "ProcessExternalPayment", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int64("payment.amount_cents", amount),
	))
	defer span.End()

	pay := domain.NewPayment(userID, orderID, amount, newIdempotencyKey(orderID))
	if err := p.repo.Create(ctx, &pay); err != nil {
		span.RecordError(err)
		return PaymentResult{}, fmt.Errorf("create payment: %w", err)
	}
	span.SetAttributes(attribute.String("payment.id", pay.ID))

	if amount <= 0 {
		return PaymentResult{PaymentID: pay.ID, Status: domain.StatusFailed}, p.rejectAmount(ctx, &pay)
	}

	// A reply that misses the deadline is handled once the FAILED status
	// below is stored.
	recorded := make(chan struct{})
	defer close(recorded)
	paymentID := pay.ID
	res, err := callGateway(ctx, p.timeout, func(ctx context.Context) (AuthorizeResult, error) {
		start := time.Now()
		res, err := p.gateway.Authorize(ctx, AuthorizeRequest{
			OrderID:        pay.OrderID,
			UserID:         pay.UserID,
			AmountCents:    pay.AmountCents,
			IdempotencyKey: pay.IdempotencyKey,
		})
		p.metrics.ObserveGateway("authorize", time.Since(start), err)
		return res, err
	}, func(late AuthorizeResult, lerr error) {
		<-recorded
		p.settleLateAuthorization(orderID, paymentID, late, lerr)
	})

	// The gateway has spoken; record its answer even if the caller went away.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorize failed")
		pay.SetStatus(domain.StatusFailed, p.now())
		if uerr := p.repo.Update(persistCtx, &pay); uerr != nil {
			p.log.Error("payment status update failed", "payment_id", pay.ID, "order_id", orderID, "err", uerr)
		}
		p.log.Error("payment authorization failed", "payment_id", pay.ID, "order_id", orderID, "err", err)
		return PaymentResult{PaymentID: pay.ID, Status: pay.Status}, fmt.Errorf("authorize payment %s: %w", pay.ID, err)
	}

	if res.ExternalPaymentID != "" {
		ext := res.ExternalPaymentID
		pay.ExternalPaymentID = &ext
	}
	pay.SetStatus(domain.NormalizeStatus(res.Status), p.now())
	if err := p.repo.Update(persistCtx, &pay); err != nil {
		span.RecordError(err)
		p.log.Error("authorization not recorded", "payment_id", pay.ID, "order_id", orderID,
			"external_payment_id", res.ExternalPaymentID, "status", pay.Status, "err", err)
		recordErr := fmt.Errorf("record authorization of payment %s: %w", pay.ID, err)
		// Compensation cannot find an unrecorded authorization, so void it here.
		if pay.Status == domain.StatusSuccess && res.ExternalPaymentID != "" {
			if verr := p.voidAuthorization(persistCtx, res.ExternalPaymentID); verr != nil {
				p.log.Error("unrecorded authorization not voided", "payment_id", pay.ID, "order_id", orderID,
					"external_payment_id", res.ExternalPaymentID, "err", verr)
				recordErr = errors.Join(recordErr, verr)
			} else {
				p.log.Warn("unrecorded authorization voided", "payment_id", pay.ID, "order_id", orderID,
					"external_payment_id", res.ExternalPaymentID)
			}
		}
		return PaymentResult{PaymentID: pay.ID, Status: pay.Status}, recordErr
	}

	if pay.Status != domain.StatusSuccess {
		span.SetStatus(codes.Error, "declined")
		p.log.Warn("payment declined by gateway", "payment_id", pay.ID, "order_id", orderID, "status", pay.Status)
		return PaymentResult{PaymentID: pay.ID, Status: pay.Status}, fmt.Errorf("%w: gateway returned %s", ErrExternalPaymentFailed, pay.Status)
	}

	p.log.Info("payment authorized", "payment_id", pay.ID, "order_id", orderID, "external_payment_id", res.ExternalPaymentID)
	return PaymentResult{PaymentID: pay.ID, Status: pay.Status}, nil
}

// CancelExternalPayment voids the most recent successful payment of the
// order at the gateway. It runs detached from the caller's cancellation and
// commits on its own, so it survives a workflow that is already unwinding.
func (p *Processor) CancelExternalPayment(ctx context.Context, orderID string) error {
	ctx, span := p.tracer.Start(context.WithoutCancel(ctx), "CancelExternalPayment",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	pay, err := p.repo.LatestByOrder(ctx, orderID, domain.StatusSuccess)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return fmt.Errorf("%w: order %s", ErrPaymentNotFound, orderID)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("find payment of order %s: %w", orderID, err)
	}
	if !pay.HasExternalID() {
		return fmt.Errorf("%w: payment %s", ErrExternalPaymentIDNotFound, pay.ID)
	}
	ext := *pay.ExternalPaymentID

	if err := p.voidAuthorization(ctx, ext); err != nil {
		span.RecordError(err)
		return err
	}

	pay.SetStatus(domain.StatusCancelled, p.now())
	if err := p.repo.Update(ctx, &pay); err != nil {
		span.RecordError(err)
		return fmt.Errorf("record cancellation of payment %s: %w", pay.ID, err)
	}

	p.log.Info("external payment cancelled", "payment_id", pay.ID, "order_id", orderID, "external_payment_id", ext)
	return nil
}

// voidAuthorization asks the gateway to cancel ext. It does not touch the
// stored payment.
func (p *Processor) voidAuthorization(ctx context.Context, ext string) error {
	res, err := callGateway(ctx, p.timeout, func(ctx context.Context) (CancelResult, error) {
		start := time.Now()
		res, err := p.gateway.Cancel(ctx, ext)
		p.metrics.ObserveGateway("cancel", time.Since(start), err)
		return res, err
	}, func(late CancelResult, lerr error) {
		p.log.Warn("gateway cancel answered after deadline", "external_payment_id", ext, "status", late.Status, "err", lerr)
	})
	if err != nil {
		return fmt.Errorf("cancel external payment %s: %w", ext, err)
	}
	if !cancelAccepted(res.Status) {
		return fmt.Errorf("%w: external payment %s status %q", ErrCancelRejected, ext, res.Status)
	}
	return nil
}

// settleLateAuthorization handles a gateway reply that arrived after the
// payment was already stored as FAILED. The provider id is kept on the
// payment, and a successful authorization is voided since the workflow has
// moved on without it.
func (p *Processor) settleLateAuthorization(orderID, paymentID string, res AuthorizeResult, err error) {
	if err != nil || res.ExternalPaymentID == "" {
		p.log.Warn("gateway authorize answered after deadline", "payment_id", paymentID, "order_id", orderID,
			"status", res.Status, "err", err)
		return
	}
	ext := res.ExternalPaymentID
	status := domain.NormalizeStatus(res.Status)
	p.log.Error("gateway authorize answered after deadline", "payment_id", paymentID, "order_id", orderID,
		"external_payment_id", ext, "status", status)

	ctx := context.Background()
	pay, gerr := p.repo.Get(ctx, paymentID)
	if gerr != nil {
		p.log.Error("late authorization not recorded", "payment_id", paymentID, "order_id", orderID,
			"external_payment_id", ext, "err", gerr)
		if status == domain.StatusSuccess {
			_ = p.voidAuthorization(ctx, ext)
		}
		return
	}
	pay.ExternalPaymentID = &ext

	if status == domain.StatusSuccess {
		if verr := p.voidAuthorization(ctx, ext); verr != nil {
			p.log.Error("late authorization not voided", "payment_id", paymentID, "order_id", orderID,
				"external_payment_id", ext, "err", verr)
		} else {
			pay.SetStatus(domain.StatusCancelled, p.now())
			p.log.Warn("late authorization voided", "payment_id", paymentID, "order_id", orderID, "external_payment_id", ext)
		}
	}
	if uerr := p.repo.Update(ctx, &pay); uerr != nil {
		p.log.Error("late authorization not recorded", "payment_id", paymentID, "order_id", orderID,
			"external_payment_id", ext, "err", uerr)
	}
}

func (p *Processor) rejectAmount(ctx context.Context, pay *domain.Payment) error {
	pay.SetStatus(domain.StatusFailed, p.now())
	rejected := fmt.Errorf("%w: %d", ErrInvalidPaymentAmount, pay.AmountCents)
	if err := p.repo.Update(ctx, pay); err != nil {
		return errors.Join(rejected, fmt.Errorf("update payment %s: %w", pay.ID, err))
	}
	p.log.Warn("payment rejected", "payment_id", pay.ID, "order_id", pay.OrderID, "amount_cents", pay.AmountCents)
	return rejected
}

// callGateway bounds a gateway call by timeout even when the implementation
// ignores its context. A call that outlives the deadline finishes in the
// background and its result goes to late.
func callGateway[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error), late func(T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			r := <-done
			late(r.v, r.err)
		}()
		var zero T
		return zero, fmt.Errorf("gateway call: %w", ctx.Err())
	}
}

func cancelAccepted(status string) bool {
	switch domain.NormalizeStatus(status) {
	case domain.StatusCancelled, "CANCELED", domain.StatusSuccess:
		return true
	}
	return false
}

func newIdempotencyKey(orderID string) string {
	return orderID + ":" + uuid.NewString()
}
