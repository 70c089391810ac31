package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sagadomain "github.com/dmehra2102/order-payment-saga/internal/orchestrator/domain"
	orderapp "github.com/dmehra2102/order-payment-saga/internal/order/application"
	orderdomain "github.com/dmehra2102/order-payment-saga/internal/order/domain"
	payapp "github.com/dmehra2102/order-payment-saga/internal/payment/application"
	paydomain "github.com/dmehra2102/order-payment-saga/internal/payment/domain"
	"github.com/dmehra2102/order-payment-saga/pkg/metrics"
)

var (
	ErrPaymentFailed    = errors.New("payment failed")
	ErrDuplicateRequest = errors.New("duplicate request")
)

type OrderData struct {
	UserID      string
	ProductID   string
	Quantity    int
	AmountCents int64
	// RequestKey is optional. When set, a second request with the same key
	// is rejected before any order is created.
	RequestKey string
}

type OrderResult struct {
	OrderID   string
	Status    orderdomain.OrderStatus
	PaymentID string
}

// Coordinator runs the create-order-and-pay workflow. Every call that got
// as far as creating an order leaves it COMPLETED or FAILED.
type Coordinator struct {
	log      *slog.Logger
	orders   orderapp.OrderRepository
	payments PaymentProcessor
	journal  Journal
	guard    RequestGuard
	metrics  *metrics.SagaMetrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewCoordinator wires the workflow. journal, guard and m may be nil.
func NewCoordinator(log *slog.Logger, orders orderapp.OrderRepository, payments PaymentProcessor, journal Journal, guard RequestGuard, m *metrics.SagaMetrics) *Coordinator {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Coordinator{
		log:      log,
		orders:   orders,
		payments: payments,
		journal:  journal,
		guard:    guard,
		metrics:  m,
		tracer:   otel.Tracer("order-coordinator"),
		now:      time.Now,
	}
}

func (c *Coordinator) CreateOrderWithExternalPayment(ctx context.Context, data OrderData) (OrderResult, error) {
	ctx, span := c.tracer.Start(ctx, "CreateOrderWithExternalPayment", trace.WithAttributes(
		attribute.String("user.id", data.UserID),
		attribute.Int64("order.amount_cents", data.AmountCents),
	))
	defer span.End()

	if err := c.claim(ctx, data.RequestKey); err != nil {
		span.RecordError(err)
		return OrderResult{}, err
	}

	order := orderdomain.NewOrder(data.UserID, data.ProductID, data.Quantity, data.AmountCents)
	if err := c.orders.Create(ctx, &order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		c.release(ctx, data.RequestKey)
		return OrderResult{}, fmt.Errorf("create order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	c.record(ctx, sagadomain.NewEvent(order.ID, sagadomain.StateStarted, c.now()))
	c.log.Info("order created", "order_id", order.ID, "user_id", order.UserID, "amount_cents", order.AmountCents)

	res, err := c.payments.ProcessExternalPayment(ctx, order.UserID, order.ID, order.AmountCents)
	if err != nil {
		cause := fmt.Errorf("process payment for order %s: %w", order.ID, err)
		outcome := payapp.ClassifyOutcome(err)
		span.SetAttributes(attribute.String("payment.outcome", outcome.String()))
		if outcome == paydomain.OutcomeIndeterminate {
			c.compensate(ctx, order.ID, err)
		}
		span.RecordError(cause)
		span.SetStatus(codes.Error, "payment")
		return c.failed(order, res.PaymentID), c.fail(ctx, order, res.PaymentID, cause)
	}

	if res.Status != paydomain.StatusSuccess {
		cause := fmt.Errorf("%w: payment %s ended in %s", ErrPaymentFailed, res.PaymentID, res.Status)
		span.SetStatus(codes.Error, "payment")
		return c.failed(order, res.PaymentID), c.fail(ctx, order, res.PaymentID, cause)
	}

	completed := order
	if err := completed.Complete(c.now()); err != nil {
		return c.failed(order, res.PaymentID), c.fail(ctx, order, res.PaymentID, err)
	}
	if err := c.orders.Update(context.WithoutCancel(ctx), &completed); err != nil {
		if c.completedAnyway(ctx, order.ID, err) {
			return c.completeOrder(ctx, order.ID, res.PaymentID), nil
		}
		// The charge went through but the order cannot say so; undo the charge.
		cause := fmt.Errorf("complete order %s: %w", order.ID, err)
		span.RecordError(cause)
		span.SetStatus(codes.Error, "complete order")
		c.compensate(ctx, order.ID, cause)
		return c.failed(order, res.PaymentID), c.fail(ctx, order, res.PaymentID, cause)
	}

	return c.completeOrder(ctx, order.ID, res.PaymentID), nil
}

// completedAnyway reports whether a COMPLETED write that returned err was
// committed regardless, as happens when the acknowledgement is lost.
func (c *Coordinator) completedAnyway(ctx context.Context, orderID string, err error) bool {
	stored, gerr := c.orders.Get(context.WithoutCancel(ctx), orderID)
	if gerr != nil {
		c.log.Warn("order re-read failed", "order_id", orderID, "err", gerr)
		return false
	}
	if stored.Status != orderdomain.StatusCompleted {
		return false
	}
	c.log.Warn("order completion committed despite write error", "order_id", orderID, "err", err)
	return true
}

func (c *Coordinator) completeOrder(ctx context.Context, orderID, paymentID string) OrderResult {
	c.metrics.ObserveOrder(string(orderdomain.StatusCompleted))
	ev := sagadomain.NewEvent(orderID, sagadomain.StateCompleted, c.now())
	ev.PaymentID = paymentID
	c.record(ctx, ev)
	c.log.Info("order completed", "order_id", orderID, "payment_id", paymentID)

	return OrderResult{OrderID: orderID, Status: orderdomain.StatusCompleted, PaymentID: paymentID}
}

func (c *Coordinator) GetOrder(ctx context.Context, id string) (orderdomain.Order, error) {
	return c.orders.Get(ctx, id)
}

// fail lands the FAILED status and returns cause. If the write itself fails
// both errors are returned.
func (c *Coordinator) fail(ctx context.Context, order orderdomain.Order, paymentID string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	failed := order
	if err := failed.Fail(c.now()); err != nil {
		return errors.Join(cause, err)
	}
	err := c.orders.Update(ctx, &failed)
	if errors.Is(err, orderdomain.ErrVersionConflict) {
		failed, err = c.failStored(ctx, order.ID)
		if err == nil && failed.Status != orderdomain.StatusFailed {
			err = fmt.Errorf("%w: order %s is %s", orderdomain.ErrInvalidTransition, order.ID, failed.Status)
		}
	}
	if err != nil {
		c.log.Error("order terminal write failed", "order_id", order.ID, "cause", cause, "err", err)
		ev := sagadomain.NewEvent(order.ID, sagadomain.StateFailed, c.now()).WithError(errors.Join(cause, err))
		ev.PaymentID = paymentID
		ev.Detail = "terminal write failed"
		c.record(ctx, ev)
		return errors.Join(cause, fmt.Errorf("mark order %s failed: %w", order.ID, err))
	}

	c.metrics.ObserveOrder(string(orderdomain.StatusFailed))
	ev := sagadomain.NewEvent(order.ID, sagadomain.StateFailed, c.now()).WithError(cause)
	ev.PaymentID = paymentID
	c.record(ctx, ev)
	c.log.Warn("order failed", "order_id", order.ID, "payment_id", paymentID, "err", cause)
	return cause
}

// failStored reloads an order whose FAILED write lost a version race and
// fails the stored copy. An order that is already terminal is returned as is.
func (c *Coordinator) failStored(ctx context.Context, orderID string) (orderdomain.Order, error) {
	stored, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if stored.Status != orderdomain.StatusPending {
		return stored, nil
	}
	if err := stored.Fail(c.now()); err != nil {
		return stored, err
	}
	return stored, c.orders.Update(ctx, &stored)
}

// compensate makes the single cancellation attempt of the workflow. Its
// outcome goes to logs, metrics and the journal, never to the caller.
func (c *Coordinator) compensate(ctx context.Context, orderID string, cause error) {
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), "Compensate",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	err := c.payments.CancelExternalPayment(ctx, orderID)

	ev := sagadomain.NewEvent(orderID, sagadomain.StateCompensated, c.now())
	ev.Detail = cause.Error()
	switch {
	case err == nil:
		c.metrics.ObserveCompensation("compensated")
		c.log.Info("payment compensated", "order_id", orderID)
	case errors.Is(err, payapp.ErrPaymentNotFound), errors.Is(err, payapp.ErrExternalPaymentIDNotFound):
		ev.State = sagadomain.StateCompensationSkipped
		ev = ev.WithError(err)
		c.metrics.ObserveCompensation("skipped")
		c.log.Info("compensation skipped", "order_id", orderID, "reason", err)
	default:
		ev.State = sagadomain.StateCompensationFailed
		ev = ev.WithError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		c.metrics.ObserveCompensation("failed")
		c.log.Error("compensation failed", "order_id", orderID, "cause", cause, "err", err)
	}
	c.record(ctx, ev)
}

func (c *Coordinator) record(ctx context.Context, ev sagadomain.SagaEvent) {
	if err := c.journal.Record(context.WithoutCancel(ctx), ev); err != nil {
		c.log.Warn("saga journal write failed", "order_id", ev.OrderID, "state", ev.State, "err", err)
	}
}

func (c *Coordinator) claim(ctx context.Context, key string) error {
	if key == "" || c.guard == nil {
		return nil
	}
	first, err := c.guard.Claim(ctx, key)
	if err != nil {
		return fmt.Errorf("claim request key %q: %w", key, err)
	}
	if !first {
		return fmt.Errorf("%w: %q", ErrDuplicateRequest, key)
	}
	return nil
}

// release frees a claimed key when nothing durable was written for it.
func (c *Coordinator) release(ctx context.Context, key string) {
	if key == "" || c.guard == nil {
		return
	}
	if err := c.guard.Release(context.WithoutCancel(ctx), key); err != nil {
		c.log.Warn("request key release failed", "key", key, "err", err)
	}
}

func (c *Coordinator) failed(order orderdomain.Order, paymentID string) OrderResult {
	return OrderResult{OrderID: order.ID, Status: orderdomain.StatusFailed, PaymentID: paymentID}
}
