package domain

import (
	"errors"
	"fmt"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusFailed    OrderStatus = "FAILED"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrVersionConflict   = errors.New("order version conflict")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Order is created PENDING and moves exactly once to COMPLETED or FAILED.
// Version is the optimistic-lock token checked by every repository update.
type Order struct {
	ID          string
	UserID      string
	ProductID   string
	Quantity    int
	AmountCents int64
	Status      OrderStatus
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewOrder(userID, productID string, quantity int, amountCents int64) Order {
	now := time.Now().UTC()
	return Order{
		UserID:      userID,
		ProductID:   productID,
		Quantity:    quantity,
		AmountCents: amountCents,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (o *Order) Complete(now time.Time) error {
	return o.transition(StatusCompleted, now)
}

func (o *Order) Fail(now time.Time) error {
	return o.transition(StatusFailed, now)
}

func (o *Order) transition(to OrderStatus, now time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return nil
}
