package domain

import (
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

var ErrPaymentNotFound = errors.New("payment not found")

// Payment is one attempt to collect AmountCents for an order. Status may also
// carry a provider status such as DECLINED. ExternalPaymentID is set only when
// the gateway answered an authorization with a provider identifier.
type Payment struct {
	ID                string
	OrderID           string
	UserID            string
	AmountCents       int64
	Status            Status
	ExternalPaymentID *string
	IdempotencyKey    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewPayment(userID, orderID string, amountCents int64, idempotencyKey string) Payment {
	now := time.Now().UTC()
	return Payment{
		OrderID:        orderID,
		UserID:         userID,
		AmountCents:    amountCents,
		Status:         StatusProcessing,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NormalizeStatus maps a provider status onto the local vocabulary. An empty
// status is treated as FAILED.
func NormalizeStatus(s string) Status {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return StatusFailed
	}
	return Status(s)
}

func (p *Payment) SetStatus(s Status, now time.Time) {
	p.Status = s
	p.UpdatedAt = now.UTC()
}

func (p *Payment) HasExternalID() bool {
	return p.ExternalPaymentID != nil && *p.ExternalPaymentID != ""
}

// Outcome is the closed set of results an authorization attempt can end in.
type Outcome int

const (
	// OutcomeAuthorized: the provider accepted the charge.
	OutcomeAuthorized Outcome = iota
	// OutcomeDeclined: a business rule rejected the payment; no funds moved.
	OutcomeDeclined
	// OutcomeIndeterminate: the call failed in a way that may have left an
	// authorization behind at the provider.
	OutcomeIndeterminate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeDeclined:
		return "declined"
	default:
		return "indeterminate"
	}
}
