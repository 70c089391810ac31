package application

import (
	"errors"

	"github.com/dmehra2102/order-payment-saga/internal/payment/domain"
)

var (
	ErrInvalidPaymentAmount      = errors.New("invalid payment amount")
	ErrExternalPaymentFailed     = errors.New("external payment failed")
	ErrPaymentNotFound           = errors.New("no successful payment found for order")
	ErrExternalPaymentIDNotFound = errors.New("successful payment has no external payment id")
	ErrCancelRejected            = errors.New("gateway rejected cancellation")
)

// ClassifyOutcome maps an error returned by ProcessExternalPayment onto the
// closed outcome set. Only OutcomeIndeterminate calls for compensation.
func ClassifyOutcome(err error) domain.Outcome {
	switch {
	case err == nil:
		return domain.OutcomeAuthorized
	case errors.Is(err, ErrInvalidPaymentAmount), errors.Is(err, ErrExternalPaymentFailed):
		return domain.OutcomeDeclined
	default:
		return domain.OutcomeIndeterminate
	}
}
