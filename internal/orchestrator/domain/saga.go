package domain

import (
	"strings"
	"time"
)

type SagaState string

const (
	StateStarted             SagaState = "STARTED"
	StateCompleted           SagaState = "COMPLETED"
	StateFailed              SagaState = "FAILED"
	StateCompensated         SagaState = "COMPENSATED"
	StateCompensationSkipped SagaState = "COMPENSATION_SKIPPED"
	StateCompensationFailed  SagaState = "COMPENSATION_FAILED"
)

// Published reports whether events in this state leave the service through
// the outbox. STARTED is only kept in the local log.
func (s SagaState) Published() bool {
	return s != StateStarted
}

// SagaEvent is one step of an order workflow as seen by the journal.
type SagaEvent struct {
	OrderID     string    `json:"order_id"`
	State       SagaState `json:"state"`
	PaymentID   string    `json:"payment_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Error       string    `json:"error,omitempty"`
	Traceparent string    `json:"-"`
	At          time.Time `json:"at"`
}

func NewEvent(orderID string, state SagaState, at time.Time) SagaEvent {
	return SagaEvent{OrderID: orderID, State: state, At: at.UTC()}
}

func (e SagaEvent) WithError(err error) SagaEvent {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// EventType is the outbox event type for this step, e.g. saga.compensation_failed.
func (e SagaEvent) EventType() string {
	return "saga." + strings.ToLower(string(e.State))
}
