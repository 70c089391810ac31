package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/order-payment-saga/internal/orchestrator/domain"
)

type Journal struct {
	mu     sync.Mutex
	events []domain.SagaEvent
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Record(_ context.Context, ev domain.SagaEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

// ByOrder returns the recorded events of an order in recording order.
func (j *Journal) ByOrder(orderID string) []domain.SagaEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []domain.SagaEvent
	for _, ev := range j.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out
}

// States is ByOrder reduced to the state sequence.
func (j *Journal) States(orderID string) []domain.SagaState {
	events := j.ByOrder(orderID)
	out := make([]domain.SagaState, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.State)
	}
	return out
}
