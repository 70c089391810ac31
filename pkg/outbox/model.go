package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Statuses lists every row status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusSent, StatusFailed}

// Event is one saga journal entry waiting for Kafka. The journal writes it
// in the same transaction as the saga_log row; a Relay publishes it keyed by
// AggregateID so events of one order stay ordered.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}

// lastAttempt reports whether a failure now would exhaust the retry budget.
func (e Event) lastAttempt(maxRetries int) bool {
	return e.RetryCount+1 >= maxRetries
}
