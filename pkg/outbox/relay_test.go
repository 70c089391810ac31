package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type fakeStore struct {
	mu       sync.Mutex
	events   []Event
	sent     []int64
	failed   map[int64]bool // id -> retry
	extended int
}

func newFakeStore(events ...Event) *fakeStore {
	return &fakeStore{events: events, failed: map[int64]bool{}}
}

func (s *fakeStore) LockBatch(_ context.Context, _ string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for i := range s.events {
		if s.events[i].Status != StatusPending || len(out) == batchSize {
			continue
		}
		s.events[i].Status = StatusInProgress
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	for _, id := range ids {
		s.setStatus(id, StatusSent)
	}
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, _ string, retry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = retry
	if retry {
		s.setStatus(id, StatusPending)
	} else {
		s.setStatus(id, StatusFailed)
	}
	return nil
}

func (s *fakeStore) ExtendLease(context.Context, string, []int64, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extended++
	return nil
}

func (s *fakeStore) setStatus(id int64, st Status) {
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].Status = st
			if st == StatusPending {
				s.events[i].RetryCount++
			}
		}
	}
}

type fakeProducer struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	writeFn func(kafka.Message) error
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.writeFn != nil {
			if err := p.writeFn(m); err != nil {
				return err
			}
		}
		p.msgs = append(p.msgs, m)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingEvent(id int64, aggregateID string) Event {
	return Event{ID: id, AggregateType: "order", AggregateID: aggregateID, Type: "saga.failed", Payload: []byte(`{}`), Status: StatusPending}
}

func TestRelay_RunOnce_ShouldPublishAndMarkSent(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	store := newFakeStore(pendingEvent(1, "order-1"), pendingEvent(2, "order-2"))
	store.events[0].Traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	store.events[0].Headers = map[string]string{"source": "order-service"}
	producer := &fakeProducer{}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "saga.events"), Config{RelayID: "r1"})

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{1, 2}, store.sent)

	require.Len(t, producer.msgs, 2)
	msg := producer.msgs[0]
	assert.Equal(t, "saga.events", msg.Topic)
	assert.Equal(t, []byte("order-1"), msg.Key)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "saga.failed", headers["event_type"])
	assert.Equal(t, "order", headers["aggregate_type"])
	assert.Equal(t, "order-service", headers["source"])
	assert.Equal(t, store.events[0].Traceparent, headers["traceparent"])
}

func TestRelay_RunOnce_WhenDispatchFails_ShouldRetryUntilLimit(t *testing.T) {
	store := newFakeStore(pendingEvent(1, "order-1"))
	producer := &fakeProducer{writeFn: func(kafka.Message) error { return errors.New("broker unavailable") }}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "t"), Config{MaxRetries: 3})

	for i := 0; i < 2; i++ {
		n, err := relay.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.True(t, store.failed[1], "attempt %d should be retried", i+1)
	}

	_, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, store.failed[1])
	assert.Equal(t, StatusFailed, store.events[0].Status)

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_RunOnce_WhenErrorIsPermanent_ShouldParkImmediately(t *testing.T) {
	store := newFakeStore(pendingEvent(1, "order-1"), pendingEvent(2, "order-2"))
	producer := &fakeProducer{writeFn: func(m kafka.Message) error {
		if string(m.Key) == "order-1" {
			return kafka.MessageSizeTooLarge
		}
		return nil
	}}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), producer, "t"), Config{})

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, store.failed[1])
	assert.Equal(t, []int64{2}, store.sent)
}

func TestRelay_RunOnce_WhenBatchOutlivesHalfLease_ShouldExtendLease(t *testing.T) {
	store := newFakeStore(pendingEvent(1, "a"), pendingEvent(2, "b"))
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), &fakeProducer{}, "t"), Config{Lease: time.Second})
	clock := time.Unix(0, 0)
	relay.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.extended)
}

func TestRelay_Run_ShouldStopOnCancel(t *testing.T) {
	store := newFakeStore(pendingEvent(1, "a"))
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), &fakeProducer{}, "t"), Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
