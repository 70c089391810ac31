package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaState_Published(t *testing.T) {
	assert.False(t, StateStarted.Published())
	for _, s := range []SagaState{StateCompleted, StateFailed, StateCompensated, StateCompensationSkipped, StateCompensationFailed} {
		assert.True(t, s.Published(), s)
	}
}

func TestSagaEvent_EventType(t *testing.T) {
	ev := NewEvent("o-1", StateCompensationFailed, time.Now())
	assert.Equal(t, "saga.compensation_failed", ev.EventType())
}

func TestSagaEvent_JSON_ShouldOmitTraceparent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	ev := NewEvent("o-1", StateFailed, at).WithError(errors.New("declined"))
	ev.Traceparent = "00-abc-def-01"

	assert.Equal(t, time.UTC, ev.At.Location())

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"order_id":"o-1","state":"FAILED","error":"declined","at":"2026-01-02T02:04:05Z"}`, string(raw))
}

func TestSagaEvent_WithNilError_ShouldLeaveErrorEmpty(t *testing.T) {
	ev := NewEvent("o-1", StateCompleted, time.Now()).WithError(nil)
	assert.Empty(t, ev.Error)
}
