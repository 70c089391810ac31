package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-payment-saga/internal/order/domain"
)

func TestNewOrder_StartsPending(t *testing.T) {
	o := domain.NewOrder("user-1", "sku-1", 2, 1500)

	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Empty(t, o.ID)
	assert.Equal(t, int64(1500), o.AmountCents)
	assert.False(t, o.Status.IsTerminal())
}

func TestOrder_TransitionsOnlyOnceFromPending(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	o := domain.NewOrder("user-1", "sku-1", 1, 100)
	require.NoError(t, o.Complete(now))
	assert.Equal(t, domain.StatusCompleted, o.Status)
	assert.Equal(t, now, o.UpdatedAt)
	assert.True(t, o.Status.IsTerminal())

	err := o.Fail(now)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusCompleted, o.Status)

	f := domain.NewOrder("user-1", "sku-1", 1, 100)
	require.NoError(t, f.Fail(now))
	require.ErrorIs(t, f.Complete(now), domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusFailed, f.Status)
}
