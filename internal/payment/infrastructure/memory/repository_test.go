package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-payment-saga/internal/payment/domain"
	"github.com/dmehra2102/order-payment-saga/internal/payment/infrastructure/memory"
)

func TestRepository_LatestByOrderPicksMostRecentInStatus(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	first := domain.NewPayment("user-1", "order-1", 100, "k1")
	second := domain.NewPayment("user-1", "order-1", 100, "k2")
	third := domain.NewPayment("user-1", "order-1", 100, "k3")
	other := domain.NewPayment("user-2", "order-2", 100, "k4")
	for _, p := range []*domain.Payment{&first, &second, &third, &other} {
		require.NoError(t, repo.Create(ctx, p))
	}

	for _, p := range []*domain.Payment{&first, &second, &other} {
		p.SetStatus(domain.StatusSuccess, time.Now())
		require.NoError(t, repo.Update(ctx, p))
	}
	third.SetStatus(domain.StatusFailed, time.Now())
	require.NoError(t, repo.Update(ctx, &third))

	got, err := repo.LatestByOrder(ctx, "order-1", domain.StatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = repo.LatestByOrder(ctx, "order-1", domain.StatusCancelled)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	_, err = repo.LatestByOrder(ctx, "order-3", domain.StatusSuccess)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	assert.Len(t, repo.ByOrder("order-1"), 3)
}

func TestRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	p := domain.NewPayment("user-1", "order-1", 100, "k1")
	ext := "ext-1"
	p.ExternalPaymentID = &ext
	require.NoError(t, repo.Create(ctx, &p))

	*p.ExternalPaymentID = "mutated"

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExternalPaymentID)
	assert.Equal(t, "ext-1", *got.ExternalPaymentID)
}

func TestRepository_UpdateUnknown(t *testing.T) {
	p := domain.NewPayment("user-1", "order-1", 100, "k1")
	p.ID = "missing"
	require.ErrorIs(t, memory.NewRepository().Update(context.Background(), &p), domain.ErrPaymentNotFound)
}
