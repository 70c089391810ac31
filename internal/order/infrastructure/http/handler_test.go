package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-payment-saga/internal/orchestrator/application"
	"github.com/dmehra2102/order-payment-saga/internal/order/domain"
	payapp "github.com/dmehra2102/order-payment-saga/internal/payment/application"
)

type fakeService struct {
	createFn func(context.Context, application.OrderData) (application.OrderResult, error)
	getFn    func(context.Context, string) (domain.Order, error)
	lastData application.OrderData
}

func (f *fakeService) CreateOrderWithExternalPayment(ctx context.Context, data application.OrderData) (application.OrderResult, error) {
	f.lastData = data
	return f.createFn(ctx, data)
}

func (f *fakeService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return f.getFn(ctx, id)
}

func newTestHandler(svc *fakeService) http.Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).Routes()
}

const validBody = `{"user_id":"u-1","product_id":"sku-1","quantity":1,"amount_cents":1500}`

func TestCreateOrder_WhenCompleted_ShouldReturn201(t *testing.T) {
	svc := &fakeService{createFn: func(context.Context, application.OrderData) (application.OrderResult, error) {
		return application.OrderResult{OrderID: "o-1", Status: domain.StatusCompleted, PaymentID: "p-1"}, nil
	}}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(validBody))
	req.Header.Set("Idempotency-Key", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"order_id":"o-1","status":"COMPLETED","payment_id":"p-1"}`, rec.Body.String())
	assert.Equal(t, "req-42", svc.lastData.RequestKey)
	assert.Equal(t, int64(1500), svc.lastData.AmountCents)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		orderID string
		err     error
		want    int
	}{
		{"duplicate", "", fmt.Errorf("%w: req", application.ErrDuplicateRequest), http.StatusConflict},
		{"invalid amount", "o-1", fmt.Errorf("wrap: %w", payapp.ErrInvalidPaymentAmount), http.StatusUnprocessableEntity},
		{"declined", "o-1", fmt.Errorf("wrap: %w", payapp.ErrExternalPaymentFailed), http.StatusPaymentRequired},
		{"non-success result", "o-1", application.ErrPaymentFailed, http.StatusPaymentRequired},
		{"transport", "o-1", errors.New("connection reset"), http.StatusBadGateway},
		{"create failed", "", errors.New("create order: db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{createFn: func(context.Context, application.OrderData) (application.OrderResult, error) {
				res := application.OrderResult{OrderID: tc.orderID}
				if tc.orderID != "" {
					res.Status = domain.StatusFailed
				}
				return res, tc.err
			}}
			rec := httptest.NewRecorder()
			newTestHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(validBody)))

			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestCreateOrder_WhenBodyInvalid_ShouldReturn400(t *testing.T) {
	svc := &fakeService{createFn: func(context.Context, application.OrderData) (application.OrderResult, error) {
		t.Fatal("service must not be called")
		return application.OrderResult{}, nil
	}}
	h := newTestHandler(svc)

	for _, body := range []string{`{`, `{"user_id":"u-1"}`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestGetOrder(t *testing.T) {
	svc := &fakeService{getFn: func(_ context.Context, id string) (domain.Order, error) {
		if id != "o-1" {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{ID: "o-1", UserID: "u-1", ProductID: "sku-1", Quantity: 2, AmountCents: 300, Status: domain.StatusFailed}, nil
	}}
	h := newTestHandler(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"order_id":"o-1","status":"FAILED","user_id":"u-1","product_id":"sku-1","quantity":2,"amount_cents":300}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
