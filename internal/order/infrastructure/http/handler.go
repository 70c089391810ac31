package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-payment-saga/internal/orchestrator/application"
	"github.com/dmehra2102/order-payment-saga/internal/order/domain"
	payapp "github.com/dmehra2102/order-payment-saga/internal/payment/application"
	paydomain "github.com/dmehra2102/order-payment-saga/internal/payment/domain"
)

type OrderService interface {
	CreateOrderWithExternalPayment(ctx context.Context, data application.OrderData) (application.OrderResult, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service OrderService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type createOrderReq struct {
	UserID      string `json:"user_id"`
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	AmountCents int64  `json:"amount_cents"`
}

type orderResp struct {
	OrderID     string `json:"order_id,omitempty"`
	Status      string `json:"status,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, orderResp{Error: "invalid body"})
		return
	}
	if req.UserID == "" || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, orderResp{Error: "user_id and product_id are required"})
		return
	}

	res, err := h.service.CreateOrderWithExternalPayment(ctx, application.OrderData{
		UserID:      req.UserID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		AmountCents: req.AmountCents,
		RequestKey:  r.Header.Get("Idempotency-Key"),
	})
	body := orderResp{OrderID: res.OrderID, Status: string(res.Status), PaymentID: res.PaymentID}
	if err != nil {
		h.log.Warn("create order failed", "order_id", res.OrderID, "err", err)
		body.Error = err.Error()
		writeJSON(w, statusFor(err, res.OrderID != ""), body)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, orderResp{Error: err.Error()})
		return
	}
	if err != nil {
		h.log.Error("get order failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, orderResp{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, orderResp{
		OrderID:     o.ID,
		Status:      string(o.Status),
		UserID:      o.UserID,
		ProductID:   o.ProductID,
		Quantity:    o.Quantity,
		AmountCents: o.AmountCents,
	})
}

// statusFor maps workflow errors to HTTP codes. Unclassified failures after
// the order exists came from the payment provider.
func statusFor(err error, orderCreated bool) int {
	switch {
	case errors.Is(err, application.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, payapp.ErrInvalidPaymentAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payapp.ErrExternalPaymentFailed), errors.Is(err, application.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case orderCreated && payapp.ClassifyOutcome(err) == paydomain.OutcomeIndeterminate:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
