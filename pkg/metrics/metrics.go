package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SagaMetrics is safe to use through a nil pointer; calls are then no-ops.
type SagaMetrics struct {
	Orders           *prometheus.CounterVec
	Compensations    *prometheus.CounterVec
	GatewayLatencyMS *prometheus.HistogramVec
}

func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saga",
		Subsystem: "orders",
		Name:      "total",
		Help:      "Orders that reached a terminal status.",
	}, []string{"status"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saga",
		Subsystem: "payments",
		Name:      "compensations_total",
		Help:      "Compensating cancellations by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "saga",
		Subsystem: "gateway",
		Name:      "request_duration_ms",
		Help:      "Payment gateway call latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"op", "result"})

	reg.MustRegister(orders, compensations, latency)
	return &SagaMetrics{Orders: orders, Compensations: compensations, GatewayLatencyMS: latency}
}

func (m *SagaMetrics) ObserveOrder(status string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(status).Inc()
}

func (m *SagaMetrics) ObserveCompensation(outcome string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(outcome).Inc()
}

func (m *SagaMetrics) ObserveGateway(op string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GatewayLatencyMS.WithLabelValues(op, result).Observe(float64(took.Milliseconds()))
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
