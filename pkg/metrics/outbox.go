package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmehra2102/order-payment-saga/pkg/outbox"
)

type OutboxMetrics struct {
	Rows *prometheus.GaugeVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "saga",
		Subsystem: "outbox",
		Name:      "rows",
		Help:      "Outbox rows by status.",
	}, []string{"status"})
	reg.MustRegister(rows)
	return &OutboxMetrics{Rows: rows}
}

// Observe replaces the gauges with counts. Statuses missing from counts
// read as zero.
func (m *OutboxMetrics) Observe(counts map[outbox.Status]int) {
	for _, st := range outbox.Statuses {
		m.Rows.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
