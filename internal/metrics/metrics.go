// Package metrics exposes Prometheus collectors for connection, transaction,
// and operation activity, served over an HTTP handler by cmd/xactod.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xacto_connections_active",
			Help: "Number of currently registered client connections.",
		},
	)

	TransactionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xacto_transactions_active",
			Help: "Number of transactions currently registered with the transaction manager.",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xacto_transactions_total",
			Help: "Total number of transactions resolved by a client COMMIT request, by outcome.",
		},
		[]string{"outcome"}, // "committed" | "aborted"
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xacto_operations_total",
			Help: "Total number of PUT/GET/COMMIT operations processed, by type and result status.",
		},
		[]string{"op", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xacto_operation_duration_seconds",
			Help:    "Time spent servicing a single PUT/GET/COMMIT operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		TransactionsActive,
		TransactionsTotal,
		OperationsTotal,
		OperationDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of a single operation and records it against
// op when Observe is called.
type Timer struct {
	op    string
	start time.Time
}

// NewTimer starts timing an operation named op.
func NewTimer(op string) *Timer {
	return &Timer{op: op, start: time.Now()}
}

// Observe records the elapsed time since NewTimer into OperationDuration.
func (t *Timer) Observe() {
	OperationDuration.WithLabelValues(t.op).Observe(time.Since(t.start).Seconds())
}
