// Package metrics exposes Prometheus collectors for the HTTP API and the
// ledger operations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	sales            prometheus.Counter
	salesRevenue     prometheus.Counter
	supplierPayments *prometheus.CounterVec
	bulkTransitions  *prometheus.CounterVec
}

// New registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmadesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmadesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		sales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmadesk",
			Name:      "sales_total",
			Help:      "Sales recorded.",
		}),
		salesRevenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmadesk",
			Name:      "sales_revenue_total",
			Help:      "Sum of sale totals.",
		}),
		supplierPayments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmadesk",
			Name:      "supplier_payments_total",
			Help:      "Supplier payments recorded by method.",
		}, []string{"method"}),
		bulkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmadesk",
			Name:      "bulk_order_transitions_total",
			Help:      "Bulk order status changes by target status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.sales, m.salesRevenue, m.supplierPayments, m.bulkTransitions,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SaleRecorded counts a sale and its total.
func (m *Metrics) SaleRecorded(total float64) {
	m.sales.Inc()
	m.salesRevenue.Add(total)
}

// SupplierPaymentRecorded counts a supplier payment.
func (m *Metrics) SupplierPaymentRecorded(method string) {
	m.supplierPayments.WithLabelValues(method).Inc()
}

// BulkOrderTransitioned counts a bulk order reaching status.
func (m *Metrics) BulkOrderTransitioned(status string) {
	m.bulkTransitions.WithLabelValues(status).Inc()
}
