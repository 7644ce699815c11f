// Package metrics exposes the Prometheus instruments for the checkout
// service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckoutMetrics groups the checkout-related instruments. A nil receiver is
// valid and records nothing, so metrics stay optional in tests.
type CheckoutMetrics struct {
	CheckoutsStarted prometheus.Counter
	Finalizations    *prometheus.CounterVec
	FinalizeMS       *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the instruments on the default registry.
// Call once per process.
func NewCheckoutMetrics() *CheckoutMetrics {
	started := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eshop",
		Subsystem: "checkout",
		Name:      "checkouts_started_total",
		Help:      "Total number of checkouts that created a pending order.",
	})
	finalizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eshop",
		Subsystem: "checkout",
		Name:      "finalizations_total",
		Help:      "Finalize attempts by payment method and outcome.",
	}, []string{"method", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eshop",
		Subsystem: "checkout",
		Name:      "finalize_duration_ms",
		Help:      "Finalize latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method"})

	prometheus.MustRegister(started, finalizations, latency)
	return &CheckoutMetrics{
		CheckoutsStarted: started,
		Finalizations:    finalizations,
		FinalizeMS:       latency,
	}
}

// IncCheckoutStarted counts a newly created pending order.
func (m *CheckoutMetrics) IncCheckoutStarted() {
	if m == nil {
		return
	}
	m.CheckoutsStarted.Inc()
}

// ObserveFinalize records one finalize attempt. Outcome is one of
// "paid", "replayed", "failed".
func (m *CheckoutMetrics) ObserveFinalize(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(method, outcome).Inc()
	m.FinalizeMS.WithLabelValues(method).Observe(float64(d.Milliseconds()))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
