package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records order placement outcomes.
type CheckoutMetrics struct {
	duration       *prometheus.HistogramVec
	ordersCreated  prometheus.Counter
	stockConflicts prometheus.Counter
	cancellations  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of cart-to-order conversion in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders successfully created from carts.",
	})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_conflicts_total",
		Help: "Checkouts rejected because stock ran out.",
	})
	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders cancelled before delivery.",
	})
	reg.MustRegister(duration, ordersCreated, stockConflicts, cancellations)
	return &CheckoutMetrics{
		duration:       duration,
		ordersCreated:  ordersCreated,
		stockConflicts: stockConflicts,
		cancellations:  cancellations,
	}
}

// ObserveDuration records how long a checkout took for the given result label.
func (m *CheckoutMetrics) ObserveDuration(result string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(result)).Observe(duration.Seconds())
}

// IncOrdersCreated increments the created order counter.
func (m *CheckoutMetrics) IncOrdersCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

// IncStockConflicts increments the insufficient stock counter.
func (m *CheckoutMetrics) IncStockConflicts() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// IncCancellations increments the cancelled order counter.
func (m *CheckoutMetrics) IncCancellations() {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
