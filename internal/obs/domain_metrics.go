package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout payload builds by environment and outcome.
	CheckoutTotal *prometheus.CounterVec
	// CallbackTotal counts gateway callbacks by reported purchase state and outcome.
	CallbackTotal *prometheus.CounterVec
	// CallbackDuration tracks how long a callback holds its store boundary, by outcome.
	CallbackDuration *prometheus.HistogramVec
	// ReferenceRegenerations counts checkouts that minted a fresh reference.
	ReferenceRegenerations prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers payment Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wenjoy_checkout_total",
			Help:      "Count of Wenjoy checkout payload builds by outcome.",
		}, []string{"environment", "result"}))
		CallbackTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wenjoy_callback_total",
			Help:      "Count of Wenjoy purchase callbacks by purchase state and outcome.",
		}, []string{"purchase_state", "result"}))
		CallbackDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wenjoy_callback_duration_ms",
			Help:      "Wenjoy callback resolution latency in milliseconds by outcome.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"}))
		ReferenceRegenerations = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wenjoy_reference_regenerations_total",
			Help:      "Number of checkouts that replaced a stale transaction reference.",
		}))
	})
}

// ObserveCheckout increments the checkout counter when metrics are registered.
func ObserveCheckout(environment, result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(environment, result).Inc()
	}
}

// ObserveCallback increments the callback counter when metrics are registered.
// Unknown purchase states are folded into one label to bound cardinality.
func ObserveCallback(purchaseState, result string) {
	if CallbackTotal == nil {
		return
	}
	switch purchaseState {
	case "PURCHASE_FINISHED", "PURCHASE_STARTED", "PURCHASE_REJECTED":
	case "":
		purchaseState = "missing"
	default:
		purchaseState = "other"
	}
	CallbackTotal.WithLabelValues(purchaseState, result).Inc()
}

// ObserveCallbackDuration records callback resolution latency when registered.
func ObserveCallbackDuration(result string, d time.Duration) {
	if CallbackDuration != nil {
		CallbackDuration.WithLabelValues(result).Observe(DurationMillis(d))
	}
}

// ObserveReferenceRegeneration increments the regeneration counter when registered.
func ObserveReferenceRegeneration() {
	if ReferenceRegenerations != nil {
		ReferenceRegenerations.Inc()
	}
}
