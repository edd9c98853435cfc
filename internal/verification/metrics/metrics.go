package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for public certificate verification.
type Metrics struct {
	Outcomes        *prometheus.CounterVec
	Duration        prometheus.Histogram
	LocatorFailures prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_verification_outcomes_total",
			Help: "Completed verifications, by outcome",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shikkha_verification_duration_seconds",
			Help:    "Time to resolve a verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		LocatorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_verification_locator_failures_total",
			Help: "Valid verifications returned without a document locator because the index or document store failed",
		}),
	}
}

func (m *Metrics) ObserveOutcome(outcome string, start time.Time) {
	m.Outcomes.WithLabelValues(outcome).Inc()
	m.Duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementLocatorFailure() {
	m.LocatorFailures.Inc()
}
