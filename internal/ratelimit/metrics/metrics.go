package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    *prometheus.CounterVec
	StoreErrors prometheus.Counter
	Degraded    prometheus.Gauge
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"class", "scope"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_ratelimit_store_errors_total",
			Help: "Rate limit store failures",
		}),
		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_ratelimit_degraded",
			Help: "1 while the rate limiter serves from its in-process fallback",
		}),
	}
}

func (m *Metrics) IncrementRejected(class, scope string) {
	m.Rejected.WithLabelValues(class, scope).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
