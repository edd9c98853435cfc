package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the ledger effect stream in both directions.
type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	RelayLag        prometheus.Gauge
	Consumed        *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_events_published_total",
			Help: "Ledger receipts relayed to Kafka",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_events_publish_failures_total",
			Help: "Relay attempts that failed and will be retried",
		}),
		RelayLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_events_relay_lag",
			Help: "Ledger height minus the last relayed height",
		}),
		Consumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_events_consumed_total",
			Help: "Effect messages consumed, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementPublished(n int) {
	m.Published.Add(float64(n))
}

func (m *Metrics) IncrementPublishFailure() {
	m.PublishFailures.Inc()
}

func (m *Metrics) SetRelayLag(lag uint64) {
	m.RelayLag.Set(float64(lag))
}

func (m *Metrics) IncrementConsumed(result string) {
	m.Consumed.WithLabelValues(result).Inc()
}
