package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the certificate ledger.
type Metrics struct {
	Admissions    prometheus.Counter
	Revocations   prometheus.Counter
	Rejections    *prometheus.CounterVec
	Height        prometheus.Gauge
	WriteDuration *prometheus.HistogramVec
}

// New registers ledger metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers ledger metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Admissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_ledger_admissions_total",
			Help: "Total number of certificates admitted to the ledger",
		}),
		Revocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_ledger_revocations_total",
			Help: "Total number of certificates revoked on the ledger",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_ledger_rejections_total",
			Help: "Ledger writes rejected, by operation and reason",
		}, []string{"operation", "reason"}),
		Height: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_ledger_height",
			Help: "Height of the last committed ledger receipt",
		}),
		WriteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shikkha_ledger_write_duration_seconds",
			Help:    "Duration of ledger write transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementAdmissions() {
	m.Admissions.Inc()
}

func (m *Metrics) IncrementRevocations() {
	m.Revocations.Inc()
}

func (m *Metrics) IncrementRejections(operation, reason string) {
	m.Rejections.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) SetHeight(height uint64) {
	m.Height.Set(float64(height))
}

// ObserveWrite records the duration of a ledger write.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveWrite(operation string, start time.Time) {
	m.WriteDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
