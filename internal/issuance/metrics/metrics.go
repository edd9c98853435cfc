package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the admin submission API.
type Metrics struct {
	Submissions       *prometheus.CounterVec
	IdempotentReplays prometheus.Counter
	DocumentBytes     prometheus.Histogram
	IndexEnqueueDrops prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_issuance_submissions_total",
			Help: "Admin submissions, by operation and result code",
		}, []string{"operation", "result"}),
		IdempotentReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_issuance_idempotent_replays_total",
			Help: "Admissions answered from a stored idempotency result",
		}),
		DocumentBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shikkha_issuance_document_bytes",
			Help:    "Size of certificate documents stored at admission",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		IndexEnqueueDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_issuance_index_enqueue_drops_total",
			Help: "Index updates that could not be queued after a committed ledger write",
		}),
	}
}

func (m *Metrics) IncrementSubmission(operation, result string) {
	m.Submissions.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncrementReplay() {
	m.IdempotentReplays.Inc()
}

func (m *Metrics) ObserveDocument(size int) {
	m.DocumentBytes.Observe(float64(size))
}

func (m *Metrics) IncrementEnqueueDrop() {
	m.IndexEnqueueDrops.Inc()
}
