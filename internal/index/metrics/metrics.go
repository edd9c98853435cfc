package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the certificate index and its
// reconciliation jobs.
type Metrics struct {
	WritesFailed   *prometheus.CounterVec
	WritesDropped  prometheus.Counter
	WriterQueue    prometheus.Gauge
	Reconciled     *prometheus.CounterVec
	ReconcileLag   prometheus.Gauge
	ReconcileFails *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WritesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_index_writes_failed_total",
			Help: "Index writes abandoned after exhausting retries, by operation",
		}, []string{"operation"}),
		WritesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "shikkha_index_writes_dropped_total",
			Help: "Index writes dropped because the writer queue was full",
		}),
		WriterQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_index_writer_queue_depth",
			Help: "Pending asynchronous index writes",
		}),
		Reconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_index_reconciled_total",
			Help: "Index repairs made by reconciliation, by kind",
		}, []string{"kind"}),
		ReconcileLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_index_reconcile_lag",
			Help: "Ledger receipts not yet applied to the index",
		}),
		ReconcileFails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shikkha_index_reconcile_failures_total",
			Help: "Reconciliation runs that failed, by job",
		}, []string{"job"}),
	}
}

func (m *Metrics) IncrementWriteFailed(operation string) {
	m.WritesFailed.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementWriteDropped() {
	m.WritesDropped.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	m.WriterQueue.Set(float64(n))
}

func (m *Metrics) IncrementReconciled(kind string) {
	m.Reconciled.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetLag(lag uint64) {
	m.ReconcileLag.Set(float64(lag))
}

func (m *Metrics) IncrementReconcileFailure(job string) {
	m.ReconcileFails.WithLabelValues(job).Inc()
}
