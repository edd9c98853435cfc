package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process-wide infrastructure gauges.
type Metrics struct {
	DBOpenConnections prometheus.Gauge
	DBInUse           prometheus.Gauge
	DBWaitCount       prometheus.Gauge
	RedisPoolHits     prometheus.Gauge
	RedisPoolMisses   prometheus.Gauge
	RedisTotalConns   prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		DBOpenConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_db_open_connections",
			Help: "Open connections in the Postgres pool",
		}),
		DBInUse: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_db_in_use_connections",
			Help: "Postgres connections currently in use",
		}),
		DBWaitCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_db_wait_count",
			Help: "Total number of waits for a Postgres connection",
		}),
		RedisPoolHits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_redis_pool_hits",
			Help: "Times a free Redis connection was found in the pool",
		}),
		RedisPoolMisses: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_redis_pool_misses",
			Help: "Times a free Redis connection was not found in the pool",
		}),
		RedisTotalConns: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shikkha_redis_total_connections",
			Help: "Total Redis connections in the pool",
		}),
	}
}

// RecordDBStats copies pool statistics into the gauges.
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBOpenConnections.Set(float64(stats.OpenConnections))
	m.DBInUse.Set(float64(stats.InUse))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

// RecordRedisStats copies pool statistics into the gauges.
func (m *Metrics) RecordRedisStats(hits, misses, total uint32) {
	m.RedisPoolHits.Set(float64(hits))
	m.RedisPoolMisses.Set(float64(misses))
	m.RedisTotalConns.Set(float64(total))
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
