package telemetry

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mysql_collector"

// Metrics describes the collector itself, not the monitored server.
type Metrics struct {
	registry *prometheus.Registry

	Cycles      *prometheus.CounterVec
	PointsSent  prometheus.Counter
	SinkErrors  prometheus.Counter
	StateErrors prometheus.Counter
	LastRate    *prometheus.GaugeVec
	LastCycle   prometheus.Gauge

	connStats  *prometheus.GaugeVec
	waitStats  *prometheus.GaugeVec
	closeStats *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),
		PointsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_sent_total",
			Help:      "Metric points delivered to the sink",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Metric points the sink failed to accept",
		}),
		StateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_save_errors_total",
			Help:      "Failed writes of the rate baseline",
		}),
		LastRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_rate",
			Help:      "Most recent derived per-second rate",
		}, []string{"name"}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last successful cycle",
		}),
		connStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_conn",
			Help:      "Connections to the monitored server",
		}, []string{"metric"}),
		waitStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_conn_wait",
			Help:      "Waiting on connections to the monitored server",
		}, []string{"metric"}),
		closeStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_conn_closed",
			Help:      "Closed connections to the monitored server",
		}, []string{"metric"}),
	}
	m.registry.MustRegister(
		m.Cycles,
		m.PointsSent,
		m.SinkErrors,
		m.StateErrors,
		m.LastRate,
		m.LastCycle,
		m.connStats,
		m.waitStats,
		m.closeStats,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConnectionStats copies the pool statistics into gauges. Wait and
// close counts are cumulative in database/sql; they are exported as gauges
// and rated downstream.
func (m *Metrics) RecordConnectionStats(db *sqlx.DB) {
	stats := db.Stats()

	m.connStats.WithLabelValues("num_open").Set(float64(stats.OpenConnections))
	m.connStats.WithLabelValues("num_in_use").Set(float64(stats.InUse))
	m.connStats.WithLabelValues("num_idle").Set(float64(stats.Idle))

	m.waitStats.WithLabelValues("duration_ms").Set(float64(stats.WaitDuration.Milliseconds()))
	m.waitStats.WithLabelValues("count").Set(float64(stats.WaitCount))

	m.closeStats.WithLabelValues("max_idle_closed").Set(float64(stats.MaxIdleClosed))
	m.closeStats.WithLabelValues("max_idle_time_closed").Set(float64(stats.MaxIdleTimeClosed))
	m.closeStats.WithLabelValues("max_lifetime_closed").Set(float64(stats.MaxLifetimeClosed))
}
