// Package metrics exports replay observability to Prometheus. Metrics
// are strictly informative: nothing here feeds back into replay, and
// nothing here participates in any hash.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerwatchdog/dtre/engine"
)

// Collector aggregates replay metrics into a private Prometheus
// registry.
type Collector struct {
	registry *prometheus.Registry

	replaysTotal          prometheus.Counter
	replayFailuresTotal   prometheus.Counter
	transactionsTotal     prometheus.Counter
	replayDurationSeconds prometheus.Histogram
	transactionsPerSecond prometheus.Gauge
}

// NewCollector creates a Collector with its own registry, so embedding
// hosts never collide with the default registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		replaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtre_replays_total",
			Help: "Total replays attempted.",
		}),
		replayFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtre_replay_failures_total",
			Help: "Total replays that halted with an error.",
		}),
		transactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtre_transactions_processed_total",
			Help: "Total transactions committed across all replays.",
		}),
		replayDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dtre_replay_duration_seconds",
			Help:    "Wall-clock duration of replays.",
			Buckets: prometheus.DefBuckets,
		}),
		transactionsPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dtre_transactions_per_second",
			Help: "Throughput of the most recent replay.",
		}),
	}
	c.registry.MustRegister(
		c.replaysTotal,
		c.replayFailuresTotal,
		c.transactionsTotal,
		c.replayDurationSeconds,
		c.transactionsPerSecond,
	)
	return c
}

// Observe records one replay outcome.
func (c *Collector) Observe(m engine.PerformanceMetrics, err error) {
	c.replaysTotal.Inc()
	if err != nil {
		c.replayFailuresTotal.Inc()
	}
	c.transactionsTotal.Add(float64(m.TransactionsProcessed))
	c.replayDurationSeconds.Observe(m.TotalDuration.Seconds())
	c.transactionsPerSecond.Set(m.TransactionsPerSecond)
}

// Handler returns the HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
