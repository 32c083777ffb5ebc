package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_news"

// Metrics holds the Prometheus collectors for news retrieval and the monitor.
type Metrics struct {
	FetchRequests *prometheus.CounterVec // labels: outcome={success,transport_error,invalid_envelope,malformed_location}
	FetchDuration prometheus.Histogram
	ReportsParsed prometheus.Counter
	RowsDropped   *prometheus.CounterVec // labels: reason={shape,location}

	MonitorRuns       *prometheus.CounterVec // labels: status={ok,failed}
	StreamSubscribers prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.ReportsParsed,
		m.RowsDropped,
		m.MonitorRuns,
		m.StreamSubscribers,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build
// as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "News listing retrievals by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a news listing retrieval including normalization.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		ReportsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_parsed_total",
			Help:      "Reports produced by the normalizer.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows excluded by the normalizer, by reason.",
		}, []string{"reason"}),
		MonitorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_runs_total",
			Help:      "Upstream probes recorded by the monitor, by status.",
		}, []string{"status"}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Clients currently subscribed to the run stream.",
		}),
	}
}
