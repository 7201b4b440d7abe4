package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsRestored  prometheus.Counter
	SessionsLoggedOut prometheus.Counter

	// Snapshot metrics
	SnapshotsSaved   prometheus.Counter
	SnapshotFailures prometheus.Counter
	SnapshotBytes    prometheus.Histogram

	// Dispatch metrics
	MessagesSent   prometheus.Counter
	MessagesQueued prometheus.Counter
	MessagesFailed prometheus.Counter
	BulkBatches    prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSEvents      *prometheus.CounterVec

	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector backed by its own registry, so
// tests can construct collectors without duplicate registration panics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_sessions_active",
				Help: "Number of live sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsRestored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_restored_total",
				Help: "Total number of sessions restored from a stored snapshot",
			},
		),
		SessionsLoggedOut: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_sessions_logged_out_total",
				Help: "Total number of sessions logged out",
			},
		),

		SnapshotsSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_snapshots_saved_total",
				Help: "Total number of snapshots persisted",
			},
		),
		SnapshotFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_snapshot_failures_total",
				Help: "Total number of failed snapshot backups",
			},
		),
		SnapshotBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_snapshot_bytes",
				Help:    "Size of persisted snapshots in bytes",
				Buckets: []float64{10_000, 50_000, 100_000, 500_000, 1_000_000, 5_000_000, 25_000_000},
			},
		),

		MessagesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_messages_sent_total",
				Help: "Total number of messages delivered",
			},
		),
		MessagesQueued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_messages_queued_total",
				Help: "Total number of messages queued while sessions were not ready",
			},
		),
		MessagesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_messages_failed_total",
				Help: "Total number of message deliveries that failed",
			},
		),
		BulkBatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_bulk_batches_total",
				Help: "Total number of bulk batches dispatched",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_ws_connections",
				Help: "Number of active WebSocket subscribers",
			},
		),
		WSEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_ws_events_total",
				Help: "Total number of WebSocket events broadcast",
			},
			[]string{"event"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_uptime_seconds",
				Help: "Gateway uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSnapshot records a successful backup of the given size.
func (m *Metrics) RecordSnapshot(bytes int64) {
	m.SnapshotsSaved.Inc()
	m.SnapshotBytes.Observe(float64(bytes))
}

// RecordWSEvent records one broadcast event by name.
func (m *Metrics) RecordWSEvent(event string) {
	m.WSEvents.WithLabelValues(event).Inc()
}
