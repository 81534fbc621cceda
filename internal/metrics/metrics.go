package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caddate"

// Metrics holds the server instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections     prometheus.Gauge
	locationUpdates *prometheus.CounterVec
	nearbyQueries   *prometheus.CounterVec
	nearbyDuration  prometheus.Histogram
	messages        *prometheus.CounterVec
	evictions       prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_connections",
			Help:      "Number of authenticated realtime connections.",
		}),
		locationUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_updates_total",
			Help:      "Location writes by result.",
		}, []string{"result"}),
		nearbyQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nearby_queries_total",
			Help:      "Nearby queries by status.",
		}, []string{"status"}),
		nearbyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nearby_query_duration_seconds",
			Help:      "Latency of nearby queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_messages_total",
			Help:      "Inbound realtime messages by type.",
		}, []string{"type"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_evictions_total",
			Help:      "Connections evicted for a full send buffer.",
		}),
	}

	registry.MustRegister(
		m.connections,
		m.locationUpdates,
		m.nearbyQueries,
		m.nearbyDuration,
		m.messages,
		m.evictions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) LocationUpdate(result string) {
	if m != nil {
		m.locationUpdates.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) NearbyQuery(status string, took time.Duration) {
	if m != nil {
		m.nearbyQueries.WithLabelValues(status).Inc()
		m.nearbyDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) Message(msgType string) {
	if m != nil {
		m.messages.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) Eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}
