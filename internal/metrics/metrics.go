// Package metrics exposes Pulsewire's Prometheus instrumentation, grouped
// into a single Registry the way the donor's go-server-3 subproject does.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this server publishes.
type Registry struct {
	ConnectionsCurrent   prometheus.Gauge
	ConnectionsTotal     prometheus.Counter
	ConnectionsRejected  *prometheus.CounterVec
	MessagesReceived     prometheus.Counter
	MessagesSent         prometheus.Counter
	BytesReceived        prometheus.Counter
	BytesSent            prometheus.Counter
	PublishDropped       prometheus.Counter
	PublishLatency       prometheus.Histogram
	CPUPercent           prometheus.Gauge
	MemoryBytes          prometheus.Gauge
	Goroutines           prometheus.Gauge
}

// NewRegistry constructs and registers every metric against the default
// Prometheus registerer.
func NewRegistry() *Registry {
	return &Registry{
		ConnectionsCurrent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulsewire_connections_current",
			Help: "Number of currently open WebSocket connections.",
		}),
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulsewire_connections_total",
			Help: "Total WebSocket connections accepted since startup.",
		}),
		ConnectionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsewire_connections_rejected_total",
			Help: "Total WebSocket connections rejected, labeled by reason.",
		}, []string{"reason"}),
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulsewire_messages_received_total",
			Help: "Total WebSocket frames received from clients.",
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulsewire_messages_sent_total",
			Help: "Total WebSocket frames sent to clients.",
		}),
		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulsewire_bytes_received_total",
			Help: "Total bytes received from clients.",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulsewire_bytes_sent_total",
			Help: "Total bytes sent to clients.",
		}),
		PublishDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulsewire_publish_dropped_total",
			Help: "Total per-subscriber publish deliveries dropped due to a full send queue.",
		}),
		PublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulsewire_publish_latency_seconds",
			Help:    "Latency of a single channel publish fan-out.",
			Buckets: prometheus.DefBuckets,
		}),
		CPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulsewire_cpu_percent",
			Help: "Container-aware CPU usage percentage, relative to the allocated CPU quota.",
		}),
		MemoryBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulsewire_memory_bytes",
			Help: "Bytes of allocated heap objects (Go runtime MemStats.Alloc).",
		}),
		Goroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulsewire_goroutines",
			Help: "Current number of goroutines.",
		}),
	}
}

// Handler returns the Prometheus scrape handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
