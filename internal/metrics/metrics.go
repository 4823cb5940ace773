package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quicklink"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HubMetrics holds Prometheus metrics for the real-time broadcast layer.
type HubMetrics struct {
	ActiveConnections  prometheus.Gauge
	ConnectedUsers     prometheus.Gauge
	EventsPublished    prometheus.Counter
	Deliveries         prometheus.Counter
	Evictions          *prometheus.CounterVec
	DirectoryFailures  prometheus.Counter
	EncodeFailures     prometheus.Counter
	RecipientsResolved prometheus.Histogram
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of registered WebSocket connection handles.",
		}),
		ConnectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connected_users",
			Help:      "Number of distinct users with at least one live handle.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_total",
			Help:      "Total number of message events handed to the dispatcher.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Total number of event pushes accepted by a handle.",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "evictions_total",
			Help:      "Total number of handles evicted after a failed push, by reason.",
		}, []string{"reason"}),
		DirectoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "directory_failures_total",
			Help:      "Membership lookups that failed and were treated as an empty recipient set.",
		}),
		EncodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "encode_failures_total",
			Help:      "Events that could not be serialized and were not delivered.",
		}),
		RecipientsResolved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "recipients",
			Help:      "Recipient set size per published event.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ConnectedUsers,
		m.EventsPublished,
		m.Deliveries,
		m.Evictions,
		m.DirectoryFailures,
		m.EncodeFailures,
		m.RecipientsResolved,
	)
	return m
}
