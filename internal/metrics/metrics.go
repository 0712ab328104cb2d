package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meshprovider"

// PromMetrics implements provider.Metrics and writer.Metrics using Prometheus.
type PromMetrics struct {
	connections    prometheus.Counter
	disconnects    prometheus.Counter
	messages       prometheus.Counter
	decodeErrors   prometheus.Counter
	listenerPanics prometheus.Counter
	connStatus     prometheus.Gauge

	archived      prometheus.Counter
	archiveErrors prometheus.Counter
	dropped       prometheus.Counter
}

// New creates and registers the metrics. If registry is nil the global
// default registerer is used.
func New(registry prometheus.Registerer, constLabels map[string]string) *PromMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}

	m := &PromMetrics{
		connections:    counter("connections_total", "Relay connections that reached the open state."),
		disconnects:    counter("disconnects_total", "Open relay connections that were terminated or dropped."),
		messages:       counter("messages_total", "Relay messages decoded and dispatched as subscription events."),
		decodeErrors:   counter("decode_errors_total", "Relay messages dropped because they could not be decoded."),
		listenerPanics: counter("listener_panics_total", "Listener invocations that panicked during dispatch."),
		connStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connection_status",
			Help:        "Current status of the relay connection (1 = open, 0 = not open).",
			ConstLabels: constLabels,
		}),
		archived:      counter("archived_total", "Subscription payloads written to the archive."),
		archiveErrors: counter("archive_errors_total", "Archive batch inserts that failed."),
		dropped:       counter("archive_dropped_total", "Subscription payloads dropped because the archive queue was full."),
	}

	registry.MustRegister(
		m.connections,
		m.disconnects,
		m.messages,
		m.decodeErrors,
		m.listenerPanics,
		m.connStatus,
		m.archived,
		m.archiveErrors,
		m.dropped,
	)

	return m
}

func (m *PromMetrics) IncConnections()    { m.connections.Inc() }
func (m *PromMetrics) IncDisconnects()    { m.disconnects.Inc() }
func (m *PromMetrics) IncMessages()       { m.messages.Inc() }
func (m *PromMetrics) IncDecodeErrors()   { m.decodeErrors.Inc() }
func (m *PromMetrics) IncListenerPanics() { m.listenerPanics.Inc() }

func (m *PromMetrics) SetConnectionStatus(status float64) {
	m.connStatus.Set(status)
}

func (m *PromMetrics) AddArchived(n int) { m.archived.Add(float64(n)) }
func (m *PromMetrics) IncArchiveErrors() { m.archiveErrors.Inc() }
func (m *PromMetrics) IncDropped()       { m.dropped.Inc() }
