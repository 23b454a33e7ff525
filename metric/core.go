package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "turbologger"

// Metrics contains the metrics of the alias store, the NATS table backend
// and the data log.
type Metrics struct {
	// Store metrics
	WritesTotal      *prometheus.CounterVec
	ReadsTotal       *prometheus.CounterVec
	DiagnosticsTotal *prometheus.CounterVec
	Channels         prometheus.Gauge
	Aliases          prometheus.Gauge

	// NATS table metrics
	NATSConnected    prometheus.Gauge
	NATSPublishTotal *prometheus.CounterVec
	NATSRemoteTotal  prometheus.Counter

	// Data log metrics
	DatalogRecords prometheus.Counter
}

// NewMetrics creates a new Metrics instance. The collectors are not
// registered; MetricsRegistry does that.
func NewMetrics() *Metrics {
	return &Metrics{
		WritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "writes_total",
				Help:      "Total number of accepted writes by type",
			},
			[]string{"kind"},
		),

		ReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "reads_total",
				Help:      "Total number of successful reads by type",
			},
			[]string{"kind"},
		),

		DiagnosticsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "diagnostics_total",
				Help:      "Total number of reported diagnostics by condition and severity",
			},
			[]string{"condition", "severity"},
		),

		Channels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "channels",
				Help:      "Number of cached typed channels",
			},
		),

		Aliases: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "aliases",
				Help:      "Number of registered aliases",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "publish_total",
				Help:      "Total number of KV puts and deletes by status",
			},
			[]string{"status"},
		),

		NATSRemoteTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "remote_updates_total",
				Help:      "Total number of KV updates applied from other writers",
			},
		),

		DatalogRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "datalog",
				Name:      "records_total",
				Help:      "Total number of records written to the data log",
			},
		),
	}
}

// Collectors returns every collector in m.
func (c *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.WritesTotal,
		c.ReadsTotal,
		c.DiagnosticsTotal,
		c.Channels,
		c.Aliases,
		c.NATSConnected,
		c.NATSPublishTotal,
		c.NATSRemoteTotal,
		c.DatalogRecords,
	}
}

// RecordWrite increments the write counter for a value type
func (c *Metrics) RecordWrite(kind string) {
	c.WritesTotal.WithLabelValues(kind).Inc()
}

// RecordRead increments the read counter for a value type
func (c *Metrics) RecordRead(kind string) {
	c.ReadsTotal.WithLabelValues(kind).Inc()
}

// RecordDiagnostic increments the diagnostic counter
func (c *Metrics) RecordDiagnostic(condition, severity string) {
	c.DiagnosticsTotal.WithLabelValues(condition, severity).Inc()
}

// RecordCacheSize updates the channel and alias gauges
func (c *Metrics) RecordCacheSize(channels, aliases int) {
	c.Channels.Set(float64(channels))
	c.Aliases.Set(float64(aliases))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSPublish increments the KV publish counter
func (c *Metrics) RecordNATSPublish(status string) {
	c.NATSPublishTotal.WithLabelValues(status).Inc()
}

// RecordNATSRemote increments the remote update counter
func (c *Metrics) RecordNATSRemote() {
	c.NATSRemoteTotal.Inc()
}

// RecordDatalog increments the data log record counter
func (c *Metrics) RecordDatalog() {
	c.DatalogRecords.Inc()
}
