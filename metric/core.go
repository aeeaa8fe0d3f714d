package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the agent-wide metrics shared by adapters, the store,
// the HTTP gateway and the outbound sinks.
type Metrics struct {
	// Adapter metrics
	AdapterConnected  *prometheus.GaugeVec
	AdapterReconnects *prometheus.CounterVec
	LinesReceived     *prometheus.CounterVec
	LinesRejected     *prometheus.CounterVec

	// Store metrics
	ObservationsAppended *prometheus.CounterVec
	ObservationsFiltered *prometheus.CounterVec
	NextSequence         prometheus.Gauge
	AssetCount           prometheus.Gauge

	// Request metrics
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Sink metrics
	SinkPublished *prometheus.CounterVec
	SinkDropped   *prometheus.CounterVec

	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		AdapterConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "streamagent",
				Subsystem: "adapter",
				Name:      "connected",
				Help:      "Adapter connection status (0=disconnected, 1=connected)",
			},
			[]string{"adapter"},
		),

		AdapterReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "adapter",
				Name:      "reconnects_total",
				Help:      "Total number of adapter reconnect attempts",
			},
			[]string{"adapter"},
		),

		LinesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "adapter",
				Name:      "lines_received_total",
				Help:      "Total number of protocol lines received",
			},
			[]string{"adapter"},
		),

		LinesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "adapter",
				Name:      "lines_rejected_total",
				Help:      "Total number of protocol lines or fields rejected",
			},
			[]string{"adapter", "reason"},
		),

		ObservationsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "store",
				Name:      "observations_appended_total",
				Help:      "Total number of observations assigned a sequence number",
			},
			[]string{"device"},
		),

		ObservationsFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "store",
				Name:      "observations_filtered_total",
				Help:      "Total number of observations suppressed by duplicate or delta filters",
			},
			[]string{"device", "reason"},
		),

		NextSequence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamagent",
				Subsystem: "store",
				Name:      "next_sequence",
				Help:      "Sequence number that will be assigned to the next observation",
			},
		),

		AssetCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamagent",
				Subsystem: "store",
				Name:      "assets",
				Help:      "Number of asset records held, tombstones included",
			},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "streamagent",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		RequestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "http",
				Name:      "request_errors_total",
				Help:      "Total number of failed requests by error code",
			},
			[]string{"code"},
		),

		SinkPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "sink",
				Name:      "published_total",
				Help:      "Total number of observations published to outbound sinks",
			},
			[]string{"sink"},
		),

		SinkDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "sink",
				Name:      "dropped_total",
				Help:      "Total number of observations dropped by outbound sinks",
			},
			[]string{"sink", "reason"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamagent",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "streamagent",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.AdapterConnected,
		c.AdapterReconnects,
		c.LinesReceived,
		c.LinesRejected,
		c.ObservationsAppended,
		c.ObservationsFiltered,
		c.NextSequence,
		c.AssetCount,
		c.RequestDuration,
		c.RequestErrors,
		c.SinkPublished,
		c.SinkDropped,
		c.ErrorsTotal,
		c.HealthCheckStatus,
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1.0
	}
	return 0.0
}

// RecordAdapterConnected updates an adapter's connection status
func (c *Metrics) RecordAdapterConnected(adapter string, connected bool) {
	c.AdapterConnected.WithLabelValues(adapter).Set(boolGauge(connected))
}

// RecordAdapterReconnect increments an adapter's reconnect counter
func (c *Metrics) RecordAdapterReconnect(adapter string) {
	c.AdapterReconnects.WithLabelValues(adapter).Inc()
}

// RecordLineReceived increments the received line counter
func (c *Metrics) RecordLineReceived(adapter string) {
	c.LinesReceived.WithLabelValues(adapter).Inc()
}

// RecordLineRejected increments the rejected line counter
func (c *Metrics) RecordLineRejected(adapter, reason string) {
	c.LinesRejected.WithLabelValues(adapter, reason).Inc()
}

// RecordAppended increments the appended observation counter
func (c *Metrics) RecordAppended(device string) {
	c.ObservationsAppended.WithLabelValues(device).Inc()
}

// RecordFiltered increments the filtered observation counter
func (c *Metrics) RecordFiltered(device, reason string) {
	c.ObservationsFiltered.WithLabelValues(device, reason).Inc()
}

// RecordNextSequence sets the next sequence gauge
func (c *Metrics) RecordNextSequence(next uint64) {
	c.NextSequence.Set(float64(next))
}

// RecordAssetCount sets the asset record gauge
func (c *Metrics) RecordAssetCount(n int) {
	c.AssetCount.Set(float64(n))
}

// RecordRequest records request latency for a route
func (c *Metrics) RecordRequest(route string, duration time.Duration) {
	c.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordRequestError increments the request error counter
func (c *Metrics) RecordRequestError(code string) {
	c.RequestErrors.WithLabelValues(code).Inc()
}

// RecordSinkPublished increments a sink's published counter
func (c *Metrics) RecordSinkPublished(sink string) {
	c.SinkPublished.WithLabelValues(sink).Inc()
}

// RecordSinkDropped increments a sink's dropped counter
func (c *Metrics) RecordSinkDropped(sink, reason string) {
	c.SinkDropped.WithLabelValues(sink, reason).Inc()
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	c.HealthCheckStatus.WithLabelValues(service).Set(boolGauge(healthy))
}
