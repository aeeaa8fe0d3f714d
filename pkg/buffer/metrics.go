package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamagent/metric"
)

// ringMetrics mirrors ring activity into Prometheus under a component label.
type ringMetrics struct {
	pushes    prometheus.Counter
	evictions prometheus.Counter
	fill      prometheus.Gauge
}

func newRingMetrics(registry *metric.MetricsRegistry, prefix string) (*ringMetrics, error) {
	opts := func(name, help string) (string, string, prometheus.Labels) {
		return name, help, prometheus.Labels{"component": prefix}
	}
	counter := func(name, help string, labels prometheus.Labels) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamagent", Subsystem: "ring", Name: name, Help: help, ConstLabels: labels,
		})
	}

	m := &ringMetrics{
		pushes:    counter(opts("pushes_total", "Items pushed into the ring")),
		evictions: counter(opts("evictions_total", "Items pushed out of a full ring")),
		fill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamagent", Subsystem: "ring", Name: "fill_ratio",
			Help: "Items held over capacity", ConstLabels: prometheus.Labels{"component": prefix},
		}),
	}

	if err := registry.RegisterCounter(prefix, "ring_pushes", m.pushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "ring_evictions", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "ring_fill", m.fill); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ringMetrics) record(pushed, evicted bool, n, capacity int) {
	if m == nil {
		return
	}
	if pushed {
		m.pushes.Inc()
	}
	if evicted {
		m.evictions.Inc()
	}
	m.fill.Set(float64(n) / float64(capacity))
}
