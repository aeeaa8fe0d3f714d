// Package metric provides the Prometheus metrics registry for the agent.
//
// The registry owns a private prometheus.Registry holding the agent core
// metrics (adapter connectivity, store throughput, HTTP request latency and
// sink delivery) plus Go runtime collectors. Components register their own
// counters and gauges through Register, keyed by owner and metric
// name so duplicate registration is reported as an invalid error instead of
// a panic.
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordLineReceived("mill-1")
//	router.Handle("/metrics", registry.Handler())
package metric
