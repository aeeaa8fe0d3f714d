// Package sink forwards appended observations to message brokers.
//
// Each sink subscribes to the store and queues observations in a bounded
// drop-oldest ring, so a slow or unreachable broker never stalls ingestion.
// A single goroutine drains the queue through a rate limiter and publishes
// one JSON document per observation:
//
//	NATS  subject  <prefix>.<device>.<data item id>
//	MQTT  topic    <prefix>/<device>/<data item id>
//
// Published and dropped observations are counted in the
// streamagent_sink_published_total and streamagent_sink_dropped_total
// metrics, and each sink reports its connection to the health monitor.
package sink
