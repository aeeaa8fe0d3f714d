package buffer

import "github.com/c360/streamagent/metric"

// Option configures a Ring.
type Option[T any] func(*ringOptions[T])

type ringOptions[T any] struct {
	policy        OverflowPolicy
	onDrop        DropCallback[T]
	registry      *metric.MetricsRegistry
	metricsPrefix string
}

// WithOverflowPolicy sets what a full ring does with a push. The default is
// DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *ringOptions[T]) { o.policy = policy }
}

// WithMetrics exports ring counters under prefix. A nil registry or empty
// prefix leaves metrics off.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(o *ringOptions[T]) {
		if registry != nil && prefix != "" {
			o.registry = registry
			o.metricsPrefix = prefix
		}
	}
}

// WithDropCallback calls fn with every item the overflow policy discards.
func WithDropCallback[T any](fn DropCallback[T]) Option[T] {
	return func(o *ringOptions[T]) { o.onDrop = fn }
}
