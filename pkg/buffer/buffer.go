// Package buffer provides a generic, thread-safe, fixed-capacity ring.
//
// The ring keeps items in insertion order and addresses them by position
// (0 is the oldest). When full, the overflow policy decides whether the
// oldest item is evicted or the new item is dropped. Evicted items are
// returned to the caller and passed to the optional drop callback, which is
// how the sequence log learns which observation left its window.
//
// Statistics are always collected. Prometheus metrics are optional via
// WithMetrics().
package buffer

// OverflowPolicy defines how the ring behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the ring is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with every item that leaves the ring because of the
// overflow policy. It runs outside the ring's lock.
type DropCallback[T any] func(item T)
