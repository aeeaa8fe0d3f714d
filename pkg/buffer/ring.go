package buffer

import (
	"fmt"
	"sync"

	"github.com/c360/streamagent/errors"
)

// Ring is a fixed-capacity, position-addressable ring. Position 0 is the
// oldest item. All methods are safe for concurrent use.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // index of the oldest item
	count    int
	capacity int

	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]

	counters counters
	metrics  *ringMetrics
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("capacity must be positive, got %d", capacity),
			"Ring", "NewRing", "validate capacity")
	}

	opts := ringOptions[T]{policy: DropOldest}
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}

	r := &Ring[T]{
		items:          make([]T, capacity),
		capacity:       capacity,
		overflowPolicy: opts.policy,
		dropCallback:   opts.onDrop,
	}

	if opts.registry != nil {
		m, err := newRingMetrics(opts.registry, opts.metricsPrefix)
		if err != nil {
			return nil, errors.Wrap(err, "Ring", "NewRing", "register metrics")
		}
		r.metrics = m
	}

	return r, nil
}

// Push appends item at the newest position. When the ring is full the
// overflow policy applies: DropOldest evicts and returns the oldest item,
// DropNewest returns item itself as dropped. dropped reports whether
// anything left the ring.
func (r *Ring[T]) Push(item T) (out T, dropped bool) {
	r.mu.Lock()

	if r.count == r.capacity {
		r.counters.evictions++
		if r.overflowPolicy == DropNewest {
			r.metrics.record(false, true, r.count, r.capacity)
			r.mu.Unlock()
			r.notifyDrop(item)
			return item, true
		}
		out = r.items[r.head]
		r.items[r.head] = item
		r.head = (r.head + 1) % r.capacity
		dropped = true
	} else {
		r.items[(r.head+r.count)%r.capacity] = item
		r.count++
	}

	r.counters.pushes++
	r.counters.sized(r.count)
	r.metrics.record(true, dropped, r.count, r.capacity)
	r.mu.Unlock()

	if dropped {
		r.notifyDrop(out)
	}
	return out, dropped
}

func (r *Ring[T]) notifyDrop(item T) {
	if r.dropCallback != nil {
		r.dropCallback(item)
	}
}

// At returns the item at position i, where 0 is the oldest.
func (r *Ring[T]) At(i int) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if i < 0 || i >= r.count {
		return zero, false
	}
	return r.items[(r.head+i)%r.capacity], true
}

// Set replaces the item at position i.
func (r *Ring[T]) Set(i int, item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= r.count {
		return false
	}
	r.items[(r.head+i)%r.capacity] = item
	return true
}

// Oldest returns the item at position 0.
func (r *Ring[T]) Oldest() (T, bool) {
	return r.At(0)
}

// Newest returns the most recently pushed item.
func (r *Ring[T]) Newest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.items[(r.head+r.count-1)%r.capacity], true
}

// Pop removes and returns the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	items := r.PopBatch(1)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

// PopBatch removes and returns up to max items, oldest first.
func (r *Ring[T]) PopBatch(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(max, r.count)
	if n <= 0 {
		return nil
	}

	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.items[r.head]
		r.items[r.head] = zero
		r.head = (r.head + 1) % r.capacity
		r.count--
	}

	r.counters.pops += int64(n)
	r.metrics.record(false, false, r.count, r.capacity)
	return out
}

// Do calls fn for each item from oldest to newest while fn returns true.
// The ring is read-locked for the duration; fn must not call back into it.
func (r *Ring[T]) Do(fn func(i int, item T) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < r.count; i++ {
		if !fn(i, r.items[(r.head+i)%r.capacity]) {
			return
		}
	}
}

// Snapshot copies the items oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.head+i)%r.capacity]
	}
	return out
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// IsFull reports whether the next Push will trigger the overflow policy.
func (r *Ring[T]) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count == r.capacity
}

// Clear removes all items without invoking the drop callback.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.count = 0
	r.metrics.record(false, false, 0, r.capacity)
}

// Stats returns a copy of the ring's counters.
func (r *Ring[T]) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Pushes:    r.counters.pushes,
		Pops:      r.counters.pops,
		Evictions: r.counters.evictions,
		Len:       r.count,
		HighWater: r.counters.highWater,
	}
}
