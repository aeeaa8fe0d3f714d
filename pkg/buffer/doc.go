// Package buffer provides a thread-safe fixed-capacity ring with
// position-based access, configurable overflow policies, always-on
// statistics and optional Prometheus metrics.
//
// # Quick Start
//
//	ring, err := buffer.NewRing[*Entry](4096,
//		buffer.WithDropCallback[*Entry](func(e *Entry) { lastKnown.Put(e) }),
//		buffer.WithMetrics[*Entry](registry, "sequence_log"),
//	)
//
//	evicted, ok := ring.Push(entry)
//	oldest, _ := ring.At(0)
//
// # Overflow Policies
//
// DropOldest (default) evicts position 0 and shifts every position down by
// one. DropNewest refuses the new item, which suits bounded outbound queues
// where the producer must never block.
//
// # Thread Safety
//
// All methods take the ring's RWMutex. Drop callbacks run after the lock is
// released, so a callback may read the ring but must not assume the evicted
// item is still reachable.
package buffer
