package natsclient

import (
	"sync"
	"time"
)

// breaker fails Connect fast after a run of failures. Once threshold
// consecutive failures accumulate it opens for the current backoff, which
// doubles on every trip up to max. It half-opens when the backoff elapses
// and closes on the next success.
type breaker struct {
	mu        sync.Mutex
	threshold int32
	initial   time.Duration
	max       time.Duration

	run       int32 // consecutive failures since the last trip or success
	total     int32
	backoff   time.Duration
	openUntil time.Time
}

func newBreaker(threshold int32, initial, max time.Duration) *breaker {
	return &breaker{threshold: threshold, initial: initial, max: max, backoff: initial}
}

// open reports whether now falls inside a trip.
func (b *breaker) open(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.openUntil)
}

// fail records a failed attempt and reports whether it tripped the breaker.
func (b *breaker) fail(now time.Time) (tripped bool, openFor time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.run++
	if b.run < b.threshold {
		return false, 0
	}
	b.run = 0
	openFor = b.backoff
	b.openUntil = now.Add(openFor)
	b.backoff = min(b.backoff*2, b.max)
	return true, openFor
}

// succeed closes the breaker and forgets every failure.
func (b *breaker) succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run, b.total = 0, 0
	b.backoff = b.initial
	b.openUntil = time.Time{}
}

func (b *breaker) failures() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *breaker) nextBackoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backoff
}
