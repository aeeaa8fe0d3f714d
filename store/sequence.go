package store

import (
	"fmt"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/pkg/buffer"
)

// slot is one position of the sequence log. checkpoint is zero when the slot
// carries no checkpoint marker.
type slot struct {
	obs        *observation.Observation
	checkpoint uint64
}

// SequenceLog is the bounded, sequence-numbered history of observations with
// its latest-value maps. It is not safe for concurrent use; Store guards it.
type SequenceLog struct {
	ring *buffer.Ring[*slot]
	next uint64

	// current holds the latest observation per item, buffered or not.
	current map[observation.ItemKey]*observation.Observation
	// lastKnown holds the latest real observation per item that left the
	// window; disconnect observations never enter it.
	lastKnown map[observation.ItemKey]*observation.Observation
	// evicted holds the latest observation per item that left the window,
	// disconnect observations included. Reconstruction resolves from it.
	evicted map[observation.ItemKey]*observation.Observation
	// lastBuffered holds the latest observation per item still in or once in
	// the window; filters compare against it.
	lastBuffered map[observation.ItemKey]*observation.Observation
	// inWindow counts the slots each item occupies.
	inWindow map[observation.ItemKey]int

	checkpointFrequency int
	sinceCheckpoint     int
}

func newSequenceLog(capacity, checkpointFrequency int, opts ...buffer.Option[*slot]) (*SequenceLog, error) {
	if checkpointFrequency <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("checkpoint frequency must be positive, got %d", checkpointFrequency),
			"SequenceLog", "new", "validate checkpoint frequency")
	}
	ring, err := buffer.NewRing[*slot](capacity, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "SequenceLog", "new", "create ring")
	}
	return &SequenceLog{
		ring:                ring,
		next:                1,
		current:             make(map[observation.ItemKey]*observation.Observation),
		lastKnown:           make(map[observation.ItemKey]*observation.Observation),
		evicted:             make(map[observation.ItemKey]*observation.Observation),
		lastBuffered:        make(map[observation.ItemKey]*observation.Observation),
		inWindow:            make(map[observation.ItemKey]int),
		checkpointFrequency: checkpointFrequency,
	}, nil
}

// First is the oldest retained sequence, or Next when the log is empty.
func (l *SequenceLog) First() uint64 {
	s, ok := l.ring.Oldest()
	if !ok {
		return l.next
	}
	return s.obs.Sequence
}

// Last is the newest assigned sequence; zero before the first append.
func (l *SequenceLog) Last() uint64 { return l.next - 1 }

// Next is the sequence the next append will receive.
func (l *SequenceLog) Next() uint64 { return l.next }

// Capacity is the window size.
func (l *SequenceLog) Capacity() int { return l.ring.Cap() }

// Len is the number of retained observations.
func (l *SequenceLog) Len() int { return l.ring.Len() }

// append assigns the next sequence to a copy of obs and stores it, evicting
// the oldest slot when full.
func (l *SequenceLog) append(obs *observation.Observation) *observation.Observation {
	stored := obs.WithSequence(l.next)
	l.next++

	key := stored.Key()
	evicted, dropped := l.ring.Push(&slot{obs: stored})
	if dropped {
		l.evict(evicted.obs)
	}

	l.inWindow[key]++
	l.current[key] = stored
	l.lastBuffered[key] = stored

	l.sinceCheckpoint++
	if l.sinceCheckpoint >= l.checkpointFrequency {
		l.sinceCheckpoint = 0
		l.markCheckpoint()
	}

	if n := uint64(l.ring.Len()); l.Last()-l.First()+1 != n {
		panic(fmt.Sprintf("sequence log window [%d,%d] does not match %d slots", l.First(), l.Last(), n))
	}
	return stored
}

// evict records an observation that left the window. Synthetic disconnect
// observations never replace the last real value in lastKnown.
func (l *SequenceLog) evict(obs *observation.Observation) {
	key := obs.Key()
	if n := l.inWindow[key] - 1; n > 0 {
		l.inWindow[key] = n
	} else {
		delete(l.inWindow, key)
	}
	l.evicted[key] = obs
	if !obs.Synthetic {
		l.lastKnown[key] = obs
	}
}

// setCurrent records a value that was filtered out of the window. It
// carries the sequence of the last buffered value of its item.
func (l *SequenceLog) setCurrent(obs *observation.Observation) {
	key := obs.Key()
	if last := l.lastBuffered[key]; last != nil {
		obs = obs.WithSequence(last.Sequence)
	}
	l.current[key] = obs
}

// Current returns the latest observation for key.
func (l *SequenceLog) Current(key observation.ItemKey) (*observation.Observation, bool) {
	obs, ok := l.current[key]
	return obs, ok
}

// lastBufferedFor returns the most recent observation of key that received a
// sequence number.
func (l *SequenceLog) lastBufferedFor(key observation.ItemKey) *observation.Observation {
	return l.lastBuffered[key]
}

// LastKnown returns the latest observation of key that left the window.
func (l *SequenceLog) LastKnown(key observation.ItemKey) (*observation.Observation, bool) {
	obs, ok := l.lastKnown[key]
	return obs, ok
}

// CurrentAt reconstructs the latest observation of each key as of sequence
// at, which must lie in the window. Items not seen from the checkpoint to at
// resolve to the last observation that left the window, which precedes at.
func (l *SequenceLog) CurrentAt(keys []observation.ItemKey, at uint64) (map[observation.ItemKey]*observation.Observation, error) {
	first, last := l.First(), l.Last()
	if l.Len() == 0 || at < first || at > last {
		return nil, errors.OutOfRange("'at' must be in the range %d to %d, got %d", first, last, at)
	}

	wanted := make(map[observation.ItemKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	out := make(map[observation.ItemKey]*observation.Observation, len(keys))
	start := l.checkpointBefore(at)
	for i := int(start - first); i <= int(at-first); i++ {
		s, _ := l.ring.At(i)
		if key := s.obs.Key(); wanted[key] {
			out[key] = s.obs
		}
	}

	for _, k := range keys {
		if _, ok := out[k]; ok {
			continue
		}
		if obs, ok := l.evicted[k]; ok && obs.Sequence <= at {
			out[k] = obs
		}
	}
	return out, nil
}

// Range returns the observations with sequence in [from, from+count) clipped
// to Last, restricted to keys when keys is non-nil, and the next sequence to
// read.
func (l *SequenceLog) Range(keys map[observation.ItemKey]bool, from uint64, count int) ([]*observation.Observation, uint64, error) {
	first, last := l.First(), l.Last()
	if count < 1 || count > l.Capacity() {
		return nil, 0, errors.OutOfRange("'count' must be between 1 and %d, got %d", l.Capacity(), count)
	}
	if l.Len() == 0 || from < first || from > last {
		return nil, 0, errors.OutOfRange("'from' must be in the range %d to %d, got %d", first, last, from)
	}

	to := min(from+uint64(count)-1, last)
	var out []*observation.Observation
	for i := int(from - first); i <= int(to-first); i++ {
		s, _ := l.ring.At(i)
		if keys == nil || keys[s.obs.Key()] {
			out = append(out, s.obs)
		}
	}
	return out, to + 1, nil
}

// Snapshot returns every retained observation, oldest first.
func (l *SequenceLog) Snapshot() []*observation.Observation {
	slots := l.ring.Snapshot()
	out := make([]*observation.Observation, len(slots))
	for i, s := range slots {
		out[i] = s.obs
	}
	return out
}
