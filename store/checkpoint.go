package store

import "github.com/c360/streamagent/observation"

// markCheckpoint records on the newest slot the sequence from which every
// item present in the window reappears by that slot. Scanning from the mark
// to any later position therefore sees the latest value of every item that
// was in the window, and items absent from the scan are resolved from
// lastKnown.
func (l *SequenceLog) markCheckpoint() {
	n := l.ring.Len()
	if n == 0 {
		return
	}

	need := len(l.inWindow)
	seen := make(map[observation.ItemKey]struct{}, need)
	mark := uint64(0)
	for i := n - 1; i >= 0; i-- {
		s, _ := l.ring.At(i)
		seen[s.obs.Key()] = struct{}{}
		if len(seen) == need {
			mark = s.obs.Sequence
			break
		}
	}
	// The scan walks the window itself, so the incomplete-coverage marker
	// never arises; reaching it means the window bookkeeping is broken.
	if mark == 0 {
		panic("checkpoint scan did not cover the window")
	}

	newest, _ := l.ring.Newest()
	newest.checkpoint = mark
}

// checkpointBefore returns the sequence to start a reconstruction at: the
// mark of the nearest checkpoint at or before at, clamped to the window, or
// the first retained sequence when no checkpoint is reachable.
func (l *SequenceLog) checkpointBefore(at uint64) uint64 {
	first := l.First()
	for i := int(at - first); i >= 0; i-- {
		s, _ := l.ring.At(i)
		if s.checkpoint != 0 {
			return max(s.checkpoint, first)
		}
	}
	return first
}
