package store

import (
	"github.com/c360/streamagent/observation"
)

type conditionList struct {
	entries     []observation.ConditionValue
	unavailable bool
}

func (c *conditionList) state(trigger observation.ConditionValue) observation.ConditionState {
	active := make([]observation.ConditionValue, len(c.entries))
	copy(active, c.entries)
	if c.unavailable {
		trigger.Level = observation.LevelUnavailable
	}
	return observation.ConditionState{Trigger: trigger, Active: active}
}

// ConditionStore tracks the active conditions of every condition item,
// ordered by first activation.
type ConditionStore struct {
	byItem map[observation.ItemKey]*conditionList
}

// NewConditionStore creates an empty condition store.
func NewConditionStore() *ConditionStore {
	return &ConditionStore{byItem: make(map[observation.ItemKey]*conditionList)}
}

// Apply folds v into the item's active set and returns the resulting state.
// changed is false when the rendered set is identical to the previous one.
func (s *ConditionStore) Apply(key observation.ItemKey, v observation.ConditionValue) (observation.ConditionState, bool) {
	list, seen := s.byItem[key]
	if !seen {
		list = &conditionList{unavailable: true}
		s.byItem[key] = list
	}
	before := list.state(observation.ConditionValue{})

	switch v.Level {
	case observation.LevelUnavailable:
		list.entries = nil
		list.unavailable = true
	case observation.LevelNormal:
		list.unavailable = false
		if v.NativeCode == "" {
			list.entries = nil
		} else {
			list.remove(v.NativeCode)
		}
	default:
		list.unavailable = false
		list.upsert(v)
	}

	after := list.state(v)
	return after, !seen || !sameActive(before, after)
}

// Active returns the item's current state.
func (s *ConditionStore) Active(key observation.ItemKey) (observation.ConditionState, bool) {
	list, ok := s.byItem[key]
	if !ok {
		return observation.ConditionState{}, false
	}
	return list.state(observation.ConditionValue{}), true
}

func (c *conditionList) upsert(v observation.ConditionValue) {
	for i := range c.entries {
		if c.entries[i].NativeCode == v.NativeCode {
			c.entries[i] = v
			return
		}
	}
	c.entries = append(c.entries, v)
}

func (c *conditionList) remove(code string) {
	for i := range c.entries {
		if c.entries[i].NativeCode == code {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return
		}
	}
}

func sameActive(a, b observation.ConditionState) bool {
	if a.IsUnavailable() != b.IsUnavailable() || len(a.Active) != len(b.Active) {
		return false
	}
	for i := range a.Active {
		if a.Active[i] != b.Active[i] {
			return false
		}
	}
	return true
}
