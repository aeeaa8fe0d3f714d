// Package observation defines the timestamped values the agent records for
// each data item, and the sealed set of value shapes they can carry.
package observation

import (
	"fmt"
	"strings"
	"time"
)

// Unavailable is the literal used on the wire and in renderings for a value
// that is not known.
const Unavailable = "UNAVAILABLE"

// Category classifies a data item.
type Category int

const (
	Sample Category = iota
	Event
	Condition
)

func (c Category) String() string {
	switch c {
	case Sample:
		return "SAMPLE"
	case Event:
		return "EVENT"
	case Condition:
		return "CONDITION"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name, case-insensitively.
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SAMPLE":
		return Sample, nil
	case "EVENT":
		return Event, nil
	case "CONDITION":
		return Condition, nil
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Representation describes how a data item's values are shaped.
type Representation int

const (
	RepValue Representation = iota
	RepDiscrete
	RepTimeSeries
)

func (r Representation) String() string {
	switch r {
	case RepDiscrete:
		return "DISCRETE"
	case RepTimeSeries:
		return "TIME_SERIES"
	default:
		return "VALUE"
	}
}

// ParseRepresentation parses a representation name; empty means VALUE.
func ParseRepresentation(s string) (Representation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "VALUE":
		return RepValue, nil
	case "DISCRETE":
		return RepDiscrete, nil
	case "TIME_SERIES":
		return RepTimeSeries, nil
	}
	return 0, fmt.Errorf("unknown representation %q", s)
}

// ItemKey identifies a data item across devices.
type ItemKey struct {
	Device string // device name
	ID     string // data item id, unique within the device
}

func (k ItemKey) String() string {
	return k.Device + ":" + k.ID
}

// Observation is one recorded value. Observations are immutable once
// created; Sequence is zero for values that updated the current state but
// were filtered out of the sequence log.
type Observation struct {
	Sequence   uint64
	Device     string
	DataItemID string
	Timestamp  time.Time
	Category   Category
	Value      Value

	// Synthetic marks UNAVAILABLE observations generated on disconnect.
	Synthetic bool
}

// Key returns the observation's item key.
func (o *Observation) Key() ItemKey {
	return ItemKey{Device: o.Device, ID: o.DataItemID}
}

// IsUnavailable reports whether the observation carries no known value.
func (o *Observation) IsUnavailable() bool {
	return o.Value == nil || o.Value.IsUnavailable()
}

// WithSequence returns a copy of o carrying seq.
func (o *Observation) WithSequence(seq uint64) *Observation {
	cp := *o
	cp.Sequence = seq
	return &cp
}
