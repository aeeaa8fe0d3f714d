package query

import (
	"time"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/observation"
)

// Header describes the state of the store when a snapshot was taken.
type Header struct {
	InstanceID      string    `json:"instanceId"`
	Sender          string    `json:"sender"`
	CreationTime    time.Time `json:"creationTime"`
	SchemaRevision  uint64    `json:"schemaRevision"`
	BufferSize      int       `json:"bufferSize"`
	FirstSequence   uint64    `json:"firstSequence"`
	LastSequence    uint64    `json:"lastSequence"`
	NextSequence    uint64    `json:"nextSequence"`
	AssetBufferSize int       `json:"assetBufferSize"`
	AssetCount      int       `json:"assetCount"`
}

// Entry pairs an observation with its data item definition.
type Entry struct {
	Item        *device.DataItem
	Observation *observation.Observation
}

// ComponentStream holds the entries of one component. Component is the
// slash-joined component path; empty for items on the device itself.
type ComponentStream struct {
	Component  string
	Samples    []Entry
	Events     []Entry
	Conditions []Entry
}

// DeviceStream holds one device's component streams in first-seen order.
type DeviceStream struct {
	Name       string
	UUID       string
	Components []*ComponentStream

	byPath map[string]*ComponentStream
}

// Snapshot is the answer to a current or sample request.
type Snapshot struct {
	Header  Header
	Devices []*DeviceStream

	byDevice map[string]*DeviceStream
}

func newSnapshot(devices []*device.Device) *Snapshot {
	s := &Snapshot{byDevice: make(map[string]*DeviceStream, len(devices))}
	for _, d := range devices {
		ds := &DeviceStream{Name: d.Name, UUID: d.UUID, byPath: make(map[string]*ComponentStream)}
		s.Devices = append(s.Devices, ds)
		s.byDevice[d.Name] = ds
	}
	return s
}

// add files obs under its device, component and category. Observations of
// devices outside the snapshot are ignored.
func (s *Snapshot) add(item *device.DataItem, obs *observation.Observation) {
	ds, ok := s.byDevice[item.Device]
	if !ok {
		return
	}
	cs, ok := ds.byPath[item.Component]
	if !ok {
		cs = &ComponentStream{Component: item.Component}
		ds.byPath[item.Component] = cs
		ds.Components = append(ds.Components, cs)
	}

	entry := Entry{Item: item, Observation: obs}
	switch obs.Category {
	case observation.Sample:
		cs.Samples = append(cs.Samples, entry)
	case observation.Condition:
		cs.Conditions = append(cs.Conditions, entry)
	default:
		cs.Events = append(cs.Events, entry)
	}
}

// Len is the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	n := 0
	for _, ds := range s.Devices {
		for _, cs := range ds.Components {
			n += len(cs.Samples) + len(cs.Events) + len(cs.Conditions)
		}
	}
	return n
}

// Entries returns every entry in device, component, category order.
func (s *Snapshot) Entries() []Entry {
	var out []Entry
	for _, ds := range s.Devices {
		for _, cs := range ds.Components {
			out = append(out, cs.Samples...)
			out = append(out, cs.Events...)
			out = append(out, cs.Conditions...)
		}
	}
	return out
}

// unavailable is the placeholder for an item with no recorded value.
func unavailable(item *device.DataItem) *observation.Observation {
	return &observation.Observation{
		Device:     item.Device,
		DataItemID: item.ID,
		Category:   item.Category,
		Value:      observation.UnavailableOf(item.Kind()),
	}
}
