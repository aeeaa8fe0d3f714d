package device

import (
	"fmt"
	"strings"

	"github.com/c360/streamagent/observation"
)

// Well-known data item types the agent treats specially.
const (
	TypeAvailability = "AVAILABILITY"
	TypeAssetChanged = "ASSET_CHANGED"
	TypeAssetRemoved = "ASSET_REMOVED"
	TypeMessage      = "MESSAGE"
)

// FilterType selects how SAMPLE values are thinned before they are buffered.
type FilterType string

const (
	FilterMinimumDelta FilterType = "MINIMUM_DELTA"
	FilterPeriod       FilterType = "PERIOD"
)

// Filter suppresses SAMPLE values that change less than Value (MINIMUM_DELTA)
// or arrive within Value seconds of the last buffered one (PERIOD).
type Filter struct {
	Type  FilterType `yaml:"type"`
	Value float64    `yaml:"value"`
}

// Conversion maps native units to reported units: value*Factor + Offset.
type Conversion struct {
	Factor float64 `yaml:"factor"`
	Offset float64 `yaml:"offset"`
}

// Apply converts v.
func (c Conversion) Apply(v float64) float64 {
	return v*c.Factor + c.Offset
}

// DataItem is the immutable definition of one reported quantity.
type DataItem struct {
	ID             string
	Name           string
	Type           string
	SubType        string
	Category       observation.Category
	Representation observation.Representation
	Units          string
	NativeUnits    string
	Conversion     *Conversion
	Filter         *Filter
	Constraints    []string

	// Device is the owning device's name; Component the slash-joined path of
	// component names from the device root.
	Device    string
	Component string
}

// Key returns the item's store key.
func (d *DataItem) Key() observation.ItemKey {
	return observation.ItemKey{Device: d.Device, ID: d.ID}
}

// Kind reports the value shape this item produces.
func (d *DataItem) Kind() observation.Kind {
	switch {
	case d.Category == observation.Condition:
		return observation.KindCondition
	case d.Type == TypeMessage:
		return observation.KindMessage
	case d.Type == TypeAssetChanged || d.Type == TypeAssetRemoved:
		return observation.KindAsset
	case d.Representation == observation.RepTimeSeries:
		return observation.KindTimeSeries
	default:
		return observation.KindScalar
	}
}

// IsDiscrete reports whether repeated equal values are all recorded.
func (d *DataItem) IsDiscrete() bool {
	return d.Representation == observation.RepDiscrete
}

// IsAvailability reports whether the item is the device availability item.
func (d *DataItem) IsAvailability() bool { return d.Type == TypeAvailability }

// IsAsset reports whether the item tracks asset changes or removals.
func (d *DataItem) IsAsset() bool {
	return d.Type == TypeAssetChanged || d.Type == TypeAssetRemoved
}

// Allows reports whether value passes the item's constraint list.
// UNAVAILABLE is always allowed.
func (d *DataItem) Allows(value string) bool {
	if len(d.Constraints) == 0 || value == observation.Unavailable {
		return true
	}
	for _, c := range d.Constraints {
		if c == value {
			return true
		}
	}
	return false
}

// Pinned returns the only value a single-value constraint allows.
func (d *DataItem) Pinned() (string, bool) {
	if len(d.Constraints) == 1 {
		return d.Constraints[0], true
	}
	return "", false
}

// InitialValue is the value recorded when the item is registered.
func (d *DataItem) InitialValue() observation.Value {
	if v, ok := d.Pinned(); ok && d.Kind() == observation.KindScalar {
		return observation.NewScalar(v)
	}
	return observation.UnavailableOf(d.Kind())
}

func (d *DataItem) validate() error {
	if d.ID == "" {
		return fmt.Errorf("data item without id")
	}
	if strings.ContainsAny(d.ID, "|:") {
		return fmt.Errorf("data item id %q contains a reserved character", d.ID)
	}
	if d.Filter != nil {
		switch d.Filter.Type {
		case FilterMinimumDelta, FilterPeriod:
		default:
			return fmt.Errorf("data item %s: unknown filter type %q", d.ID, d.Filter.Type)
		}
		if d.Filter.Value < 0 {
			return fmt.Errorf("data item %s: negative filter value", d.ID)
		}
	}
	return nil
}
