package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/observation"
)

func TestAdmit(t *testing.T) {
	event := &device.DataItem{ID: "e", Category: observation.Event}
	discrete := &device.DataItem{ID: "d", Category: observation.Event, Representation: observation.RepDiscrete}
	sample := &device.DataItem{ID: "s", Category: observation.Sample}
	delta := &device.DataItem{ID: "m", Category: observation.Sample,
		Filter: &device.Filter{Type: device.FilterMinimumDelta, Value: 5}}
	period := &device.DataItem{ID: "p", Category: observation.Sample,
		Filter: &device.Filter{Type: device.FilterPeriod, Value: 10}}
	asset := &device.DataItem{ID: "a", Type: device.TypeAssetChanged, Category: observation.Event}

	at := func(v string, offset time.Duration) *observation.Observation {
		return &observation.Observation{Timestamp: t0.Add(offset), Value: observation.NewScalar(v)}
	}
	assetAt := func(id string) *observation.Observation {
		return &observation.Observation{Timestamp: t0, Value: observation.AssetEvent{AssetID: id}}
	}
	defaults := device.DefaultOptions()
	dedupAll := defaults
	dedupAll.FilterDuplicates = true

	tests := []struct {
		name string
		item *device.DataItem
		opts device.Options
		last *observation.Observation
		obs  *observation.Observation
		want string
	}{
		{"first value", event, defaults, nil, at("A", 0), ""},
		{"event duplicate", event, defaults, at("A", 0), at("A", 0), filterDuplicate},
		{"event change", event, defaults, at("A", 0), at("B", 0), ""},
		{"discrete duplicate kept", discrete, defaults, at("A", 0), at("A", 0), ""},
		{"sample duplicate kept", sample, defaults, at("1", 0), at("1", 0), ""},
		{"sample duplicate filtered when enabled", sample, dedupAll, at("1", 0), at("1", 0), filterDuplicate},
		{"unavailable repeat", sample, defaults, at("UNAVAILABLE", 0), at("UNAVAILABLE", 0), filterDuplicate},
		{"unavailable transition", delta, defaults, at("UNAVAILABLE", 0), at("100", 0), ""},
		{"to unavailable", delta, defaults, at("100", 0), at("UNAVAILABLE", 0), ""},
		{"small delta", delta, defaults, at("100", 0), at("103", 0), filterMinimumDelta},
		{"large delta", delta, defaults, at("100", 0), at("106", 0), ""},
		{"negative delta", delta, defaults, at("100", 0), at("94", 0), ""},
		{"within period", period, defaults, at("1", 0), at("2", 9*time.Second), filterPeriod},
		{"after period", period, defaults, at("1", 0), at("2", 10*time.Second), ""},
		{"asset repeat kept", asset, defaults, assetAt("T1"), assetAt("T1"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, admit(tt.item, tt.opts, tt.last, tt.obs))
		})
	}
}
