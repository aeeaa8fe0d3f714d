package store

import (
	"math"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/observation"
)

// Reasons an observation is kept out of the sequence log.
const (
	filterDuplicate    = "duplicate"
	filterMinimumDelta = "minimum_delta"
	filterPeriod       = "period"
)

// admit decides whether obs is appended, comparing against last, the most
// recently buffered observation of the same item. It returns the reason for
// rejection, or "" to append.
func admit(item *device.DataItem, opts device.Options, last, obs *observation.Observation) string {
	if last == nil {
		return ""
	}
	if last.IsUnavailable() != obs.IsUnavailable() {
		return ""
	}
	if obs.IsUnavailable() && !item.IsAsset() {
		return filterDuplicate
	}

	dedup := item.Category == observation.Event || opts.FilterDuplicates
	if dedup && !item.IsDiscrete() && !item.IsAsset() && observation.Equal(last.Value, obs.Value) {
		return filterDuplicate
	}
	if item.Category != observation.Sample || item.Filter == nil {
		return ""
	}

	switch item.Filter.Type {
	case device.FilterMinimumDelta:
		prev, ok1 := last.Value.(observation.Scalar)
		cur, ok2 := obs.Value.(observation.Scalar)
		if ok1 && ok2 && prev.Numeric && cur.Numeric &&
			math.Abs(cur.Number-prev.Number) < item.Filter.Value {
			return filterMinimumDelta
		}
	case device.FilterPeriod:
		period := item.Filter.Value * 1e9
		if float64(obs.Timestamp.Sub(last.Timestamp)) < period {
			return filterPeriod
		}
	}
	return ""
}
