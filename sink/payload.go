package sink

import (
	"encoding/json"
	"time"

	"github.com/c360/streamagent/observation"
)

// Payload is the JSON document published for one observation.
type Payload struct {
	Device     string    `json:"device"`
	DataItemID string    `json:"data_item_id"`
	Sequence   uint64    `json:"sequence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Category   string    `json:"category"`
	Value      any       `json:"value"`
}

type conditionPayload struct {
	Level          string `json:"level"`
	NativeCode     string `json:"native_code,omitempty"`
	NativeSeverity string `json:"native_severity,omitempty"`
	Qualifier      string `json:"qualifier,omitempty"`
	Text           string `json:"text,omitempty"`
}

type messagePayload struct {
	NativeCode string `json:"native_code,omitempty"`
	Text       string `json:"text"`
}

type timeSeriesPayload struct {
	Count   int       `json:"count"`
	Rate    float64   `json:"rate,omitempty"`
	Samples []float64 `json:"samples"`
}

type assetPayload struct {
	AssetID   string `json:"asset_id"`
	AssetType string `json:"asset_type,omitempty"`
}

// Encode renders obs as a Payload document.
func Encode(obs *observation.Observation) ([]byte, error) {
	return json.Marshal(Payload{
		Device:     obs.Device,
		DataItemID: obs.DataItemID,
		Sequence:   obs.Sequence,
		Timestamp:  obs.Timestamp.UTC(),
		Category:   obs.Category.String(),
		Value:      encodeValue(obs.Value),
	})
}

// encodeValue maps the value to its JSON shape. UNAVAILABLE is always the
// bare string so consumers can test for it uniformly.
func encodeValue(v observation.Value) any {
	if v == nil || v.IsUnavailable() {
		return observation.Unavailable
	}
	switch val := v.(type) {
	case observation.Scalar:
		if val.Numeric {
			return val.Number
		}
		return val.Text
	case observation.ConditionValue:
		return []conditionPayload{encodeCondition(val)}
	case observation.ConditionState:
		rendered := val.Rendered()
		out := make([]conditionPayload, len(rendered))
		for i, c := range rendered {
			out[i] = encodeCondition(c)
		}
		return out
	case observation.Message:
		return messagePayload{NativeCode: val.NativeCode, Text: val.Text}
	case observation.TimeSeries:
		return timeSeriesPayload{Count: val.Count, Rate: val.Rate, Samples: val.Samples}
	case observation.AssetEvent:
		return assetPayload{AssetID: val.AssetID, AssetType: val.AssetType}
	default:
		return v.String()
	}
}

func encodeCondition(c observation.ConditionValue) conditionPayload {
	return conditionPayload{
		Level:          c.Level.String(),
		NativeCode:     c.NativeCode,
		NativeSeverity: c.NativeSeverity,
		Qualifier:      c.Qualifier,
		Text:           c.Text,
	}
}
