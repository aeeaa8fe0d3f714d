package gateway

import (
	"time"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/query"
	"github.com/c360/streamagent/store"
)

type probeDoc struct {
	Header  query.Header `json:"header"`
	Devices []deviceDoc  `json:"devices"`
}

type deviceDoc struct {
	Name         string         `json:"name"`
	UUID         string         `json:"uuid"`
	ID           string         `json:"id,omitempty"`
	Manufacturer string         `json:"manufacturer,omitempty"`
	SerialNumber string         `json:"serialNumber,omitempty"`
	Station      string         `json:"station,omitempty"`
	Description  string         `json:"description,omitempty"`
	DataItems    []dataItemDoc  `json:"dataItems,omitempty"`
	Components   []componentDoc `json:"components,omitempty"`
}

type componentDoc struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	DataItems  []dataItemDoc  `json:"dataItems,omitempty"`
	Components []componentDoc `json:"components,omitempty"`
}

type dataItemDoc struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Type           string   `json:"type"`
	SubType        string   `json:"subType,omitempty"`
	Category       string   `json:"category"`
	Representation string   `json:"representation,omitempty"`
	Units          string   `json:"units,omitempty"`
	NativeUnits    string   `json:"nativeUnits,omitempty"`
	Constraints    []string `json:"constraints,omitempty"`
}

func renderProbe(p *query.Probe) probeDoc {
	doc := probeDoc{Header: p.Header, Devices: make([]deviceDoc, 0, len(p.Devices))}
	for _, d := range p.Devices {
		doc.Devices = append(doc.Devices, deviceDoc{
			Name:         d.Name,
			UUID:         d.UUID,
			ID:           d.ID,
			Manufacturer: d.Manufacturer,
			SerialNumber: d.SerialNumber,
			Station:      d.Station,
			Description:  d.Description,
			DataItems:    renderItems(d.DataItems),
			Components:   renderComponents(d.Components),
		})
	}
	return doc
}

func renderComponents(comps []*device.Component) []componentDoc {
	if len(comps) == 0 {
		return nil
	}
	out := make([]componentDoc, len(comps))
	for i, c := range comps {
		out[i] = componentDoc{
			ID:         c.ID,
			Type:       c.Type,
			Name:       c.Name,
			DataItems:  renderItems(c.DataItems),
			Components: renderComponents(c.Components),
		}
	}
	return out
}

func renderItems(items []*device.DataItem) []dataItemDoc {
	if len(items) == 0 {
		return nil
	}
	out := make([]dataItemDoc, len(items))
	for i, item := range items {
		doc := dataItemDoc{
			ID:          item.ID,
			Name:        item.Name,
			Type:        item.Type,
			SubType:     item.SubType,
			Category:    item.Category.String(),
			Units:       item.Units,
			NativeUnits: item.NativeUnits,
			Constraints: item.Constraints,
		}
		if item.Representation != observation.RepValue {
			doc.Representation = item.Representation.String()
		}
		out[i] = doc
	}
	return out
}

type streamsDoc struct {
	Header  query.Header      `json:"header"`
	Streams []deviceStreamDoc `json:"streams"`
}

type deviceStreamDoc struct {
	Name       string               `json:"name"`
	UUID       string               `json:"uuid"`
	Components []componentStreamDoc `json:"components"`
}

type componentStreamDoc struct {
	Component  string           `json:"component"`
	Samples    []observationDoc `json:"samples,omitempty"`
	Events     []observationDoc `json:"events,omitempty"`
	Conditions []observationDoc `json:"conditions,omitempty"`
}

type observationDoc struct {
	DataItemID string    `json:"dataItemId"`
	Name       string    `json:"name,omitempty"`
	Type       string    `json:"type"`
	SubType    string    `json:"subType,omitempty"`
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	Value      string    `json:"value,omitempty"`

	NativeCode  string         `json:"nativeCode,omitempty"`
	SampleCount int            `json:"sampleCount,omitempty"`
	SampleRate  float64        `json:"sampleRate,omitempty"`
	AssetType   string         `json:"assetType,omitempty"`
	Conditions  []conditionDoc `json:"conditions,omitempty"`
}

type conditionDoc struct {
	Level          string `json:"level"`
	NativeCode     string `json:"nativeCode,omitempty"`
	NativeSeverity string `json:"nativeSeverity,omitempty"`
	Qualifier      string `json:"qualifier,omitempty"`
	Text           string `json:"text,omitempty"`
}

func renderSnapshot(s *query.Snapshot) streamsDoc {
	doc := streamsDoc{Header: s.Header, Streams: make([]deviceStreamDoc, 0, len(s.Devices))}
	for _, ds := range s.Devices {
		dd := deviceStreamDoc{Name: ds.Name, UUID: ds.UUID, Components: make([]componentStreamDoc, 0, len(ds.Components))}
		for _, cs := range ds.Components {
			dd.Components = append(dd.Components, componentStreamDoc{
				Component:  cs.Component,
				Samples:    renderEntries(cs.Samples),
				Events:     renderEntries(cs.Events),
				Conditions: renderEntries(cs.Conditions),
			})
		}
		doc.Streams = append(doc.Streams, dd)
	}
	return doc
}

func renderEntries(entries []query.Entry) []observationDoc {
	if len(entries) == 0 {
		return nil
	}
	out := make([]observationDoc, len(entries))
	for i, e := range entries {
		out[i] = renderObservation(e.Item, e.Observation)
	}
	return out
}

func renderObservation(item *device.DataItem, obs *observation.Observation) observationDoc {
	doc := observationDoc{
		DataItemID: item.ID,
		Name:       item.Name,
		Type:       item.Type,
		SubType:    item.SubType,
		Sequence:   obs.Sequence,
		Timestamp:  obs.Timestamp.UTC(),
	}
	switch v := obs.Value.(type) {
	case observation.ConditionState:
		for _, c := range v.Rendered() {
			doc.Conditions = append(doc.Conditions, conditionDoc{
				Level:          c.Level.String(),
				NativeCode:     c.NativeCode,
				NativeSeverity: c.NativeSeverity,
				Qualifier:      c.Qualifier,
				Text:           c.Text,
			})
		}
	case observation.Message:
		doc.Value = v.Text
		doc.NativeCode = v.NativeCode
	case observation.TimeSeries:
		doc.Value = v.String()
		if !v.Unavailable {
			doc.SampleCount = v.Count
			doc.SampleRate = v.Rate
		}
	case observation.AssetEvent:
		doc.Value = v.AssetID
		doc.AssetType = v.AssetType
	case nil:
		doc.Value = observation.Unavailable
	default:
		doc.Value = v.String()
	}
	return doc
}

type assetsDoc struct {
	Header query.Header  `json:"header"`
	Assets []store.Asset `json:"assets"`
}

type errorDoc struct {
	Errors []errorEntry `json:"errors"`
}

type errorEntry struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}
