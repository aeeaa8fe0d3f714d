package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/observation"
)

const testSchema = `
devices:
  - name: mill
    uuid: mill-001
    manufacturer: Acme
    data_items:
      - {id: avail, type: AVAILABILITY, category: EVENT}
    components:
      - type: Controller
        name: controller
        data_items:
          - {id: exec, name: execution, type: EXECUTION, category: EVENT, constraints: [READY, ACTIVE, STOPPED]}
          - {id: msg, type: MESSAGE, category: EVENT}
          - {id: system, type: SYSTEM, category: CONDITION}
      - type: Axes
        name: base
        components:
          - type: Linear
            name: X
            data_items:
              - id: xpos
                type: POSITION
                category: SAMPLE
                units: MILLIMETER
                native_units: INCH
                conversion: {factor: 25.4, offset: 0}
              - id: load
                type: LOAD
                category: SAMPLE
                filter: {type: MINIMUM_DELTA, value: 5}
              - {id: xts, type: POSITION, category: SAMPLE, representation: TIME_SERIES}
`

func loadTestRegistry(t *testing.T) (*Registry, *Device) {
	t.Helper()
	devices, err := Parse([]byte(testSchema))
	require.NoError(t, err)
	require.Len(t, devices, 1)

	r := NewRegistry()
	require.NoError(t, r.Add(devices[0]))
	d, ok := r.Device("mill")
	require.True(t, ok)
	return r, d
}

func TestParseAndIndex(t *testing.T) {
	r, d := loadTestRegistry(t)

	assert.Equal(t, uint64(1), r.Revision())
	assert.Equal(t, uint64(1), d.Revision)
	assert.Equal(t, "mill-001", d.UUID)

	byUUID, ok := r.Device("mill-001")
	require.True(t, ok)
	assert.Same(t, d, byUUID)

	// avail is defined, asset items are synthesized
	assert.Equal(t, "avail", d.Availability().ID)
	assert.Equal(t, "mill_asset_chg", d.AssetChanged().ID)
	assert.Equal(t, "mill_asset_rem", d.AssetRemoved().ID)

	ids := make([]string, 0, len(d.Items()))
	for _, item := range d.Items() {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"avail", "exec", "msg", "system", "xpos", "load", "xts", "mill_asset_chg", "mill_asset_rem"}, ids)

	xpos, ok := d.Item("xpos")
	require.True(t, ok)
	assert.Equal(t, "base/X", xpos.Component)
	assert.Equal(t, "mill", xpos.Device)

	byName, ok := d.Item("execution")
	require.True(t, ok)
	assert.Equal(t, "exec", byName.ID)

	item, ok := r.Item(observation.ItemKey{Device: "mill", ID: "load"})
	require.True(t, ok)
	assert.Equal(t, FilterMinimumDelta, item.Filter.Type)
}

func TestDataItemKinds(t *testing.T) {
	_, d := loadTestRegistry(t)

	kinds := map[string]observation.Kind{
		"exec":           observation.KindScalar,
		"msg":            observation.KindMessage,
		"system":         observation.KindCondition,
		"xts":            observation.KindTimeSeries,
		"mill_asset_chg": observation.KindAsset,
	}
	for id, want := range kinds {
		item, ok := d.Item(id)
		require.True(t, ok)
		assert.Equal(t, want, item.Kind(), id)
	}

	exec, _ := d.Item("exec")
	assert.True(t, exec.Allows("READY"))
	assert.True(t, exec.Allows(observation.Unavailable))
	assert.False(t, exec.Allows("BOGUS"))
	assert.True(t, exec.InitialValue().IsUnavailable())

	pinned := &DataItem{ID: "p", Category: observation.Event, Constraints: []string{"ON"}}
	assert.Equal(t, "ON", pinned.InitialValue().String())
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no name":       "devices:\n  - uuid: x\n",
		"bad category":  "devices:\n  - name: a\n    data_items:\n      - {id: x, category: NOPE}\n",
		"reserved char": "devices:\n  - name: a\n    data_items:\n      - {id: 'x|y', category: EVENT}\n",
		"bad filter":    "devices:\n  - name: a\n    data_items:\n      - {id: x, category: SAMPLE, filter: {type: ODD}}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			devices, err := Parse([]byte(doc))
			if err == nil {
				err = NewRegistry().Add(devices[0])
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestRegistryDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&Device{Name: "a", UUID: "u1"}))
	assert.Error(t, r.Add(&Device{Name: "a", UUID: "u2"}))
	assert.Error(t, r.Add(&Device{Name: "b", UUID: "u1"}))
	assert.Error(t, r.Add(&Device{Name: "c", UUID: "u3",
		DataItems: []*DataItem{{ID: "x"}, {ID: "x"}}}))
}

func TestSetIdentityCreatesRevision(t *testing.T) {
	r, before := loadTestRegistry(t)

	require.NoError(t, r.SetIdentity("mill", "uuid", "mill-002"))
	require.NoError(t, r.SetIdentity("mill", "serialNumber", "SN-9"))

	after, ok := r.Device("mill")
	require.True(t, ok)
	assert.Equal(t, "mill-002", after.UUID)
	assert.Equal(t, "SN-9", after.SerialNumber)
	assert.Equal(t, uint64(3), after.Revision)

	// The old revision is untouched
	assert.Equal(t, "mill-001", before.UUID)
	_, ok = r.Device("mill-001")
	assert.False(t, ok)

	assert.True(t, errors.Is(r.SetIdentity("nope", "uuid", "x"), errors.ErrNoDevice))
	assert.Error(t, r.SetIdentity("mill", "color", "red"))
}

func TestConfigStore(t *testing.T) {
	s := NewConfigStore(DefaultOptions())

	c := s.Get("mill")
	assert.True(t, c.ConversionRequired)
	assert.False(t, c.AutoAvailable)

	handled, err := s.Apply("mill", "AutoAvailable", "true")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, s.Get("mill").AutoAvailable)

	handled, err = s.Apply("mill", "filterDuplicates", "maybe")
	assert.True(t, handled)
	assert.Error(t, err)

	handled, err = s.Apply("mill", "manufacturer", "Acme")
	require.NoError(t, err)
	assert.False(t, handled)

	_, err = s.Apply("mill", "calibration", "xpos|2|1;load|1|0.5")
	require.NoError(t, err)

	_, d := loadTestRegistry(t)
	xpos, _ := d.Item("xpos")
	conv, ok := s.Get("mill").ConversionFor(xpos)
	require.True(t, ok)
	assert.Equal(t, 7.0, conv.Apply(3))

	_, err = s.Apply("mill", "conversionRequired", "no")
	require.NoError(t, err)
	_, ok = s.Get("mill").ConversionFor(xpos)
	assert.False(t, ok)

	_, err = ParseCalibration("x|1")
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	_, d := loadTestRegistry(t)

	ids := func(items []*DataItem) []string {
		out := make([]string, len(items))
		for i, item := range items {
			out[i] = item.ID
		}
		return out
	}

	tests := []struct {
		path string
		want []string
	}{
		{"", []string{"avail", "exec", "msg", "system", "xpos", "load", "xts", "mill_asset_chg", "mill_asset_rem"}},
		{"//Controller", []string{"exec", "msg", "system"}},
		{"//Axes//Linear[@name=\"X\"]", []string{"xpos", "load", "xts"}},
		{"//DataItem[@type=\"LOAD\"]", []string{"load"}},
		{"//DataItem[@category=\"CONDITION\"]|//DataItem[@id='avail']", []string{"avail", "system"}},
		{"//Device[@name=\"mill\"]//Controller//DataItem[@type=\"MESSAGE\"]", []string{"msg"}},
		{"//Spindle", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Select(d, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	_, err := Select(d, "//Controller[@name=")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))
}
