package store

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/observation"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *Store
	device   *device.Device
	registry *device.Registry
	configs  *device.ConfigStore
	history  []*observation.Observation
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	d := &device.Device{
		Name: "mill",
		UUID: "mill-001",
		DataItems: []*device.DataItem{
			{ID: "avail", Type: device.TypeAvailability, Category: observation.Event},
			{ID: "exec", Type: "EXECUTION", Category: observation.Event},
			{ID: "line", Type: "LINE", Category: observation.Event},
			{ID: "load", Type: "LOAD", Category: observation.Sample,
				Filter: &device.Filter{Type: device.FilterMinimumDelta, Value: 5}},
			{ID: "pos", Type: "POSITION", Category: observation.Sample},
			{ID: "system", Type: "SYSTEM", Category: observation.Condition},
		},
	}
	registry := device.NewRegistry()
	require.NoError(t, registry.Add(d))
	configs := device.NewConfigStore(device.DefaultOptions())

	st, err := New(cfg, Deps{
		Registry:        registry,
		Configs:         configs,
		MetricsRegistry: metric.NewMetricsRegistry(),
	})
	require.NoError(t, err)

	f := &fixture{store: st, device: d, registry: registry, configs: configs}
	st.Subscribe(func(obs *observation.Observation) {
		f.history = append(f.history, obs)
	})
	st.AddDevice(d, t0)
	return f
}

func (f *fixture) item(t *testing.T, id string) *device.DataItem {
	t.Helper()
	item, ok := f.device.Item(id)
	require.True(t, ok, id)
	return item
}

func (f *fixture) observe(t *testing.T, id, value string) *observation.Observation {
	t.Helper()
	return f.store.Observe(f.item(t, id), t0, observation.NewScalar(value))
}

func (f *fixture) key(id string) observation.ItemKey {
	return observation.ItemKey{Device: "mill", ID: id}
}

func (f *fixture) window(t *testing.T) (first, last uint64) {
	t.Helper()
	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		first, last = tx.First(), tx.Last()
		return nil
	}))
	return first, last
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	_, err = New(Config{BufferSize: 8, CheckpointFrequency: 0, AssetBufferSize: 4}, Deps{
		Registry: device.NewRegistry(),
		Configs:  device.NewConfigStore(device.DefaultOptions()),
	})
	assert.True(t, errors.IsInvalid(err))
}

func TestAddDevice_SeedsUnavailable(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 64, CheckpointFrequency: 4, AssetBufferSize: 4})

	first, last := f.window(t)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(len(f.device.Items())), last)

	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		for _, item := range f.device.Items() {
			obs, ok := tx.Current(item.Key())
			require.True(t, ok, item.ID)
			assert.True(t, obs.IsUnavailable(), item.ID)
		}
		return nil
	}))
}

func TestSequence_ContiguousWindow(t *testing.T) {
	const capacity = 16
	f := newFixture(t, Config{BufferSize: capacity, CheckpointFrequency: 5, AssetBufferSize: 4})
	seeded := len(f.history)

	for i := 0; i < 100; i++ {
		require.NotNil(t, f.observe(t, "pos", fmt.Sprint(i)))

		total := seeded + i + 1
		first, last := f.window(t)
		assert.Equal(t, uint64(min(total, capacity)), last-first+1)
	}

	snapshot := f.store.log.Snapshot()
	for i := 1; i < len(snapshot); i++ {
		assert.Equal(t, snapshot[i-1].Sequence+1, snapshot[i].Sequence)
	}
}

func TestCurrent_TransparentAcrossEviction(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 10, CheckpointFrequency: 3, AssetBufferSize: 4})

	f.observe(t, "exec", "ACTIVE")
	for i := 0; i < 50; i++ {
		f.observe(t, "pos", fmt.Sprint(i))
	}

	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		exec, ok := tx.Current(f.key("exec"))
		require.True(t, ok)
		assert.Equal(t, "ACTIVE", exec.Value.String())
		assert.Less(t, exec.Sequence, tx.First())

		pos, _ := tx.Current(f.key("pos"))
		assert.Equal(t, "49", pos.Value.String())
		return nil
	}))
}

func TestMinimumDeltaScenario(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 64, CheckpointFrequency: 8, AssetBufferSize: 4})
	first, _ := f.window(t)

	assertCurrent := func(want string) {
		require.NoError(t, f.store.Read(func(tx *ReadTx) error {
			obs, _ := tx.Current(f.key("load"))
			assert.Equal(t, want, obs.Value.String())
			return nil
		}))
	}

	stored := f.observe(t, "load", "100")
	require.NotNil(t, stored)
	assertCurrent("100")
	assert.Nil(t, f.observe(t, "load", "103"))
	assertCurrent("103")
	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		obs, _ := tx.Current(f.key("load"))
		assert.Equal(t, stored.Sequence, obs.Sequence, "filtered value keeps the buffered sequence")
		return nil
	}))
	require.NotNil(t, f.observe(t, "load", "106"))
	assertCurrent("106")

	var values []string
	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		obs, _, err := tx.Sample(map[observation.ItemKey]bool{f.key("load"): true}, first, tx.Capacity())
		for _, o := range obs {
			if !o.IsUnavailable() {
				values = append(values, o.Value.String())
			}
		}
		return err
	}))
	assert.Equal(t, []string{"100", "106"}, values)
}

func TestSample_ClippedToLast(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 32, CheckpointFrequency: 8, AssetBufferSize: 4})
	for i := 0; i < 5; i++ {
		f.observe(t, "pos", fmt.Sprint(i))
	}
	first, last := f.window(t)

	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		from := last - 2
		obs, next, err := tx.Sample(nil, from, 10)
		require.NoError(t, err)
		assert.Len(t, obs, 3)
		assert.Equal(t, last+1, next)

		obs, next, err = tx.Sample(nil, first, 2)
		require.NoError(t, err)
		assert.Len(t, obs, 2)
		assert.Equal(t, first+2, next)
		return nil
	}))
}

func TestSample_OutOfRange(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 8, CheckpointFrequency: 4, AssetBufferSize: 4})
	for i := 0; i < 20; i++ {
		f.observe(t, "pos", fmt.Sprint(i))
	}
	first, last := f.window(t)

	cases := []struct {
		name  string
		from  uint64
		count int
	}{
		{"evicted", first - 1, 1},
		{"not yet assigned", last + 1, 1},
		{"zero count", first, 0},
		{"count over capacity", first, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.store.Read(func(tx *ReadTx) error {
				_, _, err := tx.Sample(nil, tc.from, tc.count)
				return err
			})
			assert.True(t, errors.Is(err, errors.ErrOutOfRange), "got %v", err)
		})
	}

	err := f.store.Read(func(tx *ReadTx) error {
		_, err := tx.CurrentAt([]observation.ItemKey{f.key("pos")}, last+1)
		return err
	})
	assert.Equal(t, errors.CodeOutOfRange, errors.CodeOf(err))
}

func TestDisconnectScenario(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 10, CheckpointFrequency: 3, AssetBufferSize: 4})

	line := f.observe(t, "line", "204")
	require.NotNil(t, line)
	before := line.Sequence

	appended := f.store.Disconnected("mill", t0.Add(time.Second))
	assert.Equal(t, 1, appended, "only line held a real value")

	unavailable := f.history[len(f.history)-1]
	assert.Equal(t, "line", unavailable.DataItemID)
	assert.True(t, unavailable.IsUnavailable())
	assert.True(t, unavailable.Synthetic)

	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		obs, _, err := tx.Sample(map[observation.ItemKey]bool{f.key("line"): true}, before, 2)
		require.NoError(t, err)
		require.Len(t, obs, 2)
		assert.Equal(t, "204", obs[0].Value.String())
		assert.True(t, obs[1].IsUnavailable())
		return nil
	}))

	// Reconstruction before the disconnect still sees the real value
	f.observe(t, "pos", "0")
	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		got, err := tx.CurrentAt([]observation.ItemKey{f.key("line")}, before)
		require.NoError(t, err)
		assert.Equal(t, "204", got[f.key("line")].Value.String())
		return nil
	}))

	// Push both line observations out of the window
	for i := 1; i < 20; i++ {
		f.observe(t, "pos", fmt.Sprint(i))
	}

	lastKnown, ok := f.store.log.LastKnown(f.key("line"))
	require.True(t, ok)
	assert.Equal(t, "204", lastKnown.Value.String(), "disconnect values stay out of the last-known map")

	first, last := f.window(t)
	require.Greater(t, first, unavailable.Sequence)
	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		for at := first; at <= last; at++ {
			got, err := tx.CurrentAt([]observation.ItemKey{f.key("line")}, at)
			require.NoError(t, err)
			assert.True(t, got[f.key("line")].IsUnavailable(), "at %d", at)
			assert.Equal(t, replay(f.history, at)[f.key("line")].Sequence, got[f.key("line")].Sequence)
		}
		cur, _ := tx.Current(f.key("line"))
		assert.True(t, cur.IsUnavailable())
		return nil
	}))
}

func TestAutoAvailable(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 32, CheckpointFrequency: 4, AssetBufferSize: 4})
	_, err := f.configs.Apply("mill", "autoAvailable", "true")
	require.NoError(t, err)

	f.store.Connected("mill", t0)
	avail := f.history[len(f.history)-1]
	assert.Equal(t, "avail", avail.DataItemID)
	assert.Equal(t, "AVAILABLE", avail.Value.String())

	f.store.Disconnected("mill", t0)
	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		cur, _ := tx.Current(f.key("avail"))
		assert.True(t, cur.IsUnavailable())
		return nil
	}))
}

func TestConditionThroughStore(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 64, CheckpointFrequency: 4, AssetBufferSize: 4})
	system := f.item(t, "system")

	apply := func(level observation.Level, code string) *observation.Observation {
		return f.store.Observe(system, t0, observation.ConditionValue{Level: level, NativeCode: code})
	}

	require.NotNil(t, apply(observation.LevelFault, "A"))
	require.NotNil(t, apply(observation.LevelFault, "B"))
	obs := apply(observation.LevelWarning, "A")
	require.NotNil(t, obs)
	assert.Equal(t, "WARNING:A,FAULT:B", obs.Value.String())

	assert.Nil(t, apply(observation.LevelWarning, "A"), "unchanged set is not appended")

	obs = apply(observation.LevelNormal, "A")
	require.NotNil(t, obs)
	assert.Equal(t, "FAULT:B", obs.Value.String())

	obs = apply(observation.LevelNormal, "")
	require.NotNil(t, obs)
	assert.Equal(t, "NORMAL", obs.Value.String())
}

func TestAssetCapacityScenario(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 64, CheckpointFrequency: 4, AssetBufferSize: 4})

	put := func(id string) error {
		_, err := f.store.PutAsset(Asset{ID: id, Type: "CuttingTool", Device: "mill-001", Timestamp: t0,
			Document: "<CuttingTool assetId=\"" + id + "\"/>"}, false)
		return err
	}
	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, put(id))
	}

	count := func() int {
		var n int
		_ = f.store.Read(func(tx *ReadTx) error { n = tx.AssetCount(); return nil })
		return n
	}
	assert.Equal(t, 4, count())

	require.NoError(t, put("5"))
	assert.Equal(t, 4, count())

	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		_, ok := tx.Asset("1")
		assert.False(t, ok)
		for _, id := range []string{"2", "3", "4", "5"} {
			_, ok := tx.Asset(id)
			assert.True(t, ok, id)
		}
		return nil
	}))

	chg := f.history[len(f.history)-1]
	assert.Equal(t, "mill_asset_chg", chg.DataItemID)
	assert.Equal(t, "5", chg.Value.String())
}

func TestAssetLifecycle(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 64, CheckpointFrequency: 4, AssetBufferSize: 3})
	a := Asset{ID: "T1", Type: "CuttingTool", Device: "mill", Timestamp: t0, Document: "<CuttingTool/>"}

	_, err := f.store.PutAsset(a, false)
	require.NoError(t, err)

	_, err = f.store.PutAsset(a, false)
	assert.True(t, errors.Is(err, errors.ErrDuplicateAsset))

	_, err = f.store.PutAsset(a, true)
	require.NoError(t, err)

	_, err = f.store.PutAsset(Asset{ID: "T1", Device: "lathe"}, true)
	assert.True(t, errors.Is(err, errors.ErrNoDevice))

	removed, err := f.store.RemoveAsset("T1", t0)
	require.NoError(t, err)
	assert.True(t, removed.Removed)

	// The removed asset was the one AssetChanged showed
	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		chg, _ := tx.Current(f.key("mill_asset_chg"))
		assert.True(t, chg.IsUnavailable())
		rem, _ := tx.Current(f.key("mill_asset_rem"))
		assert.Equal(t, "T1", rem.Value.String())

		assert.Equal(t, 1, tx.AssetCount(), "removal keeps the record")
		assert.Empty(t, tx.Assets(AssetQuery{}))
		assert.Len(t, tx.Assets(AssetQuery{IncludeRemoved: true}), 1)
		return nil
	}))

	_, err = f.store.RemoveAsset("T1", t0)
	assert.True(t, errors.Is(err, errors.ErrAssetNotFound))

	// Tombstoned records accept a plain insert again
	_, err = f.store.PutAsset(a, false)
	require.NoError(t, err)
}

func TestAssetEvictionIncludesTombstones(t *testing.T) {
	s, err := NewAssetStore(3)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Upsert(Asset{ID: id, Type: "T"}, false)
		require.NoError(t, err)
	}
	_, err = s.Remove("a", t0)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	_, err = s.Upsert(Asset{ID: "d", Type: "T"}, false)
	require.NoError(t, err)
	_, ok := s.Get("a")
	assert.False(t, ok, "oldest record is evicted even when tombstoned")

	// In-place replace keeps ring position, so b is still the oldest
	_, err = s.Upsert(Asset{ID: "b", Type: "U"}, true)
	require.NoError(t, err)
	_, err = s.Upsert(Asset{ID: "e", Type: "T"}, false)
	require.NoError(t, err)
	_, ok = s.Get("b")
	assert.False(t, ok)

	ids := func(list []Asset) []string {
		out := make([]string, len(list))
		for i, a := range list {
			out[i] = a.ID
		}
		return out
	}
	assert.Equal(t, []string{"e", "d", "c"}, ids(s.List(AssetQuery{})))
	assert.Equal(t, []string{"e"}, ids(s.List(AssetQuery{Count: 1})))
	assert.Equal(t, []string{"d"}, ids(s.List(AssetQuery{IDs: []string{"d", "zz"}})))
}

func TestRemoveAllAssets(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 64, CheckpointFrequency: 4, AssetBufferSize: 8})
	for i, typ := range []string{"CuttingTool", "CuttingTool", "Fixture"} {
		_, err := f.store.PutAsset(Asset{ID: fmt.Sprint(i), Type: typ, Device: "mill", Timestamp: t0}, false)
		require.NoError(t, err)
	}

	removed, err := f.store.RemoveAllAssets("mill", "CuttingTool", t0)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	_, err = f.store.RemoveAllAssets("lathe", "CuttingTool", t0)
	assert.True(t, errors.Is(err, errors.ErrNoDevice))

	require.NoError(t, f.store.Read(func(tx *ReadTx) error {
		assert.Len(t, tx.Assets(AssetQuery{}), 1)
		assert.Equal(t, 3, tx.AssetCount())
		return nil
	}))
}

func TestUpdateAsset(t *testing.T) {
	f := newFixture(t, Config{BufferSize: 64, CheckpointFrequency: 4, AssetBufferSize: 8})
	_, err := f.store.PutAsset(Asset{ID: "T1", Type: "CuttingTool", Device: "mill", Timestamp: t0,
		Document: `<CuttingTool assetId="T1" toolId="5"><ToolLife>10</ToolLife></CuttingTool>`}, false)
	require.NoError(t, err)

	updated, err := f.store.UpdateAsset("T1", []string{"ToolLife", "7", "toolId", "6"}, t0)
	require.NoError(t, err)
	assert.Equal(t, `<CuttingTool assetId="T1" toolId="6"><ToolLife>7</ToolLife></CuttingTool>`, updated.Document)

	_, err = f.store.UpdateAsset("T1", []string{"Missing", "1"}, t0)
	assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))

	_, err = f.store.UpdateAsset("nope", []string{"a", "b"}, t0)
	assert.True(t, errors.Is(err, errors.ErrAssetNotFound))
}

// TestCurrentAt_MatchesReplay checks checkpoint reconstruction against a
// full replay of every appended observation.
func TestCurrentAt_MatchesReplay(t *testing.T) {
	for _, tc := range []struct{ capacity, frequency int }{
		{capacity: 12, frequency: 1},
		{capacity: 25, frequency: 4},
		{capacity: 40, frequency: 7},
		{capacity: 64, frequency: 100},
	} {
		t.Run(fmt.Sprintf("cap%d_freq%d", tc.capacity, tc.frequency), func(t *testing.T) {
			f := newFixture(t, Config{BufferSize: tc.capacity, CheckpointFrequency: tc.frequency, AssetBufferSize: 4})
			rng := rand.New(rand.NewSource(int64(tc.capacity*1000 + tc.frequency)))

			ids := []string{"exec", "line", "pos", "load", "system"}
			keys := make([]observation.ItemKey, 0, len(f.device.Items()))
			for _, item := range f.device.Items() {
				keys = append(keys, item.Key())
			}

			for step := 0; step < 400; step++ {
				ts := t0.Add(time.Duration(step) * time.Millisecond)
				switch r := rng.Intn(40); {
				case r == 0:
					f.store.Disconnected("mill", ts)
				case r <= 2:
					_, err := f.store.PutAsset(Asset{
						ID: fmt.Sprint("T", rng.Intn(3)), Type: "CuttingTool", Device: "mill", Timestamp: ts,
					}, true)
					require.NoError(t, err)
				case r == 3:
					// Removing an unknown or tombstoned asset fails without appending
					_, _ = f.store.RemoveAsset(fmt.Sprint("T", rng.Intn(3)), ts)
				default:
					f.observeRandom(t, rng, ids, ts)
				}

				first, last := f.window(t)
				for at := first; at <= last; at++ {
					want := replay(f.history, at)
					var got map[observation.ItemKey]*observation.Observation
					require.NoError(t, f.store.Read(func(tx *ReadTx) error {
						var err error
						got, err = tx.CurrentAt(keys, at)
						return err
					}))
					if diff := cmp.Diff(sequences(want), sequences(got)); diff != "" {
						t.Fatalf("step %d at %d: reconstruction mismatch (-replay +checkpoint):\n%s", step, at, diff)
					}
				}
			}
		})
	}
}

func (f *fixture) observeRandom(t *testing.T, rng *rand.Rand, ids []string, ts time.Time) {
	t.Helper()
	id := ids[rng.Intn(len(ids))]
	// Skew towards pos so other items fall out of the window
	if rng.Intn(3) > 0 {
		id = "pos"
	}
	var v observation.Value
	switch id {
	case "system":
		levels := []observation.Level{observation.LevelNormal, observation.LevelWarning, observation.LevelFault}
		v = observation.ConditionValue{
			Level:      levels[rng.Intn(len(levels))],
			NativeCode: []string{"", "A", "B"}[rng.Intn(3)],
		}
	case "exec":
		v = observation.NewScalar([]string{"READY", "ACTIVE", "STOPPED"}[rng.Intn(3)])
	default:
		v = observation.NewScalar(fmt.Sprint(rng.Intn(50)))
	}
	f.store.Observe(f.item(t, id), ts, v)
}

func replay(history []*observation.Observation, at uint64) map[observation.ItemKey]*observation.Observation {
	out := make(map[observation.ItemKey]*observation.Observation)
	for _, obs := range history {
		if obs.Sequence > at {
			break
		}
		out[obs.Key()] = obs
	}
	return out
}

func sequences(m map[observation.ItemKey]*observation.Observation) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, obs := range m {
		out[k.String()] = obs.Sequence
	}
	return out
}
