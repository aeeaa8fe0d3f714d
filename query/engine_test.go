package query

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/store"
)

const testDevices = `
devices:
  - name: mill
    uuid: mill-001
    data_items:
      - {id: avail, type: AVAILABILITY, category: EVENT}
    components:
      - type: Controller
        name: controller
        data_items:
          - {id: exec, type: EXECUTION, category: EVENT}
          - {id: line, type: LINE, category: EVENT}
          - {id: system, type: SYSTEM, category: CONDITION}
      - type: Linear
        name: X
        data_items:
          - {id: pos, type: POSITION, category: SAMPLE}
`

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type engineFixture struct {
	engine   *Engine
	store    *store.Store
	registry *device.Registry
	mill     *device.Device
}

func newEngineFixture(t *testing.T, bufferSize int) *engineFixture {
	t.Helper()
	devices, err := device.Parse([]byte(testDevices))
	require.NoError(t, err)

	registry := device.NewRegistry()
	for _, d := range devices {
		require.NoError(t, registry.Add(d))
	}
	configs := device.NewConfigStore(device.DefaultOptions())
	st, err := store.New(store.Config{BufferSize: bufferSize, CheckpointFrequency: 8, AssetBufferSize: 4},
		store.Deps{Registry: registry, Configs: configs})
	require.NoError(t, err)
	st.AddDevice(devices[0], clock)

	engine, err := NewEngine(Config{InstanceID: "instance-1", Sender: "test"}, Deps{
		Store:    st,
		Registry: registry,
		Now:      func() time.Time { return clock },
	})
	require.NoError(t, err)
	return &engineFixture{engine: engine, store: st, registry: registry, mill: devices[0]}
}

func (f *engineFixture) observe(t *testing.T, id, value string) *observation.Observation {
	t.Helper()
	item, ok := f.mill.Item(id)
	require.True(t, ok)
	return f.store.Observe(item, clock, observation.NewScalar(value))
}

func values(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Item.ID + "=" + e.Observation.Value.String()
	}
	return out
}

func TestCurrent_GroupsByComponentAndCategory(t *testing.T) {
	f := newEngineFixture(t, 64)
	f.observe(t, "exec", "ACTIVE")
	f.observe(t, "pos", "12.5")

	snap, err := f.engine.Current(CurrentRequest{})
	require.NoError(t, err)

	assert.Equal(t, "instance-1", snap.Header.InstanceID)
	assert.Equal(t, snap.Header.LastSequence+1, snap.Header.NextSequence)
	assert.Equal(t, len(f.mill.Items()), snap.Len())

	require.Len(t, snap.Devices, 1)
	ds := snap.Devices[0]
	assert.Equal(t, "mill-001", ds.UUID)

	paths := make([]string, len(ds.Components))
	for i, cs := range ds.Components {
		paths[i] = cs.Component
	}
	assert.Equal(t, []string{"", "controller", "X"}, paths)

	controller := ds.Components[1]
	assert.Equal(t, []string{"exec=ACTIVE", "line=UNAVAILABLE"}, values(controller.Events))
	assert.Equal(t, []string{"system=UNAVAILABLE"}, values(controller.Conditions))
	assert.Equal(t, []string{"pos=12.5"}, values(ds.Components[2].Samples))
}

func TestCurrent_Path(t *testing.T) {
	f := newEngineFixture(t, 64)
	f.observe(t, "exec", "READY")

	snap, err := f.engine.Current(CurrentRequest{Device: "mill", Path: `//DataItem[@type="EXECUTION"]`})
	require.NoError(t, err)
	assert.Equal(t, []string{"exec=READY"}, values(snap.Entries()))

	snap, err = f.engine.Current(CurrentRequest{Path: `//Controller`})
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
}

func TestCurrent_Errors(t *testing.T) {
	f := newEngineFixture(t, 64)

	_, err := f.engine.Current(CurrentRequest{Device: "lathe"})
	assert.Equal(t, errors.CodeNoDevice, errors.CodeOf(err))

	_, err = f.engine.Current(CurrentRequest{Path: `//DataItem[@type=`})
	assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))

	beyond := uint64(1000)
	_, err = f.engine.Current(CurrentRequest{At: &beyond})
	assert.Equal(t, errors.CodeOutOfRange, errors.CodeOf(err))
}

func TestCurrent_At(t *testing.T) {
	f := newEngineFixture(t, 64)
	first := f.observe(t, "line", "1")
	f.observe(t, "line", "2")

	at := first.Sequence
	snap, err := f.engine.Current(CurrentRequest{Path: `//DataItem[@id="line"]`, At: &at})
	require.NoError(t, err)
	assert.Equal(t, []string{"line=1"}, values(snap.Entries()))
	assert.Equal(t, at+1, snap.Header.NextSequence)

	at = 1
	snap, err = f.engine.Current(CurrentRequest{Path: `//DataItem[@id="line"]`, At: &at})
	require.NoError(t, err)
	assert.Equal(t, []string{"line=UNAVAILABLE"}, values(snap.Entries()))
}

func TestSample_ClippedToLastSequence(t *testing.T) {
	f := newEngineFixture(t, 256)
	var last *observation.Observation
	for i := 0; i < 5; i++ {
		last = f.observe(t, "pos", fmt.Sprint(i))
	}

	from := last.Sequence - 1
	snap, err := f.engine.Sample(SampleRequest{From: &from, Count: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"pos=3", "pos=4"}, values(snap.Entries()))
	assert.Equal(t, last.Sequence+1, snap.Header.NextSequence)
}

func TestSample_DefaultsAndFilters(t *testing.T) {
	f := newEngineFixture(t, 256)
	f.observe(t, "exec", "ACTIVE")
	f.observe(t, "pos", "1")
	f.observe(t, "exec", "STOPPED")

	snap, err := f.engine.Sample(SampleRequest{Path: `//DataItem[@id="exec"]`, Count: DefaultCount})
	require.NoError(t, err)
	assert.Equal(t, []string{"exec=UNAVAILABLE", "exec=ACTIVE", "exec=STOPPED"}, values(snap.Entries()))
	assert.Equal(t, uint64(1), snap.Header.FirstSequence)

	_, err = f.engine.Sample(SampleRequest{Count: 0})
	assert.Equal(t, errors.CodeOutOfRange, errors.CodeOf(err))

	beyond := snap.Header.NextSequence
	_, err = f.engine.Sample(SampleRequest{From: &beyond, Count: 10})
	assert.Equal(t, errors.CodeOutOfRange, errors.CodeOf(err))
}

func TestSample_DefaultCountWithinCapacity(t *testing.T) {
	f := newEngineFixture(t, 16)
	for i := 0; i < 30; i++ {
		f.observe(t, "pos", fmt.Sprint(i))
	}

	req, err := ParseSample("", url.Values{})
	require.NoError(t, err)
	snap, err := f.engine.Sample(req)
	require.NoError(t, err)
	assert.Equal(t, 16, snap.Len())
	assert.Equal(t, snap.Header.LastSequence+1, snap.Header.NextSequence)

	req, err = ParseSample("", url.Values{"count": {"17"}})
	require.NoError(t, err)
	_, err = f.engine.Sample(req)
	assert.Equal(t, errors.CodeOutOfRange, errors.CodeOf(err))
}

func TestSample_Pagination(t *testing.T) {
	f := newEngineFixture(t, 256)
	for i := 0; i < 10; i++ {
		f.observe(t, "pos", fmt.Sprint(i))
	}

	var seen []string
	snap, err := f.engine.Sample(SampleRequest{Path: `//Linear`, Count: 4})
	require.NoError(t, err)
	for {
		seen = append(seen, values(snap.Entries())...)
		if snap.Header.NextSequence > snap.Header.LastSequence {
			break
		}
		next := snap.Header.NextSequence
		snap, err = f.engine.Sample(SampleRequest{Path: `//Linear`, From: &next, Count: 4})
		require.NoError(t, err)
	}
	assert.Len(t, seen, 11, "seed plus ten values")
	assert.Equal(t, "pos=9", seen[len(seen)-1])
}

func TestAssets(t *testing.T) {
	f := newEngineFixture(t, 64)

	_, err := f.engine.PutAsset(store.Asset{ID: "T1", Type: "CuttingTool", Document: "<CuttingTool/>"}, false)
	require.NoError(t, err)
	_, err = f.engine.PutAsset(store.Asset{ID: "F1", Type: "Fixture", Device: "mill-001"}, false)
	require.NoError(t, err)

	_, err = f.engine.PutAsset(store.Asset{Type: "Fixture"}, false)
	assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))
	_, err = f.engine.PutAsset(store.Asset{ID: "T1", Type: "CuttingTool"}, false)
	assert.Equal(t, errors.CodeDuplicateAsset, errors.CodeOf(err))

	list, header, err := f.engine.Assets(AssetRequest{Count: DefaultCount})
	require.NoError(t, err)
	assert.Equal(t, 2, header.AssetCount)
	require.Len(t, list, 2)
	assert.Equal(t, "F1", list[0].ID)
	assert.Equal(t, clock, list[1].Timestamp)

	list, _, err = f.engine.Assets(AssetRequest{Type: "CuttingTool", Device: "mill"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, _, err = f.engine.Assets(AssetRequest{IDs: []string{"T1", "nope"}})
	assert.Equal(t, errors.CodeAssetNotFound, errors.CodeOf(err))
	_, _, err = f.engine.Assets(AssetRequest{Device: "lathe"})
	assert.Equal(t, errors.CodeNoDevice, errors.CodeOf(err))

	_, err = f.engine.RemoveAsset("T1")
	require.NoError(t, err)
	list, _, err = f.engine.Assets(AssetRequest{IDs: []string{"T1"}})
	require.NoError(t, err)
	assert.True(t, list[0].Removed, "lookup by id includes removed assets")

	_, err = f.engine.RemoveAllAssets("", "")
	assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))
	removed, err := f.engine.RemoveAllAssets("", "Fixture")
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	list, _, err = f.engine.Assets(AssetRequest{Removed: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestProbe(t *testing.T) {
	f := newEngineFixture(t, 64)

	p, err := f.engine.Probe("")
	require.NoError(t, err)
	require.Len(t, p.Devices, 1)
	assert.Equal(t, uint64(1), p.Header.SchemaRevision)

	_, err = f.engine.Probe("lathe")
	assert.True(t, errors.Is(err, errors.ErrNoDevice))
}

// collector records emitted snapshots for stream tests.
type collector struct {
	mu    sync.Mutex
	snaps []*Snapshot
}

func (c *collector) emit(s *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, s)
	return nil
}

func (c *collector) all() []*Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Snapshot(nil), c.snaps...)
}

func TestStreamSample(t *testing.T) {
	f := newEngineFixture(t, 256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	done := make(chan error, 1)
	go func() {
		done <- f.engine.StreamSample(ctx, SampleRequest{
			Path: `//DataItem[@id="line"]`, Count: 10, Interval: 5 * time.Millisecond, Heartbeat: time.Hour,
		}, c.emit)
	}()

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"line=UNAVAILABLE"}, values(c.all()[0].Entries()))

	f.observe(t, "pos", "1")
	f.observe(t, "line", "42")
	require.Eventually(t, func() bool { return len(c.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"line=42"}, values(c.all()[1].Entries()))

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, c.all(), 2, "nothing new and heartbeat not due")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStreamSample_Heartbeat(t *testing.T) {
	f := newEngineFixture(t, 256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go func() {
		_ = f.engine.StreamSample(ctx, SampleRequest{Count: 10, Interval: 5 * time.Millisecond, Heartbeat: 20 * time.Millisecond}, c.emit)
	}()

	require.Eventually(t, func() bool { return len(c.all()) >= 3 }, time.Second, 5*time.Millisecond)
	snaps := c.all()
	assert.Zero(t, snaps[len(snaps)-1].Len())
}

func TestStreamSample_FallsBehind(t *testing.T) {
	f := newEngineFixture(t, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	emits := 0
	emit := func(*Snapshot) error {
		emits++
		if emits == 1 {
			<-block
		}
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- f.engine.StreamSample(ctx, SampleRequest{Count: 4, Interval: time.Millisecond, Heartbeat: time.Hour}, emit)
	}()

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 40; i++ {
		f.observe(t, "pos", fmt.Sprint(i))
	}
	close(block)

	select {
	case err := <-done:
		assert.Equal(t, errors.CodeOutOfRange, errors.CodeOf(err))
	case <-time.After(time.Second):
		t.Fatal("stream did not fail")
	}
}

func TestStreamCurrent(t *testing.T) {
	f := newEngineFixture(t, 64)
	ctx, cancel := context.WithCancel(context.Background())

	c := &collector{}
	done := make(chan error, 1)
	go func() {
		done <- f.engine.StreamCurrent(ctx, CurrentRequest{Device: "mill", Interval: 5 * time.Millisecond}, c.emit)
	}()

	require.Eventually(t, func() bool { return len(c.all()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, len(f.mill.Items()), c.all()[0].Len())

	err := f.engine.StreamCurrent(context.Background(), CurrentRequest{Device: "lathe"}, c.emit)
	assert.Equal(t, errors.CodeNoDevice, errors.CodeOf(err))
}
