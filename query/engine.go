package query

import (
	"log/slog"
	"os"
	"time"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/store"
)

// Config identifies the agent in response headers.
type Config struct {
	InstanceID string
	Sender     string
	// MinInterval bounds how fast streams poll the store.
	MinInterval time.Duration
}

// Deps holds the engine's collaborators.
type Deps struct {
	Store    *store.Store
	Registry *device.Registry
	Logger   *slog.Logger
	// Now returns the clock used for asset mutations; defaults to time.Now.
	Now func() time.Time
}

// Engine answers requests against one store.
type Engine struct {
	cfg      Config
	store    *store.Store
	registry *device.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil || deps.Registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Engine", "New", "validate dependencies")
	}
	if cfg.Sender == "" {
		cfg.Sender, _ = os.Hostname()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 10 * time.Millisecond
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:      cfg,
		store:    deps.Store,
		registry: deps.Registry,
		logger:   logger.With("component", "query"),
		now:      now,
	}, nil
}

// Probe is the answer to a probe request.
type Probe struct {
	Header  Header
	Devices []*device.Device
}

// Probe lists the schema of one device, or of all devices when deviceName
// is empty.
func (e *Engine) Probe(deviceName string) (*Probe, error) {
	devices, err := e.devices(deviceName)
	if err != nil {
		return nil, err
	}
	p := &Probe{Devices: devices}
	err = e.store.Read(func(tx *store.ReadTx) error {
		p.Header = e.header(tx)
		return nil
	})
	return p, err
}

// Header reports the current store state.
func (e *Engine) Header() Header {
	var h Header
	_ = e.store.Read(func(tx *store.ReadTx) error {
		h = e.header(tx)
		return nil
	})
	return h
}

// Current returns the latest observation of every selected item. With At
// set, it returns the values as of that sequence; items with no value by
// then are UNAVAILABLE.
func (e *Engine) Current(req CurrentRequest) (*Snapshot, error) {
	devices, items, err := e.resolve(req.Device, req.Path)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(devices)
	err = e.store.Read(func(tx *store.ReadTx) error {
		snap.Header = e.header(tx)

		if req.At == nil {
			for _, item := range items {
				obs, ok := tx.Current(item.Key())
				if !ok {
					obs = unavailable(item)
				}
				snap.add(item, obs)
			}
			return nil
		}

		keys := make([]observation.ItemKey, len(items))
		for i, item := range items {
			keys[i] = item.Key()
		}
		values, err := tx.CurrentAt(keys, *req.At)
		if err != nil {
			return err
		}
		for _, item := range items {
			obs, ok := values[item.Key()]
			if !ok {
				obs = unavailable(item)
			}
			snap.add(item, obs)
		}
		snap.Header.NextSequence = *req.At + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Sample returns the selected observations with sequence in
// [From, From+Count), clipped to the last sequence. From defaults to the
// first retained sequence and a left-out Count to DefaultCount, capped at
// the buffer capacity. The header's NextSequence is where to continue.
func (e *Engine) Sample(req SampleRequest) (*Snapshot, error) {
	devices, items, err := e.resolve(req.Device, req.Path)
	if err != nil {
		return nil, err
	}
	return e.sample(devices, items, req.From, req.count(), false)
}

// sampleCount is a requested count and whether the caller left it out.
type sampleCount struct {
	n         int
	defaulted bool
}

func (r SampleRequest) count() sampleCount {
	return sampleCount{n: r.Count, defaulted: r.countDefaulted}
}

// within caps a defaulted count at capacity. Explicit counts are checked
// against capacity by the sequence log.
func (c sampleCount) within(capacity int) int {
	if c.defaulted {
		return min(c.n, capacity)
	}
	return c.n
}

// sample runs one sample read. With caughtUp set, a from equal to the next
// sequence yields an empty snapshot instead of OUT_OF_RANGE.
func (e *Engine) sample(devices []*device.Device, items []*device.DataItem, from *uint64, count sampleCount, caughtUp bool) (*Snapshot, error) {
	byKey := make(map[observation.ItemKey]*device.DataItem, len(items))
	keys := make(map[observation.ItemKey]bool, len(items))
	for _, item := range items {
		byKey[item.Key()] = item
		keys[item.Key()] = true
	}

	snap := newSnapshot(devices)
	err := e.store.Read(func(tx *store.ReadTx) error {
		snap.Header = e.header(tx)

		start := tx.First()
		if from != nil {
			start = *from
		}
		n := count.within(tx.Capacity())
		if caughtUp && start == tx.Next() {
			if n < 1 || n > tx.Capacity() {
				return errors.OutOfRange("'count' must be between 1 and %d, got %d", tx.Capacity(), n)
			}
			snap.Header.NextSequence = start
			return nil
		}

		obs, next, err := tx.Sample(keys, start, n)
		if err != nil {
			return err
		}
		for _, o := range obs {
			snap.add(byKey[o.Key()], o)
		}
		snap.Header.NextSequence = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Assets lists assets. When IDs are given every one must exist; they are
// returned in request order, removed or not.
func (e *Engine) Assets(req AssetRequest) ([]store.Asset, Header, error) {
	q := store.AssetQuery{Type: req.Type, IncludeRemoved: req.Removed, Count: req.Count}
	if req.Device != "" {
		d, ok := e.registry.Device(req.Device)
		if !ok {
			return nil, Header{}, errors.NoDevice(req.Device)
		}
		q.Device = d.Name
	}

	var out []store.Asset
	var header Header
	err := e.store.Read(func(tx *store.ReadTx) error {
		header = e.header(tx)
		if len(req.IDs) == 0 {
			out = tx.Assets(q)
			return nil
		}
		for _, id := range req.IDs {
			a, ok := tx.Asset(id)
			if !ok {
				return errors.AssetNotFound(id)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, Header{}, err
	}
	return out, header, nil
}

// PutAsset stores an asset. An empty device resolves to the only registered
// device.
func (e *Engine) PutAsset(a store.Asset, replace bool) (store.Asset, error) {
	if a.ID == "" {
		return store.Asset{}, errors.InvalidRequest("asset id is required")
	}
	if a.Type == "" {
		return store.Asset{}, errors.InvalidRequest("asset type is required")
	}
	if a.Device == "" {
		devices := e.registry.Devices()
		if len(devices) != 1 {
			return store.Asset{}, errors.InvalidRequest("device is required when more than one device is registered")
		}
		a.Device = devices[0].Name
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = e.now()
	}
	stored, err := e.store.PutAsset(a, replace)
	if err != nil {
		return store.Asset{}, err
	}
	e.logger.Debug("Asset stored", "asset", stored.ID, "type", stored.Type, "replace", replace)
	return stored, nil
}

// RemoveAsset tombstones one asset.
func (e *Engine) RemoveAsset(id string) (store.Asset, error) {
	return e.store.RemoveAsset(id, e.now())
}

// RemoveAllAssets tombstones every live asset of typ, across all devices
// when deviceName is empty.
func (e *Engine) RemoveAllAssets(deviceName, typ string) ([]store.Asset, error) {
	if typ == "" {
		return nil, errors.InvalidRequest("'type' is required")
	}
	return e.store.RemoveAllAssets(deviceName, typ, e.now())
}

func (e *Engine) devices(deviceName string) ([]*device.Device, error) {
	if deviceName == "" {
		return e.registry.Devices(), nil
	}
	d, ok := e.registry.Device(deviceName)
	if !ok {
		return nil, errors.NoDevice(deviceName)
	}
	return []*device.Device{d}, nil
}

// Check validates a device and path without reading the store. Streams use
// it to fail before any response is started.
func (e *Engine) Check(deviceName, path string) error {
	_, _, err := e.resolve(deviceName, path)
	return err
}

// resolve selects the devices and items a request covers.
func (e *Engine) resolve(deviceName, path string) ([]*device.Device, []*device.DataItem, error) {
	devices, err := e.devices(deviceName)
	if err != nil {
		return nil, nil, err
	}
	var items []*device.DataItem
	for _, d := range devices {
		selected, err := device.Select(d, path)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, selected...)
	}
	return devices, items, nil
}

func (e *Engine) header(tx *store.ReadTx) Header {
	return Header{
		InstanceID:      e.cfg.InstanceID,
		Sender:          e.cfg.Sender,
		CreationTime:    e.now().UTC(),
		SchemaRevision:  e.registry.Revision(),
		BufferSize:      tx.Capacity(),
		FirstSequence:   tx.First(),
		LastSequence:    tx.Last(),
		NextSequence:    tx.Next(),
		AssetBufferSize: tx.AssetCapacity(),
		AssetCount:      tx.AssetCount(),
	}
}
