// Package store is the agent's in-memory data store: the sequence log with
// its checkpoint engine, the condition store and the asset store, all behind
// a single reader/writer lock. Every mutation takes the write lock and every
// query runs inside Read under the read lock, so a reader never observes a
// sequence number that is assigned but not yet stored.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/pkg/buffer"
)

// Config sizes the store.
type Config struct {
	BufferSize          int
	CheckpointFrequency int
	AssetBufferSize     int
}

// DefaultConfig returns the default store sizes.
func DefaultConfig() Config {
	return Config{
		BufferSize:          131072,
		CheckpointFrequency: 1000,
		AssetBufferSize:     1024,
	}
}

// Deps holds the store's collaborators. Registry and Configs are required.
type Deps struct {
	Registry        *device.Registry
	Configs         *device.ConfigStore
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Subscriber receives every appended observation. It runs under the write
// lock and must not block or call back into the store.
type Subscriber func(obs *observation.Observation)

// Store owns all observation and asset state.
type Store struct {
	mu         sync.RWMutex
	log        *SequenceLog
	conditions *ConditionStore
	assets     *AssetStore

	registry    *device.Registry
	configs     *device.ConfigStore
	metrics     *metric.Metrics
	logger      *slog.Logger
	subscribers []Subscriber
}

// New creates a store.
func New(cfg Config, deps Deps) (*Store, error) {
	if deps.Registry == nil || deps.Configs == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Store", "New", "validate dependencies")
	}

	var logOpts []buffer.Option[*slot]
	var assetOpts []buffer.Option[*Asset]
	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		logOpts = append(logOpts, buffer.WithMetrics[*slot](deps.MetricsRegistry, "sequence_log"))
		assetOpts = append(assetOpts, buffer.WithMetrics[*Asset](deps.MetricsRegistry, "asset_store"))
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	log, err := newSequenceLog(cfg.BufferSize, cfg.CheckpointFrequency, logOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "New", "create sequence log")
	}
	assets, err := NewAssetStore(cfg.AssetBufferSize, assetOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "New", "create asset store")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		log:        log,
		conditions: NewConditionStore(),
		assets:     assets,
		registry:   deps.Registry,
		configs:    deps.Configs,
		metrics:    metrics,
		logger:     logger.With("component", "store"),
	}, nil
}

// Subscribe registers fn for every future append.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// AddDevice records the initial value of every data item of d, so each item
// has a current value and takes part in checkpoints from the start.
func (s *Store) AddDevice(d *device.Device, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range d.Items() {
		s.observeLocked(item, ts, item.InitialValue(), false)
	}
}

// Observe records a value for item. It returns the stored observation, or
// nil when the value was filtered out of the sequence log.
func (s *Store) Observe(item *device.DataItem, ts time.Time, v observation.Value) *observation.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observeLocked(item, ts, v, false)
}

func (s *Store) observeLocked(item *device.DataItem, ts time.Time, v observation.Value, synthetic bool) *observation.Observation {
	obs := &observation.Observation{
		Device:     item.Device,
		DataItemID: item.ID,
		Timestamp:  ts,
		Category:   item.Category,
		Value:      v,
		Synthetic:  synthetic,
	}

	if item.Kind() == observation.KindCondition {
		var cv observation.ConditionValue
		switch val := v.(type) {
		case observation.ConditionValue:
			cv = val
		case observation.ConditionState:
			cv = val.Trigger
		default:
			panic(fmt.Sprintf("condition item %s given %T", item.ID, v))
		}
		state, changed := s.conditions.Apply(item.Key(), cv)
		if !changed {
			s.recordFiltered(item, filterDuplicate)
			return nil
		}
		obs.Value = state
		return s.appendLocked(obs)
	}

	opts := s.configs.Get(item.Device).Options
	if reason := admit(item, opts, s.log.lastBufferedFor(item.Key()), obs); reason != "" {
		if item.Category == observation.Sample {
			s.log.setCurrent(obs)
		}
		s.recordFiltered(item, reason)
		return nil
	}
	return s.appendLocked(obs)
}

func (s *Store) appendLocked(obs *observation.Observation) *observation.Observation {
	stored := s.log.append(obs)
	if s.metrics != nil {
		s.metrics.RecordAppended(stored.Device)
		s.metrics.RecordNextSequence(s.log.Next())
	}
	for _, fn := range s.subscribers {
		fn(stored)
	}
	return stored
}

func (s *Store) recordFiltered(item *device.DataItem, reason string) {
	if s.metrics != nil {
		s.metrics.RecordFiltered(item.Device, reason)
	}
}

// Connected marks a device's availability AVAILABLE when AutoAvailable is
// set.
func (s *Store) Connected(deviceName string, ts time.Time) {
	d, ok := s.registry.Device(deviceName)
	if !ok || !s.configs.Get(d.Name).AutoAvailable {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeLocked(d.Availability(), ts, observation.NewScalar("AVAILABLE"), false)
}

// Disconnected records UNAVAILABLE for every data item of the device in one
// write-locked batch. The availability item is included only when
// AutoAvailable is set; asset items are left alone. These observations never
// reach the last-known map. It returns the number of observations appended.
func (s *Store) Disconnected(deviceName string, ts time.Time) int {
	d, ok := s.registry.Device(deviceName)
	if !ok {
		return 0
	}
	auto := s.configs.Get(d.Name).AutoAvailable

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, item := range d.Items() {
		if item.IsAsset() || (item.IsAvailability() && !auto) {
			continue
		}
		if s.observeLocked(item, ts, observation.UnavailableOf(item.Kind()), true) != nil {
			n++
		}
	}
	s.logger.Debug("Device disconnected", "device", d.Name, "unavailable", n)
	return n
}

// PutAsset inserts or replaces an asset and records AssetChanged.
func (s *Store) PutAsset(a Asset, replace bool) (Asset, error) {
	d, ok := s.registry.Device(a.Device)
	if !ok {
		return Asset{}, errors.NoDevice(a.Device)
	}
	a.Device = d.Name

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.assets.Upsert(a, replace)
	if err != nil {
		return Asset{}, err
	}
	s.observeLocked(d.AssetChanged(), stored.Timestamp,
		observation.AssetEvent{AssetID: stored.ID, AssetType: stored.Type}, false)
	s.recordAssetCount()
	return stored, nil
}

// UpdateAsset applies field or fragment updates to a live asset and records
// AssetChanged.
func (s *Store) UpdateAsset(id string, args []string, ts time.Time) (Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.assets.Get(id)
	if !ok || current.Removed {
		return Asset{}, errors.AssetNotFound(id)
	}
	doc, err := UpdateDocument(current.Document, args)
	if err != nil {
		return Asset{}, errors.NewRequestError(errors.CodeInvalidRequest, "update asset %s: %v", id, err)
	}
	updated, err := s.assets.Update(id, doc, ts)
	if err != nil {
		return Asset{}, err
	}
	if d, ok := s.registry.Device(updated.Device); ok {
		s.observeLocked(d.AssetChanged(), ts,
			observation.AssetEvent{AssetID: updated.ID, AssetType: updated.Type}, false)
	}
	return updated, nil
}

// RemoveAsset tombstones an asset and records AssetRemoved.
func (s *Store) RemoveAsset(id string, ts time.Time) (Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.assets.Remove(id, ts)
	if err != nil {
		return Asset{}, err
	}
	s.recordRemovalLocked(removed, ts)
	return removed, nil
}

// RemoveAllAssets tombstones every live asset of typ, optionally limited to
// one device, and records AssetRemoved for each.
func (s *Store) RemoveAllAssets(deviceName, typ string, ts time.Time) ([]Asset, error) {
	if deviceName != "" {
		d, ok := s.registry.Device(deviceName)
		if !ok {
			return nil, errors.NoDevice(deviceName)
		}
		deviceName = d.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.assets.RemoveAll(deviceName, typ, ts)
	for _, a := range removed {
		s.recordRemovalLocked(a, ts)
	}
	return removed, nil
}

// recordRemovalLocked appends AssetRemoved and, when the removed asset is the
// one AssetChanged currently shows, resets AssetChanged to UNAVAILABLE.
func (s *Store) recordRemovalLocked(a Asset, ts time.Time) {
	d, ok := s.registry.Device(a.Device)
	if !ok {
		return
	}
	s.observeLocked(d.AssetRemoved(), ts, observation.AssetEvent{AssetID: a.ID, AssetType: a.Type}, false)

	if cur, ok := s.log.Current(d.AssetChanged().Key()); ok {
		if ev, isAsset := cur.Value.(observation.AssetEvent); isAsset && ev.AssetID == a.ID {
			s.observeLocked(d.AssetChanged(), ts, observation.UnavailableOf(observation.KindAsset), false)
		}
	}
}

func (s *Store) recordAssetCount() {
	if s.metrics != nil {
		s.metrics.RecordAssetCount(s.assets.Count())
	}
}

// Read runs fn under the read lock with a consistent view of the store.
func (s *Store) Read(fn func(tx *ReadTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&ReadTx{s: s})
}

// ReadTx is a read-only view valid for the duration of a Read callback.
type ReadTx struct {
	s *Store
}

// First is the oldest retained sequence.
func (tx *ReadTx) First() uint64 { return tx.s.log.First() }

// Last is the newest assigned sequence.
func (tx *ReadTx) Last() uint64 { return tx.s.log.Last() }

// Next is the next sequence to be assigned.
func (tx *ReadTx) Next() uint64 { return tx.s.log.Next() }

// Capacity is the sequence log size.
func (tx *ReadTx) Capacity() int { return tx.s.log.Capacity() }

// Current returns the latest observation of key.
func (tx *ReadTx) Current(key observation.ItemKey) (*observation.Observation, bool) {
	return tx.s.log.Current(key)
}

// CurrentAt reconstructs the latest observations as of sequence at.
func (tx *ReadTx) CurrentAt(keys []observation.ItemKey, at uint64) (map[observation.ItemKey]*observation.Observation, error) {
	return tx.s.log.CurrentAt(keys, at)
}

// Sample returns the observations in [from, from+count) for keys (all items
// when keys is nil) and the next sequence to read.
func (tx *ReadTx) Sample(keys map[observation.ItemKey]bool, from uint64, count int) ([]*observation.Observation, uint64, error) {
	return tx.s.log.Range(keys, from, count)
}

// Assets lists asset records.
func (tx *ReadTx) Assets(q AssetQuery) []Asset { return tx.s.assets.List(q) }

// Asset returns one asset record, tombstoned or not.
func (tx *ReadTx) Asset(id string) (Asset, bool) { return tx.s.assets.Get(id) }

// AssetCount is the number of stored asset records.
func (tx *ReadTx) AssetCount() int { return tx.s.assets.Count() }

// AssetCapacity is the asset store size.
func (tx *ReadTx) AssetCapacity() int { return tx.s.assets.Capacity() }
