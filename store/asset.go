package store

import (
	"time"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/pkg/buffer"
)

// Asset is one stored asset document.
type Asset struct {
	ID        string    `json:"assetId"`
	Type      string    `json:"assetType"`
	Device    string    `json:"deviceUuid"`
	Timestamp time.Time `json:"timestamp"`
	Removed   bool      `json:"removed"`
	Document  string    `json:"document"`
}

// AssetQuery filters a listing. Zero values match everything; Count of zero
// means no limit.
type AssetQuery struct {
	IDs            []string
	Type           string
	Device         string
	IncludeRemoved bool
	Count          int
}

// AssetStore is a bounded ring of asset records indexed by id. Records keep
// their ring position when updated or removed; only insertion of a new id
// can evict, and eviction always takes the oldest record.
type AssetStore struct {
	ring *buffer.Ring[*Asset]
	byID map[string]*Asset
}

// NewAssetStore creates a store holding at most capacity records.
func NewAssetStore(capacity int, opts ...buffer.Option[*Asset]) (*AssetStore, error) {
	ring, err := buffer.NewRing[*Asset](capacity, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "AssetStore", "new", "create ring")
	}
	return &AssetStore{ring: ring, byID: make(map[string]*Asset)}, nil
}

// Upsert inserts a or overwrites the record with the same id. Overwriting a
// live record requires replace.
func (s *AssetStore) Upsert(a Asset, replace bool) (Asset, error) {
	if existing, ok := s.byID[a.ID]; ok {
		if !existing.Removed && !replace {
			return Asset{}, errors.DuplicateAsset(a.ID)
		}
		existing.Type = a.Type
		existing.Device = a.Device
		existing.Timestamp = a.Timestamp
		existing.Document = a.Document
		existing.Removed = false
		return *existing, nil
	}

	rec := a
	rec.Removed = false
	if evicted, dropped := s.ring.Push(&rec); dropped {
		delete(s.byID, evicted.ID)
	}
	s.byID[rec.ID] = &rec
	return rec, nil
}

// Update replaces the document of a live record in place.
func (s *AssetStore) Update(id, document string, ts time.Time) (Asset, error) {
	rec, ok := s.byID[id]
	if !ok || rec.Removed {
		return Asset{}, errors.AssetNotFound(id)
	}
	rec.Document = document
	rec.Timestamp = ts
	return *rec, nil
}

// Remove tombstones a live record.
func (s *AssetStore) Remove(id string, ts time.Time) (Asset, error) {
	rec, ok := s.byID[id]
	if !ok || rec.Removed {
		return Asset{}, errors.AssetNotFound(id)
	}
	rec.Removed = true
	rec.Timestamp = ts
	return *rec, nil
}

// RemoveAll tombstones every live record of type typ, restricted to device
// when device is non-empty, and returns them oldest first.
func (s *AssetStore) RemoveAll(device, typ string, ts time.Time) []Asset {
	var out []Asset
	s.ring.Do(func(_ int, rec *Asset) bool {
		if !rec.Removed && rec.Type == typ && (device == "" || rec.Device == device) {
			rec.Removed = true
			rec.Timestamp = ts
			out = append(out, *rec)
		}
		return true
	})
	return out
}

// Get returns the record with id, tombstoned or not.
func (s *AssetStore) Get(id string) (Asset, bool) {
	rec, ok := s.byID[id]
	if !ok {
		return Asset{}, false
	}
	return *rec, true
}

// List returns matching records, most recently inserted first.
func (s *AssetStore) List(q AssetQuery) []Asset {
	var ids map[string]bool
	if len(q.IDs) > 0 {
		ids = make(map[string]bool, len(q.IDs))
		for _, id := range q.IDs {
			ids[id] = true
		}
	}

	records := s.ring.Snapshot()
	out := make([]Asset, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		switch {
		case rec.Removed && !q.IncludeRemoved:
		case ids != nil && !ids[rec.ID]:
		case q.Type != "" && rec.Type != q.Type:
		case q.Device != "" && rec.Device != q.Device:
		default:
			out = append(out, *rec)
		}
		if q.Count > 0 && len(out) == q.Count {
			break
		}
	}
	return out
}

// Count is the number of stored records, tombstones included.
func (s *AssetStore) Count() int { return s.ring.Len() }

// Capacity is the maximum number of records.
func (s *AssetStore) Capacity() int { return s.ring.Cap() }
