package device

import (
	"fmt"

	"github.com/c360/streamagent/observation"
)

// Component is a node of a device's component tree.
type Component struct {
	ID         string
	Type       string
	Name       string
	DataItems  []*DataItem
	Components []*Component
}

// Device is a registered device with its indexed data items.
type Device struct {
	Name         string
	UUID         string
	ID           string
	Manufacturer string
	SerialNumber string
	Station      string
	Description  string
	Revision     uint64

	DataItems  []*DataItem
	Components []*Component

	items  []*DataItem
	byID   map[string]*DataItem
	byName map[string]*DataItem

	availability *DataItem
	assetChanged *DataItem
	assetRemoved *DataItem
}

// Items returns every data item of the device in schema order.
func (d *Device) Items() []*DataItem {
	return d.items
}

// Item resolves a data item by id, then by name.
func (d *Device) Item(idOrName string) (*DataItem, bool) {
	if item, ok := d.byID[idOrName]; ok {
		return item, true
	}
	item, ok := d.byName[idOrName]
	return item, ok
}

// Availability returns the device availability item.
func (d *Device) Availability() *DataItem { return d.availability }

// AssetChanged returns the item recording asset insertions and updates.
func (d *Device) AssetChanged() *DataItem { return d.assetChanged }

// AssetRemoved returns the item recording asset removals.
func (d *Device) AssetRemoved() *DataItem { return d.assetRemoved }

// index walks the component tree, stamps ownership on every item, adds the
// synthetic availability and asset items when missing and builds lookups.
func (d *Device) index() error {
	d.items = nil
	d.byID = make(map[string]*DataItem)
	d.byName = make(map[string]*DataItem)
	d.availability, d.assetChanged, d.assetRemoved = nil, nil, nil

	var add func(path string, items []*DataItem) error
	add = func(path string, items []*DataItem) error {
		for _, item := range items {
			if err := item.validate(); err != nil {
				return err
			}
			if _, dup := d.byID[item.ID]; dup {
				return fmt.Errorf("device %s: duplicate data item id %q", d.Name, item.ID)
			}
			item.Device = d.Name
			item.Component = path
			d.items = append(d.items, item)
			d.byID[item.ID] = item
			if item.Name != "" {
				if _, taken := d.byName[item.Name]; !taken {
					d.byName[item.Name] = item
				}
			}
			switch item.Type {
			case TypeAvailability:
				if d.availability == nil {
					d.availability = item
				}
			case TypeAssetChanged:
				if d.assetChanged == nil {
					d.assetChanged = item
				}
			case TypeAssetRemoved:
				if d.assetRemoved == nil {
					d.assetRemoved = item
				}
			}
		}
		return nil
	}

	if err := add("", d.DataItems); err != nil {
		return err
	}
	var walk func(prefix string, comps []*Component) error
	walk = func(prefix string, comps []*Component) error {
		for _, c := range comps {
			name := c.Name
			if name == "" {
				name = c.Type
			}
			path := name
			if prefix != "" {
				path = prefix + "/" + name
			}
			if err := add(path, c.DataItems); err != nil {
				return err
			}
			if err := walk(path, c.Components); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", d.Components); err != nil {
		return err
	}

	synth := func(suffix, typ string) (*DataItem, error) {
		item := &DataItem{
			ID:       d.Name + "_" + suffix,
			Type:     typ,
			Category: observation.Event,
		}
		d.DataItems = append(d.DataItems, item)
		return item, add("", []*DataItem{item})
	}
	var err error
	if d.availability == nil {
		if d.availability, err = synth("avail", TypeAvailability); err != nil {
			return err
		}
	}
	if d.assetChanged == nil {
		if d.assetChanged, err = synth("asset_chg", TypeAssetChanged); err != nil {
			return err
		}
	}
	if d.assetRemoved == nil {
		if d.assetRemoved, err = synth("asset_rem", TypeAssetRemoved); err != nil {
			return err
		}
	}
	return nil
}

// clone copies the identity fields and shares the immutable item tree.
func (d *Device) clone() *Device {
	cp := *d
	return &cp
}
