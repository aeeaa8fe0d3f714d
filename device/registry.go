package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/observation"
)

// Registry is the read-mostly set of registered devices.
type Registry struct {
	mu       sync.RWMutex
	devices  []*Device
	byName   map[string]*Device
	byUUID   map[string]*Device
	revision uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Device),
		byUUID: make(map[string]*Device),
	}
}

// Add indexes d and registers it under a new revision.
func (r *Registry) Add(d *Device) error {
	if err := d.index(); err != nil {
		return errors.WrapInvalid(err, "Registry", "Add", "index device")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return errors.WrapInvalid(fmt.Errorf("device %q already registered", d.Name),
			"Registry", "Add", "register device")
	}
	if _, exists := r.byUUID[d.UUID]; exists {
		return errors.WrapInvalid(fmt.Errorf("device uuid %q already registered", d.UUID),
			"Registry", "Add", "register device")
	}

	r.revision++
	d.Revision = r.revision
	r.devices = append(r.devices, d)
	r.byName[d.Name] = d
	r.byUUID[d.UUID] = d
	return nil
}

// Device resolves a device by name, then by uuid.
func (r *Registry) Device(nameOrUUID string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.byName[nameOrUUID]; ok {
		return d, true
	}
	d, ok := r.byUUID[nameOrUUID]
	return d, ok
}

// Devices returns the registered devices in registration order.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Item resolves a data item key.
func (r *Registry) Item(key observation.ItemKey) (*DataItem, bool) {
	d, ok := r.Device(key.Device)
	if !ok {
		return nil, false
	}
	item, ok := d.byID[key.ID]
	return item, ok
}

// Revision returns the current schema revision.
func (r *Registry) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// SetIdentity changes one identity field of a device and registers the
// result as a new revision. Supported fields: uuid, manufacturer,
// serialNumber, station, description.
func (r *Registry) SetIdentity(device, field, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byName[device]
	if !ok {
		return errors.NoDevice(device)
	}

	cp := d.clone()
	switch strings.ToLower(field) {
	case "uuid":
		if other, taken := r.byUUID[value]; taken && other != d {
			return errors.WrapInvalid(fmt.Errorf("uuid %q belongs to device %s", value, other.Name),
				"Registry", "SetIdentity", "change uuid")
		}
		delete(r.byUUID, d.UUID)
		cp.UUID = value
	case "manufacturer":
		cp.Manufacturer = value
	case "serialnumber":
		cp.SerialNumber = value
	case "station":
		cp.Station = value
	case "description":
		cp.Description = value
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown identity field %q", field),
			"Registry", "SetIdentity", "resolve field")
	}

	r.revision++
	cp.Revision = r.revision
	for i, existing := range r.devices {
		if existing == d {
			r.devices[i] = cp
		}
	}
	r.byName[cp.Name] = cp
	r.byUUID[cp.UUID] = cp
	return nil
}
