package device

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/observation"
)

// schemaFile is the YAML layout of a devices file.
type schemaFile struct {
	Devices []deviceSpec `yaml:"devices"`
}

type deviceSpec struct {
	Name         string          `yaml:"name"`
	UUID         string          `yaml:"uuid"`
	ID           string          `yaml:"id"`
	Manufacturer string          `yaml:"manufacturer"`
	SerialNumber string          `yaml:"serial_number"`
	Station      string          `yaml:"station"`
	Description  string          `yaml:"description"`
	DataItems    []dataItemSpec  `yaml:"data_items"`
	Components   []componentSpec `yaml:"components"`
}

type componentSpec struct {
	ID         string          `yaml:"id"`
	Type       string          `yaml:"type"`
	Name       string          `yaml:"name"`
	DataItems  []dataItemSpec  `yaml:"data_items"`
	Components []componentSpec `yaml:"components"`
}

type dataItemSpec struct {
	ID             string      `yaml:"id"`
	Name           string      `yaml:"name"`
	Type           string      `yaml:"type"`
	SubType        string      `yaml:"sub_type"`
	Category       string      `yaml:"category"`
	Representation string      `yaml:"representation"`
	Units          string      `yaml:"units"`
	NativeUnits    string      `yaml:"native_units"`
	Conversion     *Conversion `yaml:"conversion"`
	Filter         *Filter     `yaml:"filter"`
	Constraints    []string    `yaml:"constraints"`
}

// LoadFile reads a devices YAML file.
func LoadFile(path string) ([]*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "device", "LoadFile", "read devices file")
	}
	return Parse(data)
}

// Parse decodes devices from YAML.
func Parse(data []byte) ([]*Device, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapInvalid(err, "device", "Parse", "decode devices yaml")
	}

	devices := make([]*Device, 0, len(file.Devices))
	for i, spec := range file.Devices {
		d, err := spec.build()
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("device %d: %w", i, err), "device", "Parse", "build device")
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (s deviceSpec) build() (*Device, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("device without name")
	}
	d := &Device{
		Name:         s.Name,
		UUID:         s.UUID,
		ID:           s.ID,
		Manufacturer: s.Manufacturer,
		SerialNumber: s.SerialNumber,
		Station:      s.Station,
		Description:  s.Description,
	}
	if d.UUID == "" {
		d.UUID = s.Name
	}

	var err error
	if d.DataItems, err = buildItems(s.DataItems); err != nil {
		return nil, err
	}
	if d.Components, err = buildComponents(s.Components); err != nil {
		return nil, err
	}
	return d, nil
}

func buildComponents(specs []componentSpec) ([]*Component, error) {
	out := make([]*Component, 0, len(specs))
	for _, cs := range specs {
		if cs.Type == "" {
			return nil, fmt.Errorf("component %q without type", cs.Name)
		}
		items, err := buildItems(cs.DataItems)
		if err != nil {
			return nil, err
		}
		children, err := buildComponents(cs.Components)
		if err != nil {
			return nil, err
		}
		out = append(out, &Component{
			ID:         cs.ID,
			Type:       cs.Type,
			Name:       cs.Name,
			DataItems:  items,
			Components: children,
		})
	}
	return out, nil
}

func buildItems(specs []dataItemSpec) ([]*DataItem, error) {
	out := make([]*DataItem, 0, len(specs))
	for _, ds := range specs {
		category, err := observation.ParseCategory(ds.Category)
		if err != nil {
			return nil, fmt.Errorf("data item %s: %w", ds.ID, err)
		}
		rep, err := observation.ParseRepresentation(ds.Representation)
		if err != nil {
			return nil, fmt.Errorf("data item %s: %w", ds.ID, err)
		}
		out = append(out, &DataItem{
			ID:             ds.ID,
			Name:           ds.Name,
			Type:           ds.Type,
			SubType:        ds.SubType,
			Category:       category,
			Representation: rep,
			Units:          ds.Units,
			NativeUnits:    ds.NativeUnits,
			Conversion:     ds.Conversion,
			Filter:         ds.Filter,
			Constraints:    ds.Constraints,
		})
	}
	return out, nil
}
