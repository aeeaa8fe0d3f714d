package device

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/c360/streamagent/errors"
)

// Options are the per-device runtime switches adapters may change.
type Options struct {
	AutoAvailable      bool `mapstructure:"auto_available" yaml:"auto_available"`
	FilterDuplicates   bool `mapstructure:"filter_duplicates" yaml:"filter_duplicates"`
	IgnoreTimestamps   bool `mapstructure:"ignore_timestamps" yaml:"ignore_timestamps"`
	RelativeTime       bool `mapstructure:"relative_time" yaml:"relative_time"`
	ConversionRequired bool `mapstructure:"conversion_required" yaml:"conversion_required"`
	UpcaseValues       bool `mapstructure:"upcase_values" yaml:"upcase_values"`
	PreserveUUID       bool `mapstructure:"preserve_uuid" yaml:"preserve_uuid"`
}

// DefaultOptions returns the options a device starts with.
func DefaultOptions() Options {
	return Options{
		ConversionRequired: true,
		UpcaseValues:       true,
		PreserveUUID:       true,
	}
}

// Config is a snapshot of one device's runtime configuration.
type Config struct {
	Options
	Calibration map[string]Conversion
}

// ConversionFor returns the conversion to apply to item, if any.
// Calibration overrides the schema conversion.
func (c Config) ConversionFor(item *DataItem) (Conversion, bool) {
	if !c.ConversionRequired {
		return Conversion{}, false
	}
	if conv, ok := c.Calibration[item.ID]; ok {
		return conv, true
	}
	if item.Conversion != nil {
		return *item.Conversion, true
	}
	return Conversion{}, false
}

// ConfigStore holds per-device Config, creating entries with the defaults on
// first sight.
type ConfigStore struct {
	mu       sync.RWMutex
	defaults Options
	byDevice map[string]*Config
}

// NewConfigStore creates a store using defaults for unseen devices.
func NewConfigStore(defaults Options) *ConfigStore {
	return &ConfigStore{
		defaults: defaults,
		byDevice: make(map[string]*Config),
	}
}

// Get returns a copy of the device's config.
func (s *ConfigStore) Get(device string) Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.entry(device)
	cp := Config{Options: c.Options, Calibration: make(map[string]Conversion, len(c.Calibration))}
	for k, v := range c.Calibration {
		cp.Calibration[k] = v
	}
	return cp
}

// Set replaces a device's options, keeping its calibration.
func (s *ConfigStore) Set(device string, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(device).Options = opts
}

func (s *ConfigStore) entry(device string) *Config {
	c, ok := s.byDevice[device]
	if !ok {
		c = &Config{Options: s.defaults, Calibration: make(map[string]Conversion)}
		s.byDevice[device] = c
	}
	return c
}

// Apply handles one "* key: value" option. handled is false when key is not
// a device option, leaving it for the caller to try as an identity field.
func (s *ConfigStore) Apply(device, key, value string) (handled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.entry(device)
	var target *bool
	switch strings.ToLower(key) {
	case "autoavailable":
		target = &c.AutoAvailable
	case "filterduplicates":
		target = &c.FilterDuplicates
	case "ignoretimestamps":
		target = &c.IgnoreTimestamps
	case "relativetime":
		target = &c.RelativeTime
	case "conversionrequired":
		target = &c.ConversionRequired
	case "upcasedatavalues", "upcasevalues":
		target = &c.UpcaseValues
	case "preserveuuid":
		target = &c.PreserveUUID
	case "calibration":
		cal, err := ParseCalibration(value)
		if err != nil {
			return true, errors.WrapInvalid(err, "ConfigStore", "Apply", "parse calibration")
		}
		for id, conv := range cal {
			c.Calibration[id] = conv
		}
		return true, nil
	default:
		return false, nil
	}

	b, err := parseBool(value)
	if err != nil {
		return true, errors.WrapInvalid(err, "ConfigStore", "Apply", "parse "+key)
	}
	*target = b
	return true, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true, nil
	case "false", "no", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// ParseCalibration parses "id|factor|offset;id|factor|offset".
func ParseCalibration(s string) (map[string]Conversion, error) {
	out := make(map[string]Conversion)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("calibration entry %q needs id|factor|offset", entry)
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("calibration factor for %s: %w", parts[0], err)
		}
		offset, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("calibration offset for %s: %w", parts[0], err)
		}
		out[strings.TrimSpace(parts[0])] = Conversion{Factor: factor, Offset: offset}
	}
	return out, nil
}
