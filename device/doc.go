// Package device holds the device schema the agent serves: devices, their
// component trees and data item definitions, loaded from a YAML file into a
// revision-stamped Registry. It also keeps the per-device runtime options
// that adapters mutate with "* key: value" commands.
//
// Devices are immutable once registered. Identity changes (uuid,
// manufacturer, serial number, station) register a copy under a new
// revision, so observations recorded against the previous revision keep the
// definitions they were recorded with.
package device
