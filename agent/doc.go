// Package agent wires the device registry, observation store, query engine,
// HTTP gateway, adapter connections and observation sinks into one process.
//
// New builds every part from a config.Config and the loaded devices; Run
// supervises the gateway, each adapter connection and each enabled sink in
// one errgroup until the context ends or one of them fails for good. The
// agent is the adapters' lifecycle listener: a connect marks the device
// AVAILABLE (when AutoAvailable is set) and a disconnect floods its items
// with UNAVAILABLE.
package agent
