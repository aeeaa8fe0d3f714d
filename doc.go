// Package streamagent is a device agent for machine-tool telemetry.
//
// Adapters stream pipe-delimited SHDR-style lines over TCP. The agent
// normalizes each value against the device schema, appends it to a bounded
// sequence log, keeps the latest value of every data item, and answers
// probe, current, sample and asset requests over HTTP. Observations can be
// forwarded to NATS and MQTT as they arrive.
//
// # Layout
//
//	device/       device schema model and YAML loader
//	observation/  observation values, conditions and time series
//	store/        sequence log, checkpoints and asset buffer
//	adapter/      line protocol parser and adapter connections
//	query/        probe, current, sample and asset query engine
//	gateway/      chi router, JSON rendering and streaming
//	sink/         NATS and MQTT observation forwarding
//	agent/        wiring and lifecycle
//	config/       viper configuration
//	cmd/streamagent  the agent binary
//
// Infrastructure lives in errors, health, metric, natsclient, pkg/buffer
// and pkg/retry.
//
// # Running
//
//	streamagent --config agent.yaml
//	streamagent --config agent.yaml --validate
//
// See cmd/streamagent for flags and environment variables.
package streamagent
