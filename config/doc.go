// Package config loads the agent configuration.
//
// Configuration comes from an optional YAML or JSON file layered over
// built-in defaults, with STREAMAGENT_* environment variables taking
// precedence over both. Nested keys map to variables by upper-casing and
// replacing dots with underscores:
//
//	http.port            STREAMAGENT_HTTP_PORT
//	agent.buffer_size    STREAMAGENT_AGENT_BUFFER_SIZE
//	sinks.nats.url       STREAMAGENT_SINKS_NATS_URL
//
// A minimal file:
//
//	devices_file: devices.yaml
//	http:
//	  port: 5000
//	  allow_put: true
//	adapters:
//	  - device: mill
//	    host: 10.0.0.12
//	    port: 7878
//	    options:
//	      filterDuplicates: "true"
//	sinks:
//	  mqtt:
//	    enabled: true
//	    broker: localhost:1883
//
// Load returns a validated Config; Validate may also be called directly on a
// Config built in code.
package config
