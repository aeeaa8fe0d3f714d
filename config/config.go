package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/gateway"
	"github.com/c360/streamagent/sink"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAMAGENT"

// Config is the complete agent configuration.
type Config struct {
	Agent       AgentConfig     `mapstructure:"agent" json:"agent"`
	HTTP        gateway.Config  `mapstructure:"http" json:"http"`
	DevicesFile string          `mapstructure:"devices_file" json:"devices_file"`
	Adapters    []AdapterConfig `mapstructure:"adapters" json:"adapters"`
	Sinks       SinksConfig     `mapstructure:"sinks" json:"sinks"`
	Log         LogConfig       `mapstructure:"log" json:"log"`
}

// AgentConfig sizes the store and sets device option defaults.
type AgentConfig struct {
	// BufferSize is the sequence log capacity.
	BufferSize          int `mapstructure:"buffer_size" json:"buffer_size"`
	CheckpointFrequency int `mapstructure:"checkpoint_frequency" json:"checkpoint_frequency"`
	AssetBufferSize     int `mapstructure:"asset_buffer_size" json:"asset_buffer_size"`
	// Sender is reported in response headers; defaults to the hostname.
	Sender string `mapstructure:"sender" json:"sender"`

	// Device option defaults, overridable per adapter and by the adapter
	// itself at runtime.
	AutoAvailable      bool `mapstructure:"auto_available" json:"auto_available"`
	FilterDuplicates   bool `mapstructure:"filter_duplicates" json:"filter_duplicates"`
	IgnoreTimestamps   bool `mapstructure:"ignore_timestamps" json:"ignore_timestamps"`
	RelativeTime       bool `mapstructure:"relative_time" json:"relative_time"`
	ConversionRequired bool `mapstructure:"conversion_required" json:"conversion_required"`
	UpcaseValues       bool `mapstructure:"upcase_values" json:"upcase_values"`
	PreserveUUID       bool `mapstructure:"preserve_uuid" json:"preserve_uuid"`
}

// AdapterConfig describes one adapter connection.
type AdapterConfig struct {
	Device string `mapstructure:"device" json:"device"`
	Host   string `mapstructure:"host" json:"host"`
	Port   int    `mapstructure:"port" json:"port"`

	// LegacyTimeout bounds reads until the adapter advertises a heartbeat.
	LegacyTimeout time.Duration `mapstructure:"legacy_timeout" json:"legacy_timeout"`
	PongTimeout   time.Duration `mapstructure:"pong_timeout" json:"pong_timeout"`
	// ReconnectInterval is the first delay after a dropped connection; it
	// doubles up to MaxReconnectInterval.
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval" json:"reconnect_interval"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval" json:"max_reconnect_interval"`

	// Options are applied as if the adapter had sent "* key: value".
	Options map[string]string `mapstructure:"options" json:"options,omitempty"`
}

// SinksConfig holds the optional observation sinks.
type SinksConfig struct {
	NATS sink.NATSConfig `mapstructure:"nats" json:"nats"`
	MQTT sink.MQTTConfig `mapstructure:"mqtt" json:"mqtt"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			BufferSize:          131072,
			CheckpointFrequency: 1000,
			AssetBufferSize:     1024,
			ConversionRequired:  true,
			UpcaseValues:        true,
			PreserveUUID:        true,
		},
		HTTP:        gateway.DefaultConfig(),
		DevicesFile: "devices.yaml",
		Sinks: SinksConfig{
			NATS: sink.DefaultNATSConfig(),
			MQTT: sink.DefaultMQTTConfig(),
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path, when non-empty, over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		data, kind, err := readFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "read "+path)
		}
		v.SetConfigType(kind)
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse "+path)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// setDefaults registers every scalar key so environment overrides apply to
// keys absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("agent.buffer_size", d.Agent.BufferSize)
	v.SetDefault("agent.checkpoint_frequency", d.Agent.CheckpointFrequency)
	v.SetDefault("agent.asset_buffer_size", d.Agent.AssetBufferSize)
	v.SetDefault("agent.sender", d.Agent.Sender)
	v.SetDefault("agent.auto_available", d.Agent.AutoAvailable)
	v.SetDefault("agent.filter_duplicates", d.Agent.FilterDuplicates)
	v.SetDefault("agent.ignore_timestamps", d.Agent.IgnoreTimestamps)
	v.SetDefault("agent.relative_time", d.Agent.RelativeTime)
	v.SetDefault("agent.conversion_required", d.Agent.ConversionRequired)
	v.SetDefault("agent.upcase_values", d.Agent.UpcaseValues)
	v.SetDefault("agent.preserve_uuid", d.Agent.PreserveUUID)

	v.SetDefault("http.bind", d.HTTP.Bind)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.allow_put", d.HTTP.AllowPut)
	v.SetDefault("http.max_stream_interval", d.HTTP.MaxStreamInterval)
	v.SetDefault("http.enable_cors", d.HTTP.EnableCORS)
	v.SetDefault("http.cors_origins", d.HTTP.CORSOrigins)
	v.SetDefault("http.max_request_size", d.HTTP.MaxRequestSize)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("devices_file", d.DevicesFile)

	nats := d.Sinks.NATS
	v.SetDefault("sinks.nats.enabled", nats.Enabled)
	v.SetDefault("sinks.nats.url", nats.URL)
	v.SetDefault("sinks.nats.subject_prefix", nats.SubjectPrefix)
	v.SetDefault("sinks.nats.client_name", nats.ClientName)
	v.SetDefault("sinks.nats.username", nats.Username)
	v.SetDefault("sinks.nats.password", nats.Password)
	v.SetDefault("sinks.nats.token", nats.Token)
	v.SetDefault("sinks.nats.timeout", nats.Timeout)
	v.SetDefault("sinks.nats.tls.cert_file", nats.TLS.CertFile)
	v.SetDefault("sinks.nats.tls.key_file", nats.TLS.KeyFile)
	v.SetDefault("sinks.nats.tls.ca_file", nats.TLS.CAFile)
	setQueueDefaults(v, "sinks.nats.queue", nats.Queue)

	mqtt := d.Sinks.MQTT
	v.SetDefault("sinks.mqtt.enabled", mqtt.Enabled)
	v.SetDefault("sinks.mqtt.broker", mqtt.Broker)
	v.SetDefault("sinks.mqtt.topic_prefix", mqtt.TopicPrefix)
	v.SetDefault("sinks.mqtt.client_id", mqtt.ClientID)
	v.SetDefault("sinks.mqtt.username", mqtt.Username)
	v.SetDefault("sinks.mqtt.password", mqtt.Password)
	v.SetDefault("sinks.mqtt.qos", mqtt.QoS)
	v.SetDefault("sinks.mqtt.retain", mqtt.Retain)
	v.SetDefault("sinks.mqtt.keep_alive", mqtt.KeepAlive)
	setQueueDefaults(v, "sinks.mqtt.queue", mqtt.Queue)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func setQueueDefaults(v *viper.Viper, prefix string, q sink.QueueConfig) {
	v.SetDefault(prefix+".queue_size", q.QueueSize)
	v.SetDefault(prefix+".rate_limit", q.RateLimit)
	v.SetDefault(prefix+".burst", q.Burst)
	v.SetDefault(prefix+".batch_size", q.BatchSize)
}

// Validate checks the configuration and fills adapter defaults.
func (c *Config) Validate() error {
	if c.Agent.BufferSize <= 0 {
		return invalid("agent.buffer_size must be positive")
	}
	if c.Agent.CheckpointFrequency <= 0 || c.Agent.CheckpointFrequency > c.Agent.BufferSize {
		return invalid("agent.checkpoint_frequency must be in 1..buffer_size")
	}
	if c.Agent.AssetBufferSize <= 0 {
		return invalid("agent.asset_buffer_size must be positive")
	}
	if c.DevicesFile == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: devices_file is required", errors.ErrMissingConfig),
			"Config", "Validate", "check devices file")
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}

	seen := make(map[string]bool, len(c.Adapters))
	for i := range c.Adapters {
		a := &c.Adapters[i]
		if err := a.validate(); err != nil {
			return fmt.Errorf("adapters[%d]: %w", i, err)
		}
		if seen[a.Device] {
			return invalid(fmt.Sprintf("adapters[%d]: device %q has more than one adapter", i, a.Device))
		}
		seen[a.Device] = true
	}

	if err := c.Sinks.NATS.Validate(); err != nil {
		return fmt.Errorf("sinks.nats: %w", err)
	}
	if err := c.Sinks.MQTT.Validate(); err != nil {
		return fmt.Errorf("sinks.mqtt: %w", err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return invalid("log.format must be json or text")
	}
	return nil
}

func (a *AdapterConfig) validate() error {
	if a.Device == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: device is required", errors.ErrMissingConfig),
			"Config", "Validate", "check adapter")
	}
	if a.Host == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: host is required", errors.ErrMissingConfig),
			"Config", "Validate", "check adapter")
	}
	if a.Port <= 0 || a.Port > 65535 {
		return invalid(fmt.Sprintf("port %d out of range", a.Port))
	}
	if a.LegacyTimeout <= 0 {
		a.LegacyTimeout = 600 * time.Second
	}
	if a.PongTimeout <= 0 {
		a.PongTimeout = 10 * time.Second
	}
	if a.ReconnectInterval <= 0 {
		a.ReconnectInterval = 500 * time.Millisecond
	}
	if a.MaxReconnectInterval < a.ReconnectInterval {
		a.MaxReconnectInterval = max(10*time.Second, a.ReconnectInterval)
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "check configuration")
}
