package sink

import (
	"fmt"
	"time"

	"github.com/c360/streamagent/errors"
)

// QueueConfig holds the delivery settings shared by every sink.
type QueueConfig struct {
	// QueueSize bounds the pending observations; the oldest is dropped
	// when full.
	QueueSize int `mapstructure:"queue_size" json:"queue_size"`
	// RateLimit is publishes per second; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit"`
	Burst     int     `mapstructure:"burst" json:"burst"`
	// BatchSize is how many observations are taken off the queue per pass.
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`
}

// DefaultQueueConfig returns the queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		QueueSize: 10000,
		RateLimit: 1000,
		Burst:     100,
		BatchSize: 100,
	}
}

func (c *QueueConfig) validate(sink string) error {
	if c.QueueSize <= 0 {
		c.QueueSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RateLimit < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: rate_limit cannot be negative", errors.ErrInvalidConfig),
			sink, "Validate", "check rate limit")
	}
	if c.RateLimit > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled" json:"enabled"`
	URL           string        `mapstructure:"url" json:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix" json:"subject_prefix"`
	ClientName    string        `mapstructure:"client_name" json:"client_name"`
	Username      string        `mapstructure:"username" json:"username"`
	Password      string        `mapstructure:"password" json:"-"`
	Token         string        `mapstructure:"token" json:"-"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	TLS           TLSFiles      `mapstructure:"tls" json:"tls"`
	Queue         QueueConfig   `mapstructure:"queue" json:"queue"`
}

// TLSFiles locates the client certificate, key and CA bundle in PEM form.
type TLSFiles struct {
	CertFile string `mapstructure:"cert_file" json:"cert_file"`
	KeyFile  string `mapstructure:"key_file" json:"key_file"`
	CAFile   string `mapstructure:"ca_file" json:"ca_file"`
}

// Enabled reports whether any TLS file is set.
func (t TLSFiles) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != "" || t.CAFile != ""
}

// DefaultNATSConfig returns a disabled NATS sink pointed at a local server.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		SubjectPrefix: "streamagent",
		ClientName:    "streamagent",
		Timeout:       5 * time.Second,
		Queue:         DefaultQueueConfig(),
	}
}

// Validate checks the configuration and fills defaults.
func (c *NATSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: nats url is required", errors.ErrMissingConfig),
			"NATSSink", "Validate", "check url")
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "streamagent"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.WrapInvalid(fmt.Errorf("%w: tls cert_file and key_file go together", errors.ErrInvalidConfig),
			"NATSSink", "Validate", "check tls")
	}
	return c.Queue.validate("NATSSink")
}

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`
	Broker      string        `mapstructure:"broker" json:"broker"`
	TopicPrefix string        `mapstructure:"topic_prefix" json:"topic_prefix"`
	ClientID    string        `mapstructure:"client_id" json:"client_id"`
	Username    string        `mapstructure:"username" json:"username"`
	Password    string        `mapstructure:"password" json:"-"`
	QoS         byte          `mapstructure:"qos" json:"qos"`
	Retain      bool          `mapstructure:"retain" json:"retain"`
	KeepAlive   time.Duration `mapstructure:"keep_alive" json:"keep_alive"`
	Queue       QueueConfig   `mapstructure:"queue" json:"queue"`
}

// DefaultMQTTConfig returns a disabled MQTT sink pointed at a local broker.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:      "localhost:1883",
		TopicPrefix: "streamagent",
		KeepAlive:   30 * time.Second,
		Queue:       DefaultQueueConfig(),
	}
}

// Validate checks the configuration and fills defaults.
func (c *MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: mqtt broker is required", errors.ErrMissingConfig),
			"MQTTSink", "Validate", "check broker")
	}
	if c.QoS > 2 {
		return errors.WrapInvalid(fmt.Errorf("%w: qos must be 0, 1 or 2", errors.ErrInvalidConfig),
			"MQTTSink", "Validate", "check qos")
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "streamagent"
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	return c.Queue.validate("MQTTSink")
}
