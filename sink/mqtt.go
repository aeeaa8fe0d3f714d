package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/pkg/retry"
)

const mqttSinkName = "mqtt_sink"

var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Topic returns the MQTT topic for obs under prefix.
func Topic(prefix string, obs *observation.Observation) string {
	return prefix + "/" + topicReplacer.Replace(obs.Device) + "/" + topicReplacer.Replace(obs.DataItemID)
}

// MQTTSink publishes observations to an MQTT v5 broker.
type MQTTSink struct {
	cfg     MQTTConfig
	client  atomic.Pointer[paho.Client]
	fwd     *Forwarder
	monitor *health.Monitor
	logger  *slog.Logger
}

// NewMQTTSink creates an MQTT sink. A client id is generated when none is
// configured.
func NewMQTTSink(cfg MQTTConfig, deps Deps) (*MQTTSink, error) {
	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "streamagent-" + uuid.NewString()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &MQTTSink{
		cfg:     cfg,
		monitor: deps.Monitor,
		logger:  logger.With("component", mqttSinkName),
	}

	prefix := cfg.TopicPrefix
	fwd, err := NewForwarder(mqttSinkName, cfg.Queue, mqttPublisher{s}, func(obs *observation.Observation) string {
		return Topic(prefix, obs)
	}, deps)
	if err != nil {
		return nil, err
	}
	s.fwd = fwd
	return s, nil
}

// Name returns the sink's health component name.
func (s *MQTTSink) Name() string { return mqttSinkName }

// ClientID returns the MQTT client identifier.
func (s *MQTTSink) ClientID() string { return s.cfg.ClientID }

// Enqueue queues obs for publishing.
func (s *MQTTSink) Enqueue(obs *observation.Observation) { s.fwd.Enqueue(obs) }

// Run keeps a broker session open, reconnecting with backoff whenever it
// drops, and forwards observations until ctx is done.
func (s *MQTTSink) Run(ctx context.Context) error {
	s.reportHealth(false, "connecting to "+s.cfg.Broker)

	backoff, err := retry.NewBackoff(retry.Config{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		AddJitter:    true,
	})
	if err != nil {
		return errors.WrapInvalid(err, "MQTTSink", "Run", "create backoff")
	}

	done := make(chan error, 1)
	go func() { done <- s.fwd.Run(ctx) }()
	defer func() {
		<-done
		if s.monitor != nil {
			s.monitor.Remove(mqttSinkName)
		}
	}()

	for {
		client, lost, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("MQTT connect failed", "broker", s.cfg.Broker, "error", err)
			s.reportHealth(false, err.Error())
			if werr := backoff.Wait(ctx); werr != nil {
				return nil
			}
			continue
		}

		backoff.Reset()
		s.client.Store(client)
		s.reportHealth(true, "connected to "+s.cfg.Broker)
		s.logger.Info("MQTT connected", "broker", s.cfg.Broker, "client_id", s.cfg.ClientID)

		select {
		case <-ctx.Done():
			s.client.Store(nil)
			_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
			return nil
		case cause := <-lost:
			s.client.Store(nil)
			s.logger.Warn("MQTT connection lost", "broker", s.cfg.Broker, "error", cause)
			s.reportHealth(false, "connection lost")
		}
	}
}

// connect dials the broker and completes the MQTT handshake. lost receives
// once when the session ends.
func (s *MQTTSink) connect(ctx context.Context) (*paho.Client, <-chan error, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", s.cfg.Broker)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "MQTTSink", "connect", "dial broker")
	}

	lost := make(chan error, 1)
	var once sync.Once
	signal := func(err error) {
		once.Do(func() { lost <- err })
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID:      s.cfg.ClientID,
		Conn:          conn,
		OnClientError: signal,
		OnServerDisconnect: func(d *paho.Disconnect) {
			signal(fmt.Errorf("%w: server disconnect, reason code %d", errors.ErrConnectionLost, d.ReasonCode))
		},
	})

	cp := &paho.Connect{
		ClientID:   s.cfg.ClientID,
		KeepAlive:  uint16(s.cfg.KeepAlive / time.Second),
		CleanStart: true,
	}
	if s.cfg.Username != "" {
		cp.Username = s.cfg.Username
		cp.UsernameFlag = true
		cp.Password = []byte(s.cfg.Password)
		cp.PasswordFlag = true
	}

	if _, err := client.Connect(dialCtx, cp); err != nil {
		_ = conn.Close()
		return nil, nil, errors.WrapTransient(err, "MQTTSink", "connect", "mqtt handshake")
	}
	return client, lost, nil
}

func (s *MQTTSink) reportHealth(healthy bool, message string) {
	if s.monitor == nil {
		return
	}
	if healthy {
		s.monitor.UpdateHealthy(mqttSinkName, message)
		return
	}
	s.monitor.UpdateDegraded(mqttSinkName, message)
}

type mqttPublisher struct {
	sink *MQTTSink
}

func (p mqttPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	client := p.sink.client.Load()
	if client == nil {
		return errors.ErrSinkUnavailable
	}
	_, err := client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     p.sink.cfg.QoS,
		Retain:  p.sink.cfg.Retain,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	return err
}
