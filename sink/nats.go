package sink

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/natsclient"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/pkg/retry"
)

const natsSinkName = "nats_sink"

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// Subject returns the NATS subject for obs under prefix.
func Subject(prefix string, obs *observation.Observation) string {
	return prefix + "." + subjectReplacer.Replace(obs.Device) + "." + subjectReplacer.Replace(obs.DataItemID)
}

// NATSSink publishes observations to NATS core subjects.
type NATSSink struct {
	cfg     NATSConfig
	client  *natsclient.Client
	fwd     *Forwarder
	monitor *health.Monitor
	logger  *slog.Logger
}

// NewNATSSink creates a NATS sink. It does not connect until Run.
func NewNATSSink(cfg NATSConfig, deps Deps) (*NATSSink, error) {
	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &NATSSink{
		cfg:     cfg,
		monitor: deps.Monitor,
		logger:  logger.With("component", natsSinkName),
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(cfg.ClientName),
		natsclient.WithTimeouts(cfg.Timeout, 0),
		natsclient.OnHealthChange(s.reportHealth),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLS.Enabled() {
		opts = append(opts, natsclient.WithTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile))
	}
	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "NATSSink", "NewNATSSink", "create client")
	}
	s.client = client

	prefix := cfg.SubjectPrefix
	s.fwd, err = NewForwarder(natsSinkName, cfg.Queue, natsPublisher{client}, func(obs *observation.Observation) string {
		return Subject(prefix, obs)
	}, deps)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the sink's health component name.
func (s *NATSSink) Name() string { return natsSinkName }

// Enqueue queues obs for publishing.
func (s *NATSSink) Enqueue(obs *observation.Observation) { s.fwd.Enqueue(obs) }

// Run connects, retrying until ctx ends, and forwards observations until
// ctx is done. The forwarder starts immediately so observations queued
// while connecting are delivered once the connection is up.
func (s *NATSSink) Run(ctx context.Context) error {
	s.reportHealth(false)

	done := make(chan error, 1)
	go func() { done <- s.fwd.Run(ctx) }()

	err := retry.Do(ctx, retry.Config{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		AddJitter:    true,
	}, func() error {
		err := s.client.Connect(ctx)
		if err != nil {
			s.logger.Warn("NATS connect failed", "url", s.cfg.URL, "error", err)
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		return errors.WrapTransient(err, "NATSSink", "Run", "connect")
	}

	<-ctx.Done()
	<-done

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Close(closeCtx); err != nil {
		s.logger.Warn("NATS close failed", "error", err)
	}
	if s.monitor != nil {
		s.monitor.Remove(natsSinkName)
	}
	return nil
}

func (s *NATSSink) reportHealth(healthy bool) {
	if s.monitor == nil {
		return
	}
	if healthy {
		s.monitor.UpdateHealthy(natsSinkName, "connected to "+s.cfg.URL)
		return
	}
	s.monitor.UpdateDegraded(natsSinkName, "not connected to "+s.cfg.URL)
}

type natsPublisher struct {
	client *natsclient.Client
}

func (p natsPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	err := p.client.Publish(ctx, subject, payload)
	if errors.Is(err, natsclient.ErrNotConnected) {
		return errors.ErrSinkUnavailable
	}
	return err
}
