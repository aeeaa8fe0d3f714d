package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/observation"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.topic
	}
	return out
}

func newTestForwarder(t *testing.T, cfg QueueConfig, pub Publisher) (*Forwarder, *metric.Metrics) {
	t.Helper()
	registry := metric.NewMetricsRegistry()
	fwd, err := NewForwarder("test_sink", cfg, pub, func(obs *observation.Observation) string {
		return Subject("test", obs)
	}, Deps{MetricsRegistry: registry})
	require.NoError(t, err)
	return fwd, registry.CoreMetrics()
}

func runForwarder(t *testing.T, fwd *Forwarder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestForwarder_PublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	fwd, metrics := newTestForwarder(t, DefaultQueueConfig(), pub)
	runForwarder(t, fwd)

	fwd.Enqueue(obsOf("exec", observation.Event, observation.NewScalar("ACTIVE")))
	fwd.Enqueue(obsOf("pos", observation.Sample, observation.NewScalar("1")))
	fwd.Enqueue(obsOf("line", observation.Event, observation.NewScalar("10")))

	require.Eventually(t, func() bool { return len(pub.topics()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"test.mill.exec", "test.mill.pos", "test.mill.line"}, pub.topics())
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.SinkPublished.WithLabelValues("test_sink")))
	assert.Equal(t, 0, fwd.Pending())
}

func TestForwarder_DropsOldestOnOverflow(t *testing.T) {
	pub := &fakePublisher{}
	cfg := DefaultQueueConfig()
	cfg.QueueSize = 2
	fwd, metrics := newTestForwarder(t, cfg, pub)

	fwd.Enqueue(obsOf("a", observation.Event, observation.NewScalar("1")))
	fwd.Enqueue(obsOf("b", observation.Event, observation.NewScalar("2")))
	fwd.Enqueue(obsOf("c", observation.Event, observation.NewScalar("3")))

	assert.Equal(t, 2, fwd.Pending())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SinkDropped.WithLabelValues("test_sink", "overflow")))

	runForwarder(t, fwd)
	require.Eventually(t, func() bool { return len(pub.topics()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"test.mill.b", "test.mill.c"}, pub.topics())
}

func TestForwarder_CountsUnavailableBroker(t *testing.T) {
	pub := &fakePublisher{err: errors.ErrSinkUnavailable}
	fwd, metrics := newTestForwarder(t, DefaultQueueConfig(), pub)
	runForwarder(t, fwd)

	fwd.Enqueue(obsOf("exec", observation.Event, observation.NewScalar("ACTIVE")))

	dropped := metrics.SinkDropped.WithLabelValues("test_sink", "disconnected")
	require.Eventually(t, func() bool { return testutil.ToFloat64(dropped) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.SinkPublished.WithLabelValues("test_sink")))
}

func TestForwarder_RateLimited(t *testing.T) {
	pub := &fakePublisher{}
	cfg := DefaultQueueConfig()
	cfg.RateLimit = 20
	cfg.Burst = 1
	fwd, _ := newTestForwarder(t, cfg, pub)
	runForwarder(t, fwd)

	start := time.Now()
	for i := 0; i < 3; i++ {
		fwd.Enqueue(obsOf("exec", observation.Event, observation.NewScalar("ACTIVE")))
	}
	require.Eventually(t, func() bool { return len(pub.topics()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestQueueConfig_Validate(t *testing.T) {
	cfg := QueueConfig{}
	require.NoError(t, cfg.validate("test"))
	assert.Equal(t, 10000, cfg.QueueSize)
	assert.Equal(t, 100, cfg.BatchSize)

	cfg = QueueConfig{RateLimit: -1}
	err := cfg.validate("test")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))
}

func TestSinkConfig_Validate(t *testing.T) {
	disabled := NATSConfig{}
	assert.NoError(t, disabled.Validate())

	nats := NATSConfig{Enabled: true}
	assert.ErrorIs(t, nats.Validate(), errors.ErrMissingConfig)

	nats = DefaultNATSConfig()
	nats.Enabled = true
	nats.SubjectPrefix = ""
	require.NoError(t, nats.Validate())
	assert.Equal(t, "streamagent", nats.SubjectPrefix)

	nats.TLS = TLSFiles{CertFile: "client.pem"}
	assert.ErrorIs(t, nats.Validate(), errors.ErrInvalidConfig)
	nats.TLS = TLSFiles{CAFile: "ca.pem"}
	assert.NoError(t, nats.Validate())
	assert.True(t, nats.TLS.Enabled())

	mqtt := DefaultMQTTConfig()
	mqtt.Enabled = true
	mqtt.QoS = 3
	assert.ErrorIs(t, mqtt.Validate(), errors.ErrInvalidConfig)
}
