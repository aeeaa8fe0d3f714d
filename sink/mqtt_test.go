package sink

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/observation"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startBroker(t *testing.T) (*mochi.Server, string) {
	t.Helper()
	addr := freeAddr(t)

	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return server, addr
}

func TestMQTTSink_PublishesObservations(t *testing.T) {
	broker, addr := startBroker(t)

	received := make(chan packets.Packet, 4)
	require.NoError(t, broker.Subscribe("plant/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}))

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor(registry.CoreMetrics())

	cfg := DefaultMQTTConfig()
	cfg.Broker = addr
	cfg.TopicPrefix = "plant"
	cfg.QoS = 1
	s, err := NewMQTTSink(cfg, Deps{MetricsRegistry: registry, Monitor: monitor})
	require.NoError(t, err)
	assert.Contains(t, s.ClientID(), "streamagent-")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, ok := monitor.Get(s.Name())
		return ok && st.IsHealthy()
	}, 5*time.Second, 10*time.Millisecond)

	s.Enqueue(obsOf("exec", observation.Event, observation.NewScalar("ACTIVE")))

	select {
	case pk := <-received:
		assert.Equal(t, "plant/mill/exec", pk.TopicName)
		var doc Payload
		require.NoError(t, json.Unmarshal(pk.Payload, &doc))
		assert.Equal(t, "mill", doc.Device)
		assert.Equal(t, "exec", doc.DataItemID)
		assert.Equal(t, "ACTIVE", doc.Value)
		assert.Equal(t, "EVENT", doc.Category)
	case <-time.After(5 * time.Second):
		t.Fatal("observation not delivered to broker")
	}

	cancel()
	require.NoError(t, <-done)
	_, ok := monitor.Get(s.Name())
	assert.False(t, ok)
}

func TestMQTTSink_ReportsUnreachableBroker(t *testing.T) {
	monitor := health.NewMonitor(nil)

	cfg := DefaultMQTTConfig()
	cfg.Broker = freeAddr(t)
	s, err := NewMQTTSink(cfg, Deps{Monitor: monitor})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, ok := monitor.Get(s.Name())
		return ok && st.IsDegraded()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
