//go:build integration

package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/natsclient"
	"github.com/c360/streamagent/observation"
)

func TestIntegration_NATSSink(t *testing.T) {
	tc := natsclient.NewTestClient(t)

	received := make(chan []byte, 1)
	require.NoError(t, tc.Client.Subscribe("streamagent.mill.>", func(_ string, data []byte) {
		received <- data
	}))
	require.NoError(t, tc.Client.Flush(context.Background()))

	monitor := health.NewMonitor(nil)
	cfg := DefaultNATSConfig()
	cfg.URL = tc.URL
	s, err := NewNATSSink(cfg, Deps{Monitor: monitor})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, ok := monitor.Get(s.Name())
		return ok && st.IsHealthy()
	}, 10*time.Second, 20*time.Millisecond)

	s.Enqueue(obsOf("pos", observation.Sample, observation.NewScalar("3.5")))

	select {
	case data := <-received:
		var doc Payload
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "pos", doc.DataItemID)
		assert.Equal(t, 3.5, doc.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("observation not delivered")
	}

	cancel()
	require.NoError(t, <-done)
}
