// Package natsclient wraps a NATS connection with a circuit breaker around
// connect attempts and slog-based lifecycle logging.
//
// The client walks the states Disconnected, Connecting and Connected, moving
// to Reconnecting while the underlying library redials. After five failed
// Connect calls in a row the circuit opens: Connect fails fast with
// ErrCircuitOpen for the current backoff (starting at one second, doubling
// up to the configured maximum) and then half-opens.
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("streamagent"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "streamagent.mill.exec", payload)
//
// The observation sink publishes through this client; see package sink.
package natsclient
