// Package retry provides exponential backoff with jitter.
//
// Do runs a function until it succeeds, the attempt budget is spent, or the
// context ends. MaxAttempts of zero retries forever, which is how the NATS
// sink connects at startup:
//
//	err := retry.Do(ctx, retry.Config{InitialDelay: time.Second, MaxDelay: 30 * time.Second}, func() error {
//	    return client.Connect(ctx)
//	})
//
// Backoff exposes the same delay sequence to loops that manage their own
// attempts, such as the adapter reconnect loop:
//
//	b, _ := retry.NewBackoff(cfg)
//	for ctx.Err() == nil {
//	    if established, _ := session(ctx); established {
//	        b.Reset()
//	    }
//	    _ = b.Wait(ctx)
//	}
package retry
