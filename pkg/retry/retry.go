package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config shapes an exponential backoff.
type Config struct {
	// MaxAttempts bounds Do; zero retries until the context ends.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// AddJitter stretches each delay by up to a quarter.
	AddJitter bool
}

func (cfg Config) normalized() (Config, error) {
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return cfg, errors.New("retry: delays and multiplier cannot be negative")
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	cfg.Multiplier = min(cfg.Multiplier, 1000)
	if cfg.MaxDelay < cfg.InitialDelay {
		return cfg, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return cfg, nil
}

// Backoff yields the delays of one retry loop. Not safe for concurrent use.
type Backoff struct {
	cfg   Config
	delay time.Duration
}

// NewBackoff creates a Backoff from cfg, filling zero fields with defaults.
func NewBackoff(cfg Config) (*Backoff, error) {
	norm, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	return &Backoff{cfg: norm, delay: norm.InitialDelay}, nil
}

// Next returns the next delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.delay
	if b.cfg.AddJitter && d >= 4 {
		d += rand.N(d / 4)
	}
	b.delay = min(time.Duration(float64(b.delay)*b.cfg.Multiplier), b.cfg.MaxDelay)
	return d
}

// Reset starts the sequence over, typically once a connection has held.
func (b *Backoff) Reset() {
	b.delay = b.cfg.InitialDelay
}

// Wait sleeps for Next or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it returns nil, MaxAttempts calls have failed, or ctx
// ends. The last error from fn is wrapped into the result.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	b, err := NewBackoff(cfg)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", attempt, err)
		}
		if werr := b.Wait(ctx); werr != nil {
			return fmt.Errorf("retry stopped after %d attempts: %w (last error: %v)", attempt, werr, err)
		}
	}
}
