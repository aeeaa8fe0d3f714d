package natsclient

import (
	"fmt"
	"log/slog"
	"time"
)

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithReconnect sets how the underlying connection redials after a drop.
// max of -1 redials forever.
func WithReconnect(max int, wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait < 0 {
			return fmt.Errorf("reconnect wait %v is negative", wait)
		}
		c.maxReconnects = max
		c.reconnectWait = wait
		return nil
	}
}

// WithCircuitBreaker opens the circuit after threshold failed connects and
// caps its backoff at maxBackoff.
func WithCircuitBreaker(threshold int32, maxBackoff time.Duration) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit threshold %d must be at least 1", threshold)
		}
		if maxBackoff < time.Second {
			return fmt.Errorf("circuit max backoff %v is below one second", maxBackoff)
		}
		c.circuitThreshold = threshold
		c.maxBackoff = maxBackoff
		return nil
	}
}

// WithTimeouts sets the dial timeout and how long Close waits for a drain.
// Zero keeps the current value.
func WithTimeouts(connect, drain time.Duration) ClientOption {
	return func(c *Client) error {
		if connect > 0 {
			c.timeout = connect
		}
		if drain > 0 {
			c.drainTimeout = drain
		}
		return nil
	}
}

// WithPingInterval sets how often the server is pinged.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("ping interval %v must be positive", d)
		}
		c.pingInterval = d
		return nil
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// OnHealthChange registers fn to run, on its own goroutine, whenever the
// connection comes up or goes down.
func OnHealthChange(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithCredentials authenticates with a user and password. An empty user
// is ignored.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken authenticates with a token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTLS enables TLS. certFile and keyFile are both set or both empty;
// caFile is optional.
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) error {
		if (certFile == "") != (keyFile == "") {
			return fmt.Errorf("tls cert and key must be given together")
		}
		c.tlsEnabled = true
		c.tlsCertFile = certFile
		c.tlsKeyFile = keyFile
		c.tlsCAFile = caFile
		return nil
	}
}

// WithName sets the connection name shown in server monitoring.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}
