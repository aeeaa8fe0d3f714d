package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/streamagent/errors"
)

// ConnectionStatus is where a Client is in its connection lifecycle.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Client is one NATS connection guarded by a circuit breaker.
type Client struct {
	url    string
	logger *slog.Logger

	state   atomic.Int32 // ConnectionStatus, ignoring the breaker
	breaker *breaker
	closed  atomic.Bool

	mu   sync.RWMutex
	conn *nats.Conn

	// options
	maxReconnects    int
	reconnectWait    time.Duration
	pingInterval     time.Duration
	timeout          time.Duration
	drainTimeout     time.Duration
	circuitThreshold int32
	maxBackoff       time.Duration

	username, password, token string

	tlsEnabled                         bool
	tlsCertFile, tlsKeyFile, tlsCAFile string

	clientName     string
	onHealthChange func(bool)
}

// NewClient creates a client for url. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     10 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	c.breaker = newBreaker(c.circuitThreshold, time.Second, c.maxBackoff)
	return c, nil
}

func (c *Client) URL() string { return c.url }

// Status reports StatusCircuitOpen while the breaker is tripped.
func (c *Client) Status() ConnectionStatus {
	if c.breaker.open(time.Now()) {
		return StatusCircuitOpen
	}
	return ConnectionStatus(c.state.Load())
}

func (c *Client) setStatus(s ConnectionStatus) { c.state.Store(int32(s)) }

func (c *Client) IsHealthy() bool { return c.Status() == StatusConnected }

// Failures counts failed connects since the last success.
func (c *Client) Failures() int32 { return c.breaker.failures() }

// Backoff is how long the breaker will stay open on its next trip.
func (c *Client) Backoff() time.Duration { return c.breaker.nextBackoff() }

// WaitForConnection polls until the client is connected or ctx ends.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !c.IsHealthy() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// ConnectionOptions builds the nats.go options for this client.
func (c *Client) ConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ClosedHandler(c.onClosed),
		nats.ErrorHandler(c.onAsyncError),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.tlsEnabled {
		if c.tlsCertFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect dials the server. It fails fast with ErrCircuitOpen while the
// breaker is tripped.
func (c *Client) Connect(ctx context.Context) error {
	if c.breaker.open(time.Now()) {
		return ErrCircuitOpen
	}
	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.ConnectionOptions()...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
		go func() {
			// a dial that completes after ctx ended is discarded
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
	}

	if res.err != nil {
		c.setStatus(StatusDisconnected)
		if tripped, openFor := c.breaker.fail(time.Now()); tripped {
			c.logger.Warn("Circuit breaker opened", "failures", c.Failures(), "open_for", openFor)
			return ErrCircuitOpen
		}
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = res.conn
	c.mu.Unlock()
	c.breaker.succeed()
	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url)
	c.notifyHealth(true)
	return nil
}

// Close drains the connection, bounded by the drain timeout and ctx. It is
// safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.username, c.password, c.token = "", "", ""
	c.mu.Unlock()

	defer c.setStatus(StatusDisconnected)
	if conn == nil {
		return nil
	}
	defer conn.Close()

	drainCtx, cancel := context.WithTimeout(ctx, c.drainTimeout)
	defer cancel()
	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()

	select {
	case err := <-drained:
		return errors.Wrap(err, "Client", "Close", "drain connection")
	case <-drainCtx.Done():
		return errors.WrapTransient(drainCtx.Err(), "Client", "Close", "drain connection")
	}
}

func (c *Client) current() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Publish sends data on subject. It returns ErrNotConnected while the
// connection is down so callers can count the loss.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := c.current()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Subscribe delivers every message on subject to handler until the client
// is closed.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	conn := c.current()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	_, err := conn.Subscribe(subject, func(msg *nats.Msg) { handler(msg.Subject, msg.Data) })
	return err
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.FlushWithContext(ctx)
}

func (c *Client) notifyHealth(healthy bool) {
	if c.onHealthChange != nil {
		go c.onHealthChange(healthy)
	}
}

func (c *Client) onDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	c.notifyHealth(false)
}

func (c *Client) onReconnect(_ *nats.Conn) {
	c.breaker.succeed()
	c.setStatus(StatusConnected)
	c.logger.Info("NATS reconnected", "url", c.url)
	c.notifyHealth(true)
}

func (c *Client) onClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	if !c.closed.Load() {
		c.notifyHealth(false)
	}
}

func (c *Client) onAsyncError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS error", "error", err)
}
