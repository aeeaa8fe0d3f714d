package adapter

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/pkg/retry"
)

// Config describes one adapter endpoint.
type Config struct {
	Device string
	Host   string
	Port   int

	// LegacyTimeout bounds each read until the adapter advertises a
	// heartbeat with * PONG.
	LegacyTimeout time.Duration
	// PongTimeout is advertised when the adapter sends * PING.
	PongTimeout time.Duration
	Reconnect   errors.ReconnectPolicy
}

// DefaultConfig returns a config for device at host:port with default
// timeouts.
func DefaultConfig(deviceName, host string, port int) Config {
	return Config{
		Device:        deviceName,
		Host:          host,
		Port:          port,
		LegacyTimeout: 600 * time.Second,
		PongTimeout:   10 * time.Second,
		Reconnect:     errors.DefaultReconnectPolicy(),
	}
}

// Validate checks the endpoint.
func (c Config) Validate() error {
	if c.Device == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "adapter.Config", "Validate", "device name check")
	}
	if c.Host == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "adapter.Config", "Validate", "host check")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("invalid port %d", c.Port), "adapter.Config", "Validate", "port check")
	}
	if c.LegacyTimeout <= 0 {
		return errors.WrapInvalid(fmt.Errorf("legacy timeout must be positive"), "adapter.Config", "Validate", "timeout check")
	}
	return nil
}

// Address is the dial address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Lifecycle receives connection transitions. OnDeviceDisconnected is where
// the device is flooded with UNAVAILABLE.
type Lifecycle interface {
	OnDeviceConnected(uuid, address string, port int)
	OnDeviceDisconnected(uuid string)
}

// ConnectionDeps holds runtime dependencies for a Connection.
type ConnectionDeps struct {
	Config          Config
	Registry        *device.Registry
	Configs         *device.ConfigStore
	Ingestor        Ingestor
	Lifecycle       Lifecycle
	MetricsRegistry *metric.MetricsRegistry
	Monitor         *health.Monitor
	Logger          *slog.Logger
}

// Connection is the client side of one adapter link.
type Connection struct {
	cfg       Config
	registry  *device.Registry
	parser    *Parser
	lifecycle Lifecycle
	metrics   *metric.Metrics
	monitor   *health.Monitor
	logger    *slog.Logger

	mu    sync.RWMutex
	state health.LinkState
}

// NewConnection creates a connection. It does not dial until Run.
func NewConnection(deps ConnectionDeps) (*Connection, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil || deps.Configs == nil || deps.Ingestor == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Connection", "New", "validate dependencies")
	}
	if _, ok := deps.Registry.Device(deps.Config.Device); !ok {
		return nil, errors.WrapInvalid(errors.NoDevice(deps.Config.Device), "Connection", "New", "resolve device")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	c := &Connection{
		cfg:       deps.Config,
		registry:  deps.Registry,
		lifecycle: deps.Lifecycle,
		metrics:   metrics,
		monitor:   deps.Monitor,
		logger: logger.With("component", "adapter",
			"device", deps.Config.Device, "address", deps.Config.Address()),
	}
	c.parser = NewParser(ParserDeps{
		Device:      deps.Config.Device,
		Adapter:     c.Name(),
		Registry:    deps.Registry,
		Configs:     deps.Configs,
		Ingestor:    deps.Ingestor,
		Metrics:     metrics,
		Logger:      logger,
		PongTimeout: deps.Config.PongTimeout,
	})
	c.report()
	return c, nil
}

// Name identifies the connection in metrics and health.
func (c *Connection) Name() string {
	return "adapter:" + c.cfg.Device
}

// State returns a snapshot of the connection state.
func (c *Connection) State() health.LinkState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Health returns the connection's health status.
func (c *Connection) Health() health.Status {
	return health.FromLink(c.Name(), c.State())
}

// Run connects and reconnects until ctx is cancelled. It returns nil on
// cancellation and an error only when reconnecting is pointless.
func (c *Connection) Run(ctx context.Context) error {
	backoff, err := retry.NewBackoff(c.cfg.Reconnect.ToRetryConfig())
	if err != nil {
		return errors.WrapInvalid(err, "Connection", "Run", "create backoff")
	}

	c.mu.Lock()
	c.state.Started = time.Now()
	c.mu.Unlock()

	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			backoff.Reset()
		}
		if err != nil && !c.cfg.Reconnect.ShouldReconnect(err) {
			c.logger.Error("Adapter connection failed permanently", "error", err)
			return err
		}

		c.logger.Warn("Adapter connection lost, reconnecting", "error", err)
		if c.metrics != nil {
			c.metrics.RecordAdapterReconnect(c.Name())
		}
		c.mu.Lock()
		c.state.Reconnects++
		c.mu.Unlock()

		if err := backoff.Wait(ctx); err != nil {
			return nil
		}
	}
}

// session runs one connection until it fails or ctx ends. established is
// true when the dial succeeded.
func (c *Connection) session(ctx context.Context) (established bool, err error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address())
	if err != nil {
		c.setDisconnected(err)
		return false, errors.WrapTransient(err, "Connection", "session", "dial adapter")
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	c.parser.Reset()
	c.setConnected()
	uuid := c.deviceUUID()
	c.logger.Info("Adapter connected")
	if c.lifecycle != nil {
		c.lifecycle.OnDeviceConnected(uuid, c.cfg.Host, c.cfg.Port)
	}

	defer func() {
		cancel()
		wg.Wait()
		c.setDisconnected(err)
		if c.lifecycle != nil {
			c.lifecycle.OnDeviceDisconnected(c.deviceUUID())
		}
	}()

	w := &lineWriter{conn: conn}
	if err := w.writeLine("* PING"); err != nil {
		return true, errors.WrapTransient(err, "Connection", "session", "send initial PING")
	}

	reader := bufio.NewReader(conn)
	timeout := c.cfg.LegacyTimeout
	heartbeat := time.Duration(0)
	stopPing := func() {}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return true, errors.WrapTransient(errors.ErrHeartbeatMissed, "Connection", "session",
					fmt.Sprintf("read within %s", timeout))
			}
			return true, errors.WrapTransient(err, "Connection", "session", "read line")
		}

		c.recordLine()
		res := c.parser.Process(line)
		if res.Reply != "" {
			if err := w.writeLine(res.Reply); err != nil {
				return true, errors.WrapTransient(err, "Connection", "session", "write reply")
			}
		}
		if res.Heartbeat > 0 && res.Heartbeat != heartbeat {
			heartbeat = res.Heartbeat
			timeout = 2 * heartbeat
			c.logger.Debug("Heartbeat negotiated", "interval", heartbeat)
			stopPing()
			pingCtx, stop := context.WithCancel(sessionCtx)
			stopPing = stop
			wg.Add(1)
			go func(interval time.Duration) {
				defer wg.Done()
				c.ping(pingCtx, w, interval)
			}(heartbeat)
		}
	}
}

// ping sends * PING every interval until ctx ends or a write fails.
func (c *Connection) ping(ctx context.Context, w *lineWriter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.writeLine("* PING"); err != nil {
				c.logger.Debug("Heartbeat write failed", "error", err)
				return
			}
		}
	}
}

func (c *Connection) deviceUUID() string {
	if d, ok := c.registry.Device(c.cfg.Device); ok {
		return d.UUID
	}
	return c.cfg.Device
}

func (c *Connection) recordLine() {
	now := time.Now()
	c.mu.Lock()
	c.state.LinesReceived++
	c.state.LastActivity = now
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordLineReceived(c.Name())
	}
}

func (c *Connection) setConnected() {
	c.mu.Lock()
	c.state.Connected = true
	c.state.Since = time.Now()
	c.state.LastError = ""
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordAdapterConnected(c.Name(), true)
	}
	c.report()
}

func (c *Connection) setDisconnected(err error) {
	c.mu.Lock()
	c.state.Connected = false
	c.state.Since = time.Now()
	if err != nil {
		c.state.LastError = err.Error()
	}
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordAdapterConnected(c.Name(), false)
	}
	c.report()
}

func (c *Connection) report() {
	if c.monitor != nil {
		c.monitor.Update(c.Name(), c.Health())
	}
}

// lineWriter serializes writes from the reader and the heartbeat goroutine.
type lineWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *lineWriter) writeLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := w.conn.Write([]byte(line + "\n"))
	return err
}
