package agent

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/streamagent/adapter"
	"github.com/c360/streamagent/config"
	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/gateway"
	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/query"
	"github.com/c360/streamagent/sink"
	"github.com/c360/streamagent/store"
)

// Deps holds the agent's runtime collaborators. All are optional.
type Deps struct {
	MetricsRegistry *metric.MetricsRegistry
	Monitor         *health.Monitor
	Logger          *slog.Logger

	// Now is the agent clock; defaults to time.Now.
	Now func() time.Time
	// NewID generates the instance id and posted asset ids; defaults to uuid.
	NewID func() string
}

// runner is a supervised long-running part.
type runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Agent is one running device agent.
type Agent struct {
	instanceID string
	registry   *device.Registry
	configs    *device.ConfigStore
	store      *store.Store
	engine     *query.Engine
	gateway    *gateway.Server
	adapters   []*adapter.Connection
	sinks      []runner

	monitor *health.Monitor
	logger  *slog.Logger
	now     func() time.Time
}

var _ adapter.Lifecycle = (*Agent)(nil)

// Load reads cfg.DevicesFile and builds the agent.
func Load(cfg *config.Config, deps Deps) (*Agent, error) {
	devices, err := device.LoadFile(cfg.DevicesFile)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Agent", "Load", "load devices file")
	}
	return New(cfg, devices, deps)
}

// New builds the agent for devices. Every device is registered and seeded
// with UNAVAILABLE before any adapter runs.
func New(cfg *config.Config, devices []*device.Device, deps Deps) (*Agent, error) {
	if len(devices) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Agent", "New", "at least one device is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	monitor := deps.Monitor
	if monitor == nil {
		var metrics *metric.Metrics
		if deps.MetricsRegistry != nil {
			metrics = deps.MetricsRegistry.CoreMetrics()
		}
		monitor = health.NewMonitor(metrics)
	}

	a := &Agent{
		instanceID: newID(),
		registry:   device.NewRegistry(),
		configs:    device.NewConfigStore(deviceOptions(cfg.Agent)),
		monitor:    monitor,
		logger:     logger.With("component", "agent"),
		now:        now,
	}

	for _, d := range devices {
		if err := a.registry.Add(d); err != nil {
			return nil, errors.Wrap(err, "Agent", "New", "register device "+d.Name)
		}
	}

	st, err := store.New(store.Config{
		BufferSize:          cfg.Agent.BufferSize,
		CheckpointFrequency: cfg.Agent.CheckpointFrequency,
		AssetBufferSize:     cfg.Agent.AssetBufferSize,
	}, store.Deps{
		Registry:        a.registry,
		Configs:         a.configs,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Agent", "New", "create store")
	}
	a.store = st

	a.engine, err = query.NewEngine(query.Config{
		InstanceID: a.instanceID,
		Sender:     cfg.Agent.Sender,
	}, query.Deps{
		Store:    st,
		Registry: a.registry,
		Logger:   logger,
		Now:      now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Agent", "New", "create query engine")
	}

	a.gateway, err = gateway.NewServer(cfg.HTTP, gateway.Deps{
		Engine:          a.engine,
		Monitor:         monitor,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
		NewID:           newID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Agent", "New", "create gateway")
	}

	if err := a.buildAdapters(cfg.Adapters, deps, logger); err != nil {
		return nil, err
	}
	if err := a.buildSinks(cfg.Sinks, deps, logger); err != nil {
		return nil, err
	}

	// Sinks subscribe first so the seeded values are forwarded too.
	ts := now()
	for _, d := range a.registry.Devices() {
		st.AddDevice(d, ts)
	}

	a.logger.Info("Agent created",
		"instance_id", a.instanceID,
		"devices", len(devices),
		"adapters", len(a.adapters),
		"sinks", len(a.sinks))
	return a, nil
}

func deviceOptions(c config.AgentConfig) device.Options {
	return device.Options{
		AutoAvailable:      c.AutoAvailable,
		FilterDuplicates:   c.FilterDuplicates,
		IgnoreTimestamps:   c.IgnoreTimestamps,
		RelativeTime:       c.RelativeTime,
		ConversionRequired: c.ConversionRequired,
		UpcaseValues:       c.UpcaseValues,
		PreserveUUID:       c.PreserveUUID,
	}
}

func (a *Agent) buildAdapters(adapters []config.AdapterConfig, deps Deps, logger *slog.Logger) error {
	for _, ac := range adapters {
		d, ok := a.registry.Device(ac.Device)
		if !ok {
			return errors.WrapInvalid(errors.NoDevice(ac.Device), "Agent", "New", "resolve adapter device")
		}
		for key, value := range ac.Options {
			handled, err := a.configs.Apply(d.Name, key, value)
			if err != nil {
				return errors.Wrap(err, "Agent", "New", "apply option "+key)
			}
			if !handled {
				return errors.WrapInvalid(errors.InvalidRequest("unknown device option %q", key),
					"Agent", "New", "apply option")
			}
		}

		conn, err := adapter.NewConnection(adapter.ConnectionDeps{
			Config: adapter.Config{
				Device:        d.Name,
				Host:          ac.Host,
				Port:          ac.Port,
				LegacyTimeout: ac.LegacyTimeout,
				PongTimeout:   ac.PongTimeout,
				Reconnect: errors.ReconnectPolicy{
					InitialDelay:  ac.ReconnectInterval,
					MaxDelay:      ac.MaxReconnectInterval,
					BackoffFactor: 2,
				},
			},
			Registry:        a.registry,
			Configs:         a.configs,
			Ingestor:        a.store,
			Lifecycle:       a,
			MetricsRegistry: deps.MetricsRegistry,
			Monitor:         a.monitor,
			Logger:          logger,
		})
		if err != nil {
			return errors.Wrap(err, "Agent", "New", "create adapter for "+d.Name)
		}
		a.adapters = append(a.adapters, conn)
	}
	return nil
}

func (a *Agent) buildSinks(cfg config.SinksConfig, deps Deps, logger *slog.Logger) error {
	sinkDeps := sink.Deps{MetricsRegistry: deps.MetricsRegistry, Monitor: a.monitor, Logger: logger}

	if cfg.NATS.Enabled {
		s, err := sink.NewNATSSink(cfg.NATS, sinkDeps)
		if err != nil {
			return errors.Wrap(err, "Agent", "New", "create NATS sink")
		}
		a.store.Subscribe(s.Enqueue)
		a.sinks = append(a.sinks, s)
	}
	if cfg.MQTT.Enabled {
		s, err := sink.NewMQTTSink(cfg.MQTT, sinkDeps)
		if err != nil {
			return errors.Wrap(err, "Agent", "New", "create MQTT sink")
		}
		a.store.Subscribe(s.Enqueue)
		a.sinks = append(a.sinks, s)
	}
	return nil
}

// Run supervises every part until ctx is cancelled or one part fails.
func (a *Agent) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	parts := make([]runner, 0, 1+len(a.adapters)+len(a.sinks))
	parts = append(parts, a.gateway)
	for _, c := range a.adapters {
		parts = append(parts, c)
	}
	parts = append(parts, a.sinks...)

	for _, p := range parts {
		g.Go(func() error {
			if err := p.Run(gctx); err != nil {
				a.logger.Error("Agent part stopped", "part", p.Name(), "error", err)
				return errors.Wrap(err, "Agent", "Run", p.Name())
			}
			return nil
		})
	}

	a.logger.Info("Agent running", "instance_id", a.instanceID, "parts", len(parts))
	err := g.Wait()
	a.logger.Info("Agent stopped")
	return err
}

// OnDeviceConnected marks the device AVAILABLE when AutoAvailable is set.
func (a *Agent) OnDeviceConnected(deviceUUID, address string, port int) {
	d, ok := a.registry.Device(deviceUUID)
	if !ok {
		a.logger.Warn("Connect for unknown device", "uuid", deviceUUID)
		return
	}
	a.logger.Info("Device connected", "device", d.Name, "address", address, "port", port)
	a.store.Connected(d.Name, a.now())
}

// OnDeviceDisconnected records UNAVAILABLE for the device's data items.
func (a *Agent) OnDeviceDisconnected(deviceUUID string) {
	d, ok := a.registry.Device(deviceUUID)
	if !ok {
		a.logger.Warn("Disconnect for unknown device", "uuid", deviceUUID)
		return
	}
	n := a.store.Disconnected(d.Name, a.now())
	a.logger.Info("Device disconnected", "device", d.Name, "unavailable", n)
}

// InstanceID identifies this agent run in every response header.
func (a *Agent) InstanceID() string { return a.instanceID }

// Store returns the observation store.
func (a *Agent) Store() *store.Store { return a.store }

// Engine returns the query engine.
func (a *Agent) Engine() *query.Engine { return a.engine }

// Registry returns the device registry.
func (a *Agent) Registry() *device.Registry { return a.registry }

// Handler returns the gateway's HTTP handler.
func (a *Agent) Handler() http.Handler { return a.gateway.Handler() }

// Health returns the aggregate health of every part.
func (a *Agent) Health() health.Status { return a.monitor.AggregateHealth("streamagent") }
