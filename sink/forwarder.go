package sink

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/time/rate"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/pkg/buffer"
)

// Publisher delivers one encoded observation to a broker. It returns
// errors.ErrSinkUnavailable while the broker connection is down.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Deps holds the runtime collaborators of a sink. All are optional.
type Deps struct {
	MetricsRegistry *metric.MetricsRegistry
	Monitor         *health.Monitor
	Logger          *slog.Logger
}

// Forwarder queues observations and drains them to a Publisher.
type Forwarder struct {
	name    string
	queue   *buffer.Ring[*observation.Observation]
	wake    chan struct{}
	limiter *rate.Limiter
	batch   int
	topic   func(*observation.Observation) string
	pub     Publisher
	metrics *metric.Metrics
	logger  *slog.Logger
}

// NewForwarder creates a forwarder named name. topic maps an observation to
// its subject or topic.
func NewForwarder(name string, cfg QueueConfig, pub Publisher, topic func(*observation.Observation) string, deps Deps) (*Forwarder, error) {
	if err := cfg.validate(name); err != nil {
		return nil, err
	}

	opts := []buffer.Option[*observation.Observation]{
		buffer.WithOverflowPolicy[*observation.Observation](buffer.DropOldest),
	}
	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		opts = append(opts, buffer.WithMetrics[*observation.Observation](deps.MetricsRegistry, name+"_queue"))
		metrics = deps.MetricsRegistry.CoreMetrics()
	}
	queue, err := buffer.NewRing(cfg.QueueSize, opts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, name, "NewForwarder", "create queue")
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if limit == rate.Inf {
		burst = math.MaxInt32
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Forwarder{
		name:    name,
		queue:   queue,
		wake:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, burst),
		batch:   cfg.BatchSize,
		topic:   topic,
		pub:     pub,
		metrics: metrics,
		logger:  logger.With("component", name),
	}, nil
}

// Enqueue queues obs without blocking. It has the store.Subscriber
// signature.
func (f *Forwarder) Enqueue(obs *observation.Observation) {
	if _, dropped := f.queue.Push(obs); dropped {
		f.recordDropped("overflow")
	}
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued observations.
func (f *Forwarder) Pending() int {
	return f.queue.Len()
}

// Run drains the queue until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.wake:
		}

		for {
			batch := f.queue.PopBatch(f.batch)
			if len(batch) == 0 {
				break
			}
			for _, obs := range batch {
				if err := f.send(ctx, obs); err != nil && ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

func (f *Forwarder) send(ctx context.Context, obs *observation.Observation) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := Encode(obs)
	if err != nil {
		f.logger.Warn("Encode observation failed", "item", obs.Key().String(), "error", err)
		f.recordDropped("encode")
		return err
	}

	if err := f.pub.Publish(ctx, f.topic(obs), payload); err != nil {
		if errors.Is(err, errors.ErrSinkUnavailable) {
			f.recordDropped("disconnected")
		} else {
			f.logger.Debug("Publish failed", "item", obs.Key().String(), "error", err)
			f.recordDropped("publish")
		}
		return err
	}

	if f.metrics != nil {
		f.metrics.RecordSinkPublished(f.name)
	}
	return nil
}

func (f *Forwarder) recordDropped(reason string) {
	if f.metrics != nil {
		f.metrics.RecordSinkDropped(f.name, reason)
	}
}
