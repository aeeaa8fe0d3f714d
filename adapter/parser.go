package adapter

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/c360/streamagent/device"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/observation"
	"github.com/c360/streamagent/store"
)

// Ingestor receives everything a parsed line produces.
type Ingestor interface {
	Observe(item *device.DataItem, ts time.Time, v observation.Value) *observation.Observation
	PutAsset(a store.Asset, replace bool) (store.Asset, error)
	UpdateAsset(id string, args []string, ts time.Time) (store.Asset, error)
	RemoveAsset(id string, ts time.Time) (store.Asset, error)
	RemoveAllAssets(device, typ string, ts time.Time) ([]store.Asset, error)
}

var _ Ingestor = (*store.Store)(nil)

// Reasons a field is dropped, used as metric labels.
const (
	rejectUnknownItem = "unknown_item"
	rejectConstraint  = "constraint"
	rejectMalformed   = "malformed"
	rejectAsset       = "asset"
	rejectCommand     = "command"
)

// Result describes what one line did beyond recording observations.
type Result struct {
	// Applied counts values and asset mutations handed to the Ingestor.
	Applied int
	// Reply is a line to write back to the adapter, without newline.
	Reply string
	// Heartbeat is set when the adapter answered a PING with its timeout.
	Heartbeat time.Duration
}

// ParserDeps holds the parser's collaborators.
type ParserDeps struct {
	Device   string // default device for keys without a device prefix
	Adapter  string // label for metrics and logs
	Registry *device.Registry
	Configs  *device.ConfigStore
	Ingestor Ingestor
	Metrics  *metric.Metrics
	Logger   *slog.Logger

	// PongTimeout is advertised in replies to an adapter's PING.
	PongTimeout time.Duration
	// Now returns the agent clock; defaults to time.Now.
	Now func() time.Time
}

// Parser is the per-connection protocol state machine. It is not safe for
// concurrent use.
type Parser struct {
	device      string
	adapter     string
	registry    *device.Registry
	configs     *device.ConfigStore
	ingestor    Ingestor
	metrics     *metric.Metrics
	logger      *slog.Logger
	pongTimeout time.Duration
	now         func() time.Time

	clock     relativeClock
	multiline *multilineAsset
}

// relativeClock re-bases adapter time onto the agent clock from the first
// timestamp seen on a connection.
type relativeClock struct {
	set        bool
	base       time.Time
	baseOffset float64
	baseTime   time.Time
}

// NewParser creates a parser for one adapter connection.
func NewParser(deps ParserDeps) *Parser {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	pong := deps.PongTimeout
	if pong <= 0 {
		pong = 10 * time.Second
	}
	return &Parser{
		device:      deps.Device,
		adapter:     deps.Adapter,
		registry:    deps.Registry,
		configs:     deps.Configs,
		ingestor:    deps.Ingestor,
		metrics:     deps.Metrics,
		logger:      logger.With("component", "parser", "adapter", deps.Adapter),
		pongTimeout: pong,
		now:         now,
	}
}

// Device returns the current default device name.
func (p *Parser) Device() string { return p.device }

// Reset clears per-connection state. Call it when the connection is
// re-established.
func (p *Parser) Reset() {
	p.clock = relativeClock{}
	p.multiline = nil
}

// Process handles one line without its terminating newline.
func (p *Parser) Process(line string) Result {
	line = strings.TrimRight(line, "\r\n")

	if p.multiline != nil {
		return p.continueMultiline(line)
	}
	if strings.TrimSpace(line) == "" {
		return Result{}
	}
	if strings.HasPrefix(line, "*") {
		return p.command(strings.TrimSpace(line[1:]))
	}

	fields := strings.Split(line, "|")
	if len(fields) < 2 {
		p.reject(rejectMalformed)
		p.logger.Debug("Line has no key", "line", line)
		return Result{}
	}

	ts := p.timestamp(strings.TrimSpace(fields[0]))
	if strings.HasPrefix(fields[1], "@") || strings.Contains(fields[1], ":@") {
		return p.assetCommand(fields, ts)
	}
	return p.observations(fields, ts)
}

func (p *Parser) observations(fields []string, ts time.Time) Result {
	var res Result
	i := 1
	for i < len(fields) {
		key := strings.TrimSpace(fields[i])
		first := i == 1
		i++

		item := p.resolve(key)
		if item == nil {
			p.reject(rejectUnknownItem)
			p.logger.Debug("Unknown data item", "key", key)
			i++
			continue
		}

		kind := item.Kind()
		arity := kind.Arity()
		values := make([]string, arity)
		copy(values, fields[i:min(i+arity, len(fields))])
		consumed := arity

		if first && hasVariableTail(item) && i+arity < len(fields) && !p.anyKnown(fields[i+arity:]) {
			values[arity-1] = strings.Join(fields[i+arity-1:], "|")
			consumed = len(fields) - i
		}
		i += consumed

		v, reason := p.value(item, values)
		if reason != "" {
			p.reject(reason)
			p.logger.Debug("Dropped field", "item", item.ID, "reason", reason, "values", values)
			continue
		}
		p.ingestor.Observe(item, ts, v)
		res.Applied++
	}
	return res
}

// hasVariableTail reports whether the value may contain unescaped pipes when
// it is the only item on the line.
func hasVariableTail(item *device.DataItem) bool {
	switch item.Kind() {
	case observation.KindMessage:
		return true
	case observation.KindScalar:
		return item.Category == observation.Event
	}
	return false
}

// anyKnown reports whether any of fields names a data item.
func (p *Parser) anyKnown(fields []string) bool {
	for _, f := range fields {
		if p.resolve(strings.TrimSpace(f)) != nil {
			return true
		}
	}
	return false
}

// resolve maps a key to a data item. A "device:key" prefix routes to another
// device; otherwise the key is an id or name of the default device.
func (p *Parser) resolve(key string) *device.DataItem {
	if key == "" {
		return nil
	}
	if dev, id, ok := strings.Cut(key, ":"); ok {
		if d, found := p.registry.Device(dev); found {
			if item, found := d.Item(id); found && !item.IsAsset() {
				return item
			}
			return nil
		}
	}
	d, ok := p.registry.Device(p.device)
	if !ok {
		return nil
	}
	item, ok := d.Item(key)
	if !ok || item.IsAsset() {
		return nil
	}
	return item
}

// value converts the raw protocol fields of one item into a typed value, or
// returns the reason the field is dropped.
func (p *Parser) value(item *device.DataItem, raw []string) (observation.Value, string) {
	for i := range raw {
		raw[i] = strings.TrimSpace(raw[i])
	}
	cfg := p.configs.Get(item.Device)

	switch item.Kind() {
	case observation.KindCondition:
		return conditionValue(raw)

	case observation.KindMessage:
		if raw[1] == "" || strings.EqualFold(raw[1], observation.Unavailable) {
			return observation.UnavailableOf(observation.KindMessage), ""
		}
		return observation.Message{NativeCode: raw[0], Text: raw[1]}, ""

	case observation.KindTimeSeries:
		return timeSeriesValue(raw, cfg, item)
	}

	text := raw[0]
	if text == "" || strings.EqualFold(text, observation.Unavailable) {
		return observation.UnavailableOf(observation.KindScalar), ""
	}
	if pinned, ok := item.Pinned(); ok {
		return observation.NewScalar(pinned), ""
	}
	if item.Category == observation.Event && cfg.UpcaseValues {
		text = strings.ToUpper(text)
	}
	if !item.Allows(text) {
		return nil, rejectConstraint
	}
	if item.Category == observation.Sample {
		if conv, ok := cfg.ConversionFor(item); ok {
			converted, err := convertVector(text, conv)
			if err != nil {
				return nil, rejectMalformed
			}
			text = converted
		}
	}
	return observation.NewScalar(text), ""
}

func conditionValue(raw []string) (observation.Value, string) {
	if raw[0] == "" {
		return observation.ConditionValue{Level: observation.LevelUnavailable}, ""
	}
	level, err := observation.ParseLevel(raw[0])
	if err != nil {
		return nil, rejectMalformed
	}
	return observation.ConditionValue{
		Level:          level,
		NativeCode:     raw[1],
		NativeSeverity: raw[2],
		Qualifier:      raw[3],
		Text:           raw[4],
	}, ""
}

func timeSeriesValue(raw []string, cfg device.Config, item *device.DataItem) (observation.Value, string) {
	samples := strings.Fields(raw[2])
	if len(samples) == 0 || strings.EqualFold(raw[2], observation.Unavailable) {
		return observation.UnavailableOf(observation.KindTimeSeries), ""
	}

	conv, convert := cfg.ConversionFor(item)
	ts := observation.TimeSeries{Samples: make([]float64, len(samples))}
	for i, s := range samples {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, rejectMalformed
		}
		if convert {
			f = conv.Apply(f)
		}
		ts.Samples[i] = f
	}

	ts.Count = len(samples)
	if raw[0] != "" {
		n, err := strconv.Atoi(raw[0])
		if err != nil || n != len(samples) {
			return nil, rejectMalformed
		}
	}
	if raw[1] != "" {
		rate, err := strconv.ParseFloat(raw[1], 64)
		if err != nil {
			return nil, rejectMalformed
		}
		ts.Rate = rate
	}
	return ts, ""
}

// convertVector applies conv to a number or a space-separated vector of
// numbers. Non-numeric text passes through unchanged.
func convertVector(text string, conv device.Conversion) (string, error) {
	parts := strings.Fields(text)
	out := make([]string, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			if i == 0 {
				return text, nil
			}
			return "", fmt.Errorf("mixed vector %q", text)
		}
		f = conv.Apply(f)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("conversion of %q is not finite", part)
		}
		out[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(out, " "), nil
}

// timestamp resolves field 0 against the device options: empty or ignored
// timestamps use the agent clock, numbers are millisecond offsets and
// anything else is ISO-8601. Relative mode re-bases both onto the time the
// first timestamp arrived.
func (p *Parser) timestamp(field string) time.Time {
	now := p.now()
	if field == "" {
		return now
	}
	opts := p.configs.Get(p.device).Options
	if opts.IgnoreTimestamps {
		return now
	}

	if offset, err := strconv.ParseFloat(field, 64); err == nil {
		if !p.clock.set {
			p.clock = relativeClock{set: true, base: now, baseOffset: offset}
		}
		return p.clock.base.Add(time.Duration((offset - p.clock.baseOffset) * float64(time.Millisecond)))
	}

	ts, err := iso8601.ParseString(field)
	if err != nil {
		p.reject(rejectMalformed)
		p.logger.Debug("Unparseable timestamp, using agent clock", "timestamp", field, "error", err)
		return now
	}
	if !opts.RelativeTime {
		return ts
	}
	if !p.clock.set || p.clock.baseTime.IsZero() {
		p.clock = relativeClock{set: true, base: now, baseTime: ts}
	}
	return p.clock.base.Add(ts.Sub(p.clock.baseTime))
}

func (p *Parser) reject(reason string) {
	if p.metrics != nil {
		p.metrics.RecordLineRejected(p.adapter, reason)
	}
}
