package observation

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is the sealed set of observation payloads.
type Value interface {
	IsUnavailable() bool
	String() string
	sealed()
}

// Kind selects the value shape a data item produces.
type Kind int

const (
	KindScalar Kind = iota
	KindCondition
	KindMessage
	KindTimeSeries
	KindAsset
)

// Arity is the number of protocol fields a value of this kind consumes.
func (k Kind) Arity() int {
	switch k {
	case KindCondition:
		return 5
	case KindMessage:
		return 2
	case KindTimeSeries:
		return 3
	default:
		return 1
	}
}

// UnavailableOf returns the UNAVAILABLE value for a kind.
func UnavailableOf(k Kind) Value {
	switch k {
	case KindCondition:
		return ConditionState{Trigger: ConditionValue{Level: LevelUnavailable}}
	case KindMessage:
		return Message{Text: Unavailable}
	case KindTimeSeries:
		return TimeSeries{Unavailable: true}
	case KindAsset:
		return AssetEvent{AssetID: Unavailable}
	default:
		return Scalar{Text: Unavailable}
	}
}

// Scalar is a SAMPLE or EVENT value. Numeric is set when Text parsed as a
// number, in which case Number holds it.
type Scalar struct {
	Text    string
	Number  float64
	Numeric bool
}

// NewScalar builds a scalar from wire text.
func NewScalar(text string) Scalar {
	s := Scalar{Text: text}
	if text == Unavailable {
		return s
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
		s.Number = f
		s.Numeric = true
	}
	return s
}

// NumberScalar builds a numeric scalar.
func NumberScalar(f float64) Scalar {
	return Scalar{Text: strconv.FormatFloat(f, 'f', -1, 64), Number: f, Numeric: true}
}

func (s Scalar) IsUnavailable() bool { return s.Text == Unavailable }
func (s Scalar) String() string      { return s.Text }
func (Scalar) sealed()               {}

// Level is a condition severity.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelFault
	LevelUnavailable
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelFault:
		return "FAULT"
	case LevelUnavailable:
		return Unavailable
	default:
		return "NORMAL"
	}
}

// ParseLevel parses a condition level, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NORMAL":
		return LevelNormal, nil
	case "WARNING":
		return LevelWarning, nil
	case "FAULT":
		return LevelFault, nil
	case Unavailable:
		return LevelUnavailable, nil
	}
	return 0, fmt.Errorf("unknown condition level %q", s)
}

// ConditionValue is one condition tuple as reported by an adapter.
type ConditionValue struct {
	Level          Level
	NativeCode     string
	NativeSeverity string
	Qualifier      string
	Text           string
}

func (c ConditionValue) IsUnavailable() bool { return c.Level == LevelUnavailable }
func (c ConditionValue) String() string {
	if c.NativeCode == "" {
		return c.Level.String()
	}
	return c.Level.String() + ":" + c.NativeCode
}
func (ConditionValue) sealed() {}

// ConditionState is the value recorded for a condition item: the tuple that
// triggered the change and an immutable snapshot of the active set after it.
type ConditionState struct {
	Trigger ConditionValue
	Active  []ConditionValue
}

// Rendered returns the entries a reader sees: the active set, or a single
// NORMAL or UNAVAILABLE entry when nothing is active.
func (c ConditionState) Rendered() []ConditionValue {
	if len(c.Active) > 0 {
		return c.Active
	}
	if c.Trigger.Level == LevelUnavailable {
		return []ConditionValue{{Level: LevelUnavailable}}
	}
	return []ConditionValue{{Level: LevelNormal}}
}

func (c ConditionState) IsUnavailable() bool {
	return len(c.Active) == 0 && c.Trigger.Level == LevelUnavailable
}

func (c ConditionState) String() string {
	rendered := c.Rendered()
	parts := make([]string, len(rendered))
	for i, r := range rendered {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}
func (ConditionState) sealed() {}

// Message is an EVENT of type MESSAGE.
type Message struct {
	NativeCode string
	Text       string
}

func (m Message) IsUnavailable() bool { return m.Text == Unavailable }
func (m Message) String() string      { return m.Text }
func (Message) sealed()               {}

// TimeSeries is a SAMPLE with TIME_SERIES representation.
type TimeSeries struct {
	Count       int
	Rate        float64
	Samples     []float64
	Unavailable bool
}

func (t TimeSeries) IsUnavailable() bool { return t.Unavailable }
func (t TimeSeries) String() string {
	if t.Unavailable {
		return Unavailable
	}
	parts := make([]string, len(t.Samples))
	for i, v := range t.Samples {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
func (TimeSeries) sealed() {}

// AssetEvent is the value of the AssetChanged and AssetRemoved items.
type AssetEvent struct {
	AssetID   string
	AssetType string
}

func (a AssetEvent) IsUnavailable() bool { return a.AssetID == Unavailable }
func (a AssetEvent) String() string      { return a.AssetID }
func (AssetEvent) sealed()               {}

// Equal reports whether two values render identically. It backs duplicate
// suppression.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch av := a.(type) {
	case Scalar:
		bv, ok := b.(Scalar)
		return ok && av.Text == bv.Text
	case Message:
		bv, ok := b.(Message)
		return ok && av == bv
	case AssetEvent:
		bv, ok := b.(AssetEvent)
		return ok && av == bv
	case TimeSeries:
		bv, ok := b.(TimeSeries)
		return ok && av.String() == bv.String() && av.Rate == bv.Rate
	case ConditionValue:
		bv, ok := b.(ConditionValue)
		return ok && av == bv
	case ConditionState:
		bv, ok := b.(ConditionState)
		if !ok {
			return false
		}
		ar, br := av.Rendered(), bv.Rendered()
		if len(ar) != len(br) {
			return false
		}
		for i := range ar {
			if ar[i] != br[i] {
				return false
			}
		}
		return true
	}
	return false
}
