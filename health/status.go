package health

import (
	"fmt"
	"time"
)

// State is the coarse health of one part of the agent.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// rank orders states from best to worst; unknown states count as unhealthy.
func (s State) rank() int {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

// Status is the health of a part, or of the whole agent when Parts is set.
type Status struct {
	Component string `json:"component"`
	Healthy   bool   `json:"healthy"`
	State     State  `json:"status"`
	Message   string `json:"message,omitempty"`
	// Since is when the part entered State.
	Since time.Time  `json:"since"`
	Link  *LinkStats `json:"link,omitempty"`
	Parts []Status   `json:"parts,omitempty"`
}

// LinkStats are the counters reported for an adapter or sink connection.
type LinkStats struct {
	Uptime        time.Duration `json:"uptime"`
	Reconnects    int           `json:"reconnects"`
	LinesReceived int64         `json:"lines_received,omitempty"`
	LastActivity  time.Time     `json:"last_activity,omitempty"`
}

func newStatus(component string, state State, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		State:     state,
		Message:   message,
		Since:     time.Now(),
	}
}

func (s Status) IsHealthy() bool   { return s.State == StateHealthy }
func (s Status) IsDegraded() bool  { return s.State == StateDegraded }
func (s Status) IsUnhealthy() bool { return s.State.rank() == StateUnhealthy.rank() }

// Aggregate reports the worst state among parts. No parts is healthy.
func Aggregate(component string, parts []Status) Status {
	worst := StateHealthy
	counts := make(map[State]int, 3)
	for _, p := range parts {
		counts[p.State]++
		if p.State.rank() > worst.rank() {
			worst = p.State
		}
	}

	var msg string
	switch worst {
	case StateHealthy:
		msg = fmt.Sprintf("%d parts healthy", len(parts))
	default:
		msg = fmt.Sprintf("%d of %d parts %s", counts[worst], len(parts), worst)
	}

	agg := newStatus(component, worst, msg)
	agg.Parts = append([]Status(nil), parts...)
	return agg
}

// LinkState is a snapshot of an adapter or sink connection.
type LinkState struct {
	Connected bool
	// Since is when Connected last changed; zero if the link never tried.
	Since         time.Time
	Started       time.Time
	Reconnects    int
	LastError     string
	LinesReceived int64
	LastActivity  time.Time
}

// FromLink maps a connection snapshot to a Status. A link that is up is
// healthy, one that has not been attempted yet is degraded, and one that
// dropped is unhealthy with its sanitized last error as the message.
func FromLink(name string, ls LinkState) Status {
	var st Status
	switch {
	case ls.Connected:
		st = newStatus(name, StateHealthy, "connected")
	case ls.Since.IsZero():
		st = newStatus(name, StateDegraded, "not yet connected")
	default:
		msg := "disconnected"
		if ls.LastError != "" {
			msg = sanitize(ls.LastError)
		}
		st = newStatus(name, StateUnhealthy, msg)
	}
	if !ls.Since.IsZero() {
		st.Since = ls.Since
	}

	link := &LinkStats{
		Reconnects:    ls.Reconnects,
		LinesReceived: ls.LinesReceived,
		LastActivity:  ls.LastActivity,
	}
	if !ls.Started.IsZero() {
		link.Uptime = time.Since(ls.Started).Round(time.Second)
	}
	st.Link = link
	return st
}
