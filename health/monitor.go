package health

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/c360/streamagent/metric"
)

// Monitor holds the latest Status of every named part.
type Monitor struct {
	mu      sync.RWMutex
	parts   map[string]Status
	metrics *metric.Metrics
}

// NewMonitor creates a monitor. When metrics is non-nil every update is
// mirrored into the health status gauge.
func NewMonitor(metrics *metric.Metrics) *Monitor {
	return &Monitor{
		parts:   make(map[string]Status),
		metrics: metrics,
	}
}

// Update records status for name. Since is kept from the previous status
// while the state does not change.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	status.Healthy = status.IsHealthy()
	if prev, ok := m.parts[name]; ok && prev.State == status.State && status.Link == nil {
		status.Since = prev.Since
	}
	if status.Since.IsZero() {
		status.Since = time.Now()
	}
	m.parts[name] = status

	if m.metrics != nil {
		m.metrics.RecordHealthStatus(name, status.Healthy)
	}
}

func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, newStatus(name, StateHealthy, message))
}

func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, newStatus(name, StateDegraded, message))
}

// UpdateUnhealthy records an unhealthy part; message is sanitized.
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, newStatus(name, StateUnhealthy, sanitize(message)))
}

// Get returns the status recorded for name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.parts[name]
	return st, ok
}

// Remove stops reporting name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parts, name)
}

// Names returns the monitored part names in order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.parts))
	for name := range m.parts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AggregateHealth folds every part into one status named system, with
// parts sorted by name.
func (m *Monitor) AggregateHealth(system string) Status {
	m.mu.RLock()
	parts := make([]Status, 0, len(m.parts))
	for _, st := range m.parts {
		parts = append(parts, st)
	}
	m.mu.RUnlock()

	slices.SortFunc(parts, func(a, b Status) int { return strings.Compare(a.Component, b.Component) })
	return Aggregate(system, parts)
}
