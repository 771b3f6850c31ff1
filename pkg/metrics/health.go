package metrics

import (
	"sync"
	"time"
)

// Component names reported by the scheduler process
const (
	ComponentMesos      = "mesos"
	ComponentCloudWatch = "cloudwatch"
	ComponentELB        = "elb"
)

// Overall status values
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// criticalComponents gate readiness. Everything else is informational.
var criticalComponents = []string{ComponentMesos}

// HealthStatus is the body of the health and readiness endpoints
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last reported state of one dependency
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker collects component reports from the driver, the metrics
// source and the membership synchronizer.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	started    time.Time
	version    string
}

func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		started:    time.Now(),
		version:    version,
	}
}

// SetComponent replaces the report for name
func (h *HealthChecker) SetComponent(name string, healthy bool, message string) {
	report := ComponentHealth{Name: name, Healthy: healthy, Message: message, Updated: time.Now()}

	h.mu.Lock()
	h.components[name] = report
	h.mu.Unlock()
}

// Component returns the last report for name
func (h *HealthChecker) Component(name string) (ComponentHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	comp, ok := h.components[name]
	return comp, ok
}

// Health summarizes every reported component. One failing report makes the
// whole process unhealthy.
func (h *HealthChecker) Health() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := h.status(StatusHealthy)
	for name, comp := range h.components {
		if comp.Healthy {
			st.Components[name] = StatusHealthy
			continue
		}
		st.Status = StatusUnhealthy
		st.Components[name] = StatusUnhealthy + ": " + comp.Message
	}
	return st
}

// Readiness considers only the critical components. A critical component
// that has never reported is not ready.
func (h *HealthChecker) Readiness() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := h.status(StatusReady)
	for _, name := range criticalComponents {
		comp, ok := h.components[name]
		if ok && comp.Healthy {
			st.Components[name] = StatusReady
			continue
		}

		st.Status = StatusNotReady
		if !ok {
			st.Components[name] = "not registered"
			st.Message = "waiting for " + name + " initialization"
		} else {
			st.Components[name] = "not ready: " + comp.Message
			st.Message = "waiting for " + name
		}
	}
	return st
}

func (h *HealthChecker) status(initial string) HealthStatus {
	return HealthStatus{
		Status:     initial,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(h.components)),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}
}
