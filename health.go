package flowgate

import (
	"sync"
	"time"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthUnhealthyPeriod  = 30 * time.Second
)

// HealthState describes the recent upstream health of a backend.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (h HealthState) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// HealthTracker tracks per-provider upstream outcomes using a circuit breaker
// pattern. The state is reported to clients; it never blocks a request.
type HealthTracker struct {
	mu        sync.Mutex
	providers map[string]*providerHealth
	now       func() time.Time
}

type providerHealth struct {
	state       HealthState
	failures    []time.Time // sliding window of failure timestamps
	unhealthyAt time.Time   // when state transitioned to unhealthy
	lastError   string
}

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		providers: make(map[string]*providerHealth),
		now:       time.Now,
	}
}

// GetHealth returns the current health state for a provider.
func (h *HealthTracker) GetHealth(providerID string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, ok := h.providers[providerID]
	if !ok {
		return HealthHealthy
	}
	return h.refresh(ph)
}

// LastError returns the message of the most recent recorded failure.
func (h *HealthTracker) LastError(providerID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ph, ok := h.providers[providerID]; ok {
		return ph.lastError
	}
	return ""
}

// RecordSuccess records a stream that completed without an upstream error.
func (h *HealthTracker) RecordSuccess(providerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.getOrCreate(providerID)
	ph.state = HealthHealthy
	ph.failures = ph.failures[:0]
	ph.lastError = ""
}

// RecordFailure records an upstream failure.
func (h *HealthTracker) RecordFailure(providerID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.getOrCreate(providerID)
	if err != nil {
		ph.lastError = err.Error()
	}
	if ph.state == HealthUnhealthy {
		return
	}

	now := h.now()

	// Prune old failures outside the window.
	cutoff := now.Add(-healthFailureWindow)
	valid := ph.failures[:0]
	for _, t := range ph.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	ph.failures = append(valid, now)

	if len(ph.failures) >= healthFailureThreshold {
		ph.state = HealthUnhealthy
		ph.unhealthyAt = now
	}
}

// refresh moves an unhealthy provider to half-open once the cool-down has
// elapsed. Must be called with lock held.
func (h *HealthTracker) refresh(ph *providerHealth) HealthState {
	if ph.state == HealthUnhealthy && h.now().Sub(ph.unhealthyAt) >= healthUnhealthyPeriod {
		ph.state = HealthHalfOpen
	}
	return ph.state
}

func (h *HealthTracker) getOrCreate(providerID string) *providerHealth {
	ph, ok := h.providers[providerID]
	if !ok {
		ph = &providerHealth{state: HealthHealthy}
		h.providers[providerID] = ph
	}
	return ph
}
