package feed

import (
	"sync"
	"time"
)

// HealthStatus is a point-in-time snapshot of feed liveness.
type HealthStatus struct {
	StreamConnected bool      `json:"streamConnected"`
	LastPollSuccess time.Time `json:"lastPollSuccess"`
}

// Health tracks feed liveness for the status API. Updated by the stream
// listener and the poller, read by the HTTP surface.
type Health struct {
	mu     sync.RWMutex
	status HealthStatus
}

// NewHealth creates an empty health tracker.
func NewHealth() *Health {
	return &Health{}
}

// SetStreamConnected records the push stream's connection state.
func (h *Health) SetStreamConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.StreamConnected = connected
}

// SetPollSuccess records the completion time of a successful poll cycle.
func (h *Health) SetPollSuccess(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.LastPollSuccess = at
}

// Snapshot returns a consistent copy of the current status.
func (h *Health) Snapshot() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.status
}
