// Package arbiter owns the three alert-tier states and enforces the
// preemption rules between them: Primary > FlashAlert > EarlyWarning.
package arbiter

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/feed"
	"github.com/alertcast/alertcast/internal/metrics"
)

// Sink receives every tier transition. Implemented by the sensor package.
type Sink interface {
	SetTier(tier feed.Tier, active bool)
}

// Trigger receives playback requests for freshly activated tiers.
// Implementations must return quickly; device I/O happens on their own
// goroutines. Implemented by the playback coordinator.
type Trigger interface {
	Play(tier feed.Tier, isTest bool, areas []string)
}

// TierStatus is a read-only view of one tier for the status API.
type TierStatus struct {
	Active bool     `json:"active"`
	Areas  []string `json:"areas,omitempty"`
}

// tierState is the mutable per-tier record. Mutated only under Arbiter.mu.
// The generation counter rises on every activation and deactivation; an
// expiry goroutine armed for an older generation is stale and must no-op,
// which closes the race between a firing timer and a concurrent preemption.
type tierState struct {
	active     bool
	areas      []string
	generation uint64
	timer      *time.Timer
}

// Arbiter is the alert-tier state machine. One mutex serializes every
// mutation, so the push feed, the poll feed and expiring timers can never
// interleave half-applied transitions.
type Arbiter struct {
	log     *zap.SugaredLogger
	timeout time.Duration
	sink    Sink
	trigger Trigger
	metrics *metrics.Metrics

	// earlyWarningGate is the time-of-day gate for the EarlyWarning tier.
	earlyWarningGate func() bool

	mu    sync.Mutex
	tiers map[feed.Tier]*tierState
}

// New creates an arbiter with all tiers idle.
func New(
	log *zap.SugaredLogger,
	timeout time.Duration,
	sink Sink,
	trigger Trigger,
	earlyWarningGate func() bool,
	m *metrics.Metrics,
) *Arbiter {
	return &Arbiter{
		log:              log,
		timeout:          timeout,
		sink:             sink,
		trigger:          trigger,
		earlyWarningGate: earlyWarningGate,
		metrics:          m,
		tiers: map[feed.Tier]*tierState{
			feed.TierPrimary:      {},
			feed.TierEarlyWarning: {},
			feed.TierFlashAlert:   {},
		},
	}
}

// ActivatePrimary forces both lower tiers idle, activates the primary tier
// and triggers playback. Reactivation while already active replaces the
// expiry timer, extending the active window.
func (a *Arbiter) ActivatePrimary(areas []string, isTest bool) {
	a.mu.Lock()

	a.deactivateLocked(feed.TierEarlyWarning, "preempted by primary")
	a.deactivateLocked(feed.TierFlashAlert, "preempted by primary")
	a.activateLocked(feed.TierPrimary, areas)

	a.mu.Unlock()

	a.trigger.Play(feed.TierPrimary, isTest, areas)
}

// AllClear forces the primary tier idle. The lower tiers are left alone: an
// all-clear only ends the primary alert. The inactive signal is emitted even
// if the tier was already idle so the hub always lands in a known state.
func (a *Arbiter) AllClear() {
	a.mu.Lock()
	wasActive := a.deactivateLocked(feed.TierPrimary, "all clear")
	a.mu.Unlock()

	if !wasActive {
		a.sink.SetTier(feed.TierPrimary, false)
	}
}

// ActivateEarlyWarning activates the early-warning tier unless a higher
// tier is active or the time-of-day gate rejects it. Returns whether the
// activation was accepted.
func (a *Arbiter) ActivateEarlyWarning(areas []string) bool {
	a.mu.Lock()

	if a.tiers[feed.TierPrimary].active || a.tiers[feed.TierFlashAlert].active {
		a.mu.Unlock()
		a.log.Debugw("Early warning rejected, higher tier active")

		return false
	}

	if a.earlyWarningGate != nil && !a.earlyWarningGate() {
		a.mu.Unlock()
		a.log.Debugw("Early warning rejected outside allowed hours")

		return false
	}

	a.activateLocked(feed.TierEarlyWarning, areas)
	a.mu.Unlock()

	a.trigger.Play(feed.TierEarlyWarning, false, areas)

	return true
}

// ActivateFlashAlert activates the flash tier unless the primary tier is
// active, preempting an active early warning first. Returns whether the
// activation was accepted.
func (a *Arbiter) ActivateFlashAlert(areas []string) bool {
	a.mu.Lock()

	if a.tiers[feed.TierPrimary].active {
		a.mu.Unlock()
		a.log.Debugw("Flash alert rejected, primary active")

		return false
	}

	a.deactivateLocked(feed.TierEarlyWarning, "preempted by flash alert")
	a.activateLocked(feed.TierFlashAlert, areas)
	a.mu.Unlock()

	a.trigger.Play(feed.TierFlashAlert, false, areas)

	return true
}

// Reset forces one tier idle, canceling its expiry timer. Safe to call on
// an idle tier.
func (a *Arbiter) Reset(tier feed.Tier) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deactivateLocked(tier, "manual reset")
}

// Active reports whether the given tier is currently active.
func (a *Arbiter) Active(tier feed.Tier) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.tiers[tier].active
}

// Snapshot returns a consistent view of all tiers.
func (a *Arbiter) Snapshot() map[feed.Tier]TierStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := make(map[feed.Tier]TierStatus, len(a.tiers))

	for tier, state := range a.tiers {
		status := TierStatus{Active: state.active}
		if state.active {
			status.Areas = append([]string(nil), state.areas...)
		}

		snapshot[tier] = status
	}

	return snapshot
}

// Stop forces all tiers idle and cancels their timers.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for tier := range a.tiers {
		a.deactivateLocked(tier, "shutdown")
	}
}

// activateLocked marks a tier active and arms a fresh expiry timer. An
// existing timer is stopped and its generation invalidated, so no two timers
// for the same tier are ever pending. Caller holds a.mu.
func (a *Arbiter) activateLocked(tier feed.Tier, areas []string) {
	state := a.tiers[tier]

	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}

	state.generation++
	state.active = true
	state.areas = append([]string(nil), areas...)

	generation := state.generation
	state.timer = time.AfterFunc(a.timeout, func() {
		a.expire(tier, generation)
	})

	a.log.Infow("Tier activated",
		"tier", tier.String(),
		"areas", areas,
		"timeout", a.timeout)
	a.metrics.TierActivations.WithLabelValues(tier.Slug()).Inc()
	a.sink.SetTier(tier, true)
}

// deactivateLocked forces a tier idle if it is active. Returns whether a
// transition happened. Caller holds a.mu.
func (a *Arbiter) deactivateLocked(tier feed.Tier, cause string) bool {
	state := a.tiers[tier]

	if !state.active {
		return false
	}

	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}

	// Invalidate any expiry goroutine that already fired and is waiting on
	// the mutex.
	state.generation++
	state.active = false
	state.areas = nil

	a.log.Infow("Tier deactivated", "tier", tier.String(), "cause", cause)
	a.metrics.TierDeactivations.WithLabelValues(tier.Slug()).Inc()
	a.sink.SetTier(tier, false)

	return true
}

// expire applies the timeout transition for one tier. A generation mismatch
// means the activation this timer belonged to was superseded; firing then is
// a benign no-op, not an error.
func (a *Arbiter) expire(tier feed.Tier, generation uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.tiers[tier]
	if !state.active || state.generation != generation {
		return
	}

	a.deactivateLocked(tier, "expired")
}
