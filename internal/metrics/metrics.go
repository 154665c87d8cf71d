// Package metrics defines the Prometheus instrumentation for the monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the monitor updates. All collectors are
// registered on the registry passed to New.
type Metrics struct {
	AlertsAccepted  *prometheus.CounterVec
	AlertsRejected  *prometheus.CounterVec
	AlertsDuplicate prometheus.Counter
	AlertsStale     prometheus.Counter

	TierActivations   *prometheus.CounterVec
	TierDeactivations *prometheus.CounterVec

	PlaybackAttempts prometheus.Counter
	PlaybackFailures prometheus.Counter

	PollFailures     prometheus.Counter
	StreamReconnects prometheus.Counter
}

// New creates and registers the monitor's collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AlertsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "alerts_accepted_total",
			Help:      "Alerts that passed normalization, dedup and relevance filters.",
		}, []string{"source", "tier"}),
		AlertsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "alerts_rejected_total",
			Help:      "Raw payloads rejected during normalization.",
		}, []string{"source", "reason"}),
		AlertsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "alerts_duplicate_total",
			Help:      "Alerts suppressed by the dedup window.",
		}),
		AlertsStale: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "alerts_stale_total",
			Help:      "Alerts dropped by the freshness window.",
		}),
		TierActivations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "tier_activations_total",
			Help:      "Tier transitions to active.",
		}, []string{"tier"}),
		TierDeactivations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "tier_deactivations_total",
			Help:      "Tier transitions to idle.",
		}, []string{"tier"}),
		PlaybackAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "playback_attempts_total",
			Help:      "Play commands issued to devices, including retries.",
		}),
		PlaybackFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "playback_failures_total",
			Help:      "Devices given up on after exhausting retries.",
		}),
		PollFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "poll_failures_total",
			Help:      "Failed history poll cycles.",
		}),
		StreamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "alertcast",
			Name:      "stream_reconnects_total",
			Help:      "Push stream reconnect attempts.",
		}),
	}
}
