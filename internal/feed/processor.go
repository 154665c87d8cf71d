package feed

import (
	"time"

	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/metrics"
)

// Source labels for logs and metrics.
const (
	sourceStream = "stream"
	sourcePoll   = "poll"
)

// Arbiter is the downstream consumer of accepted alerts. Implemented by the
// arbiter package.
type Arbiter interface {
	ActivatePrimary(areas []string, isTest bool)
	AllClear()
	ActivateEarlyWarning(areas []string) bool
	ActivateFlashAlert(areas []string) bool
}

// Processor runs the per-payload pipeline: normalize, dedup, filter, then
// hand the surviving alert to the arbiter. It is safe for the stream and the
// poller to call it concurrently; shared state lives behind the window's and
// the arbiter's own locks.
type Processor struct {
	log        *zap.SugaredLogger
	normalizer *Normalizer
	window     *Window
	filter     *Filter
	arbiter    Arbiter
	metrics    *metrics.Metrics

	// now is a test seam for the freshness check.
	now func() time.Time
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(
	log *zap.SugaredLogger,
	normalizer *Normalizer,
	window *Window,
	filter *Filter,
	arbiter Arbiter,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		log:        log,
		normalizer: normalizer,
		window:     window,
		filter:     filter,
		arbiter:    arbiter,
		metrics:    m,
		now:        time.Now,
	}
}

// HandleStreamMessage processes one push-stream frame. Stream frames carry
// no stable identity and describe the current moment, so they skip the dedup
// window and the freshness check.
func (p *Processor) HandleStreamMessage(raw []byte) {
	alert, reason := p.normalizer.NormalizeStream(raw)

	switch reason {
	case RejectNone:
		// Accepted - handled below.
	case RejectAllClear:
		p.log.Infow("All-clear received, deactivating primary alert")
		p.arbiter.AllClear()

		return
	default:
		p.metrics.AlertsRejected.WithLabelValues(sourceStream, reason.String()).Inc()

		return
	}

	// Test broadcasts always play, regardless of the monitored-city list.
	if alert.IsTest {
		p.log.Infow("Test alert received", "areas", alert.Areas)
		p.metrics.AlertsAccepted.WithLabelValues(sourceStream, alert.Tier.String()).Inc()
		p.arbiter.ActivatePrimary(alert.Areas, true)

		return
	}

	relevant := p.filter.RelevantAreas(alert.Areas)
	if len(relevant) == 0 {
		p.log.Debugw("Stream alert outside monitored areas", "areas", alert.Areas)

		return
	}

	p.log.Infow("Primary alert received", "areas", relevant)
	p.metrics.AlertsAccepted.WithLabelValues(sourceStream, alert.Tier.String()).Inc()
	p.arbiter.ActivatePrimary(relevant, false)
}

// ProcessHistory processes one polled batch. Every record that matches the
// category and title filters is marked in the dedup window before any
// freshness or area decision, so a late-arriving duplicate can never
// re-trigger an alert its sibling already fired.
func (p *Processor) ProcessHistory(records []HistoryRecord) {
	for _, rec := range records {
		p.processHistoryRecord(rec)
	}
}

func (p *Processor) processHistoryRecord(rec HistoryRecord) {
	alert, reason := p.normalizer.NormalizeHistory(rec)
	if reason != RejectNone {
		if reason != RejectCategory {
			p.metrics.AlertsRejected.WithLabelValues(sourcePoll, reason.String()).Inc()
		}

		return
	}

	area := alert.Areas[0]

	identity := Identity(alert.OccurredAt, area, alert.RawCategory, alert.RawTitle)
	if !p.window.SeenOrRecord(identity) {
		p.log.Debugw("Skipping duplicate alert", "identity", identity)
		p.metrics.AlertsDuplicate.Inc()

		return
	}

	now := p.now()
	if !p.filter.Fresh(alert.OccurredAt, now) {
		p.log.Debugw("Dropping stale alert",
			"occurredAt", alert.OccurredAt,
			"area", area)
		p.metrics.AlertsStale.Inc()

		return
	}

	if !p.filter.AreaRelevant(area) {
		p.log.Debugw("Polled alert outside monitored areas", "area", area)

		return
	}

	switch alert.Tier {
	case TierEarlyWarning:
		if p.arbiter.ActivateEarlyWarning(alert.Areas) {
			p.log.Infow("Early warning activated", "area", area)
			p.metrics.AlertsAccepted.WithLabelValues(sourcePoll, alert.Tier.String()).Inc()
		}
	case TierFlashAlert:
		if p.arbiter.ActivateFlashAlert(alert.Areas) {
			p.log.Infow("Flash alert activated", "area", area)
			p.metrics.AlertsAccepted.WithLabelValues(sourcePoll, alert.Tier.String()).Inc()
		}
	default:
		// The history normalizer only produces the two polled tiers.
		p.log.Errorw("Unexpected tier from history record", "tier", alert.Tier.String())
	}
}
