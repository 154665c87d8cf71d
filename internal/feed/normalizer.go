package feed

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Raw payload codes used by the push stream.
const (
	// streamTypeTest marks a system test broadcast.
	streamTypeTest = 0
	// streamTypeAllClear signals immediate primary deactivation.
	streamTypeAllClear = 255
)

// Polled-history categories that map to alert tiers. Records in these
// categories still require an exact title match before they are accepted.
const (
	categoryEarlyWarning = 13
	categoryFlashAlert   = 14
)

// historyDateLayout is the timestamp format used by the polled history API.
const historyDateLayout = "2006-01-02 15:04:05"

// RejectReason classifies why a raw payload did not produce an Alert.
// Rejections are expected operating conditions, not errors.
type RejectReason int

const (
	RejectNone RejectReason = iota

	// RejectMalformed covers unparseable or incomplete payloads.
	RejectMalformed

	// RejectCategory covers polled records whose category is not an alert
	// category. These are dropped silently.
	RejectCategory

	// RejectTitle covers polled records in an alert category whose title
	// does not match the configured phrase. Expected, but worth a debug line.
	RejectTitle

	// RejectAllClear is the stream's all-clear signal. Not an alert; the
	// caller must force primary deactivation.
	RejectAllClear
)

// String returns the reason label used in logs and metrics.
func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectMalformed:
		return "malformed"
	case RejectCategory:
		return "non-matching-category"
	case RejectTitle:
		return "non-matching-title"
	case RejectAllClear:
		return "all-clear-signal"
	default:
		return "unknown"
	}
}

// StreamMessage is the raw push-stream payload.
type StreamMessage struct {
	Areas     string `json:"areas"`
	AlertType int    `json:"alert_type"`
}

// HistoryRecord is one raw record from the polled history API.
type HistoryRecord struct {
	Category  int    `json:"category"`
	Title     string `json:"title"`
	AlertDate string `json:"alertDate"`
	Data      string `json:"data"`
}

// Normalizer converts raw source payloads into canonical Alerts.
type Normalizer struct {
	log *zap.SugaredLogger

	earlyWarningTitle string
	flashTitle        string

	// location interprets the polled feed's naive timestamps.
	location *time.Location
}

// NewNormalizer creates a normalizer for the configured alert titles.
func NewNormalizer(log *zap.SugaredLogger, earlyWarningTitle, flashTitle string, location *time.Location) *Normalizer {
	return &Normalizer{
		log:               log,
		earlyWarningTitle: earlyWarningTitle,
		flashTitle:        flashTitle,
		location:          location,
	}
}

// NormalizeStream parses one push-stream frame. A nil Alert means the frame
// was rejected for the returned reason.
func (n *Normalizer) NormalizeStream(raw []byte) (*Alert, RejectReason) {
	var msg StreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		n.log.Warnw("Malformed stream payload", "error", err.Error())
		return nil, RejectMalformed
	}

	if msg.AlertType == streamTypeAllClear {
		return nil, RejectAllClear
	}

	areas := splitAreas(msg.Areas)
	if len(areas) == 0 {
		n.log.Warnw("Stream payload missing areas", "alertType", msg.AlertType)
		return nil, RejectMalformed
	}

	return &Alert{
		Tier:       TierPrimary,
		Areas:      areas,
		OccurredAt: time.Now(),
		IsTest:     msg.AlertType == streamTypeTest,
	}, RejectNone
}

// NormalizeHistory classifies one polled record. Only the two alert
// categories with an exact title match produce an Alert; everything else is
// rejected with a classified reason.
func (n *Normalizer) NormalizeHistory(rec HistoryRecord) (*Alert, RejectReason) {
	var tier Tier

	switch rec.Category {
	case categoryEarlyWarning:
		if rec.Title != n.earlyWarningTitle {
			n.log.Debugw("Ignoring early-warning record with non-matching title",
				"title", rec.Title)
			return nil, RejectTitle
		}

		tier = TierEarlyWarning
	case categoryFlashAlert:
		if rec.Title != n.flashTitle {
			n.log.Debugw("Ignoring flash record with non-matching title",
				"title", rec.Title)
			return nil, RejectTitle
		}

		tier = TierFlashAlert
	default:
		return nil, RejectCategory
	}

	area := strings.TrimSpace(rec.Data)
	if area == "" {
		n.log.Warnw("History record missing area", "category", rec.Category)
		return nil, RejectMalformed
	}

	occurredAt, err := time.ParseInLocation(historyDateLayout, rec.AlertDate, n.location)
	if err != nil {
		n.log.Warnw("History record has malformed date",
			"alertDate", rec.AlertDate,
			"error", err.Error())
		return nil, RejectMalformed
	}

	return &Alert{
		Tier:        tier,
		Areas:       []string{area},
		OccurredAt:  occurredAt,
		RawCategory: rec.Category,
		RawTitle:    rec.Title,
	}, RejectNone
}

// splitAreas turns the comma-separated area string into a trimmed list,
// dropping empty entries.
func splitAreas(s string) []string {
	parts := strings.Split(s, ",")
	areas := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			areas = append(areas, trimmed)
		}
	}

	return areas
}
