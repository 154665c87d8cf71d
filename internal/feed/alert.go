// Package feed ingests the two civil-alert sources, normalizes their payloads
// into a canonical Alert and decides which alerts reach the arbiter.
package feed

import (
	"fmt"
	"strings"
	"time"
)

// Tier is one of the three independent alert classes. Priority for
// preemption is Primary > FlashAlert > EarlyWarning.
type Tier int

const (
	TierPrimary Tier = iota
	TierEarlyWarning
	TierFlashAlert
)

// String returns the human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "Primary"
	case TierEarlyWarning:
		return "EarlyWarning"
	case TierFlashAlert:
		return "FlashAlert"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Slug returns the tier name used in MQTT topics and JSON payloads.
func (t Tier) Slug() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierEarlyWarning:
		return "early_warning"
	case TierFlashAlert:
		return "flash"
	default:
		return "unknown"
	}
}

// Alert is the canonical alert produced by the normalizer. It is immutable
// once constructed.
type Alert struct {
	Tier        Tier
	Areas       []string
	OccurredAt  time.Time
	RawCategory int
	RawTitle    string
	IsTest      bool
}

// identityTitleRunes bounds the title contribution to the dedup key. Polled
// titles are stable for a given alert class, so a short prefix is enough to
// separate classes without letting minor suffix edits defeat deduplication.
const identityTitleRunes = 16

// Identity derives the stable dedup key for one polled record. Two records a
// human would consider the same notification must map to the same key.
func Identity(occurredAt time.Time, area string, category int, title string) string {
	normalized := strings.Join(strings.Fields(area), " ")

	prefix := []rune(title)
	if len(prefix) > identityTitleRunes {
		prefix = prefix[:identityTitleRunes]
	}

	return fmt.Sprintf("%d|%s|%d|%s", occurredAt.UnixMilli(), normalized, category, string(prefix))
}
