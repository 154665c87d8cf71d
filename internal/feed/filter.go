package feed

import (
	"time"

	"github.com/alertcast/alertcast/internal/config"
)

// NationwideArea is the sentinel area value meaning the alert applies
// everywhere. It is always relevant regardless of the monitored-city list.
const NationwideArea = "ברחבי הארץ"

// Freshness bounds for polled alerts relative to the current time. Older
// records are history the monitor already had a chance to act on; records
// from the future indicate clock skew and are equally untrustworthy.
const (
	MaxAlertAge   = 60 * time.Second
	MaxClockAhead = 10 * time.Second
)

// Filter decides whether a canonical alert is relevant: area match,
// freshness and the early-warning time-of-day gate.
type Filter struct {
	cities     map[string]struct{}
	monitorAll bool

	hours    config.HourWindow
	location *time.Location
}

// NewFilter creates a filter for the monitored cities. An empty city list
// enables monitor-all mode.
func NewFilter(cities []string, hours config.HourWindow, location *time.Location) *Filter {
	set := make(map[string]struct{}, len(cities))
	for _, city := range cities {
		set[city] = struct{}{}
	}

	return &Filter{
		cities:     set,
		monitorAll: len(cities) == 0,
		hours:      hours,
		location:   location,
	}
}

// AreaRelevant reports whether a single area concerns this monitor.
func (f *Filter) AreaRelevant(area string) bool {
	if area == NationwideArea || f.monitorAll {
		return true
	}

	_, ok := f.cities[area]

	return ok
}

// RelevantAreas returns the subset of areas that concern this monitor,
// preserving input order.
func (f *Filter) RelevantAreas(areas []string) []string {
	relevant := make([]string, 0, len(areas))

	for _, area := range areas {
		if f.AreaRelevant(area) {
			relevant = append(relevant, area)
		}
	}

	return relevant
}

// Fresh reports whether occurredAt falls inside [now-MaxAlertAge,
// now+MaxClockAhead].
func (f *Filter) Fresh(occurredAt, now time.Time) bool {
	if occurredAt.Before(now.Add(-MaxAlertAge)) {
		return false
	}

	return !occurredAt.After(now.Add(MaxClockAhead))
}

// InEarlyWarningHours reports whether the local hour is inside the
// configured [start, end) early-warning window.
func (f *Filter) InEarlyWarningHours(now time.Time) bool {
	hour := now.In(f.location).Hour()

	return hour >= f.hours.Start && hour < f.hours.End
}
