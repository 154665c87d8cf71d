// Package config loads and validates the alertcast configuration file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a value is missing or out of range.
const (
	DefaultConfigFilename = "alertcast.yaml"

	DefaultTimezone               = "Asia/Jerusalem"
	DefaultPlaybackTimeoutSeconds = 50
	DefaultVolume                 = 70
	DefaultEarlyWarningReduction  = 30
	DefaultFlashReduction         = 15
	DefaultEarlyWarningStartHour  = 10
	DefaultEarlyWarningEndHour    = 20
	DefaultPollIntervalSeconds    = 8
	DefaultPollTimeoutSeconds     = 10
	DefaultReconnectSeconds       = 5
	DefaultListenAddress          = ":8093"
	DefaultTopicPrefix            = "alertcast"
)

// HourWindow is a half-open [Start, End) window of local hours.
type HourWindow struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// MQTT holds the sensor sink connection settings. An empty broker disables
// the MQTT sink entirely.
type MQTT struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DeviceEntry is a statically configured playback device, used when no
// discovery transport is available on the network.
type DeviceEntry struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Config holds every tunable the monitor depends on.
type Config struct {
	// Cities is the monitored-city list. Empty means monitor-all.
	Cities []string `yaml:"cities"`

	// Timezone is the IANA zone used to interpret feed timestamps and the
	// early-warning hour window.
	Timezone string `yaml:"timezone"`

	// PlaybackTimeoutSeconds is how long a tier stays active before
	// auto-expiring.
	PlaybackTimeoutSeconds int `yaml:"playback_timeout_seconds"`

	// Volume is the global default playback volume, 0-100.
	Volume int `yaml:"volume"`

	// DeviceVolumes overrides Volume per device display name.
	DeviceVolumes map[string]int `yaml:"device_volumes"`

	// EarlyWarningVolumeReduction and FlashVolumeReduction are subtracted
	// from the effective volume for their tiers, 0-100.
	EarlyWarningVolumeReduction int `yaml:"early_warning_volume_reduction"`
	FlashVolumeReduction        int `yaml:"flash_volume_reduction"`

	// EarlyWarningHours gates early-warning playback to local hours
	// [Start, End).
	EarlyWarningHours HourWindow `yaml:"early_warning_hours"`

	PollURL             string `yaml:"poll_url"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	PollTimeoutSeconds  int    `yaml:"poll_timeout_seconds"`

	StreamURL                string `yaml:"stream_url"`
	ReconnectIntervalSeconds int    `yaml:"reconnect_interval_seconds"`

	// MediaBaseURL is the static file server that hosts the per-tier
	// announcement clips.
	MediaBaseURL string `yaml:"media_base_url"`

	// EarlyWarningTitle and FlashTitle are the exact polled-feed titles that
	// map to their tiers.
	EarlyWarningTitle string `yaml:"early_warning_title"`
	FlashTitle        string `yaml:"flash_title"`

	// Devices is the static playback device list announced on every
	// discovery refresh cycle.
	Devices []DeviceEntry `yaml:"devices"`

	MQTT MQTT `yaml:"mqtt"`

	ListenAddress string `yaml:"listen_address"`
	LogLevel      string `yaml:"log_level"`
}

// Load reads the configuration from path, applies defaults for out-of-range
// values and returns the warnings produced while doing so. The caller is
// expected to log each warning exactly once.
func Load(path string) (*Config, []string, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	warnings := cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, warnings, nil
}

// Normalize replaces missing or out-of-range values with documented defaults
// and returns one warning per replaced field. Normalize never fails: a bad
// tunable must not take the monitor down.
func (c *Config) Normalize() []string {
	var warnings []string

	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	} else if _, err := time.LoadLocation(c.Timezone); err != nil {
		warn("invalid timezone %q, falling back to %s", c.Timezone, DefaultTimezone)
		c.Timezone = DefaultTimezone
	}

	if c.PlaybackTimeoutSeconds <= 0 {
		c.PlaybackTimeoutSeconds = DefaultPlaybackTimeoutSeconds
	}

	if c.Volume < 0 || c.Volume > 100 {
		warn("volume %d out of range 0-100, falling back to %d", c.Volume, DefaultVolume)
		c.Volume = DefaultVolume
	} else if c.Volume == 0 {
		c.Volume = DefaultVolume
	}

	for name, v := range c.DeviceVolumes {
		if v < 0 || v > 100 {
			warn("device volume %d for %q out of range 0-100, using default %d", v, name, c.Volume)
			delete(c.DeviceVolumes, name)
		}
	}

	if c.EarlyWarningVolumeReduction < 0 || c.EarlyWarningVolumeReduction > 100 {
		warn("early warning volume reduction %d out of range 0-100, falling back to %d",
			c.EarlyWarningVolumeReduction, DefaultEarlyWarningReduction)
		c.EarlyWarningVolumeReduction = DefaultEarlyWarningReduction
	}

	if c.FlashVolumeReduction < 0 || c.FlashVolumeReduction > 100 {
		warn("flash volume reduction %d out of range 0-100, falling back to %d",
			c.FlashVolumeReduction, DefaultFlashReduction)
		c.FlashVolumeReduction = DefaultFlashReduction
	}

	h := c.EarlyWarningHours
	if h.Start < 0 || h.Start > 23 || h.End < 0 || h.End > 23 || h.Start >= h.End {
		if h != (HourWindow{}) {
			warn("early warning hours %d-%d invalid, falling back to %d-%d",
				h.Start, h.End, DefaultEarlyWarningStartHour, DefaultEarlyWarningEndHour)
		}
		c.EarlyWarningHours = HourWindow{Start: DefaultEarlyWarningStartHour, End: DefaultEarlyWarningEndHour}
	}

	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = DefaultPollIntervalSeconds
	}

	if c.PollTimeoutSeconds <= 0 {
		c.PollTimeoutSeconds = DefaultPollTimeoutSeconds
	}

	if c.ReconnectIntervalSeconds <= 0 {
		c.ReconnectIntervalSeconds = DefaultReconnectSeconds
	}

	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}

	return warnings
}

// Validate checks the fields that have no sensible fallback.
func (c *Config) Validate() error {
	if c.PollURL == "" {
		return fmt.Errorf("poll_url is required")
	}

	if _, err := url.ParseRequestURI(c.PollURL); err != nil {
		return fmt.Errorf("invalid poll_url: %w", err)
	}

	if c.StreamURL == "" {
		return fmt.Errorf("stream_url is required")
	}

	if _, err := url.ParseRequestURI(c.StreamURL); err != nil {
		return fmt.Errorf("invalid stream_url: %w", err)
	}

	if c.MediaBaseURL == "" {
		return fmt.Errorf("media_base_url is required")
	}

	if _, err := url.ParseRequestURI(c.MediaBaseURL); err != nil {
		return fmt.Errorf("invalid media_base_url: %w", err)
	}

	if c.EarlyWarningTitle == "" {
		return fmt.Errorf("early_warning_title is required")
	}

	if c.FlashTitle == "" {
		return fmt.Errorf("flash_title is required")
	}

	return nil
}

// Location resolves the configured timezone. Normalize guarantees the zone
// parses, so failures here only happen on an un-normalized Config.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the poll HTTP timeout as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// ReconnectInterval returns the stream reconnect backoff as a duration.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSeconds) * time.Second
}

// PlaybackTimeout returns the tier active window as a duration.
func (c *Config) PlaybackTimeout() time.Duration {
	return time.Duration(c.PlaybackTimeoutSeconds) * time.Second
}
