package playback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/feed"
	"github.com/alertcast/alertcast/internal/metrics"
)

const (
	// playRetries is how many additional attempts follow a failed play
	// command on one device.
	playRetries = 3

	// defaultRetryBackoff is the fixed wait between attempts.
	defaultRetryBackoff = 2 * time.Second
)

// VolumePolicy computes the effective playback volume for a device and
// activation.
type VolumePolicy struct {
	// Default is the global volume used when no override matches.
	Default int

	// Overrides maps device display names to volumes.
	Overrides map[string]int

	// EarlyWarningReduction and FlashReduction are subtracted for their
	// tiers, floored at zero.
	EarlyWarningReduction int
	FlashReduction        int
}

// Effective returns the volume for one device and activation. Primary and
// test activations use the base volume unmodified.
func (p VolumePolicy) Effective(deviceName string, tier feed.Tier) int {
	volume := p.Default
	if override, ok := p.Overrides[deviceName]; ok {
		volume = override
	}

	switch tier {
	case feed.TierEarlyWarning:
		volume -= p.EarlyWarningReduction
	case feed.TierFlashAlert:
		volume -= p.FlashReduction
	default:
		// Base volume.
	}

	if volume < 0 {
		volume = 0
	}

	return volume
}

// DeviceSource supplies the current device set. Implemented by Registry.
type DeviceSource interface {
	Snapshot() []Device
}

// Coordinator fans playback commands out to the device set. Each device is
// handled on its own goroutine with independent retries, so one stubborn
// device never delays or fails the others. Implements arbiter.Trigger.
type Coordinator struct {
	log      *zap.SugaredLogger
	devices  DeviceSource
	resolver Resolver
	policy   VolumePolicy
	metrics  *metrics.Metrics

	// retryBackoff is a field so tests can collapse the wait.
	retryBackoff time.Duration

	wg sync.WaitGroup
}

// NewCoordinator creates a playback coordinator.
func NewCoordinator(
	log *zap.SugaredLogger,
	devices DeviceSource,
	resolver Resolver,
	policy VolumePolicy,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		log:          log,
		devices:      devices,
		resolver:     resolver,
		policy:       policy,
		metrics:      m,
		retryBackoff: defaultRetryBackoff,
	}
}

// Play resolves the activation's media URL and dispatches it to every
// registered device. Returns once the fan-out is launched; device I/O runs
// asynchronously.
func (c *Coordinator) Play(tier feed.Tier, isTest bool, areas []string) {
	sound, err := SoundFor(tier, isTest)
	if err != nil {
		c.log.Errorw("No playable sound for activation", "error", err.Error())

		return
	}

	mediaURL := c.resolver.Resolve(sound)

	devices := c.devices.Snapshot()
	if len(devices) == 0 {
		c.log.Warnw("No playback devices registered",
			"sound", string(sound),
			"areas", areas)

		return
	}

	c.log.Infow("Dispatching playback",
		"sound", string(sound),
		"devices", len(devices),
		"areas", areas)

	for _, device := range devices {
		c.wg.Add(1)

		go func(device Device) {
			defer c.wg.Done()
			c.playDevice(device, mediaURL, tier)
		}(device)
	}
}

// Wait blocks until all in-flight device commands complete. Used during
// shutdown and by tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// playDevice runs the attempt/retry cycle for one device, then applies the
// volume policy. Failures here are isolated: they are logged and counted but
// never propagate to other devices.
func (c *Coordinator) playDevice(device Device, mediaURL string, tier feed.Tier) {
	ctx := context.Background()

	var lastErr error

	for attempt := 0; attempt <= playRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.retryBackoff)
		}

		c.metrics.PlaybackAttempts.Inc()

		lastErr = device.Play(ctx, mediaURL)
		if lastErr == nil {
			c.setVolume(device, tier)

			return
		}

		c.log.Warnw("Play command failed",
			"device", device.Info.Name,
			"attempt", attempt+1,
			"error", lastErr.Error())
	}

	c.metrics.PlaybackFailures.Inc()
	c.log.Errorw("Giving up on device after exhausting retries",
		"device", device.Info.Name,
		"attempts", playRetries+1,
		"error", lastErr.Error())
}

// setVolume applies the volume policy after a successful play. A volume
// failure does not retry playback; the announcement is already running.
func (c *Coordinator) setVolume(device Device, tier feed.Tier) {
	volume := c.policy.Effective(device.Info.Name, tier)

	if err := device.SetVolume(context.Background(), volume); err != nil {
		c.log.Warnw("Volume command failed",
			"device", device.Info.Name,
			"volume", volume,
			"error", err.Error())

		return
	}

	c.log.Debugw("Volume applied", "device", device.Info.Name, "volume", volume)
}
