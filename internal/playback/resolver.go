package playback

import (
	"fmt"

	"github.com/alertcast/alertcast/internal/feed"
)

// Sound names the announcement clip played for an activation.
type Sound string

const (
	SoundAlert        Sound = "alert"
	SoundTest         Sound = "test"
	SoundEarlyWarning Sound = "early-warning"
	SoundFlashShelter Sound = "flash-shelter"
)

// SoundFor maps an activation to its announcement clip. The primary tier
// splits into live and test sounds; the polled tiers each have one.
func SoundFor(tier feed.Tier, isTest bool) (Sound, error) {
	switch tier {
	case feed.TierPrimary:
		if isTest {
			return SoundTest, nil
		}

		return SoundAlert, nil
	case feed.TierEarlyWarning:
		return SoundEarlyWarning, nil
	case feed.TierFlashAlert:
		return SoundFlashShelter, nil
	default:
		return "", fmt.Errorf("no sound for tier %s", tier)
	}
}

// Resolver maps a sound to a playable URL on the media file server.
type Resolver interface {
	Resolve(sound Sound) string
}

// MediaResolver serves clips from a static base URL. Pure mapping, no I/O.
type MediaResolver struct {
	baseURL string
}

// NewMediaResolver creates a resolver rooted at baseURL.
func NewMediaResolver(baseURL string) *MediaResolver {
	return &MediaResolver{baseURL: baseURL}
}

// Resolve returns the clip URL for sound.
func (r *MediaResolver) Resolve(sound Sound) string {
	return fmt.Sprintf("%s/%s.mp3", r.baseURL, sound)
}
