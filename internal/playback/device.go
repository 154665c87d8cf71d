// Package playback resolves alert media and fans play commands out to the
// discovered device set with per-device retries and volume policy.
package playback

import "context"

// DeviceInfo is the raw record delivered by device discovery.
type DeviceInfo struct {
	// Address is the device's host address and doubles as its identity in
	// the registry.
	Address string `json:"address"`

	// Name is the device's display name, used for per-device volume
	// overrides.
	Name string `json:"name"`
}

// Valid reports whether the record carries the fields a playable device
// must expose.
func (d DeviceInfo) Valid() bool {
	return d.Address != "" && d.Name != ""
}

// Playable is the contract a device must satisfy before entering the
// registry: it can start playback of a URL and set its volume.
type Playable interface {
	Play(ctx context.Context, mediaURL string) error
	SetVolume(ctx context.Context, level int) error
}

// Device is a validated registry entry: discovery info plus the client that
// drives it.
type Device struct {
	Info DeviceInfo
	Playable
}
