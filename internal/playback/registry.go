package playback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RefreshInterval is how often discovery is cleared and restarted so
// vanished devices eventually drop out of the registry.
const RefreshInterval = 5 * time.Minute

// Discoverer delivers discovered devices to the callback until the context
// is canceled. The transport (mDNS, static list, ...) is the implementer's
// concern.
type Discoverer interface {
	Discover(ctx context.Context, found func(DeviceInfo))
}

// ClientFactory builds the Playable client for a validated device record.
type ClientFactory func(info DeviceInfo) Playable

// Registry maintains the live set of validated playback devices. Discovery
// callbacks append concurrently with snapshot reads from the coordinator;
// one RWMutex guards the set.
type Registry struct {
	log     *zap.SugaredLogger
	factory ClientFactory

	mu      sync.RWMutex
	devices map[string]Device

	discoverer Discoverer
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewRegistry creates a registry fed by the given discoverer.
func NewRegistry(log *zap.SugaredLogger, discoverer Discoverer, factory ClientFactory) *Registry {
	return &Registry{
		log:        log,
		factory:    factory,
		devices:    make(map[string]Device),
		discoverer: discoverer,
	}
}

// OnDiscovered validates and adds one discovered device. Records failing
// capability validation are dropped. Duplicate addresses are never added
// twice; a later record with a known address replaces the earlier one only
// after a refresh cycle has cleared the set.
func (r *Registry) OnDiscovered(info DeviceInfo) {
	if !info.Valid() {
		r.log.Warnw("Ignoring discovered device without name or address",
			"address", info.Address,
			"name", info.Name)

		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[info.Address]; exists {
		return
	}

	r.devices[info.Address] = Device{
		Info:     info,
		Playable: r.factory(info),
	}

	r.log.Infow("Device registered", "name", info.Name, "address", info.Address)
}

// Snapshot returns a copy of the current device set.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device)
	}

	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.devices)
}

// Start begins the discovery refresh loop.
func (r *Registry) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.refreshLoop(ctx)
}

// refreshLoop clears the set and restarts discovery every RefreshInterval.
func (r *Registry) refreshLoop(ctx context.Context) {
	defer close(r.done)

	for {
		cycleCtx, cancelCycle := context.WithCancel(ctx)
		r.discoverer.Discover(cycleCtx, r.OnDiscovered)

		select {
		case <-time.After(RefreshInterval):
			cancelCycle()
			r.clear()
		case <-ctx.Done():
			cancelCycle()

			return
		}
	}
}

func (r *Registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]Device)
}

// Stop halts discovery and the refresh loop.
func (r *Registry) Stop() {
	if r.cancel == nil {
		return
	}

	r.cancel()
	<-r.done
	r.cancel = nil
}

// StaticDiscoverer announces a fixed device list on every discovery cycle.
// Used when the device addresses are known up front.
type StaticDiscoverer struct {
	Devices []DeviceInfo
}

// Discover delivers the configured devices immediately.
func (d *StaticDiscoverer) Discover(_ context.Context, found func(DeviceInfo)) {
	for _, info := range d.Devices {
		found(info)
	}
}
