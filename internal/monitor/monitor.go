// Package monitor assembles the alert pipeline and owns its lifecycle.
package monitor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/api"
	"github.com/alertcast/alertcast/internal/arbiter"
	"github.com/alertcast/alertcast/internal/config"
	"github.com/alertcast/alertcast/internal/feed"
	"github.com/alertcast/alertcast/internal/metrics"
	"github.com/alertcast/alertcast/internal/playback"
	"github.com/alertcast/alertcast/internal/sensor"
)

// shutdownTimeout bounds the HTTP server drain during Stop.
const shutdownTimeout = 5 * time.Second

// Monitor is the assembled always-on alert monitor.
type Monitor struct {
	log *zap.SugaredLogger

	window    *feed.Window
	poller    *feed.Poller
	stream    *feed.Stream
	arbiter   *arbiter.Arbiter
	registry  *playback.Registry
	coord     *playback.Coordinator
	server    *api.Server
	mqttSink  *sensor.MQTTSink
}

// New wires every component from the configuration.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Monitor, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, errors.Wrap(err, "resolve timezone")
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var (
		tierSink arbiter.Sink = sensor.NopSink{}
		mqttSink *sensor.MQTTSink
	)

	if cfg.MQTT.Broker != "" {
		mqttSink, err = sensor.NewMQTT(cfg.MQTT, log)
		if err != nil {
			return nil, errors.Wrap(err, "connect sensor sink")
		}

		tierSink = mqttSink
	} else {
		log.Warnw("No MQTT broker configured, sensor states will not be exposed")
	}

	staticDevices := make([]playback.DeviceInfo, 0, len(cfg.Devices))
	for _, entry := range cfg.Devices {
		staticDevices = append(staticDevices, playback.DeviceInfo{
			Name:    entry.Name,
			Address: entry.Address,
		})
	}

	deviceRegistry := playback.NewRegistry(
		log,
		&playback.StaticDiscoverer{Devices: staticDevices},
		func(info playback.DeviceInfo) playback.Playable {
			return playback.NewRendererClient(info.Address, log)
		},
	)

	coordinator := playback.NewCoordinator(
		log,
		deviceRegistry,
		playback.NewMediaResolver(cfg.MediaBaseURL),
		playback.VolumePolicy{
			Default:               cfg.Volume,
			Overrides:             cfg.DeviceVolumes,
			EarlyWarningReduction: cfg.EarlyWarningVolumeReduction,
			FlashReduction:        cfg.FlashVolumeReduction,
		},
		m,
	)

	filter := feed.NewFilter(cfg.Cities, cfg.EarlyWarningHours, location)

	arb := arbiter.New(
		log,
		cfg.PlaybackTimeout(),
		tierSink,
		coordinator,
		func() bool { return filter.InEarlyWarningHours(time.Now()) },
		m,
	)

	normalizer := feed.NewNormalizer(log, cfg.EarlyWarningTitle, cfg.FlashTitle, location)
	window := feed.NewWindow(log)
	processor := feed.NewProcessor(log, normalizer, window, filter, arb, m)
	health := feed.NewHealth()

	pollClient := feed.NewPollClient(cfg.PollURL, cfg.PollTimeout(), log)
	poller := feed.NewPoller(log, cfg.PollInterval(), pollClient, processor, health, m)

	stream := feed.NewStream(log, cfg.StreamURL, cfg.ReconnectInterval(), processor, health, m)

	server := api.NewServer(log, cfg.ListenAddress, arb, deviceRegistry, health, registry)

	return &Monitor{
		log:      log,
		window:   window,
		poller:   poller,
		stream:   stream,
		arbiter:  arb,
		registry: deviceRegistry,
		coord:    coordinator,
		server:   server,
		mqttSink: mqttSink,
	}, nil
}

// Start brings every component up. The monitor runs until Stop.
func (m *Monitor) Start() error {
	m.registry.Start()

	if err := m.poller.Start(); err != nil {
		return errors.Wrap(err, "start poller")
	}

	m.stream.Start()
	m.server.Start()

	m.log.Infow("Monitor started")

	return nil
}

// Stop shuts the pipeline down in dependency order: inputs first, then the
// arbiter, then the outputs.
func (m *Monitor) Stop() {
	m.stream.Stop()
	m.poller.Stop()
	m.window.Stop()
	m.arbiter.Stop()
	m.coord.Wait()
	m.registry.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(ctx); err != nil {
		m.log.Errorw("HTTP server shutdown failed", "error", err.Error())
	}

	if m.mqttSink != nil {
		m.mqttSink.Close()
	}

	m.log.Infow("Monitor stopped")
}

// Run starts the monitor and blocks until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	m.Stop()

	return nil
}
