// Package sensor exposes the tier states to the home-automation hub as MQTT
// binary sensors.
package sensor

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/config"
	"github.com/alertcast/alertcast/internal/feed"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	payloadOn  = "ON"
	payloadOff = "OFF"
)

// MQTTSink publishes tier transitions as retained binary-sensor states, one
// topic per tier. Publish failures are logged and dropped; the hub catches
// up on the next transition thanks to retained messages.
type MQTTSink struct {
	client      mqtt.Client
	log         *zap.SugaredLogger
	topicPrefix string
}

// NewMQTT connects to the broker and returns the sink.
func NewMQTT(cfg config.MQTT, log *zap.SugaredLogger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("alertcast-%s", uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Infow("Connected to MQTT broker", "broker", cfg.Broker)

	return &MQTTSink{
		client:      client,
		log:         log,
		topicPrefix: cfg.TopicPrefix,
	}, nil
}

// SetTier publishes the tier's binary state. Called on every transition,
// including forced and preempting ones.
func (s *MQTTSink) SetTier(tier feed.Tier, active bool) {
	topic := fmt.Sprintf("%s/%s/state", s.topicPrefix, tier.Slug())

	payload := payloadOff
	if active {
		payload = payloadOn
	}

	token := s.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		s.log.Errorw("Failed to publish sensor state",
			"topic", topic,
			"payload", payload,
			"error", tokenError(token))

		return
	}

	s.log.Debugw("Published sensor state", "topic", topic, "payload", payload)
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}

func tokenError(token mqtt.Token) string {
	if err := token.Error(); err != nil {
		return err.Error()
	}

	return "publish timed out"
}

// NopSink discards tier transitions. Used when no MQTT broker is
// configured.
type NopSink struct{}

// SetTier does nothing.
func (NopSink) SetTier(feed.Tier, bool) {}
