package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"barrio-alarm/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSwitch drives the alarm switch over the local broker. It is the
// fallback path when the vendor cloud is unreachable.
type MQTTSwitch struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger
}

// NewMQTTSwitch connects to the broker and returns the controller.
func NewMQTTSwitch(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTSwitch, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTSwitch{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// SetState publishes a switch command on the device's command topic.
func (s *MQTTSwitch) SetState(ctx context.Context, deviceID string, on bool) error {
	state := "off"
	if on {
		state = "on"
	}

	payload, err := json.Marshal(map[string]string{"switch": state})
	if err != nil {
		return fmt.Errorf("failed to marshal switch command: %w", err)
	}

	topic := s.config.Topic + deviceID
	token := s.client.Publish(topic, s.config.QoS, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	s.logger.Info("Device state set via broker",
		zap.String("device_id", deviceID),
		zap.Bool("on", on),
	)
	return nil
}

// Disconnect closes the broker connection.
func (s *MQTTSwitch) Disconnect() {
	s.client.Disconnect(250)
}
