// Package mqtt publishes live updates to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/quentinrf/tank-monitor/internal/ports"
)

const qosAtLeastOnce = 1

// Config selects the broker and topic
type Config struct {
	Broker         string
	ClientID       string
	Topic          string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Sink implements ports.Broadcaster on an MQTT client
type Sink struct {
	topic  string
	client client
}

// NewSink connects to the broker. The client reconnects on its own after
// the first successful connection.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, errors.New("mqtt broker and topic are required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	c := pahomqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}
	log.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("connected to mqtt broker")
	return newSinkWithClient(cfg.Topic, c), nil
}

func newSinkWithClient(topic string, c client) *Sink {
	return &Sink{topic: topic, client: c}
}

// Broadcast implements ports.Broadcaster
func (s *Sink) Broadcast(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(ports.Envelope{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	token := s.client.Publish(s.topic, qosAtLeastOnce, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.topic, err)
	}
	return nil
}

// Name implements ports.Broadcaster
func (s *Sink) Name() string { return "mqtt" }

// Close disconnects from the broker
func (s *Sink) Close() error {
	s.client.Disconnect(250)
	return nil
}
