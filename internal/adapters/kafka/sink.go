// Package kafka publishes live updates to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/quentinrf/tank-monitor/internal/ports"
)

// Config selects the topic and brokers
type Config struct {
	Brokers      []string
	Topic        string
	Key          string // message key, normally the site name
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink implements ports.Broadcaster on a Kafka writer
type Sink struct {
	cfg    Config
	writer messageWriter
}

// NewSink creates a sink writing to cfg.Topic
func NewSink(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newSinkWithWriter(cfg, w), nil
}

func newSinkWithWriter(cfg Config, w messageWriter) *Sink {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Sink{cfg: cfg, writer: w}
}

// Broadcast implements ports.Broadcaster
func (s *Sink) Broadcast(ctx context.Context, event string, payload any) error {
	value, err := json.Marshal(ports.Envelope{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(s.cfg.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
		},
		Time: time.Now().UTC(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.cfg.Topic, err)
	}
	return nil
}

// Name implements ports.Broadcaster
func (s *Sink) Name() string { return "kafka" }

// Close flushes and closes the writer
func (s *Sink) Close() error {
	return s.writer.Close()
}
