// Package stream mirrors accepted events to a message broker for downstream
// consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/segmentio/kafka-go"
)

// Publisher sends stored events downstream.
type Publisher interface {
	Publish(ctx context.Context, e *models.Event) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by campaign id so that the
// events of one campaign stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher for the configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}, cfg.WriteTimeout)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: timeout}
}

// Publish writes one event. It waits at most the configured write timeout.
func (p *KafkaPublisher) Publish(ctx context.Context, e *models.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.CampaignID),
		Value: payload,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}); err != nil {
		return fmt.Errorf("write event %s: %w", e.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
