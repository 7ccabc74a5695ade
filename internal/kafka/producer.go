package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes booking lifecycle events, one topic per event type. Messages are
// keyed by booking id so a booking's events stay ordered within a partition.
type Producer struct {
	Writer messageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topics: cfg.Topics, Logger: log}
}

func (p *Producer) topicFor(t models.BookingEventType) (string, error) {
	switch t {
	case models.BookingEventCreated:
		return p.Topics.BookingCreated, nil
	case models.BookingEventConfirmed:
		return p.Topics.BookingConfirmed, nil
	case models.BookingEventFailed:
		return p.Topics.BookingFailed, nil
	case models.BookingEventCancelled:
		return p.Topics.BookingCancelled, nil
	}
	return "", fmt.Errorf("no topic for event type %q", t)
}

// PublishBookingEvent streams evt to its topic.
func (p *Producer) PublishBookingEvent(ctx context.Context, evt models.BookingEvent) error {
	topic, err := p.topicFor(evt.Type)
	if err != nil {
		return err
	}
	msgBytes, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(evt.BookingID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("booking %s", evt.BookingID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
