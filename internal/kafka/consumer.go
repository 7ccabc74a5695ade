package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one booking event. Returning an error leaves the message uncommitted
// so it is delivered again.
type Handler func(ctx context.Context, evt models.BookingEvent) error

type Consumer struct {
	reader  messageReader
	log     *logger.Logger
	backoff time.Duration
}

// NewConsumer creates a consumer group reader over topics.
func NewConsumer(brokers []string, groupID string, topics []string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     time.Second,
	})
	return &Consumer{reader: reader, log: log, backoff: time.Second}
}

// Start consumes until ctx ends. Messages that cannot be decoded are committed and
// skipped; messages whose handler fails are retried.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	c.log.Info("KAFKA", "Consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		var evt models.BookingEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping undecodable message at %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
			c.commit(ctx, msg)
			continue
		}

		for {
			err := handle(ctx, evt)
			if err == nil {
				break
			}
			c.log.Error("KAFKA", fmt.Sprintf("Handler failed for %s %s, retrying: %v", evt.Type, evt.BookingID, err))
			if !c.sleep(ctx) {
				return nil
			}
		}
		c.log.LogKafka("CONSUME", msg.Topic, fmt.Sprintf("booking %s", evt.BookingID))
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.log.Error("KAFKA", fmt.Sprintf("Commit failed for %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
	}
}

func (c *Consumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
