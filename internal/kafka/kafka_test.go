package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

var topics = config.TopicConfig{
	BookingCreated:   "booking.created",
	BookingConfirmed: "booking.confirmed",
	BookingFailed:    "booking.failed",
	BookingCancelled: "booking.cancelled",
}

func TestPublishRoutesByType(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{Writer: w, Topics: topics, Logger: logger.NewNop(nil)}
	ctx := context.Background()

	require.NoError(t, p.PublishBookingEvent(ctx, models.BookingEvent{Type: models.BookingEventConfirmed, BookingID: "b-1", Quantity: 2}))
	require.NoError(t, p.PublishBookingEvent(ctx, models.BookingEvent{Type: models.BookingEventCancelled, BookingID: "b-2"}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "booking.confirmed", w.msgs[0].Topic)
	assert.Equal(t, []byte("b-1"), w.msgs[0].Key)
	assert.Equal(t, "booking.cancelled", w.msgs[1].Topic)

	var evt models.BookingEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
	assert.Equal(t, 2, evt.Quantity)

	err := p.PublishBookingEvent(ctx, models.BookingEvent{Type: "booking.unknown"})
	assert.Error(t, err)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{Writer: &recordingWriter{err: boom}, Topics: topics, Logger: logger.NewNop(nil)}

	err := p.PublishBookingEvent(context.Background(), models.BookingEvent{Type: models.BookingEventCreated})
	assert.ErrorIs(t, err, boom)
}

// queueReader serves queued messages and then blocks until ctx ends.
type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *queueReader) Close() error { return nil }

func (r *queueReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func message(offset int64, evt models.BookingEvent) kafka.Message {
	raw, _ := json.Marshal(evt)
	return kafka.Message{Topic: "booking.confirmed", Offset: offset, Value: raw}
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := &queueReader{queue: []kafka.Message{
		{Topic: "booking.confirmed", Offset: 1, Value: []byte("not json")},
		message(2, models.BookingEvent{Type: models.BookingEventConfirmed, BookingID: "b-1"}),
	}}
	c := &Consumer{reader: r, log: logger.NewNop(nil), backoff: time.Millisecond}

	var mu sync.Mutex
	attempts := 0
	var handled []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, evt models.BookingEvent) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return errors.New("database busy")
			}
			handled = append(handled, evt.BookingID)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2}, r.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"b-1"}, handled)
}

func TestMissingTopics(t *testing.T) {
	existing := []string{"booking.created", "booking.confirmed", "__consumer_offsets"}

	assert.Equal(t, []string{"booking.failed", "booking.cancelled"}, missingTopics(existing, topics.All()))
	assert.Empty(t, missingTopics(append(existing, "booking.failed", "booking.cancelled"), topics.All()))
}

func TestVerifyTopicsNeedsBrokers(t *testing.T) {
	_, err := VerifyTopics(context.Background(), nil, topics.All())
	assert.Error(t, err)
}
