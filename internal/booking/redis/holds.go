package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

const holdPrefix = "booking_hold:"

// Holds keeps one expiring key per booking that waits on the provider. Redis announces
// the expiry on the keyevent channel, which lets the service close the booking on time.
type Holds struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewHolds(client *redis.Client, log *logger.Logger) *Holds {
	return &Holds{Client: client, Logger: log}
}

func holdKey(bookingID string) string {
	return holdPrefix + bookingID
}

func (h *Holds) Track(ctx context.Context, bookingID string, ttl time.Duration) error {
	return h.Client.Set(ctx, holdKey(bookingID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

func (h *Holds) Clear(ctx context.Context, bookingID string) error {
	return h.Client.Del(ctx, holdKey(bookingID)).Err()
}

// remaining reports how long the hold has left, or zero when there is none.
func (h *Holds) remaining(ctx context.Context, bookingID string) (time.Duration, error) {
	ttl, err := h.Client.TTL(ctx, holdKey(bookingID)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// EnableExpiryEvents turns on keyevent notifications for expired keys.
func (h *Holds) EnableExpiryEvents(ctx context.Context) error {
	if err := h.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		return fmt.Errorf("enable keyspace notifications: %w", err)
	}
	return nil
}

// Listen calls onExpire with the booking id of every hold that expires, until ctx ends.
// Notifications are fire-and-forget in Redis, so the periodic reaper stays the backstop.
func (h *Holds) Listen(ctx context.Context, onExpire func(ctx context.Context, bookingID string)) error {
	channel := fmt.Sprintf("__keyevent@%d__:expired", h.Client.Options().DB)
	pubsub := h.Client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	h.Logger.Info("REDIS", fmt.Sprintf("Listening for checkout hold expiry on %s", channel))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Payload, holdPrefix) {
					continue
				}
				bookingID := strings.TrimPrefix(msg.Payload, holdPrefix)
				h.Logger.LogBooking("HOLD_EXPIRED", bookingID, "checkout hold expired")
				onExpire(ctx, bookingID)
			}
		}
	}()
	return nil
}
