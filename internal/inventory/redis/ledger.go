package redis

import (
	"context"
	"fmt"

	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/go-redis/redis/v8"
)

// Script results
const (
	resultMissing = -1
	resultGuarded = 0
	resultApplied = 1
)

// Each script checks and mutates the hash in one step; Redis runs scripts atomically.
var (
	reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local available = tonumber(redis.call('HGET', KEYS[1], 'available'))
local qty = tonumber(ARGV[1])
if available < qty then return 0 end
redis.call('HINCRBY', KEYS[1], 'available', -qty)
return 1
`)

	releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local available = tonumber(redis.call('HGET', KEYS[1], 'available'))
local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity'))
local qty = tonumber(ARGV[1])
if available + qty > capacity then return 0 end
redis.call('HINCRBY', KEYS[1], 'available', qty)
return 1
`)
)

// ClassLookup explains a missing hash and supplies the classes to prime.
type ClassLookup interface {
	GetTicketClass(ctx context.Context, eventID, ticketType string) (*models.TicketClass, error)
	ListTicketClasses(ctx context.Context) ([]*models.TicketClass, error)
}

// Ledger keeps the counters in Redis hashes inventory:{event}:{type} with fields
// available and capacity.
type Ledger struct {
	Client  *redis.Client
	Classes ClassLookup
	Logger  *logger.Logger
}

func NewLedger(client *redis.Client, classes ClassLookup, log *logger.Logger) *Ledger {
	return &Ledger{Client: client, Classes: classes, Logger: log}
}

var _ inventory.Ledger = (*Ledger)(nil)

func Key(eventID, ticketType string) string {
	return fmt.Sprintf("inventory:%s:%s", eventID, ticketType)
}

// Prime copies every catalog ticket class into Redis. Counters that already exist keep
// their value so a restart does not hand out sold tickets again.
func (l *Ledger) Prime(ctx context.Context) (int, error) {
	classes, err := l.Classes.ListTicketClasses(ctx)
	if err != nil {
		return 0, err
	}

	_, err = l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tc := range classes {
			key := Key(tc.EventID, tc.Type)
			pipe.HSet(ctx, key, "capacity", tc.Capacity)
			pipe.HSetNX(ctx, key, "available", tc.AvailableCount)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prime inventory: %w", err)
	}
	l.Logger.Info("INVENTORY", fmt.Sprintf("Primed %d ticket classes into Redis", len(classes)))
	return len(classes), nil
}

func (l *Ledger) Reserve(ctx context.Context, eventID, ticketType string, qty int) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}
	return l.run(ctx, reserveScript, eventID, ticketType, qty, models.ErrInsufficientInventory)
}

func (l *Ledger) Release(ctx context.Context, eventID, ticketType string, qty int) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}
	return l.run(ctx, releaseScript, eventID, ticketType, qty, models.ErrReleaseExceedsCapacity)
}

func (l *Ledger) Available(ctx context.Context, eventID, ticketType string) (int, error) {
	n, err := l.Client.HGet(ctx, Key(eventID, ticketType), "available").Int()
	if err == redis.Nil {
		return 0, l.missing(ctx, eventID, ticketType)
	}
	if err != nil {
		return 0, fmt.Errorf("read inventory %s/%s: %w", eventID, ticketType, err)
	}
	return n, nil
}

func (l *Ledger) run(ctx context.Context, script *redis.Script, eventID, ticketType string, qty int, guardErr error) error {
	res, err := script.Run(ctx, l.Client, []string{Key(eventID, ticketType)}, qty).Int()
	if err != nil {
		return fmt.Errorf("inventory script %s/%s: %w", eventID, ticketType, err)
	}
	switch res {
	case resultApplied:
		return nil
	case resultGuarded:
		return guardErr
	default:
		return l.missing(ctx, eventID, ticketType)
	}
}

// missing reports why no hash exists. A class that is in the catalog but not in Redis
// was never primed, which is an operational error rather than a client one.
func (l *Ledger) missing(ctx context.Context, eventID, ticketType string) error {
	if _, err := l.Classes.GetTicketClass(ctx, eventID, ticketType); err != nil {
		return err
	}
	return fmt.Errorf("inventory for %s/%s is not primed", eventID, ticketType)
}
