package db

import (
	"context"
	"fmt"

	"ms-booking/internal/inventory"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// ClassLookup explains why a conditional update touched no rows.
type ClassLookup interface {
	GetTicketClass(ctx context.Context, eventID, ticketType string) (*models.TicketClass, error)
}

// Ledger keeps the counters in the ticket_classes table.
type Ledger struct {
	Bun     *bun.DB
	Classes ClassLookup
}

func NewLedger(db *bun.DB, classes ClassLookup) *Ledger {
	return &Ledger{Bun: db, Classes: classes}
}

var _ inventory.Ledger = (*Ledger)(nil)

func (l *Ledger) Reserve(ctx context.Context, eventID, ticketType string, qty int) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}

	res, err := l.Bun.NewUpdate().
		Model((*models.TicketClass)(nil)).
		Set("available_count = available_count - ?", qty).
		Where("event_id = ?", eventID).
		Where("ticket_type = ?", ticketType).
		Where("available_count >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve %d x %s/%s: %w", qty, eventID, ticketType, err)
	}
	if affected(res) == 1 {
		return nil
	}
	return l.explain(ctx, eventID, ticketType, models.ErrInsufficientInventory)
}

func (l *Ledger) Release(ctx context.Context, eventID, ticketType string, qty int) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}

	res, err := l.Bun.NewUpdate().
		Model((*models.TicketClass)(nil)).
		Set("available_count = available_count + ?", qty).
		Where("event_id = ?", eventID).
		Where("ticket_type = ?", ticketType).
		Where("available_count + ? <= capacity", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release %d x %s/%s: %w", qty, eventID, ticketType, err)
	}
	if affected(res) == 1 {
		return nil
	}
	return l.explain(ctx, eventID, ticketType, models.ErrReleaseExceedsCapacity)
}

func (l *Ledger) Available(ctx context.Context, eventID, ticketType string) (int, error) {
	tc, err := l.Classes.GetTicketClass(ctx, eventID, ticketType)
	if err != nil {
		return 0, err
	}
	return tc.AvailableCount, nil
}

// explain maps a zero-row update to not-found errors, or to guardErr when the class exists.
func (l *Ledger) explain(ctx context.Context, eventID, ticketType string, guardErr error) error {
	if _, err := l.Classes.GetTicketClass(ctx, eventID, ticketType); err != nil {
		return err
	}
	return guardErr
}

func affected(res interface{ RowsAffected() (int64, error) }) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
