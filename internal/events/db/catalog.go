package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// Catalog reads events and their ticket classes. Events are written by the organizer
// service; this side never mutates them except for the inventory counters.
type Catalog struct {
	Bun *bun.DB
}

func NewCatalog(db *bun.DB) *Catalog {
	return &Catalog{Bun: db}
}

// GetEvent loads an event with its ticket classes.
func (c *Catalog) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event := new(models.Event)
	err := c.Bun.NewSelect().
		Model(event).
		Relation("TicketClasses").
		Where("e.id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return event, nil
}

// GetTicketClass distinguishes a missing event from a missing ticket type.
func (c *Catalog) GetTicketClass(ctx context.Context, eventID, ticketType string) (*models.TicketClass, error) {
	tc := new(models.TicketClass)
	err := c.Bun.NewSelect().
		Model(tc).
		Where("event_id = ?", eventID).
		Where("ticket_type = ?", ticketType).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return tc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get ticket class %s/%s: %w", eventID, ticketType, err)
	}

	exists, err := c.Bun.NewSelect().Model((*models.Event)(nil)).Where("id = ?", eventID).Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check event %s: %w", eventID, err)
	}
	if !exists {
		return nil, models.ErrEventNotFound
	}
	return nil, models.ErrTicketTypeNotFound
}

// ListTicketClasses returns every ticket class of every event.
func (c *Catalog) ListTicketClasses(ctx context.Context) ([]*models.TicketClass, error) {
	var classes []*models.TicketClass
	if err := c.Bun.NewSelect().Model(&classes).Order("event_id", "ticket_type").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list ticket classes: %w", err)
	}
	return classes, nil
}

// CreateEvent inserts an event and its ticket classes, each starting fully available.
// Used by seeding and tests.
func (c *Catalog) CreateEvent(ctx context.Context, event *models.Event) error {
	return c.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
			return fmt.Errorf("insert event %s: %w", event.ID, err)
		}
		for _, tc := range event.TicketClasses {
			tc.EventID = event.ID
			tc.AvailableCount = tc.Capacity
			if _, err := tx.NewInsert().Model(tc).Exec(ctx); err != nil {
				return fmt.Errorf("insert ticket class %s: %w", tc.Type, err)
			}
		}
		return nil
	})
}
