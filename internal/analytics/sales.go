// Package analytics keeps per-day sales counters for organizers. It is fed by
// booking.confirmed events, so counts lag confirmations by the consumer's delay.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

const dayLayout = "2006-01-02"

type Recorder struct {
	bun *bun.DB
	log *logger.Logger
}

func NewRecorder(db *bun.DB, log *logger.Logger) *Recorder {
	return &Recorder{bun: db, log: log}
}

// HandleBookingEvent counts a confirmed booking once. Other event types are ignored, and a
// booking that was already counted is skipped so redelivery is harmless.
func (r *Recorder) HandleBookingEvent(ctx context.Context, evt models.BookingEvent) error {
	if evt.Type != models.BookingEventConfirmed {
		return nil
	}
	day := evt.OccurredAt.UTC().Format(dayLayout)

	return r.bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(&models.SalesLedgerEntry{BookingID: evt.BookingID, RecordedAt: time.Now().UTC()}).
			On("CONFLICT (booking_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("record sale %s: %w", evt.BookingID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			r.log.Debug("ANALYTICS", fmt.Sprintf("Booking %s already counted", evt.BookingID))
			return nil
		}

		_, err = tx.NewRaw(`
			INSERT INTO daily_sales (event_id, ticket_type, day, tickets, revenue)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (event_id, ticket_type, day) DO UPDATE
			SET tickets = daily_sales.tickets + EXCLUDED.tickets,
			    revenue = daily_sales.revenue + EXCLUDED.revenue`,
			evt.EventID, evt.TicketType, day, evt.Quantity, evt.Amount,
		).Exec(ctx)
		if err != nil {
			return fmt.Errorf("update daily sales: %w", err)
		}
		r.log.LogDatabase("UPSERT", "daily_sales", fmt.Sprintf("%s/%s %s +%d", evt.EventID, evt.TicketType, day, evt.Quantity))
		return nil
	})
}

// SalesReport is an event's daily counters plus their totals.
type SalesReport struct {
	EventID string               `json:"event_id"`
	Days    []*models.DailySales `json:"days"`
	Tickets int                  `json:"tickets"`
	Revenue int64                `json:"revenue"`
}

// EventSales returns counters for eventID between from and to inclusive. Empty bounds
// are open.
func (r *Recorder) EventSales(ctx context.Context, eventID string, from, to string) (*SalesReport, error) {
	days := []*models.DailySales{}
	q := r.bun.NewSelect().Model(&days).Where("event_id = ?", eventID)
	if from != "" {
		q = q.Where("day >= ?", from)
	}
	if to != "" {
		q = q.Where("day <= ?", to)
	}
	if err := q.Order("day ASC", "ticket_type ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load sales for %s: %w", eventID, err)
	}

	report := &SalesReport{EventID: eventID, Days: days}
	for _, d := range days {
		report.Tickets += d.Tickets
		report.Revenue += d.Revenue
	}
	return report, nil
}

// ValidDay reports whether s is a YYYY-MM-DD date.
func ValidDay(s string) bool {
	_, err := time.Parse(dayLayout, s)
	return err == nil
}

// PublishBookingEvent lets the recorder sit directly behind the booking service when
// Kafka is disabled.
func (r *Recorder) PublishBookingEvent(ctx context.Context, evt models.BookingEvent) error {
	return r.HandleBookingEvent(ctx, evt)
}
