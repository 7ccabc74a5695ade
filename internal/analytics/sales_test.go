package analytics

import (
	"context"
	"testing"
	"time"

	"ms-booking/internal/database"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRecorder(db, logger.NewNop(nil))
}

func confirmed(id, ticketType string, qty int, amount int64, at time.Time) models.BookingEvent {
	return models.BookingEvent{
		Type:       models.BookingEventConfirmed,
		BookingID:  id,
		EventID:    "evt-1",
		TicketType: ticketType,
		Quantity:   qty,
		Amount:     amount,
		OccurredAt: at,
	}
}

func TestRecordConfirmedSales(t *testing.T) {
	r := setupRecorder(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	require.NoError(t, r.HandleBookingEvent(ctx, confirmed("b-1", "General", 2, 1000, day1)))
	require.NoError(t, r.HandleBookingEvent(ctx, confirmed("b-2", "General", 1, 500, day1.Add(time.Hour))))
	require.NoError(t, r.HandleBookingEvent(ctx, confirmed("b-3", "VIP", 1, 2500, day1)))
	require.NoError(t, r.HandleBookingEvent(ctx, confirmed("b-4", "General", 4, 2000, day2)))

	report, err := r.EventSales(ctx, "evt-1", "", "")
	require.NoError(t, err)
	require.Len(t, report.Days, 3)
	assert.Equal(t, 8, report.Tickets)
	assert.Equal(t, int64(6000), report.Revenue)

	first := report.Days[0]
	assert.Equal(t, "2026-03-01", first.Day)
	assert.Equal(t, "General", first.TicketType)
	assert.Equal(t, 3, first.Tickets)
	assert.Equal(t, int64(1500), first.Revenue)

	bounded, err := r.EventSales(ctx, "evt-1", "2026-03-02", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, bounded.Days, 1)
	assert.Equal(t, 4, bounded.Tickets)
}

func TestRedeliveredEventCountedOnce(t *testing.T) {
	r := setupRecorder(t)
	ctx := context.Background()
	evt := confirmed("b-1", "General", 2, 1000, time.Now())

	require.NoError(t, r.HandleBookingEvent(ctx, evt))
	require.NoError(t, r.HandleBookingEvent(ctx, evt))

	report, err := r.EventSales(ctx, "evt-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Tickets)
}

func TestNonConfirmedEventsIgnored(t *testing.T) {
	r := setupRecorder(t)
	ctx := context.Background()
	evt := confirmed("b-1", "General", 2, 1000, time.Now())
	evt.Type = models.BookingEventCreated

	require.NoError(t, r.HandleBookingEvent(ctx, evt))

	report, err := r.EventSales(ctx, "evt-1", "", "")
	require.NoError(t, err)
	assert.Empty(t, report.Days)
	assert.Zero(t, report.Tickets)
}

func TestValidDay(t *testing.T) {
	assert.True(t, ValidDay("2026-01-31"))
	assert.False(t, ValidDay("2026-02-30"))
	assert.False(t, ValidDay("31/01/2026"))
}
