package database

import (
	"context"
	"testing"
	"time"

	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, "file:schema_test?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	// idempotent
	require.NoError(t, CreateSchema(ctx, db))

	event := &models.Event{ID: "evt-1", Name: "Concert", StartsAt: time.Now().UTC()}
	_, err = db.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)

	count, err := db.NewSelect().Model((*models.Event)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActiveBookingIndexIsPartial(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, "file:partial_index?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	insert := func(id string, status models.BookingStatus) error {
		_, err := db.NewInsert().Model(&models.Booking{
			ID: id, UserID: "u1", EventID: "evt-1", TicketType: "GA", Quantity: 1,
			Currency: "inr", Status: status, CreatedAt: now, UpdatedAt: now,
		}).Exec(ctx)
		return err
	}

	require.NoError(t, insert("b1", models.BookingFailed))
	require.NoError(t, insert("b2", models.BookingCancelled))
	require.NoError(t, insert("b3", models.BookingPending))
	assert.Error(t, insert("b4", models.BookingAwaitingPayment))
}
