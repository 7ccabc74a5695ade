package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/inventory"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// ClassLookup resolves the priced ticket class a booking is for.
type ClassLookup interface {
	GetTicketClass(ctx context.Context, eventID, ticketType string) (*models.TicketClass, error)
}

// Store persists bookings. Status only changes through Transition, which is a
// compare-and-set on the current status.
type Store struct {
	Bun      *bun.DB
	Classes  ClassLookup
	Currency string
	Now      func() time.Time
}

func NewStore(db *bun.DB, classes ClassLookup, currency string) *Store {
	return &Store{
		Bun:      db,
		Classes:  classes,
		Currency: currency,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a pending booking priced from the catalog. A second active booking for
// the same user and event fails with models.ErrDuplicateBooking, even under a race.
func (s *Store) Create(ctx context.Context, nb models.NewBooking) (*models.Booking, error) {
	if err := inventory.ValidateQuantity(nb.Quantity); err != nil {
		return nil, err
	}
	tc, err := s.Classes.GetTicketClass(ctx, nb.EventID, nb.TicketType)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	b := &models.Booking{
		ID:            uuid.New().String(),
		UserID:        nb.UserID,
		AttendeeName:  nb.AttendeeName,
		AttendeeEmail: nb.AttendeeEmail,
		EventID:       nb.EventID,
		TicketType:    nb.TicketType,
		Quantity:      nb.Quantity,
		Amount:        tc.UnitPrice * int64(nb.Quantity),
		Currency:      s.Currency,
		Status:        models.BookingPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := s.Bun.NewInsert().Model(b).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicateBooking
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

// Transition moves a booking from one status to another and applies patch in the same
// statement. It fails with models.ErrInvalidTransition when the edge is not part of the
// lifecycle or the booking is no longer in from; storage is untouched in both cases.
func (s *Store) Transition(ctx context.Context, id string, from, to models.BookingStatus, patch *models.BookingPatch) (*models.Booking, error) {
	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	q := s.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", s.Now())

	if patch != nil {
		if err := applyPatch(q, patch); err != nil {
			return nil, err
		}
	}

	res, err := q.Where("id = ?", id).Where("status = ?", from).Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("transition booking %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: booking %s is %s, expected %s", models.ErrInvalidTransition, id, current.Status, from)
	}
	return s.Get(ctx, id)
}

func applyPatch(q *bun.UpdateQuery, patch *models.BookingPatch) error {
	if patch.ProviderOrderID != "" {
		q.Set("payment_provider_order_id = ?", patch.ProviderOrderID)
	}
	if p := patch.Payment; p != nil {
		if p.ProviderOrderID != "" && patch.ProviderOrderID == "" {
			q.Set("payment_provider_order_id = ?", p.ProviderOrderID)
		}
		if p.ProviderPaymentID != "" {
			q.Set("payment_provider_payment_id = ?", p.ProviderPaymentID)
		}
		if p.Status != "" {
			q.Set("payment_status = ?", p.Status)
		}
	}
	if t := patch.Ticket; t != nil {
		payload, err := json.Marshal(t.Payload)
		if err != nil {
			return fmt.Errorf("encode ticket payload: %w", err)
		}
		q.Set("ticket_verification_id = ?", t.VerificationID).
			Set("ticket_payload = ?", string(payload)).
			Set("ticket_qr_code = ?", t.QRCode).
			Set("ticket_issued_at = ?", t.IssuedAt.UTC())
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Booking, error) {
	return s.getWhere(ctx, "b.id = ?", id)
}

func (s *Store) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Booking, error) {
	return s.getWhere(ctx, "b.payment_provider_order_id = ?", providerOrderID)
}

func (s *Store) getWhere(ctx context.Context, where string, arg string) (*models.Booking, error) {
	b := new(models.Booking)
	err := s.Bun.NewSelect().Model(b).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListByUser returns a user's bookings, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	var out []*models.Booking
	err := s.Bun.NewSelect().
		Model(&out).
		ExcludeColumn("ticket_qr_code").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings for user %s: %w", userID, err)
	}
	return out, nil
}

// ListByEvent returns every booking of an event, newest first.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]*models.Booking, error) {
	var out []*models.Booking
	err := s.Bun.NewSelect().
		Model(&out).
		ExcludeColumn("ticket_qr_code").
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings for event %s: %w", eventID, err)
	}
	return out, nil
}

// ListStale returns bookings in one of statuses that have not changed since before.
func (s *Store) ListStale(ctx context.Context, statuses []models.BookingStatus, before time.Time) ([]*models.Booking, error) {
	var out []*models.Booking
	err := s.Bun.NewSelect().
		Model(&out).
		ExcludeColumn("ticket_qr_code").
		Where("status IN (?)", bun.In(statuses)).
		Where("updated_at < ?", before.UTC()).
		Order("updated_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stale bookings: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
