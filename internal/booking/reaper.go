package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/models"
)

// ReapStale closes bookings that have waited longer than olderThan. Pending ones never
// reached the provider and fail outright. Awaiting ones are checked with the provider
// first: a captured payment is confirmed, while an unreachable provider or a payment still
// processing leaves the booking for the next sweep. Anything else expires the session and
// fails the booking.
// It returns how many bookings were closed.
func (s *Service) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	pending, err := s.store.ListStale(ctx, []models.BookingStatus{models.BookingPending}, cutoff)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, b := range pending {
		if _, won := s.fail(ctx, b, models.BookingPending, nil); won {
			closed++
		}
	}

	awaiting, err := s.store.ListStale(ctx, []models.BookingStatus{models.BookingAwaitingPayment, models.BookingPaid}, cutoff)
	if err != nil {
		return closed, err
	}
	for _, b := range awaiting {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		if s.expire(ctx, b) {
			closed++
		}
	}

	if closed > 0 {
		s.log.Info("REAPER", fmt.Sprintf("Closed %d stale bookings", closed))
	}
	return closed, nil
}

// Expire handles the end of one booking's checkout hold.
func (s *Service) Expire(ctx context.Context, bookingID string) error {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	switch b.Status {
	case models.BookingPending:
		s.fail(ctx, b, models.BookingPending, nil)
	case models.BookingAwaitingPayment, models.BookingPaid:
		s.expire(ctx, b)
	}
	return nil
}

// expire reports whether b ended up closed or confirmed.
func (s *Service) expire(ctx context.Context, b *models.Booking) bool {
	if b.Status == models.BookingPaid {
		_, err := s.confirm(ctx, b)
		return err == nil
	}

	order, err := s.gateway.FetchOrder(ctx, b.Payment.ProviderOrderID)
	switch {
	case errors.Is(err, models.ErrPaymentNotFound):
		order = models.PaymentOrder{Status: models.PaymentFailed}
	case err != nil:
		s.log.Warn("REAPER", fmt.Sprintf("Provider unreachable for booking %s, retrying later: %v", b.ID, err))
		return false
	}

	if order.Status == models.PaymentCaptured {
		settled, err := s.settle(ctx, b, &order)
		if err != nil {
			s.log.Error("REAPER", fmt.Sprintf("Captured booking %s could not be settled: %v", b.ID, err))
			return false
		}
		return settled.Status == models.BookingConfirmed
	}

	if order.Status == models.PaymentProcessing {
		s.log.Info("REAPER", fmt.Sprintf("Payment for booking %s still processing, keeping it", b.ID))
		return false
	}
	if order.Status == models.PaymentCreated {
		if err := s.gateway.CancelPayable(ctx, b.Payment.ProviderOrderID); err != nil {
			s.log.Warn("REAPER", fmt.Sprintf("Session %s for booking %s not expired, retrying later: %v", b.Payment.ProviderOrderID, b.ID, err))
			return false
		}
	}
	_, won := s.fail(ctx, b, models.BookingAwaitingPayment, &models.PaymentDetails{Status: string(models.PaymentFailed)})
	return won
}

// RunReaper sweeps every interval until ctx ends.
func (s *Service) RunReaper(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReapStale(ctx, olderThan); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("REAPER", fmt.Sprintf("Sweep failed: %v", err))
			}
		}
	}
}
