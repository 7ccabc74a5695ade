package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-booking/internal/models"
)

// Reconcile folds a provider callback into the booking it belongs to. Nothing the callback
// claims about the payment is believed; the outcome always comes from the provider.
// Delivering the same callback again returns the stored result without side effects.
func (s *Service) Reconcile(ctx context.Context, cb models.Callback) (*models.Booking, error) {
	if cb.ProviderOrderID == "" && cb.ProviderPaymentID == "" {
		return nil, models.ErrMalformedCallback
	}
	if !s.gateway.VerifySignature(cb) {
		s.log.LogSecurity("CALLBACK_SIGNATURE", fmt.Sprintf("rejected %s callback for order %q booking %q", cb.Source, cb.ProviderOrderID, cb.BookingID))
		return nil, models.ErrBadSignature
	}

	b, known, err := s.resolve(ctx, cb)
	if err != nil {
		return nil, err
	}

	if cb.BookingID != "" && cb.BookingID != b.ID {
		s.log.LogSecurity("CALLBACK_MISMATCH", fmt.Sprintf("callback names booking %s but order %s belongs to %s", cb.BookingID, cb.ProviderOrderID, b.ID))
		if cb.Source == models.CallbackWebhook {
			return nil, models.ErrPaymentMismatch
		}
		return nil, models.ErrBadSignature
	}

	s.log.LogPayment("CALLBACK", b.ID, fmt.Sprintf("%s callback, booking is %s", cb.Source, b.Status))
	return s.settle(ctx, b, known)
}

// resolve finds the booking a callback refers to. A callback with only a payment id is
// traced through the provider, which also gives us its status.
func (s *Service) resolve(ctx context.Context, cb models.Callback) (*models.Booking, *models.PaymentOrder, error) {
	if cb.ProviderOrderID != "" {
		b, err := s.store.GetByProviderOrderID(ctx, cb.ProviderOrderID)
		if errors.Is(err, models.ErrBookingNotFound) {
			return nil, nil, models.ErrUnknownOrder
		}
		return b, nil, err
	}

	order, err := s.gateway.FetchStatus(ctx, cb.ProviderPaymentID)
	if errors.Is(err, models.ErrPaymentNotFound) {
		return nil, nil, models.ErrUnknownOrder
	}
	if err != nil {
		return nil, nil, err
	}
	if order.BookingID == "" {
		return nil, nil, models.ErrUnknownOrder
	}
	b, err := s.store.Get(ctx, order.BookingID)
	if errors.Is(err, models.ErrBookingNotFound) {
		return nil, nil, models.ErrUnknownOrder
	}
	if err != nil {
		return nil, nil, err
	}
	return b, &order, nil
}

// settle drives b to the state the provider reports. known is used instead of a fresh
// provider read when the caller already has one.
func (s *Service) settle(ctx context.Context, b *models.Booking, known *models.PaymentOrder) (*models.Booking, error) {
	switch b.Status {
	case models.BookingConfirmed:
		return b, nil
	case models.BookingFailed:
		return b, models.ErrPaymentNotCaptured
	case models.BookingCancelled:
		return b, models.ErrBookingClosed
	case models.BookingPending:
		s.log.Warn("RECONCILE", fmt.Sprintf("Callback for booking %s that has no payable yet", b.ID))
		return b, fmt.Errorf("%w: booking %s is still pending", models.ErrInvalidTransition, b.ID)
	case models.BookingPaid:
		// Captured earlier; only the ticket is missing.
		return s.confirm(ctx, b)
	}

	order, err := s.providerView(ctx, b, known)
	if err != nil {
		return b, err
	}
	if err := matches(b, order); err != nil {
		s.log.LogSecurity("PAYMENT_MISMATCH", fmt.Sprintf("booking %s: %v", b.ID, err))
		return b, err
	}

	details := &models.PaymentDetails{
		ProviderOrderID:   order.ProviderOrderID,
		ProviderPaymentID: order.ProviderPaymentID,
		Status:            string(order.Status),
	}

	switch order.Status {
	case models.PaymentCaptured:
		paid, err := s.store.Transition(ctx, b.ID, models.BookingAwaitingPayment, models.BookingPaid, &models.BookingPatch{Payment: details})
		if err != nil {
			if !errors.Is(err, models.ErrInvalidTransition) {
				return b, err
			}
			return s.afterLostRace(ctx, b.ID, err)
		}
		s.log.LogPayment("CAPTURED", b.ID, fmt.Sprintf("payment %s", order.ProviderPaymentID))
		return s.confirm(ctx, paid)

	case models.PaymentFailed:
		failed, _ := s.fail(ctx, b, models.BookingAwaitingPayment, details)
		if failed.Status == models.BookingConfirmed {
			return failed, nil
		}
		return failed, models.ErrPaymentNotCaptured

	case models.PaymentProcessing:
		s.log.Info("RECONCILE", fmt.Sprintf("Payment for booking %s still processing", b.ID))
		return b, models.ErrPaymentNotCaptured

	default:
		// Checkout still open: the buyer came back without paying.
		if err := s.gateway.CancelPayable(ctx, b.Payment.ProviderOrderID); err != nil && !errors.Is(err, models.ErrPaymentNotFound) {
			s.log.Warn("RECONCILE", fmt.Sprintf("Session %s for booking %s not expired, leaving it open: %v", b.Payment.ProviderOrderID, b.ID, err))
			return b, err
		}
		details.Status = string(models.PaymentFailed)
		failed, _ := s.fail(ctx, b, models.BookingAwaitingPayment, details)
		if failed.Status == models.BookingConfirmed {
			return failed, nil
		}
		return failed, models.ErrPaymentNotCaptured
	}
}

// afterLostRace re-reads a booking another caller moved first and reports where it ended up.
func (s *Service) afterLostRace(ctx context.Context, bookingID string, cause error) (*models.Booking, error) {
	current, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case models.BookingPaid:
		return s.confirm(ctx, current)
	case models.BookingConfirmed:
		return current, nil
	case models.BookingFailed, models.BookingCancelled:
		s.log.Error("RECONCILE", fmt.Sprintf("Captured payment for booking %s which is already %s; refund required", current.ID, current.Status))
		return current, models.ErrBookingClosed
	}
	s.log.Warn("RECONCILE", fmt.Sprintf("Booking %s: %v", bookingID, cause))
	return current, cause
}

func (s *Service) providerView(ctx context.Context, b *models.Booking, known *models.PaymentOrder) (models.PaymentOrder, error) {
	if known != nil {
		return *known, nil
	}
	if b.Payment.ProviderOrderID != "" {
		return s.gateway.FetchOrder(ctx, b.Payment.ProviderOrderID)
	}
	if b.Payment.ProviderPaymentID != "" {
		return s.gateway.FetchStatus(ctx, b.Payment.ProviderPaymentID)
	}
	return models.PaymentOrder{}, fmt.Errorf("%w: booking %s has no provider reference", models.ErrUnknownOrder, b.ID)
}

// matches checks that the provider's payment is for this booking and for its full price.
func matches(b *models.Booking, order models.PaymentOrder) error {
	if order.BookingID != b.ID {
		return fmt.Errorf("%w: payment is for booking %q", models.ErrPaymentMismatch, order.BookingID)
	}
	if order.Status == models.PaymentCaptured {
		if order.Amount != b.Amount || !strings.EqualFold(order.Currency, b.Currency) {
			return fmt.Errorf("%w: paid %d %s, owed %d %s", models.ErrPaymentMismatch, order.Amount, order.Currency, b.Amount, b.Currency)
		}
	}
	return nil
}

// confirm issues the ticket for a paid booking and stores it with the final transition.
func (s *Service) confirm(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	event, err := s.catalog.GetEvent(ctx, b.EventID)
	if err != nil {
		return b, fmt.Errorf("load event for ticket: %w", err)
	}
	artifact, err := s.tickets.Issue(b, event)
	if err != nil {
		s.log.Error("TICKET", fmt.Sprintf("Ticket for booking %s not issued, it stays paid: %v", b.ID, err))
		return b, err
	}

	confirmed, err := s.store.Transition(ctx, b.ID, models.BookingPaid, models.BookingConfirmed, &models.BookingPatch{Ticket: &artifact})
	if err != nil {
		if !errors.Is(err, models.ErrInvalidTransition) {
			return b, err
		}
		current, gerr := s.store.Get(ctx, b.ID)
		if gerr != nil {
			return b, gerr
		}
		if current.Status == models.BookingConfirmed {
			return current, nil
		}
		return current, err
	}

	s.clearHold(ctx, b.ID)
	s.publish(ctx, models.BookingEventConfirmed, confirmed)
	s.log.LogBooking("CONFIRM", b.ID, "ticket issued")
	return confirmed, nil
}
