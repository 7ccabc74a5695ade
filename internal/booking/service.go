// Package booking runs the checkout saga: reserve inventory, record the booking, open a
// payable at the provider, and later reconcile the provider's answer into a confirmed
// ticket. The steps touch three independent resources, so each one after the first has
// an explicit compensation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type Store interface {
	Create(ctx context.Context, nb models.NewBooking) (*models.Booking, error)
	Transition(ctx context.Context, id string, from, to models.BookingStatus, patch *models.BookingPatch) (*models.Booking, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Booking, error)
	ListByEvent(ctx context.Context, eventID string) ([]*models.Booking, error)
	ListStale(ctx context.Context, statuses []models.BookingStatus, before time.Time) ([]*models.Booking, error)
}

type Catalog interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

type Gateway interface {
	CreatePayable(ctx context.Context, b *models.Booking) (models.Payable, error)
	FetchOrder(ctx context.Context, providerOrderID string) (models.PaymentOrder, error)
	FetchStatus(ctx context.Context, providerPaymentID string) (models.PaymentOrder, error)
	VerifySignature(cb models.Callback) bool
	CancelPayable(ctx context.Context, providerOrderID string) error
}

type TicketIssuer interface {
	Issue(b *models.Booking, event *models.Event) (models.TicketArtifact, error)
}

// HoldTracker marks a booking that is waiting on the provider so its expiry can be noticed.
type HoldTracker interface {
	Track(ctx context.Context, bookingID string, ttl time.Duration) error
	Clear(ctx context.Context, bookingID string) error
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, evt models.BookingEvent) error
}

type Deps struct {
	Ledger      inventory.Ledger
	Store       Store
	Catalog     Catalog
	Gateway     Gateway
	Tickets     TicketIssuer
	Holds       HoldTracker
	Publishers  []EventPublisher
	Logger      *logger.Logger
	CheckoutTTL time.Duration
}

type Service struct {
	ledger      inventory.Ledger
	store       Store
	catalog     Catalog
	gateway     Gateway
	tickets     TicketIssuer
	holds       HoldTracker
	publishers  []EventPublisher
	log         *logger.Logger
	checkoutTTL time.Duration
	now         func() time.Time
}

// compensationTimeout bounds cleanup that runs after the caller's context is gone.
const compensationTimeout = 10 * time.Second

func NewService(d Deps) *Service {
	return &Service{
		ledger:      d.Ledger,
		store:       d.Store,
		catalog:     d.Catalog,
		gateway:     d.Gateway,
		tickets:     d.Tickets,
		holds:       d.Holds,
		publishers:  d.Publishers,
		log:         d.Logger,
		checkoutTTL: d.CheckoutTTL,
		now:         time.Now,
	}
}

// BookTicket reserves qty tickets for the caller and opens a checkout at the provider.
// On any failure after the reservation the reservation is released before returning, and
// a recorded booking is moved to failed.
func (s *Service) BookTicket(ctx context.Context, who models.Identity, eventID, ticketType string, qty int) (*models.BookingResult, error) {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return nil, err
	}

	if err := s.ledger.Reserve(ctx, eventID, ticketType, qty); err != nil {
		s.log.Info("BOOKING", fmt.Sprintf("Reservation of %d x %s/%s for %s refused: %v", qty, eventID, ticketType, who.UserID, err))
		return nil, err
	}
	s.log.LogInventory("RESERVE", eventID, ticketType, qty)

	b, err := s.store.Create(ctx, models.NewBooking{
		UserID:        who.UserID,
		AttendeeName:  who.Name,
		AttendeeEmail: who.Email,
		EventID:       eventID,
		TicketType:    ticketType,
		Quantity:      qty,
	})
	if err != nil {
		cctx, cancel := s.compensationContext(ctx)
		defer cancel()
		s.release(cctx, eventID, ticketType, qty)
		return nil, err
	}
	s.log.LogBooking("CREATE", b.ID, fmt.Sprintf("user %s, %d x %s, amount %d %s", b.UserID, qty, ticketType, b.Amount, b.Currency))

	payable, err := s.gateway.CreatePayable(ctx, b)
	if err != nil {
		s.log.Error("BOOKING", fmt.Sprintf("Payable for booking %s failed: %v", b.ID, err))
		cctx, cancel := s.compensationContext(ctx)
		defer cancel()
		s.fail(cctx, b, models.BookingPending, nil)
		return nil, err
	}

	awaiting, err := s.store.Transition(ctx, b.ID, models.BookingPending, models.BookingAwaitingPayment,
		&models.BookingPatch{ProviderOrderID: payable.ProviderOrderID})
	if err != nil {
		s.log.Error("BOOKING", fmt.Sprintf("Booking %s could not move to awaiting payment: %v", b.ID, err))
		cctx, cancel := s.compensationContext(ctx)
		defer cancel()
		if cerr := s.gateway.CancelPayable(cctx, payable.ProviderOrderID); cerr != nil {
			s.log.Warn("PAYMENT", fmt.Sprintf("Could not expire session %s: %v", payable.ProviderOrderID, cerr))
		}
		s.fail(cctx, b, models.BookingPending, nil)
		return nil, err
	}

	if s.holds != nil {
		if err := s.holds.Track(ctx, awaiting.ID, s.checkoutTTL); err != nil {
			s.log.Warn("BOOKING", fmt.Sprintf("Checkout hold for %s not tracked, reaper will catch it: %v", awaiting.ID, err))
		}
	}
	s.publish(ctx, models.BookingEventCreated, awaiting)

	return &models.BookingResult{Booking: awaiting, RedirectURL: payable.RedirectURL}, nil
}

// Cancel lets the owner abandon a booking that has not been paid.
func (s *Service) Cancel(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	b, err := s.GetForUser(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case models.BookingCancelled:
		return b, nil
	case models.BookingFailed:
		return b, models.ErrBookingClosed
	case models.BookingPaid, models.BookingConfirmed:
		return b, fmt.Errorf("%w: booking %s is already %s", models.ErrInvalidTransition, b.ID, b.Status)
	}

	if b.Status == models.BookingAwaitingPayment {
		// The user may have paid a moment ago. Ask before closing the session.
		order, err := s.gateway.FetchOrder(ctx, b.Payment.ProviderOrderID)
		if err != nil && !errors.Is(err, models.ErrPaymentNotFound) {
			return nil, err
		}
		if err == nil && order.Status == models.PaymentCaptured {
			settled, serr := s.settle(ctx, b, &order)
			if serr != nil {
				return settled, serr
			}
			return settled, fmt.Errorf("%w: booking %s was paid", models.ErrInvalidTransition, b.ID)
		}
		if err == nil && order.Status == models.PaymentProcessing {
			return b, fmt.Errorf("%w: payment for booking %s is processing", models.ErrInvalidTransition, b.ID)
		}
		// Only an open session can be expired; a failed or missing one is already closed.
		if err == nil && order.Status == models.PaymentCreated {
			if err := s.gateway.CancelPayable(ctx, b.Payment.ProviderOrderID); err != nil && !errors.Is(err, models.ErrPaymentNotFound) {
				return nil, err
			}
		}
	}

	cancelled, err := s.store.Transition(ctx, b.ID, b.Status, models.BookingCancelled, nil)
	if err != nil {
		return nil, err
	}
	s.release(ctx, b.EventID, b.TicketType, b.Quantity)
	s.clearHold(ctx, b.ID)
	s.publish(ctx, models.BookingEventCancelled, cancelled)
	s.log.LogBooking("CANCEL", b.ID, "cancelled by owner")
	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.store.Get(ctx, bookingID)
}

// GetForUser returns the booking only to its owner.
func (s *Service) GetForUser(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		s.log.LogSecurity("BOOKING_ACCESS", fmt.Sprintf("user %s asked for booking %s of %s", userID, bookingID, b.UserID))
		return nil, models.ErrNotBookingOwner
	}
	return b, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListByEvent returns an event's bookings to the organizer that owns it.
func (s *Service) ListByEvent(ctx context.Context, who models.Identity, eventID string) ([]*models.Booking, error) {
	if err := s.AuthorizeOrganizer(ctx, who, eventID); err != nil {
		return nil, err
	}
	return s.store.ListByEvent(ctx, eventID)
}

// AuthorizeOrganizer checks that who organizes eventID. Admins may see every event.
func (s *Service) AuthorizeOrganizer(ctx context.Context, who models.Identity, eventID string) error {
	event, err := s.catalog.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if who.HasRole("admin") || event.OrganizerID == who.UserID {
		return nil
	}
	s.log.LogSecurity("EVENT_ACCESS", fmt.Sprintf("user %s is not the organizer of %s", who.UserID, eventID))
	return models.ErrNotEventOrganizer
}

// fail moves b from `from` to failed. Only the caller whose transition lands releases the
// reservation, which keeps every reservation released at most once.
func (s *Service) fail(ctx context.Context, b *models.Booking, from models.BookingStatus, payment *models.PaymentDetails) (*models.Booking, bool) {
	var patch *models.BookingPatch
	if payment != nil {
		patch = &models.BookingPatch{Payment: payment}
	}

	failed, err := s.store.Transition(ctx, b.ID, from, models.BookingFailed, patch)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			s.log.Warn("BOOKING", fmt.Sprintf("Booking %s not failed, it moved on: %v", b.ID, err))
		} else {
			s.log.Error("BOOKING", fmt.Sprintf("Booking %s could not be failed, reservation stays until the reaper runs: %v", b.ID, err))
		}
		current, gerr := s.store.Get(ctx, b.ID)
		if gerr != nil {
			return b, false
		}
		return current, false
	}

	s.release(ctx, b.EventID, b.TicketType, b.Quantity)
	s.clearHold(ctx, b.ID)
	s.publish(ctx, models.BookingEventFailed, failed)
	s.log.LogBooking("FAIL", b.ID, fmt.Sprintf("%s -> failed", from))
	return failed, true
}

func (s *Service) release(ctx context.Context, eventID, ticketType string, qty int) {
	if err := s.ledger.Release(ctx, eventID, ticketType, qty); err != nil {
		s.log.Error("INVENTORY", fmt.Sprintf("Release of %d x %s/%s failed: %v", qty, eventID, ticketType, err))
		return
	}
	s.log.LogInventory("RELEASE", eventID, ticketType, qty)
}

func (s *Service) clearHold(ctx context.Context, bookingID string) {
	if s.holds == nil {
		return
	}
	if err := s.holds.Clear(ctx, bookingID); err != nil {
		s.log.Warn("BOOKING", fmt.Sprintf("Checkout hold for %s not cleared: %v", bookingID, err))
	}
}

func (s *Service) publish(ctx context.Context, t models.BookingEventType, b *models.Booking) {
	evt := models.NewBookingEvent(t, b)
	for _, p := range s.publishers {
		if err := p.PublishBookingEvent(ctx, evt); err != nil {
			s.log.Warn("BOOKING", fmt.Sprintf("Publishing %s for %s failed: %v", t, b.ID, err))
		}
	}
}

// compensationContext keeps request values but survives the request being cancelled.
func (s *Service) compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}
