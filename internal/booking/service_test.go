package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/database"
	eventsdb "ms-booking/internal/events/db"
	inventorydb "ms-booking/internal/inventory/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeGateway keeps checkout sessions in memory and lets tests decide their outcome.
type fakeGateway struct {
	mu         sync.Mutex
	sessions   map[string]*models.PaymentOrder
	seq        int
	createErr  error
	fetchErr   error
	cancelErr  error
	cancelled  []string
	fetchCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*models.PaymentOrder{}}
}

func (g *fakeGateway) CreatePayable(_ context.Context, b *models.Booking) (models.Payable, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return models.Payable{}, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("cs_%d", g.seq)
	g.sessions[id] = &models.PaymentOrder{
		ProviderOrderID: id,
		Amount:          b.Amount,
		Currency:        b.Currency,
		Status:          models.PaymentCreated,
		BookingID:       b.ID,
	}
	return models.Payable{ProviderOrderID: id, RedirectURL: "https://pay.example.com/" + id}, nil
}

func (g *fakeGateway) FetchOrder(_ context.Context, id string) (models.PaymentOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchErr != nil {
		return models.PaymentOrder{}, g.fetchErr
	}
	s, ok := g.sessions[id]
	if !ok {
		return models.PaymentOrder{}, models.ErrPaymentNotFound
	}
	return *s, nil
}

func (g *fakeGateway) FetchStatus(_ context.Context, paymentID string) (models.PaymentOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	for _, s := range g.sessions {
		if s.ProviderPaymentID == paymentID {
			out := *s
			out.ProviderOrderID = ""
			return out, nil
		}
	}
	return models.PaymentOrder{}, models.ErrPaymentNotFound
}

func (g *fakeGateway) VerifySignature(cb models.Callback) bool {
	return cb.Source == models.CallbackWebhook || cb.Signature == "sig:"+cb.BookingID
}

// CancelPayable refuses sessions that are no longer open, as the provider does.
func (g *fakeGateway) CancelPayable(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	s, ok := g.sessions[id]
	if !ok {
		return models.ErrPaymentNotFound
	}
	if s.Status != models.PaymentCreated {
		return fmt.Errorf("%w: only open sessions can be expired", models.ErrGatewayRejected)
	}
	g.cancelled = append(g.cancelled, id)
	s.Status = models.PaymentFailed
	return nil
}

func (g *fakeGateway) set(id string, status models.PaymentStatus, mutate ...func(*models.PaymentOrder)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[id]
	s.Status = status
	if status == models.PaymentCaptured {
		s.ProviderPaymentID = "pi_" + id
	}
	for _, m := range mutate {
		m(s)
	}
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishBookingEvent(ctx context.Context, evt models.BookingEvent) error {
	return m.Called(ctx, evt).Error(0)
}

type memoryHolds struct {
	mu    sync.Mutex
	holds map[string]time.Duration
}

func (h *memoryHolds) Track(_ context.Context, id string, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.holds[id] = ttl
	return nil
}

func (h *memoryHolds) Clear(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.holds, id)
	return nil
}

type fixture struct {
	svc     *Service
	store   *bookingdb.Store
	ledger  *inventorydb.Ledger
	gateway *fakeGateway
	holds   *memoryHolds
	events  *MockPublisher
	issuer  *qr.Issuer
}

var alice = models.Identity{UserID: "user-alice", Name: "Alice", Email: "alice@example.com"}
var bob = models.Identity{UserID: "user-bob", Name: "Bob", Email: "bob@example.com"}

func setupService(t *testing.T, available int) *fixture {
	t.Helper()
	ctx := context.Background()
	bunDB, err := database.OpenSQLite(ctx, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	catalog := eventsdb.NewCatalog(bunDB)
	require.NoError(t, catalog.CreateEvent(ctx, &models.Event{
		ID:          "evt-1",
		Name:        "Sunburn",
		OrganizerID: "org-1",
		StartsAt:    time.Date(2026, 12, 28, 16, 0, 0, 0, time.UTC),
		Venue:       "Vagator",
		City:        "Goa",
		TicketClasses: []*models.TicketClass{
			{Type: "General", UnitPrice: 500, Capacity: available},
		},
	}))

	f := &fixture{
		store:   bookingdb.NewStore(bunDB, catalog, "inr"),
		ledger:  inventorydb.NewLedger(bunDB, catalog),
		gateway: newFakeGateway(),
		holds:   &memoryHolds{holds: map[string]time.Duration{}},
		events:  new(MockPublisher),
		issuer:  qr.NewIssuer("ticket-secret", time.Hour, "https://tickets.example.com"),
	}
	f.events.On("PublishBookingEvent", mock.Anything, mock.Anything).Return(nil)

	f.svc = NewService(Deps{
		Ledger:      f.ledger,
		Store:       f.store,
		Catalog:     catalog,
		Gateway:     f.gateway,
		Tickets:     f.issuer,
		Holds:       f.holds,
		Publishers:  []EventPublisher{f.events},
		Logger:      logger.NewNop(nil),
		CheckoutTTL: 15 * time.Minute,
	})
	return f
}

func (f *fixture) available(t *testing.T) int {
	n, err := f.ledger.Available(context.Background(), "evt-1", "General")
	require.NoError(t, err)
	return n
}

func (f *fixture) published(t models.BookingEventType) int {
	n := 0
	for _, c := range f.events.Calls {
		if c.Arguments.Get(1).(models.BookingEvent).Type == t {
			n++
		}
	}
	return n
}

func redirect(b *models.Booking) models.Callback {
	return models.Callback{
		Source:          models.CallbackRedirect,
		ProviderOrderID: b.Payment.ProviderOrderID,
		BookingID:       b.ID,
		Signature:       "sig:" + b.ID,
	}
}

func TestBookTicketHappyPath(t *testing.T) {
	f := setupService(t, 10)

	res, err := f.svc.BookTicket(context.Background(), alice, "evt-1", "General", 2)
	require.NoError(t, err)

	assert.Equal(t, models.BookingAwaitingPayment, res.Booking.Status)
	assert.Equal(t, int64(1000), res.Booking.Amount)
	assert.Equal(t, "Alice", res.Booking.AttendeeName)
	assert.Equal(t, "https://pay.example.com/cs_1", res.RedirectURL)
	assert.Equal(t, "cs_1", res.Booking.Payment.ProviderOrderID)
	assert.Equal(t, 8, f.available(t))
	assert.Equal(t, 15*time.Minute, f.holds.holds[res.Booking.ID])
	assert.Equal(t, 1, f.published(models.BookingEventCreated))
}

func TestBookTicketLastTicketRace(t *testing.T) {
	f := setupService(t, 1)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, who := range []models.Identity{alice, bob} {
		wg.Add(1)
		go func(i int, who models.Identity) {
			defer wg.Done()
			_, results[i] = f.svc.BookTicket(context.Background(), who, "evt-1", "General", 1)
		}(i, who)
	}
	wg.Wait()

	var ok, soldOut int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrInsufficientInventory):
			soldOut++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, soldOut)
	assert.Equal(t, 0, f.available(t))
}

func TestBookTicketValidation(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	_, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 0)
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = f.svc.BookTicket(ctx, alice, "evt-1", "General", 6)
	assert.ErrorIs(t, err, models.ErrInsufficientInventory)

	_, err = f.svc.BookTicket(ctx, alice, "evt-404", "General", 1)
	assert.ErrorIs(t, err, models.ErrEventNotFound)

	_, err = f.svc.BookTicket(ctx, alice, "evt-1", "Balcony", 1)
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)

	assert.Equal(t, 5, f.available(t))
}

func TestBookTicketDuplicateReleasesReservation(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	_, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)

	_, err = f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	assert.ErrorIs(t, err, models.ErrDuplicateBooking)
	assert.Equal(t, 4, f.available(t))
}

func TestBookTicketGatewayFailureCompensates(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()
	f.gateway.createErr = fmt.Errorf("%w: connection refused", models.ErrGatewayUnavailable)

	_, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 3)
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
	assert.Equal(t, 5, f.available(t))

	mine, err := f.store.ListByUser(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.BookingFailed, mine[0].Status)

	// the failed booking does not block a retry
	f.gateway.createErr = nil
	_, err = f.svc.BookTicket(ctx, alice, "evt-1", "General", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, f.available(t))
}

func TestReconcileCapturedConfirmsOnce(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentCaptured)

	first, err := f.svc.Reconcile(ctx, redirect(res.Booking))
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, first.Status)
	assert.Equal(t, "pi_cs_1", first.Payment.ProviderPaymentID)
	require.True(t, first.HasTicket())
	assert.Equal(t, "Sunburn", first.Ticket.Payload.EventName)
	assert.Equal(t, "alice@example.com", first.Ticket.Payload.AttendeeEmail)
	assert.NotEmpty(t, first.Ticket.QRCode)
	_, held := f.holds.holds[res.Booking.ID]
	assert.False(t, held)

	bookingID, err := f.issuer.Verify(first.Ticket.VerificationID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, bookingID)

	fetches := f.gateway.fetchCalls
	second, err := f.svc.Reconcile(ctx, redirect(res.Booking))
	require.NoError(t, err)
	assert.Equal(t, first.Ticket.VerificationID, second.Ticket.VerificationID)
	assert.Equal(t, fetches, f.gateway.fetchCalls)
	assert.Equal(t, 3, f.available(t))
	assert.Equal(t, 1, f.published(models.BookingEventConfirmed))
}

func TestReconcileConcurrentDuplicatesConverge(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentCaptured)

	webhook := models.Callback{Source: models.CallbackWebhook, ProviderOrderID: "cs_1", BookingID: res.Booking.ID}
	var wg sync.WaitGroup
	out := make([]*models.Booking, 6)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cb := webhook
			if i%2 == 0 {
				cb = redirect(res.Booking)
			}
			b, err := f.svc.Reconcile(ctx, cb)
			assert.NoError(t, err)
			out[i] = b
		}(i)
	}
	wg.Wait()

	stored, err := f.store.Get(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, stored.Status)
	for _, b := range out {
		require.NotNil(t, b)
		assert.Equal(t, stored.Ticket.VerificationID, b.Ticket.VerificationID)
	}
	assert.Equal(t, 1, f.published(models.BookingEventConfirmed))
	assert.Equal(t, 4, f.available(t))
}

func TestReconcileFailedReleasesInventory(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, f.available(t))
	f.gateway.set("cs_1", models.PaymentFailed)

	b, err := f.svc.Reconcile(ctx, redirect(res.Booking))
	assert.ErrorIs(t, err, models.ErrPaymentNotCaptured)
	assert.Equal(t, models.BookingFailed, b.Status)
	assert.Equal(t, 5, f.available(t))

	// redelivery does not release twice
	_, err = f.svc.Reconcile(ctx, redirect(res.Booking))
	assert.ErrorIs(t, err, models.ErrPaymentNotCaptured)
	assert.Equal(t, 5, f.available(t))
	assert.Equal(t, 1, f.published(models.BookingEventFailed))
}

func TestReconcileProcessingLeavesBookingOpen(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentProcessing)

	b, err := f.svc.Reconcile(ctx, redirect(res.Booking))
	assert.ErrorIs(t, err, models.ErrPaymentNotCaptured)
	assert.Equal(t, models.BookingAwaitingPayment, b.Status)
	assert.Equal(t, 4, f.available(t))
	assert.Empty(t, f.gateway.cancelled)

	// the sweep keeps waiting for the money too
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := f.svc.ReapStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.gateway.set("cs_1", models.PaymentCaptured)
	b, err = f.svc.Reconcile(ctx, redirect(res.Booking))
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
}

func TestReconcileOpenCheckoutFailsAndReleases(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, f.available(t))

	// buyer pressed back on the checkout page
	b, err := f.svc.Reconcile(ctx, redirect(res.Booking))
	assert.ErrorIs(t, err, models.ErrPaymentNotCaptured)
	assert.Equal(t, models.BookingFailed, b.Status)
	assert.Equal(t, 5, f.available(t))
	assert.Equal(t, []string{"cs_1"}, f.gateway.cancelled)
	assert.Equal(t, 1, f.published(models.BookingEventFailed))

	// the slot is free again
	_, err = f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
}

func TestReconcileOpenCheckoutKeptWhenSessionCannotBeExpired(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)
	f.gateway.cancelErr = models.ErrGatewayUnavailable

	b, err := f.svc.Reconcile(ctx, redirect(res.Booking))
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
	assert.Equal(t, models.BookingAwaitingPayment, b.Status)
	assert.Equal(t, 3, f.available(t))
}

func TestReconcileRejectsUntrustedCallbacks(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
	other, err := f.svc.BookTicket(ctx, bob, "evt-1", "General", 1)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentCaptured)

	_, err = f.svc.Reconcile(ctx, models.Callback{Source: models.CallbackRedirect})
	assert.ErrorIs(t, err, models.ErrMalformedCallback)

	forged := redirect(res.Booking)
	forged.Signature = "sig:someone-else"
	_, err = f.svc.Reconcile(ctx, forged)
	assert.ErrorIs(t, err, models.ErrBadSignature)

	unknown := redirect(res.Booking)
	unknown.ProviderOrderID = "cs_404"
	_, err = f.svc.Reconcile(ctx, unknown)
	assert.ErrorIs(t, err, models.ErrUnknownOrder)

	// a valid signature for bob's booking cannot be replayed against alice's order
	crossed := redirect(other.Booking)
	crossed.ProviderOrderID = "cs_1"
	_, err = f.svc.Reconcile(ctx, crossed)
	assert.ErrorIs(t, err, models.ErrBadSignature)

	for _, id := range []string{res.Booking.ID, other.Booking.ID} {
		b, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BookingAwaitingPayment, b.Status)
	}
}

func TestReconcileAmountMismatch(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentCaptured, func(o *models.PaymentOrder) { o.Amount = 1 })

	_, err = f.svc.Reconcile(ctx, redirect(res.Booking))
	assert.ErrorIs(t, err, models.ErrPaymentMismatch)

	b, err := f.store.Get(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAwaitingPayment, b.Status)
}

func TestReconcileByPaymentIDOnly(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentCaptured)

	b, err := f.svc.Reconcile(ctx, models.Callback{Source: models.CallbackWebhook, ProviderPaymentID: "pi_cs_1"})
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, b.ID)
	assert.Equal(t, models.BookingConfirmed, b.Status)

	_, err = f.svc.Reconcile(ctx, models.Callback{Source: models.CallbackWebhook, ProviderPaymentID: "pi_unknown"})
	assert.ErrorIs(t, err, models.ErrUnknownOrder)
}

func TestCancelReleasesAndExpiresSession(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, bob.UserID, res.Booking.ID)
	assert.ErrorIs(t, err, models.ErrNotBookingOwner)

	b, err := f.svc.Cancel(ctx, alice.UserID, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)
	assert.Equal(t, 5, f.available(t))
	assert.Equal(t, []string{"cs_1"}, f.gateway.cancelled)

	// repeat is harmless
	_, err = f.svc.Cancel(ctx, alice.UserID, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, f.available(t))

	_, err = f.svc.Reconcile(ctx, redirect(res.Booking))
	assert.ErrorIs(t, err, models.ErrBookingClosed)
}

func TestCancelAfterSessionExpired(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentFailed)

	b, err := f.svc.Cancel(ctx, alice.UserID, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)
	assert.Equal(t, 5, f.available(t))
	assert.Empty(t, f.gateway.cancelled)
}

func TestCancelWhilePaymentProcessing(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentProcessing)

	b, err := f.svc.Cancel(ctx, alice.UserID, res.Booking.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, models.BookingAwaitingPayment, b.Status)
	assert.Equal(t, 4, f.available(t))
}

func TestCancelPaidBookingConfirmsInstead(t *testing.T) {
	f := setupService(t, 5)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)
	f.gateway.set("cs_1", models.PaymentCaptured)

	b, err := f.svc.Cancel(ctx, alice.UserID, res.Booking.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, 4, f.available(t))
}

func TestReapStale(t *testing.T) {
	f := setupService(t, 10)
	ctx := context.Background()

	abandoned, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)
	paid, err := f.svc.BookTicket(ctx, bob, "evt-1", "General", 3)
	require.NoError(t, err)
	f.gateway.set("cs_2", models.PaymentCaptured)
	assert.Equal(t, 5, f.available(t))

	// nothing is old enough yet
	n, err := f.svc.ReapStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = f.svc.ReapStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := f.store.Get(ctx, abandoned.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingFailed, b.Status)
	assert.Contains(t, f.gateway.cancelled, "cs_1")

	b, err = f.store.Get(ctx, paid.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)

	assert.Equal(t, 7, f.available(t))
}

func TestReapSkipsWhenProviderUnreachable(t *testing.T) {
	f := setupService(t, 10)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 2)
	require.NoError(t, err)
	f.gateway.fetchErr = models.ErrGatewayTimeout

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := f.svc.ReapStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	b, err := f.store.Get(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAwaitingPayment, b.Status)
	assert.Equal(t, 8, f.available(t))
}

func TestExpireHold(t *testing.T) {
	f := setupService(t, 10)
	ctx := context.Background()

	res, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 4)
	require.NoError(t, err)

	require.NoError(t, f.svc.Expire(ctx, res.Booking.ID))
	b, err := f.store.Get(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingFailed, b.Status)
	assert.Equal(t, 10, f.available(t))

	assert.ErrorIs(t, f.svc.Expire(ctx, "missing"), models.ErrBookingNotFound)
}

func TestListByEventRequiresOrganizer(t *testing.T) {
	f := setupService(t, 10)
	ctx := context.Background()

	_, err := f.svc.BookTicket(ctx, alice, "evt-1", "General", 1)
	require.NoError(t, err)

	_, err = f.svc.ListByEvent(ctx, bob, "evt-1")
	assert.ErrorIs(t, err, models.ErrNotEventOrganizer)

	list, err := f.svc.ListByEvent(ctx, models.Identity{UserID: "org-1", Roles: []string{"organizer"}}, "evt-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.ListByEvent(ctx, models.Identity{UserID: "root", Roles: []string{"admin"}}, "evt-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
