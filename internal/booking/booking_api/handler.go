package booking_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

type BookingService interface {
	BookTicket(ctx context.Context, who models.Identity, eventID, ticketType string, qty int) (*models.BookingResult, error)
	Reconcile(ctx context.Context, cb models.Callback) (*models.Booking, error)
	Cancel(ctx context.Context, userID, bookingID string) (*models.Booking, error)
	GetForUser(ctx context.Context, userID, bookingID string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Booking, error)
	ListByEvent(ctx context.Context, who models.Identity, eventID string) ([]*models.Booking, error)
	AuthorizeOrganizer(ctx context.Context, who models.Identity, eventID string) error
}

type WebhookParser interface {
	ParseWebhook(payload []byte, sigHeader string) (models.Callback, error)
}

// Feed streams an event's booking changes to an organizer.
type Feed interface {
	Stream(w http.ResponseWriter, r *http.Request, eventID string) error
}

type Handler struct {
	Service  BookingService
	Webhooks WebhookParser
	Feed     Feed
	Validate *validator.Validate
	Logger   *logger.Logger
}

func NewHandler(svc BookingService, webhooks WebhookParser, feed Feed, log *logger.Logger) *Handler {
	return &Handler{
		Service:  svc,
		Webhooks: webhooks,
		Feed:     feed,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Logger:   log,
	}
}

// RegisterRoutes mounts the routes that require an authenticated caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/bookings", func(r chi.Router) {
		r.Get("/my", h.ListMyBookings)
		r.Post("/{eventId}", h.BookTicket)
		r.Get("/{bookingId}", h.GetBooking)
		r.Delete("/{bookingId}", h.CancelBooking)
		r.Get("/{bookingId}/ticket.png", h.TicketQR)
	})
	r.Route("/api/events/{eventId}/bookings", func(r chi.Router) {
		r.Use(auth.RequireRole("organizer", "admin"))
		r.Get("/", h.ListEventBookings)
		r.Get("/stream", h.StreamEventBookings)
	})
}

// RegisterPublicRoutes mounts the payment provider's callbacks. They authenticate by
// signature, not by bearer token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/payments/update", h.PaymentUpdate)
	r.Post("/payments/webhook", h.StripeWebhook)
}

type BookTicketRequest struct {
	TicketType string `json:"ticketType" validate:"required,max=64"`
	Quantity   int    `json:"quantity" validate:"min=1"`
}

type BookTicketResponse struct {
	Booking     *models.Booking `json:"booking"`
	RedirectURL string          `json:"redirectUrl"`
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	who, ok := auth.IdentityFrom(r.Context())
	if !ok || who.UserID == "" {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized", auth.ErrMissingToken.Error())
		return models.Identity{}, false
	}
	return who, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := utils.WriteDomainError(w, err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("%s: %d %v", op, status, err))
}

func (h *Handler) ok(w http.ResponseWriter, op string, status int, message string, data interface{}) {
	if err := utils.WriteSuccess(w, status, message, data); err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to encode response: %v", op, err))
	}
}

// BookTicket reserves tickets for the caller and returns where to pay.
func (h *Handler) BookTicket(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")

	var req BookTicketRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", validationMessage(err))
		return
	}

	res, err := h.Service.BookTicket(r.Context(), who, eventID, req.TicketType, req.Quantity)
	if err != nil {
		h.fail(w, "BookTicket", err)
		return
	}
	h.ok(w, "BookTicket", http.StatusCreated, "Booking created", BookTicketResponse{
		Booking:     res.Booking,
		RedirectURL: res.RedirectURL,
	})
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	bookings, err := h.Service.ListByUser(r.Context(), who.UserID)
	if err != nil {
		h.fail(w, "ListMyBookings", err)
		return
	}
	h.ok(w, "ListMyBookings", http.StatusOK, "Bookings retrieved", nonNil(bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	b, err := h.Service.GetForUser(r.Context(), who.UserID, chi.URLParam(r, "bookingId"))
	if err != nil {
		h.fail(w, "GetBooking", err)
		return
	}
	h.ok(w, "GetBooking", http.StatusOK, "Booking retrieved", b)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	b, err := h.Service.Cancel(r.Context(), who.UserID, chi.URLParam(r, "bookingId"))
	if err != nil {
		h.fail(w, "CancelBooking", err)
		return
	}
	h.ok(w, "CancelBooking", http.StatusOK, "Booking cancelled", b)
}

// TicketQR serves the stored QR image of a confirmed booking.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	b, err := h.Service.GetForUser(r.Context(), who.UserID, chi.URLParam(r, "bookingId"))
	if err != nil {
		h.fail(w, "TicketQR", err)
		return
	}
	if !b.HasTicket() || len(b.Ticket.QRCode) == 0 {
		utils.WriteError(w, http.StatusNotFound, "Ticket not issued", fmt.Sprintf("booking is %s", b.Status))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(b.Ticket.QRCode)
}

func (h *Handler) ListEventBookings(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	bookings, err := h.Service.ListByEvent(r.Context(), who, chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, "ListEventBookings", err)
		return
	}
	h.ok(w, "ListEventBookings", http.StatusOK, "Bookings retrieved", nonNil(bookings))
}

// StreamEventBookings keeps an SSE connection open and pushes booking changes of the event.
func (h *Handler) StreamEventBookings(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")
	if err := h.Service.AuthorizeOrganizer(r.Context(), who, eventID); err != nil {
		h.fail(w, "StreamEventBookings", err)
		return
	}

	h.Logger.Info("SSE", fmt.Sprintf("Organizer %s connected to event %s", who.UserID, eventID))
	if err := h.Feed.Stream(w, r, eventID); err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Stream for event %s ended: %v", eventID, err))
	}
	h.Logger.Debug("SSE", fmt.Sprintf("Organizer %s disconnected from event %s", who.UserID, eventID))
}

// PaymentUpdate is where the provider redirects the buyer after checkout. The query only
// tells us which booking to look at; the outcome is read from the provider.
func (h *Handler) PaymentUpdate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := models.Callback{
		Source:            models.CallbackRedirect,
		ProviderOrderID:   q.Get("order_id"),
		ProviderPaymentID: q.Get("payment_id"),
		BookingID:         q.Get("booking_id"),
		Signature:         q.Get("signature"),
	}

	b, err := h.Service.Reconcile(r.Context(), cb)
	if err != nil {
		h.fail(w, "PaymentUpdate", err)
		return
	}
	h.ok(w, "PaymentUpdate", http.StatusOK, "Payment confirmed", map[string]*models.Booking{"booking": b})
}

// StripeWebhook acknowledges deliveries whose outcome is final so the provider stops
// retrying, and answers 5xx only when a retry could succeed.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.WriteError(w, http.StatusRequestEntityTooLarge, "Payload too large", err.Error())
		return
	}

	cb, err := h.Webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrWebhookIgnored) {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("Rejected delivery: %v", err))
		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			utils.WriteError(w, webhookErr.StatusCode, webhookErr.PublicError, "")
			return
		}
		utils.WriteError(w, http.StatusBadRequest, "Webhook processing error", "")
		return
	}

	b, err := h.Service.Reconcile(r.Context(), cb)
	if err != nil {
		status, _ := utils.HTTPStatus(err)
		switch {
		case errors.Is(err, models.ErrGatewayRejected):
			h.Logger.Error("WEBHOOK", fmt.Sprintf("Provider rejected reconcile of %s, not retried: %v", cb.ProviderOrderID, err))
		case models.IsGatewayError(err) || status >= http.StatusInternalServerError:
			h.Logger.Error("WEBHOOK", fmt.Sprintf("Reconcile of %s failed, provider will retry: %v", cb.ProviderOrderID, err))
			utils.WriteError(w, http.StatusServiceUnavailable, "Try again later", "")
			return
		default:
			h.Logger.Info("WEBHOOK", fmt.Sprintf("Delivery for %s settled without confirmation: %v", cb.ProviderOrderID, err))
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	h.Logger.LogPayment("WEBHOOK", b.ID, fmt.Sprintf("booking is %s", b.Status))
	w.WriteHeader(http.StatusOK)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func nonNil(bookings []*models.Booking) []*models.Booking {
	if bookings == nil {
		return []*models.Booking{}
	}
	return bookings
}
