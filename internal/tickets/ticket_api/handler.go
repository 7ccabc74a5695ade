package ticket_api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templateFS embed.FS

var verifyPage = template.Must(template.ParseFS(templateFS, "templates/verify.html"))

type BookingReader interface {
	Get(ctx context.Context, bookingID string) (*models.Booking, error)
}

type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Handler struct {
	Bookings BookingReader
	Tokens   TokenVerifier
	Logger   *logger.Logger
}

func NewHandler(bookings BookingReader, tokens TokenVerifier, log *logger.Logger) *Handler {
	return &Handler{Bookings: bookings, Tokens: tokens, Logger: log}
}

// RegisterRoutes mounts the public verification page.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tickets/verify/{bookingId}", h.VerifyTicket)
}

type verifyView struct {
	State  string
	Ticket *models.TicketPayload
	Reason string
}

// VerifyTicket renders the page a scanned QR code leads to. Only a confirmed booking
// presented with the token stored on it is shown as valid.
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	token := r.URL.Query().Get("token")

	b, err := h.Bookings.Get(r.Context(), bookingID)
	if errors.Is(err, models.ErrBookingNotFound) {
		h.render(w, http.StatusNotFound, verifyView{State: "not_found"})
		return
	}
	if err != nil {
		h.Logger.Error("TICKET", fmt.Sprintf("VerifyTicket: load booking %s: %v", bookingID, err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if reason := h.check(b, token); reason != "" {
		h.Logger.LogSecurity("TICKET_INVALID", fmt.Sprintf("booking %s: %s", bookingID, reason))
		h.render(w, http.StatusForbidden, verifyView{State: "invalid", Reason: reason})
		return
	}

	h.Logger.Info("TICKET", fmt.Sprintf("Ticket for booking %s verified", bookingID))
	h.render(w, http.StatusOK, verifyView{State: "valid", Ticket: b.Ticket.Payload})
}

func (h *Handler) check(b *models.Booking, token string) string {
	if token == "" {
		return "The link carries no verification token."
	}
	subject, err := h.Tokens.Verify(token)
	if err != nil || subject != b.ID {
		return "The verification token is not valid for this ticket."
	}
	if b.Status != models.BookingConfirmed || !b.HasTicket() {
		return "This booking has not been confirmed."
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(b.Ticket.VerificationID)) != 1 {
		return "The verification token is not valid for this ticket."
	}
	return ""
}

func (h *Handler) render(w http.ResponseWriter, status int, view verifyView) {
	var buf bytes.Buffer
	if err := verifyPage.Execute(&buf, view); err != nil {
		h.Logger.Error("TICKET", fmt.Sprintf("render verify page: %v", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
