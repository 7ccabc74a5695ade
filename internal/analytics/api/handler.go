package analytics_api

import (
	"context"
	"fmt"
	"net/http"

	"ms-booking/internal/analytics"
	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type SalesSource interface {
	EventSales(ctx context.Context, eventID string, from, to string) (*analytics.SalesReport, error)
}

// Authorizer decides whether the caller may see an event's figures.
type Authorizer interface {
	AuthorizeOrganizer(ctx context.Context, who models.Identity, eventID string) error
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Sales      SalesSource
	Authorizer Authorizer
	Logger     *logger.Logger
}

func NewHandler(sales SalesSource, authz Authorizer, log *logger.Logger) *Handler {
	return &Handler{Sales: sales, Authorizer: authz, Logger: log}
}

// RegisterRoutes expects r to run behind auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events/{eventId}/sales", h.GetEventSales)
}

// GetEventSales returns daily sales for an event, optionally bounded by ?from= and ?to=
// (YYYY-MM-DD).
func (h *Handler) GetEventSales(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	who, _ := auth.IdentityFrom(r.Context())

	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	for _, d := range []string{from, to} {
		if d != "" && !analytics.ValidDay(d) {
			utils.WriteError(w, http.StatusBadRequest, "Invalid date", fmt.Sprintf("%q is not YYYY-MM-DD", d))
			return
		}
	}

	if err := h.Authorizer.AuthorizeOrganizer(r.Context(), who, eventID); err != nil {
		utils.WriteDomainError(w, err)
		return
	}

	report, err := h.Sales.EventSales(r.Context(), eventID, from, to)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetEventSales: %v", err))
		utils.WriteDomainError(w, err)
		return
	}
	if err := utils.WriteSuccess(w, http.StatusOK, "Sales retrieved", report); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetEventSales: failed to encode response: %v", err))
	}
}
