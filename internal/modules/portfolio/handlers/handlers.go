// Package handlers provides HTTP handlers for portfolio reads and recomputation.
package handlers

import (
	"net/http"

	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetPortfolio returns the portfolio and holdings of a user.
// With ?refresh=true prices are refreshed first; a refresh failure falls back to stored values.
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if r.URL.Query().Get("refresh") == "true" {
		if _, err := h.service.RefreshPrices(r.Context(), userID); err != nil {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("Price refresh failed, serving stored values")
		}
	}

	view, err := h.service.GetPortfolio(r.Context(), userID)
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, view, h.log)
}

// HandleRecompute recomputes the user's aggregates from current holdings
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	p, err := h.service.RecomputeForUser(r.Context(), userID)
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, p, h.log)
}
