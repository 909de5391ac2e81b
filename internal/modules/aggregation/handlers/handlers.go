// Package handlers provides HTTP handlers for aggregation reports.
package handlers

import (
	"net/http"

	"github.com/aristath/ledger/internal/modules/aggregation"
	"github.com/aristath/ledger/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles aggregation HTTP requests
type Handler struct {
	service *aggregation.Service
	log     zerolog.Logger
}

// NewHandler creates a new aggregation handler
func NewHandler(service *aggregation.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "aggregation").Logger(),
	}
}

// RegisterRoutes registers aggregation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/aggregation", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Get("/{userID}", h.HandleGetPortfolio)
	})
}

// HandleGetAll returns every customer's replayed aggregate with summary statistics
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.AggregateAll(r.Context())
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report, h.log)
}

// HandleGetPortfolio returns one customer's replayed aggregate
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	agg, err := h.service.AggregatePortfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, agg, h.log)
}
