package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades)
		r.Post("/", h.HandleExecuteTrade)
		r.Get("/{id}", h.HandleGetTrade)
		r.Delete("/{id}", h.HandleDeleteTrade) // record-only, see SettlementService.DeleteTrade
	})
}
