package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers cash flow routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.HandleGetTransactions)
		r.Post("/", h.HandleRecordTransaction)
		r.Get("/{id}", h.HandleGetTransaction)
		r.Delete("/{id}", h.HandleDeleteTransaction)
	})
}
