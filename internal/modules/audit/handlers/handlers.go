// Package handlers provides HTTP handlers for the audit trail.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/aristath/ledger/internal/modules/audit"
	"github.com/aristath/ledger/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handler handles audit trail HTTP requests
type Handler struct {
	repo *audit.Repository
	log  zerolog.Logger
}

// NewHandler creates a new audit handler
func NewHandler(repo *audit.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "audit").Logger(),
	}
}

// RegisterRoutes registers audit routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit", h.HandleGetAudit)
}

// HandleGetAudit returns the trail of one target (?target_type=&target_id=)
// or the most recent entries (?limit=).
func (h *Handler) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	targetType, targetID := q.Get("target_type"), q.Get("target_id")

	var (
		entries []audit.Entry
		err     error
	)
	switch {
	case targetType != "" && targetID != "":
		entries, err = h.repo.ListByTarget(r.Context(), targetType, targetID)
	case targetType != "" || targetID != "":
		utils.WriteError(w, http.StatusBadRequest, "target_type and target_id must be given together", h.log)
		return
	default:
		limit := defaultLimit
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				utils.WriteError(w, http.StatusBadRequest, "limit must be a positive integer", h.log)
				return
			}
		}
		if limit > maxLimit {
			limit = maxLimit
		}
		entries, err = h.repo.ListRecent(r.Context(), limit)
	}
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	}, h.log)
}
