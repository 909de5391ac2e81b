package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/ledger/internal/domain"
	"github.com/rs/zerolog"
)

// WriteJSON writes data as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes an error response
func WriteError(w http.ResponseWriter, status int, message string, log zerolog.Logger) {
	WriteJSON(w, status, map[string]string{"error": message}, log)
}

// WriteDomainError maps a ledger error to its HTTP status and body
func WriteDomainError(w http.ResponseWriter, err error, log zerolog.Logger) {
	var (
		validation *domain.ValidationError
		funds      *domain.InsufficientFundsError
		position   *domain.InsufficientPositionError
	)

	switch {
	case errors.As(err, &validation):
		WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": validation.Error(),
			"field": validation.Field,
		}, log)
	case errors.As(err, &funds):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":     funds.Error(),
			"currency":  funds.Currency,
			"available": funds.Available.String(),
			"required":  funds.Required.String(),
		}, log)
	case errors.As(err, &position):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":      position.Error(),
			"symbol":     position.Symbol,
			"asset_type": string(position.AssetType),
			"available":  position.Available.String(),
			"required":   position.Required.String(),
		}, log)
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), log)
	case errors.Is(err, domain.ErrTradeDeleteForbidden):
		WriteError(w, http.StatusConflict, err.Error(), log)
	case errors.Is(err, domain.ErrStorageConflict),
		errors.Is(err, domain.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded):
		w.Header().Set("Retry-After", "1")
		WriteError(w, http.StatusServiceUnavailable, "ledger busy, retry later", log)
	default:
		log.Error().Err(err).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, "internal error", log)
	}
}
