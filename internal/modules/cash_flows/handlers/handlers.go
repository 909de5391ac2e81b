// Package handlers provides HTTP handlers for deposits and withdrawals.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/ledger/internal/auth"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/cash_flows"
	"github.com/aristath/ledger/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles cash flow HTTP requests
type Handler struct {
	service *cash_flows.SettlementService
	log     zerolog.Logger
}

// NewHandler creates a new cash flows handler
func NewHandler(service *cash_flows.SettlementService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "cash_flows").Logger(),
	}
}

// RecordTransactionRequest is the body of POST /api/transactions
type RecordTransactionRequest struct {
	UserID          string          `json:"user_id"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
}

// HandleRecordTransaction records a completed deposit or withdrawal
func (h *Handler) HandleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var body RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", h.log)
		return
	}

	transactionType, err := domain.ParseTransactionType(body.TransactionType)
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	result, err := h.service.RecordTransaction(r.Context(), cash_flows.TransactionRequest{
		UserID:          body.UserID,
		TransactionType: transactionType,
		Amount:          body.Amount,
		Currency:        body.Currency,
		ProcessedBy:     auth.ActorID(r.Context()),
	})
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, result, h.log)
}

// HandleGetTransactions returns a user's transactions (?user_id=)
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		utils.WriteDomainError(w, domain.NewValidationError("user_id", "is required"), h.log)
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	}, h.log)
}

// HandleGetTransaction returns one transaction
func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, txn, h.log)
}

// HandleDeleteTransaction deletes a transaction, reversing it first if it completed
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.service.DeleteTransaction(r.Context(), id, auth.ActorID(r.Context()))
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":              id,
		"deleted":         true,
		"ledger_reversed": result.Reversed,
	}, h.log)
}
