// Package handlers provides HTTP handlers for trade settlement.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/ledger/internal/auth"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/trading"
	"github.com/aristath/ledger/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	service *trading.SettlementService
	log     zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(service *trading.SettlementService, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		service: service,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

// ExecuteTradeRequest is the body of POST /api/trades
type ExecuteTradeRequest struct {
	UserID       string          `json:"user_id"`
	TradeType    string          `json:"trade_type"`
	AssetType    string          `json:"asset_type"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// HandleExecuteTrade settles a trade entered by an operator
func (h *TradingHandlers) HandleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var body ExecuteTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", h.log)
		return
	}

	tradeType, err := domain.ParseTradeType(body.TradeType)
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}
	assetType, err := domain.ParseAssetType(body.AssetType)
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	result, err := h.service.ExecuteTrade(r.Context(), trading.TradeRequest{
		UserID:       body.UserID,
		TradeType:    tradeType,
		AssetType:    assetType,
		Symbol:       body.Symbol,
		Name:         body.Name,
		Quantity:     body.Quantity,
		PricePerUnit: body.PricePerUnit,
		ExecutedBy:   auth.ActorID(r.Context()),
	})
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, result, h.log)
}

// HandleGetTrades returns a user's trade history (?user_id=)
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		utils.WriteDomainError(w, domain.NewValidationError("user_id", "is required"), h.log)
		return
	}

	trades, err := h.service.ListTrades(r.Context(), userID)
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	}, h.log)
}

// HandleGetTrade returns one trade
func (h *TradingHandlers) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.service.GetTrade(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, trade, h.log)
}

// HandleDeleteTrade purges a trade record. Holdings are not reversed.
func (h *TradingHandlers) HandleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteTrade(r.Context(), id, auth.ActorID(r.Context())); err != nil {
		utils.WriteDomainError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":              id,
		"deleted":         true,
		"ledger_reversed": false,
	}, h.log)
}
