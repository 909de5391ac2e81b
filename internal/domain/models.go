// Package domain provides core ledger models and types.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the cash currency debited and credited by trades.
const BaseCurrency = "USD"

// AssetType represents the class of an asset held in a portfolio
type AssetType string

const (
	AssetTypeCrypto    AssetType = "CRYPTO"
	AssetTypeStock     AssetType = "STOCK"
	AssetTypeCash      AssetType = "CASH"
	AssetTypeCommodity AssetType = "COMMODITY"
)

// AssetTypes lists every supported asset class in valuation order
var AssetTypes = []AssetType{AssetTypeCrypto, AssetTypeStock, AssetTypeCash, AssetTypeCommodity}

// IsValid reports whether the asset type is one of the known classes
func (a AssetType) IsValid() bool {
	switch a {
	case AssetTypeCrypto, AssetTypeStock, AssetTypeCash, AssetTypeCommodity:
		return true
	}
	return false
}

// ParseAssetType parses an asset type case-insensitively. EQUITY is accepted as an alias for STOCK.
func ParseAssetType(s string) (AssetType, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "EQUITY" {
		return AssetTypeStock, nil
	}
	a := AssetType(v)
	if !a.IsValid() {
		return "", NewValidationError("asset_type", fmt.Sprintf("unknown asset type %q", s))
	}
	return a, nil
}

// TradeType represents the direction of a trade
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// ParseTradeType parses a trade type case-insensitively
func ParseTradeType(s string) (TradeType, error) {
	switch t := TradeType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TradeTypeBuy, TradeTypeSell:
		return t, nil
	}
	return "", NewValidationError("trade_type", fmt.Sprintf("unknown trade type %q", s))
}

// TransactionType represents the kind of cash movement
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// ParseTransactionType parses a transaction type case-insensitively
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal:
		return t, nil
	}
	return "", NewValidationError("transaction_type", fmt.Sprintf("unknown transaction type %q", s))
}

// TransactionStatus represents the processing state of a transaction.
// Only COMPLETED transactions affect holdings.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
)

// Portfolio holds the aggregate valuation of one customer's holdings.
// All *Value fields and TotalProfitLoss are derived from the holding set;
// TotalInvested is an independent running total.
type Portfolio struct {
	LastUpdated     time.Time       `json:"last_updated"`
	CreatedAt       time.Time       `json:"created_at"`
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	TotalValue      decimal.Decimal `json:"total_value"`
	CryptoValue     decimal.Decimal `json:"crypto_value"`
	StockValue      decimal.Decimal `json:"stock_value"`
	CashValue       decimal.Decimal `json:"cash_value"`
	CommodityValue  decimal.Decimal `json:"commodity_value"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	TotalProfitLoss decimal.Decimal `json:"total_profit_loss"`
	Version         int64           `json:"-"`
}

// Holding is a customer's position in one asset, unique per (portfolio, symbol, asset type)
type Holding struct {
	LastPriceUpdate time.Time       `json:"last_price_update"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ID              string          `json:"id"`
	PortfolioID     string          `json:"portfolio_id"`
	Symbol          string          `json:"symbol"`
	AssetType       AssetType       `json:"asset_type"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	AverageBuyPrice decimal.Decimal `json:"average_buy_price"`
	CostBasis       decimal.Decimal `json:"cost_basis"` // total paid for Quantity; zero when not tracked
	CurrentPrice    decimal.Decimal `json:"current_price"`
	MarketValue     decimal.Decimal `json:"market_value"`
}

// Revalue recomputes MarketValue from Quantity and CurrentPrice
func (h *Holding) Revalue() {
	h.MarketValue = h.Quantity.Mul(h.CurrentPrice)
}

// BookCost returns the total paid for the current quantity.
// Holdings without a recorded cost basis fall back to Quantity * AverageBuyPrice.
func (h *Holding) BookCost() decimal.Decimal {
	if h.CostBasis.IsPositive() {
		return h.CostBasis
	}
	return h.Quantity.Mul(h.AverageBuyPrice)
}

// IsCash reports whether the holding is a cash balance
func (h *Holding) IsCash() bool {
	return h.AssetType == AssetTypeCash
}

// NewCashHolding builds a cash holding for currency with a unit price of one
func NewCashHolding(portfolioID, currency string, amount decimal.Decimal, now time.Time) *Holding {
	currency = strings.ToUpper(currency)
	return &Holding{
		PortfolioID:     portfolioID,
		Symbol:          currency,
		AssetType:       AssetTypeCash,
		Name:            CashHoldingName(currency),
		Quantity:        amount,
		AverageBuyPrice: decimal.NewFromInt(1),
		CurrentPrice:    decimal.NewFromInt(1),
		MarketValue:     amount,
		LastPriceUpdate: now,
	}
}

// CashHoldingName returns the display name of a cash holding, e.g. "USD Cash"
func CashHoldingName(currency string) string {
	return strings.ToUpper(currency) + " Cash"
}

// Trade is an immutable buy or sell event
type Trade struct {
	ExecutedAt   time.Time       `json:"executed_at"`
	CreatedAt    time.Time       `json:"created_at"`
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	TradeType    TradeType       `json:"trade_type"`
	AssetType    AssetType       `json:"asset_type"`
	Symbol       string          `json:"symbol"`
	ExecutedBy   string          `json:"executed_by"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// Transaction is a deposit or withdrawal of cash
type Transaction struct {
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	TransactionType TransactionType   `json:"transaction_type"`
	Currency        string            `json:"currency"`
	Status          TransactionStatus `json:"status"`
	ProcessedBy     string            `json:"processed_by"`
	Amount          decimal.Decimal   `json:"amount"`
}

// IsCompleted reports whether the transaction has a ledger effect
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// Quote is a price observation returned by a price source
type Quote struct {
	FetchedAt     time.Time       `json:"fetched_at"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Stale         bool            `json:"stale"`
}
