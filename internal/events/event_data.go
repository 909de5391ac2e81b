package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	TradeSettled        EventType = "TRADE_SETTLED"
	TradeDeleted        EventType = "TRADE_DELETED"
	TransactionRecorded EventType = "TRANSACTION_RECORDED"
	TransactionReversed EventType = "TRANSACTION_REVERSED"
	PortfolioRecomputed EventType = "PORTFOLIO_RECOMPUTED"
	PricesRefreshed     EventType = "PRICES_REFRESHED"
	BackupCompleted     EventType = "BACKUP_COMPLETED"
)

// AllEventTypes lists every event type a dashboard can subscribe to
var AllEventTypes = []EventType{
	TradeSettled,
	TradeDeleted,
	TransactionRecorded,
	TransactionReversed,
	PortfolioRecomputed,
	PricesRefreshed,
	BackupCompleted,
}

// Event represents a system event
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
}

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// TradeSettledData contains data for TradeSettled events
type TradeSettledData struct {
	TradeID      string `json:"trade_id"`
	UserID       string `json:"user_id"`
	TradeType    string `json:"trade_type"`
	AssetType    string `json:"asset_type"`
	Symbol       string `json:"symbol"`
	Quantity     string `json:"quantity"`
	PricePerUnit string `json:"price_per_unit"`
	TotalValue   string `json:"total_value"`
}

// EventType returns the event type for TradeSettledData
func (d *TradeSettledData) EventType() EventType {
	return TradeSettled
}

// TradeDeletedData contains data for TradeDeleted events
type TradeDeletedData struct {
	TradeID        string `json:"trade_id"`
	UserID         string `json:"user_id"`
	LedgerReversed bool   `json:"ledger_reversed"`
}

// EventType returns the event type for TradeDeletedData
func (d *TradeDeletedData) EventType() EventType {
	return TradeDeleted
}

// TransactionRecordedData contains data for TransactionRecorded events
type TransactionRecordedData struct {
	TransactionID   string `json:"transaction_id"`
	UserID          string `json:"user_id"`
	TransactionType string `json:"transaction_type"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

// EventType returns the event type for TransactionRecordedData
func (d *TransactionRecordedData) EventType() EventType {
	return TransactionRecorded
}

// TransactionReversedData contains data for TransactionReversed events
type TransactionReversedData struct {
	TransactionID   string `json:"transaction_id"`
	UserID          string `json:"user_id"`
	TransactionType string `json:"transaction_type"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Reversed        bool   `json:"reversed"`
}

// EventType returns the event type for TransactionReversedData
func (d *TransactionReversedData) EventType() EventType {
	return TransactionReversed
}

// PortfolioRecomputedData contains data for PortfolioRecomputed events
type PortfolioRecomputedData struct {
	UserID          string `json:"user_id"`
	PortfolioID     string `json:"portfolio_id"`
	TotalValue      string `json:"total_value"`
	TotalProfitLoss string `json:"total_profit_loss"`
}

// EventType returns the event type for PortfolioRecomputedData
func (d *PortfolioRecomputedData) EventType() EventType {
	return PortfolioRecomputed
}

// PricesRefreshedData contains data for PricesRefreshed events
type PricesRefreshedData struct {
	UserID  string `json:"user_id"`
	Updated int    `json:"updated"`
	Stale   int    `json:"stale"`
}

// EventType returns the event type for PricesRefreshedData
func (d *PricesRefreshedData) EventType() EventType {
	return PricesRefreshed
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// toMap flattens typed event data into the generic Event payload
func toMap(data EventData) map[string]interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
