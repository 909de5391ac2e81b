package testing

import (
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// D parses a decimal literal, panicking on malformed input
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewTradeFixtures returns a BUY/BUY/SELL history for one customer in execution order
func NewTradeFixtures(userID string) []domain.Trade {
	base := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	return []domain.Trade{
		{
			ID:           "trade-1",
			UserID:       userID,
			TradeType:    domain.TradeTypeBuy,
			AssetType:    domain.AssetTypeCrypto,
			Symbol:       "BTC",
			Quantity:     D("1"),
			PricePerUnit: D("40000"),
			TotalValue:   D("40000"),
			ExecutedAt:   base,
			ExecutedBy:   "admin",
		},
		{
			ID:           "trade-2",
			UserID:       userID,
			TradeType:    domain.TradeTypeBuy,
			AssetType:    domain.AssetTypeCrypto,
			Symbol:       "BTC",
			Quantity:     D("1"),
			PricePerUnit: D("50000"),
			TotalValue:   D("50000"),
			ExecutedAt:   base.Add(time.Hour),
			ExecutedBy:   "admin",
		},
		{
			ID:           "trade-3",
			UserID:       userID,
			TradeType:    domain.TradeTypeSell,
			AssetType:    domain.AssetTypeCrypto,
			Symbol:       "BTC",
			Quantity:     D("0.5"),
			PricePerUnit: D("60000"),
			TotalValue:   D("30000"),
			ExecutedAt:   base.Add(2 * time.Hour),
			ExecutedBy:   "admin",
		},
	}
}

// NewHoldingFixtures returns one holding per asset class for portfolioID
func NewHoldingFixtures(portfolioID string) []domain.Holding {
	now := time.Now()
	holdings := []domain.Holding{
		{PortfolioID: portfolioID, Symbol: "ETH", AssetType: domain.AssetTypeCrypto, Name: "Ethereum", Quantity: D("2"), AverageBuyPrice: D("1500"), CurrentPrice: D("2000")},
		{PortfolioID: portfolioID, Symbol: "AAPL", AssetType: domain.AssetTypeStock, Name: "Apple Inc.", Quantity: D("10"), AverageBuyPrice: D("150"), CurrentPrice: D("180")},
		{PortfolioID: portfolioID, Symbol: "XAU", AssetType: domain.AssetTypeCommodity, Name: "Gold", Quantity: D("1"), AverageBuyPrice: D("1900"), CurrentPrice: D("2100")},
		*domain.NewCashHolding(portfolioID, domain.BaseCurrency, D("500"), now),
	}
	for i := range holdings {
		holdings[i].LastPriceUpdate = now
		holdings[i].Revalue()
	}
	return holdings
}
