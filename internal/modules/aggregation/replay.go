// Package aggregation derives analytical portfolio views by replaying trade history.
//
// The replay is independent of the holding store and uses its own averaging rule:
// a SELL reduces the invested total pro rata instead of leaving the cost basis alone.
// It ignores deposits, withdrawals and deleted trades, so it is allowed to disagree
// with the authoritative ledger and must never be used to write state.
package aggregation

import (
	"sort"

	"github.com/aristath/ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Position is a synthesized holding produced by Replay
type Position struct {
	Symbol        string           `json:"symbol"`
	AssetType     domain.AssetType `json:"asset_type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	TotalInvested decimal.Decimal  `json:"total_invested"`
	AveragePrice  decimal.Decimal  `json:"average_price"`
}

// Aggregate is the replayed view of one customer's trades
type Aggregate struct {
	UserID        string          `json:"user_id"`
	Holdings      []Position      `json:"holdings"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalAssets   int             `json:"total_assets"`
	TotalTrades   int             `json:"total_trades"`
}

type positionKey struct {
	symbol    string
	assetType domain.AssetType
}

// Replay folds trades, which must be in execution order, into an Aggregate.
// A SELL of a position that was never bought is counted but otherwise ignored.
func Replay(trades []domain.Trade) Aggregate {
	positions := make(map[positionKey]*Position)

	for _, t := range trades {
		key := positionKey{symbol: t.Symbol, assetType: t.AssetType}
		pos := positions[key]

		switch t.TradeType {
		case domain.TradeTypeBuy:
			if pos == nil {
				pos = &Position{Symbol: t.Symbol, AssetType: t.AssetType}
				positions[key] = pos
			}
			pos.Quantity = pos.Quantity.Add(t.Quantity)
			pos.TotalInvested = pos.TotalInvested.Add(t.Quantity.Mul(t.PricePerUnit))
			pos.AveragePrice = pos.TotalInvested.Div(pos.Quantity)

		case domain.TradeTypeSell:
			if pos == nil || !pos.Quantity.IsPositive() {
				continue
			}
			sellRatio := t.Quantity.Div(pos.Quantity)
			pos.TotalInvested = pos.TotalInvested.Sub(pos.TotalInvested.Mul(sellRatio))
			pos.Quantity = pos.Quantity.Sub(t.Quantity)
			if !pos.Quantity.IsPositive() {
				delete(positions, key)
			}
		}
	}

	agg := Aggregate{
		Holdings:      make([]Position, 0, len(positions)),
		TotalInvested: decimal.Zero,
		TotalTrades:   len(trades),
	}
	for _, pos := range positions {
		agg.Holdings = append(agg.Holdings, *pos)
		agg.TotalInvested = agg.TotalInvested.Add(pos.TotalInvested)
	}
	sort.Slice(agg.Holdings, func(i, j int) bool {
		if agg.Holdings[i].AssetType != agg.Holdings[j].AssetType {
			return agg.Holdings[i].AssetType < agg.Holdings[j].AssetType
		}
		return agg.Holdings[i].Symbol < agg.Holdings[j].Symbol
	})
	agg.TotalAssets = len(agg.Holdings)

	return agg
}
