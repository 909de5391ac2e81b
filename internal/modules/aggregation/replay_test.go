package aggregation

import (
	"testing"

	"github.com/aristath/ledger/internal/domain"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var d = testingpkg.D

func TestReplay_Fixtures(t *testing.T) {
	agg := Replay(testingpkg.NewTradeFixtures("u1"))

	require.Len(t, agg.Holdings, 1)
	btc := agg.Holdings[0]
	assert.Equal(t, "BTC", btc.Symbol)
	assert.True(t, btc.Quantity.Equal(d("1.5")))
	// sell ratio 0.5/2 removes a quarter of the 90000 invested
	assert.True(t, btc.TotalInvested.Equal(d("67500")), btc.TotalInvested.String())
	assert.True(t, btc.AveragePrice.Equal(d("45000")))
	assert.True(t, agg.TotalInvested.Equal(d("67500")))
	assert.Equal(t, 1, agg.TotalAssets)
	assert.Equal(t, 3, agg.TotalTrades)
}

func TestReplay_SellToZeroRemovesPosition(t *testing.T) {
	trades := []domain.Trade{
		{TradeType: domain.TradeTypeBuy, AssetType: domain.AssetTypeStock, Symbol: "AAPL", Quantity: d("2"), PricePerUnit: d("10")},
		{TradeType: domain.TradeTypeBuy, AssetType: domain.AssetTypeCrypto, Symbol: "ETH", Quantity: d("1"), PricePerUnit: d("2000")},
		{TradeType: domain.TradeTypeSell, AssetType: domain.AssetTypeStock, Symbol: "AAPL", Quantity: d("2"), PricePerUnit: d("15")},
	}

	agg := Replay(trades)
	require.Len(t, agg.Holdings, 1)
	assert.Equal(t, "ETH", agg.Holdings[0].Symbol)
	assert.True(t, agg.TotalInvested.Equal(d("2000")))
	assert.Equal(t, 3, agg.TotalTrades)
}

func TestReplay_SellWithoutPositionIgnored(t *testing.T) {
	agg := Replay([]domain.Trade{
		{TradeType: domain.TradeTypeSell, AssetType: domain.AssetTypeStock, Symbol: "MSFT", Quantity: d("1"), PricePerUnit: d("300")},
	})
	assert.Empty(t, agg.Holdings)
	assert.True(t, agg.TotalInvested.IsZero())
	assert.Equal(t, 1, agg.TotalTrades)
}

func TestReplay_KeysBySymbolAndAssetType(t *testing.T) {
	agg := Replay([]domain.Trade{
		{TradeType: domain.TradeTypeBuy, AssetType: domain.AssetTypeStock, Symbol: "COIN", Quantity: d("1"), PricePerUnit: d("200")},
		{TradeType: domain.TradeTypeBuy, AssetType: domain.AssetTypeCrypto, Symbol: "COIN", Quantity: d("3"), PricePerUnit: d("1")},
	})
	require.Len(t, agg.Holdings, 2)
	assert.Equal(t, domain.AssetTypeCrypto, agg.Holdings[0].AssetType)
	assert.Equal(t, domain.AssetTypeStock, agg.Holdings[1].AssetType)
}

func TestReplay_Empty(t *testing.T) {
	agg := Replay(nil)
	assert.NotNil(t, agg.Holdings)
	assert.Empty(t, agg.Holdings)
	assert.Zero(t, agg.TotalTrades)
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]Aggregate{
		{TotalInvested: d("100"), TotalTrades: 2},
		{TotalInvested: d("300"), TotalTrades: 1},
		{TotalInvested: d("200"), TotalTrades: 4},
	})

	assert.Equal(t, 3, stats.Customers)
	assert.Equal(t, 7, stats.TotalTrades)
	assert.True(t, stats.TotalInvested.Equal(d("600")))
	assert.InDelta(t, 200, stats.MeanInvested, 1e-9)
	assert.InDelta(t, 100, stats.StdDevInvested, 1e-9)
	assert.InDelta(t, 200, stats.MedianInvested, 1e-9)

	single := Summarize([]Aggregate{{TotalInvested: d("50"), TotalTrades: 1}})
	assert.InDelta(t, 50, single.MeanInvested, 1e-9)
	assert.Zero(t, single.StdDevInvested)

	assert.Equal(t, 0, Summarize(nil).Customers)
}
