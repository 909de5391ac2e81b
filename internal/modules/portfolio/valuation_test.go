package portfolio

import (
	"context"
	"math/rand"
	"testing"

	"github.com/aristath/ledger/internal/domain"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_SumsByAssetClass(t *testing.T) {
	hs := testingpkg.NewHoldingFixtures("p1")

	totals := Compute(hs, testingpkg.D("3000"))

	assert.True(t, totals.CryptoValue.Equal(testingpkg.D("4000")), totals.CryptoValue.String())
	assert.True(t, totals.StockValue.Equal(testingpkg.D("1800")))
	assert.True(t, totals.CommodityValue.Equal(testingpkg.D("2100")))
	assert.True(t, totals.CashValue.Equal(testingpkg.D("500")))
	assert.True(t, totals.TotalValue.Equal(testingpkg.D("8400")))
	assert.True(t, totals.TotalProfitLoss.Equal(testingpkg.D("5400")))
}

func TestCompute_Empty(t *testing.T) {
	totals := Compute(nil, testingpkg.D("100"))
	assert.True(t, totals.TotalValue.IsZero())
	assert.True(t, totals.TotalProfitLoss.Equal(testingpkg.D("-100")))
}

func TestCompute_TotalIsSumOfClasses(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := rng.Intn(12)
		hs := make([]domain.Holding, n)
		for j := range hs {
			hs[j] = domain.Holding{
				AssetType:    domain.AssetTypes[rng.Intn(len(domain.AssetTypes))],
				Quantity:     decimal.New(rng.Int63n(1_000_000)+1, -3),
				CurrentPrice: decimal.New(rng.Int63n(10_000_000)+1, -2),
			}
			hs[j].Revalue()
		}
		invested := decimal.New(rng.Int63n(1_000_000), -2)

		totals := Compute(hs, invested)

		sum := totals.CryptoValue.Add(totals.StockValue).Add(totals.CashValue).Add(totals.CommodityValue)
		require.True(t, totals.TotalValue.Equal(sum))

		var market decimal.Decimal
		for _, h := range hs {
			market = market.Add(h.MarketValue)
		}
		require.True(t, totals.TotalValue.Equal(market))
		require.True(t, totals.TotalProfitLoss.Equal(totals.TotalValue.Sub(invested)))
	}
}

func TestValuation_RecomputeIsIdempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	db := env.db

	p, err := env.portfolios.GetOrCreate(ctx, db, "user-1")
	require.NoError(t, err)
	p.TotalInvested = testingpkg.D("1000")
	require.NoError(t, env.portfolios.Save(ctx, db, p))

	for _, h := range testingpkg.NewHoldingFixtures(p.ID) {
		h := h
		require.NoError(t, env.holdings.Upsert(ctx, db, &h))
	}

	first, err := env.valuation.Recompute(ctx, db, p.ID)
	require.NoError(t, err)
	second, err := env.valuation.Recompute(ctx, db, p.ID)
	require.NoError(t, err)

	assert.True(t, first.TotalValue.Equal(testingpkg.D("8400")))
	assert.True(t, first.TotalValue.Equal(second.TotalValue))
	assert.True(t, first.CashValue.Equal(second.CashValue))
	assert.True(t, first.TotalProfitLoss.Equal(second.TotalProfitLoss))
	assert.True(t, second.TotalInvested.Equal(testingpkg.D("1000")), "recompute must not touch total invested")
}

func TestValuation_RecomputeMissingPortfolio(t *testing.T) {
	env := setupEnv(t)
	_, err := env.valuation.Recompute(context.Background(), env.db, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
