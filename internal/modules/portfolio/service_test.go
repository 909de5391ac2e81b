package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/events"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPriceSource struct {
	mock.Mock
}

func (m *mockPriceSource) GetPrice(ctx context.Context, symbol string, assetType domain.AssetType) (domain.Quote, error) {
	args := m.Called(ctx, symbol, assetType)
	return args.Get(0).(domain.Quote), args.Error(1)
}

func seedPortfolio(t *testing.T, env *testEnv, userID string) *domain.Portfolio {
	ctx := context.Background()
	p, err := env.portfolios.GetOrCreate(ctx, env.db, userID)
	require.NoError(t, err)
	for _, h := range testingpkg.NewHoldingFixtures(p.ID) {
		h := h
		require.NoError(t, env.holdings.Upsert(ctx, env.db, &h))
	}
	p, err = env.valuation.Recompute(ctx, env.db, p.ID)
	require.NoError(t, err)
	return p
}

func TestService_GetPortfolio(t *testing.T) {
	env := setupEnv(t)
	svc := NewService(env.coordinator, env.portfolios, env.holdings, env.valuation, nil, nil, zerolog.Nop())
	seedPortfolio(t, env, "user-1")

	view, err := svc.GetPortfolio(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, view.Holdings, 4)
	assert.True(t, view.Portfolio.TotalValue.Equal(testingpkg.D("8400")))

	_, err = svc.GetPortfolio(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_RefreshPrices_StaleFallback(t *testing.T) {
	env := setupEnv(t)
	prices := new(mockPriceSource)
	bus := events.NewBus(zerolog.Nop())
	sub := bus.Subscribe(events.PricesRefreshed)
	defer bus.Unsubscribe(sub)

	svc := NewService(env.coordinator, env.portfolios, env.holdings, env.valuation, prices, events.NewManager(bus, zerolog.Nop()), zerolog.Nop())
	p := seedPortfolio(t, env, "user-1")

	now := time.Now()
	prices.On("GetPrice", mock.Anything, "ETH", domain.AssetTypeCrypto).
		Return(domain.Quote{Symbol: "ETH", Price: testingpkg.D("2500"), FetchedAt: now}, nil)
	prices.On("GetPrice", mock.Anything, "AAPL", domain.AssetTypeStock).
		Return(domain.Quote{Symbol: "AAPL", Price: testingpkg.D("200"), FetchedAt: now, Stale: true}, nil)
	prices.On("GetPrice", mock.Anything, "XAU", domain.AssetTypeCommodity).
		Return(domain.Quote{}, errors.New("upstream down"))

	result, err := svc.RefreshPrices(context.Background(), "user-1")
	require.NoError(t, err)
	prices.AssertExpectations(t)
	prices.AssertNotCalled(t, "GetPrice", mock.Anything, "USD", domain.AssetTypeCash)

	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Stale)
	assert.Equal(t, []string{"XAU"}, result.Unavailable)

	// ETH 2*2500 + AAPL 10*200 + XAU unchanged 2100 + cash 500
	assert.True(t, result.Portfolio.TotalValue.Equal(testingpkg.D("9600")), result.Portfolio.TotalValue.String())

	gold, err := env.holdings.Get(context.Background(), env.db, p.ID, "XAU", domain.AssetTypeCommodity)
	require.NoError(t, err)
	assert.True(t, gold.CurrentPrice.Equal(testingpkg.D("2100")), "failed lookup keeps stored price")

	eth, err := env.holdings.Get(context.Background(), env.db, p.ID, "ETH", domain.AssetTypeCrypto)
	require.NoError(t, err)
	assert.True(t, eth.AverageBuyPrice.Equal(testingpkg.D("1500")), "price refresh never touches cost basis")
	assert.True(t, eth.MarketValue.Equal(testingpkg.D("5000")))

	require.Len(t, sub.C, 1)
}

func TestService_RecomputeForUser(t *testing.T) {
	env := setupEnv(t)
	svc := NewService(env.coordinator, env.portfolios, env.holdings, env.valuation, nil, nil, zerolog.Nop())
	p := seedPortfolio(t, env, "user-1")

	// Tamper with an aggregate directly; recompute must restore the derived value
	_, err := env.db.Exec("UPDATE portfolios SET total_value = '1' WHERE id = ?", p.ID)
	require.NoError(t, err)

	got, err := svc.RecomputeForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, got.TotalValue.Equal(testingpkg.D("8400")))

	_, err = svc.RecomputeForUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ids, err := svc.ListUserIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)
}
