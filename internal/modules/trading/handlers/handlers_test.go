package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/ledger/internal/auth"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/ledger"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/modules/trading"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, cfg trading.Config) chi.Router {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	portfolios := portfolio.NewRepository(log)
	holdingRepo := holdings.NewRepository(log)
	valuation := portfolio.NewValuation(portfolios, holdingRepo, log)
	coordinator := ledger.NewCoordinator(db.Conn(), ledger.Config{LockTimeout: 5 * time.Second, MaxRetries: 3}, nil, log)
	service := trading.NewSettlementService(coordinator, trading.NewTradeRepository(log), portfolios, holdingRepo, valuation, nil, nil, nil, cfg, log)

	ctx := context.Background()
	p, err := portfolios.GetOrCreate(ctx, db.Conn(), "u1")
	require.NoError(t, err)
	require.NoError(t, holdingRepo.Upsert(ctx, db.Conn(), domain.NewCashHolding(p.ID, "USD", testingpkg.D("100"), time.Now())))

	r := chi.NewRouter()
	r.Use(auth.Middleware)
	NewTradingHandlers(service, log).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderUserID, "admin-1")
	req.Header.Set(auth.HeaderRole, "ADMIN")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleExecuteTrade(t *testing.T) {
	r := setupRouter(t, trading.Config{})

	rec := do(r, http.MethodPost, "/trades/",
		`{"user_id":"u1","trade_type":"buy","asset_type":"stock","symbol":"aapl","quantity":"2","price_per_unit":25}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result trading.TradeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "AAPL", result.Trade.Symbol)
	assert.Equal(t, "admin-1", result.Trade.ExecutedBy)
	assert.True(t, result.Trade.TotalValue.Equal(testingpkg.D("50")))
	assert.True(t, result.Portfolio.CashValue.Equal(testingpkg.D("50")))

	rec = do(r, http.MethodGet, "/trades/?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(r, http.MethodGet, "/trades/"+result.Trade.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleExecuteTrade_Errors(t *testing.T) {
	r := setupRouter(t, trading.Config{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"unknown trade type", `{"user_id":"u1","trade_type":"hold","asset_type":"stock","symbol":"A","quantity":"1","price_per_unit":"1"}`, http.StatusBadRequest},
		{"zero quantity", `{"user_id":"u1","trade_type":"buy","asset_type":"stock","symbol":"A","quantity":"0","price_per_unit":"1"}`, http.StatusBadRequest},
		{"insufficient funds", `{"user_id":"u1","trade_type":"buy","asset_type":"stock","symbol":"A","quantity":"1","price_per_unit":"150"}`, http.StatusUnprocessableEntity},
		{"insufficient position", `{"user_id":"u1","trade_type":"sell","asset_type":"crypto","symbol":"BTC","quantity":"1","price_per_unit":"1"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/trades/", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleGetTrades_RequiresUser(t *testing.T) {
	r := setupRouter(t, trading.Config{})
	rec := do(r, http.MethodGet, "/trades/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeleteTrade(t *testing.T) {
	r := setupRouter(t, trading.Config{})
	rec := do(r, http.MethodDelete, "/trades/whatever", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	r = setupRouter(t, trading.Config{AllowTradeDelete: true})
	rec = do(r, http.MethodDelete, "/trades/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
