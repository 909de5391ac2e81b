package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/ledger/internal/modules/aggregation"
	"github.com/aristath/ledger/internal/modules/trading"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregationRoutes(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	trades := trading.NewTradeRepository(log)
	for _, trade := range testingpkg.NewTradeFixtures("u1") {
		require.NoError(t, trades.Create(context.Background(), db.Conn(), &trade))
	}

	r := chi.NewRouter()
	NewHandler(aggregation.NewService(db.Conn(), trades, log), log).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aggregation/u1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var agg aggregation.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, "u1", agg.UserID)
	assert.Equal(t, 3, agg.TotalTrades)
	assert.Equal(t, 1, agg.TotalAssets)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aggregation/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report aggregation.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Statistics.Customers)
}
