package clientdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return db.Conn()
}

func TestStoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	data := map[string]interface{}{"price": "123.45", "symbol": "AAPL"}
	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "STOCK:AAPL", data, time.Hour))

	raw, err := repo.GetIfFresh(ctx, TableCurrentPrices, "STOCK:AAPL")
	require.NoError(t, err)
	require.NotNil(t, raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "123.45", parsed["price"])

	missing, err := repo.GetIfFresh(ctx, TableCurrentPrices, "STOCK:MSFT")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetReturnsStaleData(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "CRYPTO:BTC", map[string]string{"price": "1"}, -time.Minute))

	fresh, err := repo.GetIfFresh(ctx, TableCurrentPrices, "CRYPTO:BTC")
	require.NoError(t, err)
	assert.Nil(t, fresh, "expired data is not fresh")

	stale, err := repo.Get(ctx, TableCurrentPrices, "CRYPTO:BTC")
	require.NoError(t, err)
	assert.NotNil(t, stale)
}

func TestInvalidTable(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	assert.Error(t, repo.Store(ctx, "holdings; DROP TABLE x", "k", 1, time.Hour))
	_, err := repo.Get(ctx, "unknown", "k")
	assert.Error(t, err)
	_, err = repo.DeleteExpired(ctx, "unknown", 0)
	assert.Error(t, err)
}

func TestDeleteAndCleanupJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "fresh", 1, time.Hour))
	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "recently-expired", 1, -time.Minute))
	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "ancient", 1, -48*time.Hour))
	require.NoError(t, repo.Store(ctx, TableCurrentPrices, "doomed", 1, time.Hour))

	require.NoError(t, repo.Delete(ctx, TableCurrentPrices, "doomed"))

	job := NewCleanupJob(repo, 24*time.Hour, zerolog.Nop())
	assert.Equal(t, "client_data_cleanup", job.Name())
	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM current_prices").Scan(&count))
	assert.Equal(t, 2, count)

	ancient, err := repo.Get(ctx, TableCurrentPrices, "ancient")
	require.NoError(t, err)
	assert.Nil(t, ancient)

	kept, err := repo.Get(ctx, TableCurrentPrices, "recently-expired")
	require.NoError(t, err)
	assert.NotNil(t, kept, "recently expired rows survive as stale fallbacks")
}
