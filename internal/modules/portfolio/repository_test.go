package portfolio

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/ledger"
	"github.com/aristath/ledger/internal/modules/holdings"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db          *sql.DB
	portfolios  *Repository
	holdings    *holdings.Repository
	valuation   *Valuation
	coordinator *ledger.Coordinator
}

func setupEnv(t *testing.T) *testEnv {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	portfolios := NewRepository(log)
	holdingRepo := holdings.NewRepository(log)
	return &testEnv{
		db:          db.Conn(),
		portfolios:  portfolios,
		holdings:    holdingRepo,
		valuation:   NewValuation(portfolios, holdingRepo, log),
		coordinator: ledger.NewCoordinator(db.Conn(), ledger.Config{LockTimeout: 5 * time.Second, MaxRetries: 3}, nil, log),
	}
}

func TestRepository_GetOrCreate(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	p, err := env.portfolios.GetByUser(ctx, env.db, "user-1")
	require.NoError(t, err)
	assert.Nil(t, p)

	created, err := env.portfolios.GetOrCreate(ctx, env.db, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.TotalValue.IsZero())
	assert.True(t, created.TotalInvested.IsZero())

	again, err := env.portfolios.GetOrCreate(ctx, env.db, "user-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	all, err := env.portfolios.ListAll(ctx, env.db)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_SaveDetectsStaleVersion(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	p, err := env.portfolios.GetOrCreate(ctx, env.db, "user-1")
	require.NoError(t, err)

	stale, err := env.portfolios.GetByID(ctx, env.db, p.ID)
	require.NoError(t, err)

	p.TotalInvested = testingpkg.D("10")
	require.NoError(t, env.portfolios.Save(ctx, env.db, p))
	assert.Equal(t, int64(1), p.Version)

	stale.TotalInvested = testingpkg.D("99")
	err = env.portfolios.Save(ctx, env.db, stale)
	assert.ErrorIs(t, err, domain.ErrStorageConflict)

	got, err := env.portfolios.GetByID(ctx, env.db, p.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalInvested.Equal(testingpkg.D("10")))
}

func TestRepository_AdjustTotalInvested(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	p, err := env.portfolios.GetOrCreate(ctx, env.db, "user-1")
	require.NoError(t, err)

	require.NoError(t, env.portfolios.AdjustTotalInvested(ctx, env.db, p, testingpkg.D("500")))
	require.NoError(t, env.portfolios.AdjustTotalInvested(ctx, env.db, p, testingpkg.D("-200")))

	got, err := env.portfolios.GetByUser(ctx, env.db, "user-1")
	require.NoError(t, err)
	assert.True(t, got.TotalInvested.Equal(testingpkg.D("300")))
	assert.Equal(t, int64(2), got.Version)
}
