package trading

import (
	"context"
	"testing"

	"github.com/aristath/ledger/internal/domain"
	testingpkg "github.com/aristath/ledger/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeRepository_RoundTripAndOrdering(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()
	ctx := context.Background()
	repo := NewTradeRepository(zerolog.Nop())

	fixtures := testingpkg.NewTradeFixtures("u1")
	// Insert out of order; listing follows execution time
	for _, i := range []int{2, 0, 1} {
		trade := fixtures[i]
		require.NoError(t, repo.Create(ctx, db.Conn(), &trade))
	}

	got, err := repo.GetByID(ctx, db.Conn(), "trade-3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.TradeTypeSell, got.TradeType)
	assert.True(t, got.Quantity.Equal(testingpkg.D("0.5")))
	assert.True(t, got.ExecutedAt.Equal(fixtures[2].ExecutedAt))

	list, err := repo.ListByUser(ctx, db.Conn(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"trade-1", "trade-2", "trade-3"}, []string{list[0].ID, list[1].ID, list[2].ID})

	missing, err := repo.GetByID(ctx, db.Conn(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTradeRepository_ListAllCountDelete(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()
	ctx := context.Background()
	repo := NewTradeRepository(zerolog.Nop())

	for _, userID := range []string{"u2", "u1"} {
		for _, trade := range testingpkg.NewTradeFixtures(userID) {
			trade.ID = ""
			require.NoError(t, repo.Create(ctx, db.Conn(), &trade))
		}
	}

	all, err := repo.ListAll(ctx, db.Conn())
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "u1", all[0].UserID)
	assert.Equal(t, "u2", all[5].UserID)

	count, err := repo.CountByUser(ctx, db.Conn(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, repo.Delete(ctx, db.Conn(), all[0].ID))
	count, err = repo.CountByUser(ctx, db.Conn(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	err = repo.Delete(ctx, db.Conn(), all[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
