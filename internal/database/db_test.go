package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestBuildConnectionString_Profiles(t *testing.T) {
	ledger := buildConnectionString("/tmp/ledger.db", ProfileLedger)
	assert.Contains(t, ledger, "synchronous(FULL)")
	assert.Contains(t, ledger, "_txlock=immediate")
	assert.Contains(t, ledger, "busy_timeout(5000)")

	cache := buildConnectionString("/tmp/cache.db", ProfileCache)
	assert.Contains(t, cache, "synchronous(OFF)")
	assert.NotContains(t, cache, "_txlock")
}

func TestMigrate_CreatesTablesAndIsIdempotent(t *testing.T) {
	db := newTestLedger(t)

	for _, table := range []string{"portfolios", "holdings", "trades", "transactions", "activity_log"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	assert.NoError(t, db.Migrate(), "second migration must be a no-op")
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "x.db"), Name: "scratch"})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Migrate())
	assert.Equal(t, ProfileStandard, db.Profile())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestLedger(t)
	sentinel := errors.New("boom")

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(`INSERT INTO activity_log (id, actor_id, action_type, target_type, target_id, description, created_at)
			VALUES ('a1', 'admin', 'TEST', 'TEST', 't1', 'd', 1)`)
		require.NoError(t, execErr)
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM activity_log").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTestLedger(t)

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestWithTransaction_Commits(t *testing.T) {
	db := newTestLedger(t)

	err := WithTransactionContext(context.Background(), db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO activity_log (id, actor_id, action_type, target_type, target_id, description, created_at)
			VALUES ('a1', 'admin', 'TEST', 'TEST', 't1', 'd', 1)`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM activity_log").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.False(t, IsBusy(errors.New("no such table")))
	assert.True(t, IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
}

func TestSnapshotTo(t *testing.T) {
	db := newTestLedger(t)
	dest := filepath.Join(t.TempDir(), "snapshot.db")

	require.NoError(t, db.SnapshotTo(context.Background(), dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.True(t, strings.HasSuffix(db.Path(), "ledger.db"))
}
