package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEDGER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.False(t, cfg.Ledger.AllowTradeDelete)
	assert.Equal(t, "@every 15m", cfg.Prices.RefreshSchedule)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Backup.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEDGER_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9090")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "250ms")
	t.Setenv("LEDGER_MAX_RETRIES", "5")
	t.Setenv("LEDGER_ALLOW_TRADE_DELETE", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("BACKUP_S3_BUCKET", "ledger-backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Ledger.LockTimeout)
	assert.Equal(t, 5, cfg.Ledger.MaxRetries)
	assert.True(t, cfg.Ledger.AllowTradeDelete)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, "@daily", cfg.Backup.Schedule)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:   8001,
			Ledger: LedgerConfig{LockTimeout: time.Second, MaxRetries: 3},
			Prices: PriceConfig{RefreshSchedule: "@every 1m"},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Ledger.LockTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Ledger.MaxRetries = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Prices.RefreshSchedule = "not a schedule"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Prices.RefreshSchedule = ""
	assert.NoError(t, cfg.Validate(), "empty schedule disables refresh")

	cfg = valid()
	cfg.Backup = BackupConfig{Bucket: "b", Schedule: "every day"}
	assert.Error(t, cfg.Validate())
}
