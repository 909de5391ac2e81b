// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/ledger/internal/utils"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for ledger.db and cache.db (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Ledger LedgerConfig
	Prices PriceConfig
	Kafka  KafkaConfig
	Backup BackupConfig
}

// LedgerConfig tunes settlement serialization
type LedgerConfig struct {
	LockTimeout      time.Duration // Bounded wait for the per-portfolio lock
	MaxRetries       int           // Retries on storage conflicts before surfacing them
	AllowTradeDelete bool          // Record-only trade deletion is refused unless enabled
}

// PriceConfig configures the external price source
type PriceConfig struct {
	APIURL          string
	CacheTTL        time.Duration
	RefreshSchedule string // cron spec, empty disables scheduled refresh
}

// KafkaConfig configures the audit fan-out publisher
type KafkaConfig struct {
	Brokers    []string // Empty disables the publisher
	AuditTopic string
}

// BackupConfig configures S3/R2 backups of the ledger database
type BackupConfig struct {
	Bucket          string // Empty disables backups
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string
}

// Enabled reports whether a bucket has been configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Enabled reports whether any broker has been configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("LEDGER_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Ledger: LedgerConfig{
			LockTimeout:      getEnvAsDuration("LEDGER_LOCK_TIMEOUT", 5*time.Second),
			MaxRetries:       getEnvAsInt("LEDGER_MAX_RETRIES", 3),
			AllowTradeDelete: getEnvAsBool("LEDGER_ALLOW_TRADE_DELETE", false),
		},
		Prices: PriceConfig{
			APIURL:          getEnv("PRICE_API_URL", "https://query2.finance.yahoo.com/v8/finance/chart"),
			CacheTTL:        getEnvAsDuration("PRICE_CACHE_TTL", 5*time.Minute),
			RefreshSchedule: getEnv("PRICE_REFRESH_SCHEDULE", "@every 15m"),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "ledger.audit"),
		},
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Schedule:        getEnv("BACKUP_SCHEDULE", "@daily"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("LEDGER_LOCK_TIMEOUT must be positive, got %s", c.Ledger.LockTimeout)
	}
	if c.Ledger.MaxRetries < 1 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must be at least 1, got %d", c.Ledger.MaxRetries)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT out of range: %d", c.Port)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if c.Prices.RefreshSchedule != "" {
		if _, err := parser.Parse(c.Prices.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid PRICE_REFRESH_SCHEDULE %q: %w", c.Prices.RefreshSchedule, err)
		}
	}
	if c.Backup.Enabled() {
		if _, err := parser.Parse(c.Backup.Schedule); err != nil {
			return fmt.Errorf("invalid BACKUP_SCHEDULE %q: %w", c.Backup.Schedule, err)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	return utils.ParseCSV(os.Getenv(key))
}
