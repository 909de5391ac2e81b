// Package ledger serializes settlement units per customer.
//
// Every mutation of a customer's holdings and portfolio runs through Coordinator.Run:
// a per-user in-process lock with a bounded wait, then one IMMEDIATE SQLite transaction
// spanning the holding reads, holding writes, event append and valuation recompute.
// Units that hit a storage conflict are retried as a whole.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/metrics"
	"github.com/rs/zerolog"
)

// Config controls lock waiting and retry behaviour
type Config struct {
	LockTimeout time.Duration
	MaxRetries  int
	// RetryBackoff is multiplied by the attempt number between retries
	RetryBackoff time.Duration
}

// Coordinator runs settlement units atomically and one at a time per user
type Coordinator struct {
	db      *sql.DB
	locks   *keyedLocks
	metrics *metrics.Metrics
	cfg     Config
	log     zerolog.Logger
}

// NewCoordinator creates a new settlement coordinator. m may be nil.
func NewCoordinator(db *sql.DB, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Coordinator {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	return &Coordinator{
		db:      db,
		locks:   newKeyedLocks(),
		metrics: m,
		cfg:     cfg,
		log:     log.With().Str("component", "ledger_coordinator").Logger(),
	}
}

// DB returns the ledger connection for read-only queries
func (c *Coordinator) DB() *sql.DB {
	return c.db
}

// Run executes fn inside one transaction while holding userID's lock.
// fn may run more than once when a storage conflict forces a retry, so it must
// derive all state from tx. Errors other than conflicts are returned unchanged
// (wrapped) after rollback.
func (c *Coordinator) Run(ctx context.Context, userID string, fn func(tx *sql.Tx) error) error {
	unlock, err := c.locks.acquire(ctx, userID, c.cfg.LockTimeout)
	if err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			c.log.Warn().
				Str("user_id", userID).
				Dur("timeout", c.cfg.LockTimeout).
				Msg("Timed out waiting for portfolio lock")
		}
		return err
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		err := database.WithTransactionContext(ctx, c.db, fn)
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}

		lastErr = err
		c.metrics.StorageConflict()
		c.log.Warn().
			Err(err).
			Str("user_id", userID).
			Int("attempt", attempt).
			Int("max_retries", c.cfg.MaxRetries).
			Msg("Storage conflict, retrying settlement")

		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: gave up after %d attempts: %v", domain.ErrStorageConflict, c.cfg.MaxRetries, lastErr)
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrStorageConflict) || database.IsBusy(err)
}
