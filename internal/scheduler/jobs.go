package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/utils"
	"github.com/rs/zerolog"
)

// PriceRefresher is the part of the portfolio service the refresh job drives
type PriceRefresher interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	RefreshPrices(ctx context.Context, userID string) (*portfolio.RefreshResult, error)
}

// PriceRefreshJob refreshes market prices for every portfolio
type PriceRefreshJob struct {
	service PriceRefresher
	timeout time.Duration
	log     zerolog.Logger
}

// NewPriceRefreshJob creates a price refresh job
func NewPriceRefreshJob(service PriceRefresher, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		service: service,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run refreshes each user in turn. One user's failure does not stop the others.
func (j *PriceRefreshJob) Run() error {
	defer utils.OperationTimer("price_refresh", j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	userIDs, err := j.service.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	failed := 0
	updated := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := j.service.RefreshPrices(ctx, userID)
		if err != nil {
			j.log.Warn().Err(err).Str("user_id", userID).Msg("Price refresh failed")
			failed++
			continue
		}
		updated += result.Updated
		if len(result.Unavailable) > 0 {
			j.log.Debug().
				Str("user_id", userID).
				Strs("unavailable", result.Unavailable).
				Msg("Some prices unavailable")
		}
	}

	j.log.Info().
		Int("portfolios", len(userIDs)).
		Int("holdings_updated", updated).
		Int("failed", failed).
		Msg("Price refresh completed")

	if failed > 0 && failed == len(userIDs) {
		return fmt.Errorf("price refresh failed for all %d portfolios", failed)
	}
	return nil
}

// BackupRunner performs one backup
type BackupRunner interface {
	Run(ctx context.Context) error
}

// BackupJob runs the database backup on schedule
type BackupJob struct {
	backup  BackupRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates a backup job
func NewBackupJob(backup BackupRunner, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup:  backup,
		timeout: 30 * time.Minute,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "ledger_backup"
}

// Run executes one backup
func (j *BackupJob) Run() error {
	defer utils.OperationTimer("ledger_backup", j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	return j.backup.Run(ctx)
}
