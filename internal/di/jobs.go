package di

import (
	"fmt"

	"github.com/aristath/ledger/internal/clientdata"
	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/internal/reliability"
	"github.com/aristath/ledger/internal/scheduler"
	"github.com/rs/zerolog"
)

// Fixed housekeeping schedules
const (
	cacheCleanupSchedule = "@hourly"
	maintenanceSchedule  = "30 3 * * *"
)

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	PriceRefresh *scheduler.PriceRefreshJob
	Backup       *scheduler.BackupJob // nil when backups are not configured
	CacheCleanup *clientdata.CleanupJob
	Maintenance  *reliability.MaintenanceJob
}

// RegisterJobs creates the background jobs and registers them with sched
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		PriceRefresh: scheduler.NewPriceRefreshJob(container.PortfolioService, log),
		CacheCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, clientdata.MaxStalePrice, log),
		Maintenance:  reliability.NewMaintenanceJob(container.Databases(), cfg.DataDir, log),
	}
	if container.BackupService != nil {
		jobs.Backup = scheduler.NewBackupJob(container.BackupService, log)
	}

	if cfg.Prices.RefreshSchedule != "" {
		if err := sched.AddJob(cfg.Prices.RefreshSchedule, jobs.PriceRefresh); err != nil {
			return nil, fmt.Errorf("failed to register price refresh job: %w", err)
		}
	}
	if err := sched.AddJob(cacheCleanupSchedule, jobs.CacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to register cache cleanup job: %w", err)
	}
	if err := sched.AddJob(maintenanceSchedule, jobs.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}
	if jobs.Backup != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, jobs.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	return jobs, nil
}
