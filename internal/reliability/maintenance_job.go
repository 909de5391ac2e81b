package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk space thresholds in bytes
const (
	diskCriticalBytes = 512 * 1024 * 1024
	diskWarningBytes  = 5 * 1024 * 1024 * 1024
)

// DiskUsageFunc reports usage for the filesystem holding path
type DiskUsageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// MaintenanceJob checkpoints the WAL of every database and watches free disk space
type MaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	diskUsage DiskUsageFunc
	log       zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job over the given databases
func NewMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		diskUsage: disk.UsageWithContext,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance pass.
// Per-database failures are logged and reported together; the pass always visits every database.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	startTime := time.Now()
	failed := 0

	for name, db := range j.databases {
		if err := db.QuickCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Database unreachable")
			failed++
			continue
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			failed++
			continue
		}

		if stats, err := db.GetStats(); err == nil {
			j.log.Debug().
				Str("database", name).
				Int64("size_bytes", stats.SizeBytes).
				Int64("freelist_count", stats.FreelistCount).
				Msg("Database checkpointed")
		}
	}

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Int("databases", len(j.databases)).
		Int("failed", failed).
		Msg("Maintenance completed")

	if failed > 0 {
		return fmt.Errorf("maintenance failed for %d database(s)", failed)
	}
	return nil
}

// checkDiskSpace logs free space and errors when it is critically low
func (j *MaintenanceJob) checkDiskSpace(ctx context.Context) error {
	usage, err := j.diskUsage(ctx, j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read disk usage")
		return nil
	}

	event := j.log.Debug()
	switch {
	case usage.Free < diskCriticalBytes:
		j.log.Error().
			Uint64("free_bytes", usage.Free).
			Float64("used_percent", usage.UsedPercent).
			Msg("Disk space critically low")
		return fmt.Errorf("disk space critically low: %d bytes free", usage.Free)
	case usage.Free < diskWarningBytes:
		event = j.log.Warn()
	}

	event.
		Uint64("free_bytes", usage.Free).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space checked")
	return nil
}
