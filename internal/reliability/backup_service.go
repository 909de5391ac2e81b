// Package reliability provides database backups and maintenance.
package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/events"
	"github.com/rs/zerolog"
)

const (
	backupPrefix       = "ledger-backup-"
	backupSuffix       = ".db.gz"
	backupTimeLayout   = "2006-01-02-150405"
	minBackupsToKeep   = 3
	defaultRetainDays  = 30
	stagingDirName     = "backup-staging"
	snapshotFilePrefix = "snapshot-"
)

// ObjectInfo describes a stored backup object
type ObjectInfo struct {
	Key       string
	SizeBytes int64
}

// ObjectStore is the remote side of a backup
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Snapshot is a compressed, checksummed copy of a database on local disk
type Snapshot struct {
	Path      string
	Key       string
	SHA256    string
	SizeBytes int64
	CreatedAt time.Time
}

// BackupInfo represents information about a stored backup
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots the ledger database and ships it to object storage
type BackupService struct {
	db            *database.DB
	store         ObjectStore
	stagingDir    string
	retentionDays int
	events        *events.Manager
	log           zerolog.Logger
}

// NewBackupService creates a new backup service.
// A retentionDays of zero keeps the default; eventManager may be nil.
func NewBackupService(db *database.DB, store ObjectStore, dataDir string, retentionDays int, eventManager *events.Manager, log zerolog.Logger) *BackupService {
	if retentionDays <= 0 {
		retentionDays = defaultRetainDays
	}
	return &BackupService{
		db:            db,
		store:         store,
		stagingDir:    filepath.Join(dataDir, stagingDirName),
		retentionDays: retentionDays,
		events:        eventManager,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// CreateSnapshot writes a consistent gzip-compressed copy of the database into the staging directory.
// The caller owns the returned file.
func (s *BackupService) CreateSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	now := time.Now().UTC()
	rawPath := filepath.Join(s.stagingDir, fmt.Sprintf("%s%d.db", snapshotFilePrefix, now.UnixNano()))
	// VACUUM INTO refuses to overwrite
	_ = os.Remove(rawPath)
	defer os.Remove(rawPath)

	if err := s.db.SnapshotTo(ctx, rawPath); err != nil {
		return nil, err
	}

	key := backupPrefix + now.Format(backupTimeLayout) + backupSuffix
	archivePath := filepath.Join(s.stagingDir, key)

	sum, size, err := compressFile(rawPath, archivePath)
	if err != nil {
		_ = os.Remove(archivePath)
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}

	return &Snapshot{
		Path:      archivePath,
		Key:       key,
		SHA256:    sum,
		SizeBytes: size,
		CreatedAt: now,
	}, nil
}

// Run creates a snapshot, uploads it and rotates old backups
func (s *BackupService) Run(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	snap, err := s.CreateSnapshot(ctx)
	if err != nil {
		return err
	}
	defer os.Remove(snap.Path)

	file, err := os.Open(snap.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	if err := s.store.Upload(ctx, snap.Key, file, snap.SizeBytes); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", snap.Key).
		Str("sha256", snap.SHA256).
		Int64("size_bytes", snap.SizeBytes).
		Msg("Backup uploaded")

	if s.events != nil {
		s.events.EmitTyped("reliability", &events.BackupCompletedData{
			Key:       snap.Key,
			SHA256:    snap.SHA256,
			SizeBytes: snap.SizeBytes,
		})
	}

	if err := s.RotateOldBackups(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}

// ListBackups lists stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, backupSuffix) {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), backupSuffix)
		timestamp, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}

		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes backups older than the retention period.
// The newest few are always kept regardless of age.
func (s *BackupService) RotateOldBackups(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation completed")
	}

	return nil
}

// compressFile gzips src into dst and returns the sha256 and size of dst
func compressFile(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	hash := sha256.New()
	counter := &countingWriter{}
	gz := gzip.NewWriter(io.MultiWriter(out, hash, counter))
	if _, err := io.Copy(gz, in); err != nil {
		return "", 0, err
	}
	if err := gz.Close(); err != nil {
		return "", 0, err
	}
	if err := out.Sync(); err != nil {
		return "", 0, err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), counter.n, nil
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
