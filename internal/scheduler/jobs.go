package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/optionseller/internal/reliability"
	"github.com/aristath/optionseller/internal/services"
	"github.com/rs/zerolog"
)

// Screener runs one screening pass
type Screener interface {
	Run(ctx context.Context, req services.ScreenRequest) (services.Report, error)
}

// RescanJob re-screens the default watchlist
type RescanJob struct {
	screener Screener
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRescanJob creates a rescan job. Each run is bounded by timeout.
func NewRescanJob(screener Screener, timeout time.Duration, log zerolog.Logger) *RescanJob {
	return &RescanJob{
		screener: screener,
		timeout:  timeout,
		log:      log.With().Str("job", "rescan").Logger(),
	}
}

// Name returns the job name
func (j *RescanJob) Name() string {
	return "rescan"
}

// Run executes the rescan job
func (j *RescanJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.screener.Run(ctx, services.ScreenRequest{})
	if err != nil {
		return fmt.Errorf("rescan failed: %w", err)
	}
	j.log.Info().
		Str("report", report.ID).
		Int("recommendations", len(report.Recommendations)).
		Int("failures", len(report.Failures)).
		Msg("Rescan completed")
	return nil
}

// Backupper creates and rotates backup archives
type Backupper interface {
	CreateAndUploadBackup(ctx context.Context) (reliability.BackupInfo, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupObserver records the size of each uploaded archive
type BackupObserver interface {
	ObserveBackup(bytes int64)
}

// BackupJob uploads a fresh archive and then rotates old ones
type BackupJob struct {
	backup        Backupper
	observer      BackupObserver
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a backup job. observer may be nil.
func NewBackupJob(backup Backupper, observer BackupObserver, retentionDays int, timeout time.Duration, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup:        backup,
		observer:      observer,
		retentionDays: retentionDays,
		timeout:       timeout,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job. A rotation failure does not fail the job.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	info, err := j.backup.CreateAndUploadBackup(ctx)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	if j.observer != nil {
		j.observer.ObserveBackup(info.SizeBytes)
	}

	deleted, err := j.backup.RotateOldBackups(ctx, j.retentionDays)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
		return nil
	}
	j.log.Info().
		Str("archive", info.Filename).
		Int("rotated", deleted).
		Msg("Backup job completed")
	return nil
}

// Maintainer runs database maintenance
type Maintainer interface {
	Run(ctx context.Context) (reliability.MaintenanceReport, error)
}

// MaintenanceJob checks database integrity, truncates WAL files and
// watches disk space
type MaintenanceJob struct {
	maintenance Maintainer
	timeout     time.Duration
}

// NewMaintenanceJob creates a maintenance job
func NewMaintenanceJob(maintenance Maintainer, timeout time.Duration) *MaintenanceJob {
	return &MaintenanceJob{maintenance: maintenance, timeout: timeout}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, err := j.maintenance.Run(ctx)
	return err
}

// Purger drops stale cache entries
type Purger interface {
	Purge() int
}

// CachePurgeJob evicts expired chains from the in-process cache
type CachePurgeJob struct {
	cache Purger
	log   zerolog.Logger
}

// NewCachePurgeJob creates a cache purge job
func NewCachePurgeJob(cache Purger, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{cache: cache, log: log.With().Str("job", "cache_purge").Logger()}
}

// Name returns the job name
func (j *CachePurgeJob) Name() string {
	return "cache_purge"
}

// Run executes the purge
func (j *CachePurgeJob) Run() error {
	if n := j.cache.Purge(); n > 0 {
		j.log.Debug().Int("evicted", n).Msg("Purged stale chains")
	}
	return nil
}
