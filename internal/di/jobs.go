package di

import (
	"fmt"
	"time"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/scheduler"
	"github.com/rs/zerolog"
)

// maintenanceTimeout bounds one integrity and checkpoint pass
const maintenanceTimeout = 5 * time.Minute

// RegisterJobs creates the scheduler and registers every enabled job.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(container.Metrics, log)
	instances := &JobInstances{}

	// Job 1: Watchlist rescan
	instances.Rescan = scheduler.NewRescanJob(container.RecommenderService, cfg.Schedule.RescanTimeout, log)
	if err := register(container.Scheduler, cfg.Schedule.Rescan, instances.Rescan); err != nil {
		return nil, err
	}

	// Job 2: Database maintenance
	instances.Maintenance = scheduler.NewMaintenanceJob(container.Maintenance, maintenanceTimeout)
	if err := register(container.Scheduler, cfg.Schedule.Maintenance, instances.Maintenance); err != nil {
		return nil, err
	}

	// Job 3: Backup to object storage
	if container.BackupService != nil {
		instances.Backup = scheduler.NewBackupJob(
			container.BackupService,
			container.Metrics,
			cfg.Backup.RetentionDays,
			cfg.Backup.Timeout,
			log,
		)
		if err := register(container.Scheduler, cfg.Schedule.Backup, instances.Backup); err != nil {
			return nil, err
		}
	}

	// Job 4: Stale chain eviction (Redis expires entries itself)
	if container.MemoryCache != nil {
		instances.CachePurge = scheduler.NewCachePurgeJob(container.MemoryCache, log)
		if err := register(container.Scheduler, cfg.Schedule.CachePurge, instances.CachePurge); err != nil {
			return nil, err
		}
	}

	return instances, nil
}

// register adds a job unless its schedule is empty
func register(s *scheduler.Scheduler, schedule string, job scheduler.Job) error {
	if schedule == "" {
		return nil
	}
	if err := s.AddJob(schedule, job); err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", job.Name(), schedule, err)
	}
	return nil
}
