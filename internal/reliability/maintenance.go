package reliability

import (
	"context"
	"fmt"

	"github.com/aristath/optionseller/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk thresholds in bytes
const (
	criticalFreeBytes = 500 * 1000 * 1000
	lowFreeBytes      = 5 * 1000 * 1000 * 1000
)

// DatabaseReport is the per-database outcome of a maintenance run
type DatabaseReport struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
}

// MaintenanceReport summarises one maintenance run
type MaintenanceReport struct {
	Databases     []DatabaseReport `json:"databases"`
	DiskFreeBytes uint64           `json:"disk_free_bytes"`
	DiskLow       bool             `json:"disk_low"`
}

// Maintenance checks integrity, truncates WAL files and watches free disk
// space under the data directory.
type Maintenance struct {
	databases []*database.DB
	dataDir   string
	usage     func(path string) (*disk.UsageStat, error)
	log       zerolog.Logger
}

// NewMaintenance creates a maintenance runner
func NewMaintenance(databases []*database.DB, dataDir string, log zerolog.Logger) *Maintenance {
	return &Maintenance{
		databases: databases,
		dataDir:   dataDir,
		usage:     disk.Usage,
		log:       log.With().Str("service", "maintenance").Logger(),
	}
}

// Run performs one maintenance pass. A failed integrity check or critically
// low disk space is returned as an error; WAL checkpoint failures only log.
func (m *Maintenance) Run(ctx context.Context) (MaintenanceReport, error) {
	report := MaintenanceReport{Databases: make([]DatabaseReport, 0, len(m.databases))}
	var unhealthy []string

	for _, db := range m.databases {
		dr := DatabaseReport{Name: db.Name(), Healthy: true}

		if err := db.HealthCheck(ctx); err != nil {
			dr.Healthy = false
			dr.Error = err.Error()
			unhealthy = append(unhealthy, db.Name())
			m.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
		} else if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			m.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}

		if stats, err := db.GetStats(); err == nil {
			dr.SizeBytes = stats.PageCount * stats.PageSize
		}
		report.Databases = append(report.Databases, dr)
	}

	usage, err := m.usage(m.dataDir)
	if err != nil {
		m.log.Warn().Err(err).Str("path", m.dataDir).Msg("Failed to read disk usage")
	} else {
		report.DiskFreeBytes = usage.Free
		report.DiskLow = usage.Free < lowFreeBytes
		if report.DiskLow {
			m.log.Warn().Uint64("free_bytes", usage.Free).Msg("Disk space running low")
		}
		if usage.Free < criticalFreeBytes {
			return report, fmt.Errorf("only %d bytes free under %s", usage.Free, m.dataDir)
		}
	}

	if len(unhealthy) > 0 {
		return report, fmt.Errorf("integrity check failed for %v", unhealthy)
	}

	m.log.Info().
		Int("databases", len(report.Databases)).
		Uint64("disk_free_bytes", report.DiskFreeBytes).
		Msg("Maintenance completed")
	return report, nil
}
