package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/optionseller/internal/database"
	"github.com/aristath/optionseller/internal/di"
	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/scheduler"
)

// SystemHandlers serves host status and manual job triggers
type SystemHandlers struct {
	container *di.Container
	jobs      *di.JobInstances
	version   string
	started   time.Time
	dataDir   string
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(container *di.Container, jobs *di.JobInstances, version string, started time.Time, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		container: container,
		jobs:      jobs,
		version:   version,
		started:   started,
		log:       log.With().Str("handler", "system").Logger(),
	}
	if container.PortfolioDB != nil {
		h.dataDir = filepath.Dir(container.PortfolioDB.Path())
	}
	return h
}

// DatabaseStatus is the per-database part of the status response
type DatabaseStatus struct {
	Name  string          `json:"name"`
	Stats *database.Stats `json:"stats,omitempty"`
	Error string          `json:"error,omitempty"`
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Version        string           `json:"version"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	GoVersion      string           `json:"go_version"`
	Goroutines     int              `json:"goroutines"`
	CPUPercent     float64          `json:"cpu_percent"`
	MemoryPercent  float64          `json:"memory_percent"`
	DiskFreeBytes  uint64           `json:"disk_free_bytes"`
	HostUptime     uint64           `json:"host_uptime_seconds"`
	Databases      []DatabaseStatus `json:"databases"`
	OpenPositions  int              `json:"open_positions"`
	LastScreenAt   *time.Time       `json:"last_screen_at"`
	CacheBackend   string           `json:"cache_backend"`
	BackupsEnabled bool             `json:"backups_enabled"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatusResponse{
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.started).Seconds()),
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		CacheBackend:   "memory",
		BackupsEnabled: h.container.BackupService != nil,
		Databases:      []DatabaseStatus{},
	}
	if h.container.RedisClient != nil {
		resp.CacheBackend = "redis"
	}

	resp.CPUPercent, resp.MemoryPercent = h.getSystemStats()
	if h.dataDir != "" {
		if usage, err := disk.Usage(h.dataDir); err == nil {
			resp.DiskFreeBytes = usage.Free
		}
	}
	if uptime, err := host.Uptime(); err == nil {
		resp.HostUptime = uptime
	}

	for _, db := range h.container.Databases() {
		ds := DatabaseStatus{Name: db.Name()}
		if stats, err := db.GetStats(); err != nil {
			ds.Error = err.Error()
		} else {
			ds.Stats = stats
		}
		resp.Databases = append(resp.Databases, ds)
	}

	if h.container.PortfolioService != nil {
		if positions, err := h.container.PortfolioService.List(); err == nil {
			resp.OpenPositions = len(positions)
		}
	}
	if h.container.RecommenderService != nil {
		if report, err := h.container.RecommenderService.Latest(); err == nil {
			at := report.GeneratedAt
			resp.LastScreenAt = &at
		}
	}

	writeData(w, h.log, http.StatusOK, resp, nil)
}

// getSystemStats returns CPU and RAM usage percentages.
// The CPU sample is short so the endpoint stays responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}
	return cpuPercent[0], memStat.UsedPercent
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.container.BackupService == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	backups, err := h.container.BackupService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeError(w, h.log, http.StatusBadGateway, "failed to list backups")
		return
	}
	writeData(w, h.log, http.StatusOK, backups, map[string]interface{}{"count": len(backups)})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}. The job runs to
// completion before the response is written.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var job scheduler.Job
	switch name {
	case "rescan":
		job = h.jobs.Rescan
	case "backup":
		job = h.jobs.Backup
	case "maintenance":
		job = h.jobs.Maintenance
	case "cache_purge":
		job = h.jobs.CachePurge
	}
	if job == nil {
		writeError(w, h.log, http.StatusNotFound, "job not registered: "+name)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job triggered")
	started := time.Now()

	var err error
	if h.container.Scheduler != nil {
		err = h.container.Scheduler.RunNow(job)
	} else {
		err = job.Run()
	}

	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, h.log, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		writeError(w, h.log, http.StatusInternalServerError, err.Error())
	default:
		writeData(w, h.log, http.StatusOK, map[string]interface{}{
			"job":         name,
			"status":      "completed",
			"duration_ms": time.Since(started).Milliseconds(),
		}, nil)
	}
}
