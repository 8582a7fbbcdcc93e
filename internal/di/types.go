// Package di wires the application's databases, services and jobs.
package di

import (
	"errors"

	"github.com/aristath/optionseller/internal/database"
	"github.com/aristath/optionseller/internal/evaluation/workers"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/metrics"
	"github.com/aristath/optionseller/internal/modules/portfolio"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/rolls"
	"github.com/aristath/optionseller/internal/modules/screening"
	"github.com/aristath/optionseller/internal/modules/strategies"
	"github.com/aristath/optionseller/internal/reliability"
	"github.com/aristath/optionseller/internal/scheduler"
	"github.com/aristath/optionseller/internal/services"
	"github.com/redis/go-redis/v9"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server and the CLI.
type Container struct {
	// Databases
	PortfolioDB *database.DB // positions
	ReportsDB   *database.DB // screening report history

	Metrics *metrics.Registry

	// Market data
	Provider    marketdata.Provider
	ChainCache  marketdata.Cache
	MemoryCache *marketdata.MemoryCache // nil when Redis backs the cache
	RedisClient *redis.Client           // nil without REDIS_ADDR
	Fetcher     *marketdata.Fetcher

	// Analytics core
	PricingEngine    *pricing.Engine
	ProbabilityModel *probability.Model
	Evaluator        *strategies.Evaluator
	Screener         *screening.Screener
	RiskManager      *risk.Manager
	RollAdvisor      *rolls.Advisor
	WorkerPool       *workers.WorkerPool

	// Repositories
	PositionRepo *portfolio.PositionRepository
	ReportRepo   *services.ReportRepository

	// Services
	PortfolioService   *portfolio.PortfolioService
	RecommenderService *services.RecommenderService

	// Reliability
	BackupService *reliability.BackupService // nil when backups are disabled
	Maintenance   *reliability.Maintenance

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered jobs for manual triggering.
// A job is nil when its schedule or backing service is disabled.
type JobInstances struct {
	Rescan      scheduler.Job
	Backup      scheduler.Job
	Maintenance scheduler.Job
	CachePurge  scheduler.Job
}

// Databases returns the open databases
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.PortfolioDB, c.ReportsDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close releases the Redis client and the databases
func (c *Container) Close() error {
	var errs []error
	if c.RedisClient != nil {
		errs = append(errs, c.RedisClient.Close())
	}
	for _, db := range c.Databases() {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}
