package di

import (
	"context"
	"fmt"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/evaluation/workers"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/portfolio"
	"github.com/aristath/optionseller/internal/modules/pricing"
	"github.com/aristath/optionseller/internal/modules/probability"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/rolls"
	"github.com/aristath/optionseller/internal/modules/screening"
	"github.com/aristath/optionseller/internal/modules/strategies"
	"github.com/aristath/optionseller/internal/reliability"
	"github.com/aristath/optionseller/internal/services"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the repositories over the open databases
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	container.PositionRepo = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), log)
	container.ReportRepo = services.NewReportRepository(container.ReportsDB.Conn(), cfg.ReportsKeep, log)
	return nil
}

// InitializeMarketData builds the provider, the chain cache and the fetcher.
// Redis backs the cache when configured; otherwise chains are cached in process.
func InitializeMarketData(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Provider = marketdata.NewCSVProvider(cfg.ChainDir)

	if cfg.Redis.Addr != "" {
		rdb, err := marketdata.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		container.RedisClient = rdb
		container.ChainCache = marketdata.NewRedisCache(rdb, cfg.Redis.Prefix, cfg.CacheTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis chain cache")
	} else {
		container.MemoryCache = marketdata.NewMemoryCache(cfg.CacheTTL)
		container.ChainCache = container.MemoryCache
	}

	container.Fetcher = marketdata.NewFetcher(container.Provider, container.ChainCache, cfg.Fetcher, log)
	container.Fetcher.SetObserver(container.Metrics)
	return nil
}

// InitializeServices creates the analytics core and the services on top of it
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.PricingEngine = pricing.NewEngine(pricing.Config{VolatilityFloor: cfg.VolatilityFloor})
	container.ProbabilityModel = probability.NewModel(container.PricingEngine.Floor())
	container.Evaluator = strategies.NewEvaluator(
		container.PricingEngine,
		container.ProbabilityModel,
		strategies.DefaultMarginModel(),
		log,
	)
	container.Screener = screening.NewScreener(log)
	container.RiskManager = risk.NewManager(cfg.Risk, log)
	container.RollAdvisor = rolls.NewAdvisor(container.PricingEngine, container.ProbabilityModel, cfg.Rolls, log)
	container.WorkerPool = workers.NewWorkerPool(cfg.Workers)

	container.PortfolioService = portfolio.NewPortfolioService(
		container.PositionRepo,
		container.RiskManager,
		container.RollAdvisor,
		container.Fetcher,
		cfg.Capital,
		log,
	)

	watchlist := cfg.Watchlist
	if len(watchlist) == 0 {
		if lister, ok := container.Provider.(interface{ Symbols() ([]string, error) }); ok {
			symbols, err := lister.Symbols()
			if err != nil {
				log.Warn().Err(err).Msg("No watchlist configured and provider symbols unavailable")
			}
			watchlist = symbols
		}
	}

	container.RecommenderService = services.NewRecommenderService(
		container.Fetcher,
		container.Evaluator,
		container.Screener,
		container.RiskManager,
		container.WorkerPool,
		container.ReportRepo,
		services.RecommenderConfig{
			Watchlist:  watchlist,
			Criteria:   cfg.Criteria,
			MaxResults: cfg.MaxResults,
			Capital:    cfg.Capital,
		},
		log,
	)
	container.RecommenderService.SetObserver(container.Metrics)

	container.Maintenance = reliability.NewMaintenance(container.Databases(), cfg.DataDir, log)
	return nil
}

// InitializeBackups connects to the backup bucket when one is configured
func InitializeBackups(ctx context.Context, container *Container, cfg *config.Config, appVersion string, log zerolog.Logger) error {
	if !cfg.Backup.Enabled() {
		log.Info().Msg("Backups disabled, no bucket configured")
		return nil
	}
	store, err := reliability.NewS3Store(ctx, cfg.Backup.S3)
	if err != nil {
		return fmt.Errorf("failed to create backup store: %w", err)
	}
	container.BackupService = reliability.NewBackupService(store, container.Databases(), cfg.DataDir, appVersion, log)
	return nil
}
