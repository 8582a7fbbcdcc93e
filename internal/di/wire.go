package di

import (
	"context"
	"fmt"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/metrics"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container
// This is the main entry point for dependency injection
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Initialize market data (provider, cache, fetcher)
// 4. Initialize services
// 5. Initialize backups (optional)
// 6. Register jobs
func Wire(ctx context.Context, cfg *config.Config, appVersion string, log zerolog.Logger) (*Container, *JobInstances, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}
	container.Metrics = metrics.NewRegistry()

	fail := func(step string, err error) (*Container, *JobInstances, error) {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize %s: %w", step, err)
	}

	// Step 2: Initialize repositories
	if err := InitializeRepositories(container, cfg, log); err != nil {
		return fail("repositories", err)
	}

	// Step 3: Initialize market data
	if err := InitializeMarketData(ctx, container, cfg, log); err != nil {
		return fail("market data", err)
	}

	// Step 4: Initialize services
	if err := InitializeServices(container, cfg, log); err != nil {
		return fail("services", err)
	}

	// Step 5: Initialize backups
	if err := InitializeBackups(ctx, container, cfg, appVersion, log); err != nil {
		return fail("backups", err)
	}

	// Step 6: Register jobs
	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		return fail("jobs", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, jobs, nil
}
