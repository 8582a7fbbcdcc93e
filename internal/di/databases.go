package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/optionseller/internal/config"
	"github.com/aristath/optionseller/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// portfolio.db - open positions
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NamePortfolio+".db"),
		Profile: database.ProfileStandard,
		Name:    database.NamePortfolio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}
	container.PortfolioDB = portfolioDB

	// reports.db - screening report history, safe to lose
	reportsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NameReports+".db"),
		Profile: database.ProfileCache,
		Name:    database.NameReports,
	})
	if err != nil {
		portfolioDB.Close()
		return nil, fmt.Errorf("failed to initialize reports database: %w", err)
	}
	container.ReportsDB = reportsDB

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized and schemas applied")
	return container, nil
}
