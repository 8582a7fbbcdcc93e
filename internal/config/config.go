// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/optionseller/internal/domain"
	"github.com/aristath/optionseller/internal/marketdata"
	"github.com/aristath/optionseller/internal/modules/risk"
	"github.com/aristath/optionseller/internal/modules/rolls"
	"github.com/aristath/optionseller/internal/reliability"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for databases and staging files (always absolute)
	ChainDir   string // CSV chain files read by the provider
	ConfigFile string // Optional YAML overlay
	LogLevel   string
	Port       int
	DevMode    bool

	Watchlist       []string
	Capital         float64
	MaxResults      int
	Workers         int
	VolatilityFloor float64
	ReportsKeep     int

	Fetcher  marketdata.FetcherConfig
	CacheTTL time.Duration
	Redis    marketdata.RedisConfig // Addr empty = in-process cache

	Backup   BackupConfig
	Schedule ScheduleConfig

	Criteria domain.ScreeningCriteria
	Risk     risk.Config
	Rolls    rolls.Config
}

// BackupConfig holds the object storage target for database backups
type BackupConfig struct {
	S3            reliability.S3Config // Bucket empty = backups disabled
	RetentionDays int
	Timeout       time.Duration
}

// Enabled reports whether a bucket is configured
func (b BackupConfig) Enabled() bool {
	return b.S3.Bucket != ""
}

// ScheduleConfig holds cron expressions (with seconds). Empty disables a job.
type ScheduleConfig struct {
	Rescan        string
	RescanTimeout time.Duration
	Backup        string
	Maintenance   string
	CachePurge    string
}

// File is the YAML overlay. Fields left out keep their defaults.
type File struct {
	Watchlist  []string                 `yaml:"watchlist"`
	Capital    float64                  `yaml:"capital"`
	MaxResults int                      `yaml:"max_results"`
	Criteria   domain.ScreeningCriteria `yaml:"criteria"`
	Risk       risk.Config              `yaml:"risk"`
	Rolls      rolls.Config             `yaml:"rolls"`
}

// Load reads configuration from environment variables and the optional
// YAML file named by OPTIONSELLER_CONFIG. Environment wins over the file.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("OPTIONSELLER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	file := File{
		Capital:    100000,
		MaxResults: 20,
		Criteria:   domain.DefaultCriteria(),
		Risk:       risk.DefaultConfig(),
		Rolls:      rolls.DefaultConfig(),
	}
	configFile := getEnv("OPTIONSELLER_CONFIG", "")
	if configFile != "" {
		if err := LoadFile(configFile, &file); err != nil {
			return nil, err
		}
	}

	fetcher := marketdata.DefaultFetcherConfig()
	fetcher.Concurrency = getEnvAsInt("FETCH_CONCURRENCY", fetcher.Concurrency)
	fetcher.Timeout = getEnvAsDuration("FETCH_TIMEOUT", fetcher.Timeout)
	fetcher.RatePerSecond = getEnvAsFloat("FETCH_RATE_PER_SECOND", fetcher.RatePerSecond)
	fetcher.Burst = getEnvAsInt("FETCH_BURST", fetcher.Burst)

	cfg := &Config{
		DataDir:    absDataDir,
		ChainDir:   getEnv("CHAIN_DIR", filepath.Join(absDataDir, "market")),
		ConfigFile: configFile,
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Port:       getEnvAsInt("PORT", 8080),
		DevMode:    getEnvAsBool("DEV_MODE", false),

		Watchlist:       getEnvAsList("WATCHLIST", file.Watchlist),
		Capital:         getEnvAsFloat("ACCOUNT_CAPITAL", file.Capital),
		MaxResults:      getEnvAsInt("MAX_RESULTS", file.MaxResults),
		Workers:         getEnvAsInt("WORKERS", runtime.NumCPU()),
		VolatilityFloor: getEnvAsFloat("VOLATILITY_FLOOR", 0.01),
		ReportsKeep:     getEnvAsInt("REPORTS_KEEP", 100),

		Fetcher:  fetcher,
		CacheTTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		Redis: marketdata.RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			TLSEnabled: getEnvAsBool("REDIS_TLS", false),
			Prefix:     getEnv("REDIS_PREFIX", "optionseller:chain:"),
		},

		Backup: BackupConfig{
			S3: reliability.S3Config{
				Endpoint:       getEnv("BACKUP_S3_ENDPOINT", ""),
				Region:         getEnv("BACKUP_S3_REGION", "auto"),
				Bucket:         getEnv("BACKUP_S3_BUCKET", ""),
				AccessKey:      getEnv("BACKUP_S3_ACCESS_KEY", ""),
				SecretKey:      getEnv("BACKUP_S3_SECRET_KEY", ""),
				Prefix:         getEnv("BACKUP_S3_PREFIX", ""),
				UseSSL:         getEnvAsBool("BACKUP_S3_USE_SSL", true),
				ForcePathStyle: getEnvAsBool("BACKUP_S3_FORCE_PATH_STYLE", false),
			},
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
			Timeout:       getEnvAsDuration("BACKUP_TIMEOUT", 10*time.Minute),
		},
		Schedule: ScheduleConfig{
			Rescan:        getEnv("RESCAN_SCHEDULE", "0 */15 * * * *"),
			RescanTimeout: getEnvAsDuration("RESCAN_TIMEOUT", 2*time.Minute),
			Backup:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			Maintenance:   getEnv("MAINTENANCE_SCHEDULE", "0 30 2 * * *"),
			CachePurge:    getEnv("CACHE_PURGE_SCHEDULE", "@every 1m"),
		},

		Criteria: file.Criteria,
		Risk:     file.Risk,
		Rolls:    file.Rolls,
	}
	cfg.Redis.TTL = cfg.CacheTTL
	cfg.Risk.MaxRiskFraction = getEnvAsFloat("MAX_RISK_FRACTION", cfg.Risk.MaxRiskFraction)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto into. Keys absent from the
// file keep the values already in into.
func LoadFile(path string, into *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return &domain.ConfigError{Problems: []string{fmt.Sprintf("%s: %v", path, err)}}
	}
	return nil
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("PORT must be within 1..65535, got %d", c.Port)
	}
	if c.Capital <= 0 {
		add("capital must be positive, got %v", c.Capital)
	}
	if c.MaxResults < 0 {
		add("max_results must not be negative, got %d", c.MaxResults)
	}
	if c.Workers <= 0 {
		add("WORKERS must be positive, got %d", c.Workers)
	}
	if c.VolatilityFloor <= 0 {
		add("VOLATILITY_FLOOR must be positive, got %v", c.VolatilityFloor)
	}
	if c.Fetcher.Concurrency <= 0 {
		add("FETCH_CONCURRENCY must be positive, got %d", c.Fetcher.Concurrency)
	}
	if c.Fetcher.Timeout <= 0 {
		add("FETCH_TIMEOUT must be positive, got %v", c.Fetcher.Timeout)
	}
	if c.Backup.Enabled() {
		if c.Backup.S3.AccessKey == "" || c.Backup.S3.SecretKey == "" {
			add("BACKUP_S3_ACCESS_KEY and BACKUP_S3_SECRET_KEY are required when BACKUP_S3_BUCKET is set")
		}
		if c.Backup.RetentionDays < 0 {
			add("BACKUP_RETENTION_DAYS must not be negative, got %d", c.Backup.RetentionDays)
		}
	}

	for _, err := range []error{c.Criteria.Validate(), c.Risk.Validate()} {
		if err == nil {
			continue
		}
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			problems = append(problems, cfgErr.Problems...)
		} else {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return &domain.ConfigError{Problems: problems}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
