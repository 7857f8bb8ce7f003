package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ai_selector/internal/models"
	"ai_selector/internal/selection"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Catalog sources.
const (
	CatalogEmbedded = "embedded"
	CatalogFile     = "file"
	CatalogPostgres = "postgres"
)

// Archive targets and queue backends.
const (
	ArchiveS3         = "s3"
	ArchiveFile       = "file"
	ArchiveQueueMem   = "memory"
	ArchiveQueueRedis = "redis"
)

// Default budget limits in USD.
const (
	DefaultDailyLimit   = 100.0
	DefaultMonthlyLimit = 1000.0
)

// Config holds configuration for the selector service.
type Config struct {
	HTTPPort   string
	LogLevel   string
	Database   DatabaseConfig
	Redis      RedisConfig
	Ledger     LedgerConfig
	Catalog    CatalogConfig
	Budget     BudgetConfig
	Scoring    selection.Weights
	Generation GenerationConfig
	Archive    ArchiveConfig
	Metrics    MetricsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Migrate         bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LedgerConfig selects where usage and generation records are persisted.
type LedgerConfig struct {
	Backend string
}

// CatalogConfig controls where provider profiles come from and how long they are cached.
type CatalogConfig struct {
	Source   string
	File     string
	CacheTTL time.Duration
}

// BudgetConfig holds default spend limits applied to tenants without overrides.
type BudgetConfig struct {
	DailyLimit   float64
	MonthlyLimit float64
	CacheSize    int
	CacheTTL     time.Duration
}

// Limits returns the configured defaults as BudgetLimits.
func (b BudgetConfig) Limits() models.BudgetLimits {
	return models.BudgetLimits{Daily: b.DailyLimit, Monthly: b.MonthlyLimit}
}

// GenerationConfig controls the generation facade.
type GenerationConfig struct {
	RejectOverBudget bool
	RequestTimeout   time.Duration
}

// ArchiveConfig holds configuration for the generation archive
type ArchiveConfig struct {
	Enabled      bool   // Whether to archive generation records
	Backend      string // s3 or file
	Queue        string // memory or redis buffer between requests and the worker
	BatchSize    int           // Records per S3 object
	BatchTimeout time.Duration // Flush a partial batch after this duration
	MaxRetries   int
	RetryBackoff time.Duration
	S3Bucket     string
	S3Region     string
	S3Prefix     string // Prefix for S3 keys (e.g., "generations/")
	PodName      string // Pod identifier for multi-pod deployments
	FileTemplate string // e.g. /var/lib/selector/generations-%s.jsonl
	FileMaxSize  int64
	FileMaxFiles int
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat returns an error rather than falling back, so a typo in a budget
// limit cannot silently become the default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, val)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := strings.ToLower(os.Getenv(key))
	switch val {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Load reads configuration from environment variables, after merging an optional
// .env file (ENV_FILE, default ".env"). Variables already set in the environment
// take precedence over the file.
func Load() (*Config, error) {
	envFile := getEnvString("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{
		HTTPPort: getEnvString("HTTP_PORT", "8080"),
		LogLevel: getEnvString("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:             getEnvString("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			Migrate:         getEnvBool("DB_MIGRATE", false),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Ledger: LedgerConfig{
			Backend: strings.ToLower(getEnvString("LEDGER_BACKEND", LedgerMemory)),
		},
		Catalog: CatalogConfig{
			Source:   strings.ToLower(getEnvString("CATALOG_SOURCE", CatalogEmbedded)),
			File:     getEnvString("CATALOG_FILE", ""),
			CacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		},
		Budget: BudgetConfig{
			CacheSize: getEnvInt("BUDGET_CACHE_SIZE", 1000),
			CacheTTL:  getEnvDuration("BUDGET_CACHE_TTL", 1*time.Minute),
		},
		Generation: GenerationConfig{
			RejectOverBudget: getEnvBool("GENERATION_REJECT_OVER_BUDGET", false),
			RequestTimeout:   getEnvDuration("GENERATION_REQUEST_TIMEOUT", 60*time.Second),
		},
		Archive: ArchiveConfig{
			Enabled:      getEnvBool("ARCHIVE_ENABLED", false),
			Backend:      strings.ToLower(getEnvString("ARCHIVE_BACKEND", ArchiveS3)),
			Queue:        strings.ToLower(getEnvString("ARCHIVE_QUEUE", ArchiveQueueMem)),
			BatchSize:    getEnvInt("ARCHIVE_BATCH_SIZE", 500),
			BatchTimeout: getEnvDuration("ARCHIVE_BATCH_TIMEOUT", 30*time.Second),
			MaxRetries:   getEnvInt("ARCHIVE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("ARCHIVE_RETRY_BACKOFF", 1*time.Second),
			S3Bucket:     getEnvString("ARCHIVE_S3_BUCKET", ""),
			S3Region:     getEnvString("ARCHIVE_S3_REGION", "us-east-1"),
			S3Prefix:     getEnvString("ARCHIVE_S3_PREFIX", "generations/"),
			PodName:      getEnvString("POD_NAME", "selector-0"),
			FileTemplate: getEnvString("ARCHIVE_FILE_TEMPLATE", "/var/lib/selector/generations-%s.jsonl"),
			FileMaxSize:  getEnvInt64("ARCHIVE_FILE_MAX_SIZE", 100<<20),
			FileMaxFiles: getEnvInt("ARCHIVE_FILE_MAX_FILES", 10),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	var err error
	if cfg.Budget.DailyLimit, err = getEnvFloat("BUDGET_DAILY_LIMIT", DefaultDailyLimit); err != nil {
		return nil, err
	}
	if cfg.Budget.MonthlyLimit, err = getEnvFloat("BUDGET_MONTHLY_LIMIT", DefaultMonthlyLimit); err != nil {
		return nil, err
	}
	if cfg.Scoring, err = loadWeights(selection.DefaultWeights()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadWeights(w selection.Weights) (selection.Weights, error) {
	floats := []struct {
		key string
		dst *float64
	}{
		{"SCORING_FREE_BONUS", &w.FreeBonus},
		{"SCORING_COST_SCALE", &w.CostScale},
		{"SCORING_PRIORITIZE_FREE_BONUS", &w.PrioritizeFreeBonus},
		{"SCORING_SPEED_MULTIPLIER", &w.SpeedMultiplier},
		{"SCORING_BUDGET_FREE_BONUS", &w.BudgetFreeBonus},
		{"SCORING_BUDGET_PAID_PENALTY", &w.BudgetPaidPenalty},
		{"SCORING_UNUSED_BONUS", &w.UnusedBonus},
		{"SCORING_LIGHT_USAGE_BONUS", &w.LightUsageBonus},
		{"SCORING_HEAVY_USAGE_PENALTY", &w.HeavyUsagePenalty},
	}
	for _, f := range floats {
		v, err := getEnvFloat(f.key, *f.dst)
		if err != nil {
			return w, err
		}
		*f.dst = v
	}

	w.LightUsageThreshold = getEnvInt64("SCORING_LIGHT_USAGE_THRESHOLD", w.LightUsageThreshold)
	w.UsageWindow = getEnvDuration("SCORING_USAGE_WINDOW", w.UsageWindow)
	w.NominalQuantity = getEnvInt64("SCORING_NOMINAL_QUANTITY", w.NominalQuantity)
	return w, nil
}

// Validate fails fast on settings that would otherwise surface as wrong
// behaviour at request time.
func (c *Config) Validate() error {
	if err := c.Budget.Limits().Validate(); err != nil {
		return err
	}
	if c.Catalog.CacheTTL <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL must be positive, got %s", c.Catalog.CacheTTL)
	}

	switch c.Ledger.Backend {
	case LedgerMemory, LedgerRedis:
	case LedgerPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s ledger", LedgerPostgres)
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}

	switch c.Catalog.Source {
	case CatalogEmbedded:
	case CatalogFile:
		if c.Catalog.File == "" {
			return fmt.Errorf("CATALOG_FILE is required when CATALOG_SOURCE=%s", CatalogFile)
		}
	case CatalogPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when CATALOG_SOURCE=%s", CatalogPostgres)
		}
	default:
		return fmt.Errorf("unknown CATALOG_SOURCE %q", c.Catalog.Source)
	}

	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case ArchiveS3:
			if c.Archive.S3Bucket == "" {
				return fmt.Errorf("ARCHIVE_S3_BUCKET is required when ARCHIVE_BACKEND=%s", ArchiveS3)
			}
		case ArchiveFile:
			if !strings.Contains(c.Archive.FileTemplate, "%s") {
				return fmt.Errorf("ARCHIVE_FILE_TEMPLATE must contain %%s")
			}
		default:
			return fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.Archive.Backend)
		}
		switch c.Archive.Queue {
		case ArchiveQueueMem, ArchiveQueueRedis:
		default:
			return fmt.Errorf("unknown ARCHIVE_QUEUE %q", c.Archive.Queue)
		}
	}

	return c.Scoring.Validate()
}
