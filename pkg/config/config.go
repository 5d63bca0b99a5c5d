package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wonny/rigledger/internal/localday"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Ledger (lot resolution, ingestion, queries)
	Ledger LedgerConfig

	// Simulator
	Simulator SimulatorConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns         int
	MinConns         int
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	StatementTimeout time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// LedgerConfig holds lot/ingestion settings
type LedgerConfig struct {
	// UTCOffset is the fixed offset of the local calendar day, e.g. "+07:00".
	// No daylight saving is ever applied.
	UTCOffset     string
	MaxBulkRows   int
	HistoryLimit  int
	QueryCacheTTL time.Duration
}

// SimulatorConfig holds synthetic generator settings
type SimulatorConfig struct {
	RigIDs        []int64
	TickSchedule  string
	BackfillChunk int
	ProfilePath   string
	Seed          int64
	Parallelism   int
}

// APIConfig holds HTTP surface settings
type APIConfig struct {
	IngestRPS   float64
	IngestBurst int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	rigIDs, err := parseRigIDs(getEnv("SIM_RIG_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:              getEnv("DATABASE_URL", ""),
			MaxConns:         getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:         getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", "30s"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Ledger: LedgerConfig{
			UTCOffset:     getEnv("LEDGER_UTC_OFFSET", "+07:00"),
			MaxBulkRows:   getEnvAsInt("INGEST_MAX_BULK_ROWS", 5000),
			HistoryLimit:  getEnvAsInt("SERIES_HISTORY_LIMIT", 5000),
			QueryCacheTTL: getEnvAsDuration("SERIES_CACHE_TTL", "5s"),
		},

		Simulator: SimulatorConfig{
			RigIDs:        rigIDs,
			TickSchedule:  getEnv("SIM_TICK_SCHEDULE", "*/5 * * * * *"),
			BackfillChunk: getEnvAsInt("SIM_BACKFILL_CHUNK", 1000),
			ProfilePath:   getEnv("SIM_PROFILE_PATH", ""),
			Seed:          int64(getEnvAsInt("SIM_SEED", 0)),
			Parallelism:   getEnvAsInt("SIM_PARALLELISM", 4),
		},

		API: APIConfig{
			IngestRPS:   getEnvAsFloat("API_INGEST_RPS", 50),
			IngestBurst: getEnvAsInt("API_INGEST_BURST", 100),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if _, err := localday.ParseOffset(c.Ledger.UTCOffset); err != nil {
		return fmt.Errorf("LEDGER_UTC_OFFSET: %w", err)
	}
	if c.Ledger.MaxBulkRows <= 0 {
		return fmt.Errorf("INGEST_MAX_BULK_ROWS must be > 0")
	}
	if c.Ledger.HistoryLimit <= 0 {
		return fmt.Errorf("SERIES_HISTORY_LIMIT must be > 0")
	}
	if c.Simulator.BackfillChunk <= 0 || c.Simulator.BackfillChunk > c.Ledger.MaxBulkRows {
		return fmt.Errorf("SIM_BACKFILL_CHUNK must be in (0, INGEST_MAX_BULK_ROWS]")
	}
	if c.Simulator.Parallelism <= 0 {
		return fmt.Errorf("SIM_PARALLELISM must be > 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func parseRigIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("SIM_RIG_IDS: invalid rig id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
