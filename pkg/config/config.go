// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Postgres, SQLite, Kafka, Redis, Indexer, Search).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// IDF modes. Graded is textbook document frequency; presence reproduces the
// legacy behavior where a term counts at most once across the whole corpus.
const (
	IDFModeGraded   = "graded"
	IDFModePresence = "presence"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
	// APIKeys guard the indexer and ingestion routes; empty leaves them open.
	APIKeys []string `yaml:"apiKeys"`
}

// StoreConfig selects the corpus store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig holds the embedded store location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIndex   string `yaml:"documentIndex"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls tokenization, TF-IDF weighting and the background
// refresh of stale histograms.
type IndexerConfig struct {
	Language        string        `yaml:"language"`
	Stopwords       []string      `yaml:"stopwords"`
	MinTokenLength  int           `yaml:"minTokenLength"`
	IDFMode         string        `yaml:"idfMode"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	RefreshBatch    int           `yaml:"refreshBatch"`
	RefreshWorkers  int           `yaml:"refreshWorkers"`
}

// SearchConfig controls corpus scanning.
type SearchConfig struct {
	PageSize   int           `yaml:"pageSize"`
	Workers    int           `yaml:"workers"`
	// MaxResults caps the ids one response returns. 0 returns every match;
	// a request can still cap itself with limit.
	MaxResults int           `yaml:"maxResults"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverPostgres,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "histsearch",
			User:            "histsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/corpus.db",
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "histogram-search",
			Topics: KafkaTopics{
				DocumentIndex:   "document-index",
				CacheInvalidate: "cache-invalidate",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			Language:        "english",
			MinTokenLength:  2,
			IDFMode:         IDFModeGraded,
			RefreshInterval: 30 * time.Second,
			RefreshBatch:    50,
			RefreshWorkers:  runtime.GOMAXPROCS(0),
		},
		Search: SearchConfig{
			PageSize:   5,
			Workers:    runtime.GOMAXPROCS(0),
			MaxResults: 0,
			Timeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects settings the indexer or searcher cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown store driver %q", apperrors.ErrInvalidConfig, c.Store.Driver)
	}
	switch c.Indexer.IDFMode {
	case IDFModeGraded, IDFModePresence:
	default:
		return fmt.Errorf("%w: unknown idf mode %q", apperrors.ErrInvalidConfig, c.Indexer.IDFMode)
	}
	if c.Search.PageSize < 1 {
		return fmt.Errorf("%w: search page size must be positive, got %d", apperrors.ErrInvalidConfig, c.Search.PageSize)
	}
	if c.Search.Workers < 1 {
		return fmt.Errorf("%w: search workers must be positive, got %d", apperrors.ErrInvalidConfig, c.Search.Workers)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("%w: search max results must not be negative, got %d", apperrors.ErrInvalidConfig, c.Search.MaxResults)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative, got %d", apperrors.ErrInvalidConfig, c.Server.RateLimit)
	}
	if c.Indexer.RefreshBatch < 1 {
		return fmt.Errorf("%w: refresh batch must be positive, got %d", apperrors.ErrInvalidConfig, c.Indexer.RefreshBatch)
	}
	if c.Indexer.RefreshWorkers < 1 {
		c.Indexer.RefreshWorkers = 1
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_SERVER_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = limit
		}
	}
	if v := os.Getenv("SP_SERVER_API_KEYS"); v != "" {
		cfg.Server.APIKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_LANGUAGE"); v != "" {
		cfg.Indexer.Language = v
	}
	if v := os.Getenv("SP_INDEXER_IDF_MODE"); v != "" {
		cfg.Indexer.IDFMode = v
	}
	if v := os.Getenv("SP_SEARCH_PAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Search.PageSize = size
		}
	}
	if v := os.Getenv("SP_SEARCH_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = workers
		}
	}
	if v := os.Getenv("SP_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
