package config

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/utafrali/catalog/internal/cache"
	"github.com/utafrali/catalog/pkg/database"
	pkgconfig "github.com/utafrali/catalog/pkg/config"
	"github.com/utafrali/catalog/pkg/middleware"
	"github.com/utafrali/catalog/pkg/tracing"
)

// Driver names.
const (
	DriverPostgres      = "postgres"
	DriverMemory        = "memory"
	DriverElasticsearch = "elasticsearch"
	DriverRedis         = "redis"
	DriverNone          = "none"
	DriverKafka         = "kafka"
	DriverLocal         = "local"
)

// Config holds all configuration for the catalog service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Per-client write throttle; 0 disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	// Browser-facing headers
	CORSAllowedOrigins   []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSAllowCredentials bool          `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	HTTPCacheMaxAge      time.Duration `env:"HTTP_CACHE_MAX_AGE" envDefault:"0s"`
	// Profiler is mounted only when at least one CIDR is listed.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Backends
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	SearchDriver  string `env:"SEARCH_DRIVER" envDefault:"elasticsearch"`
	CacheDriver   string `env:"CACHE_DRIVER" envDefault:"redis"`
	QueueDriver   string `env:"QUEUE_DRIVER" envDefault:"memory"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"local"`

	// PostgreSQL
	DatabaseURL  string `env:"DATABASE_URL"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"catalog"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	AutoMigrate  bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Redis
	RedisURL  string `env:"REDIS_URL"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Read-through cache
	CacheTTL          time.Duration `env:"CACHE_TTL" envDefault:"120s"`
	CacheDeepPage     int           `env:"CACHE_DEEP_PAGE_THRESHOLD" envDefault:"50"`
	CachePrefix       string        `env:"CACHE_PREFIX" envDefault:"catalog:cache:"`
	CacheMemoryCap    int           `env:"CACHE_MEMORY_CAPACITY" envDefault:"10000"`
	CacheSingleFlight bool          `env:"CACHE_SINGLE_FLIGHT" envDefault:"true"`

	// Elasticsearch
	ElasticsearchURLs     []string      `env:"ELASTICSEARCH_URLS" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUser     string        `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPass     string        `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchIndex    string        `env:"ELASTICSEARCH_INDEX" envDefault:"products"`
	ElasticsearchRefresh  string        `env:"ELASTICSEARCH_REFRESH" envDefault:"false"`
	SearchQueryTimeout    time.Duration `env:"SEARCH_QUERY_TIMEOUT" envDefault:"2s"`
	SearchRebuildBatch    int           `env:"SEARCH_REBUILD_BATCH" envDefault:"500"`
	SearchIncludeDeleted  bool          `env:"SEARCH_INCLUDE_DELETED" envDefault:"false"`
	SearchBreakerTimeout  time.Duration `env:"SEARCH_BREAKER_TIMEOUT" envDefault:"30s"`
	SearchBreakerMinCalls uint32        `env:"SEARCH_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Propagation queue
	QueueWorkers      int           `env:"QUEUE_WORKERS" envDefault:"4"`
	QueueMaxAttempts  int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	QueueBackoff      time.Duration `env:"QUEUE_BACKOFF" envDefault:"200ms"`
	QueueDrainTimeout time.Duration `env:"QUEUE_DRAIN_TIMEOUT" envDefault:"10s"`
	QueueDeadLetters  int           `env:"QUEUE_MAX_DEAD_LETTERS" envDefault:"1000"`
	QueueDeferDelay   time.Duration `env:"QUEUE_DEFER_DELAY" envDefault:"1s"`

	// Kafka
	KafkaBrokers  []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaTopic    string        `env:"KAFKA_TOPIC" envDefault:"catalog.product.index"`
	KafkaGroup    string        `env:"KAFKA_GROUP" envDefault:"catalog-indexer"`
	KafkaDedupTTL time.Duration `env:"KAFKA_DEDUP_TTL" envDefault:"24h"`
	// Sweep interval for the in-process dedup store used without Redis.
	KafkaDedupSweep time.Duration `env:"KAFKA_DEDUP_SWEEP_INTERVAL" envDefault:"5m"`

	// Image storage
	StorageRoot    string `env:"STORAGE_ROOT" envDefault:"./storage/public"`
	StorageBaseURL string `env:"STORAGE_BASE_URL" envDefault:"http://localhost:8080/storage"`

	// OpenTelemetry
	Tracing tracing.Config
}

// Load reads configuration from a .env file, when present, and the
// environment. Variables already set in the environment win.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFiles(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks drivers and the settings each selected driver needs.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	errs = append(errs,
		oneOf("STORE_DRIVER", c.StoreDriver, DriverPostgres, DriverMemory),
		oneOf("SEARCH_DRIVER", c.SearchDriver, DriverElasticsearch, DriverMemory),
		oneOf("CACHE_DRIVER", c.CacheDriver, DriverRedis, DriverMemory, DriverNone),
		oneOf("QUEUE_DRIVER", c.QueueDriver, DriverMemory, DriverKafka),
		oneOf("STORAGE_DRIVER", c.StorageDriver, DriverLocal, DriverMemory),
	)

	if c.StoreDriver == DriverPostgres && c.DatabaseURL == "" && c.PostgresHost == "" {
		errs = append(errs, errors.New("POSTGRES_HOST or DATABASE_URL is required"))
	}
	if c.SearchDriver == DriverElasticsearch && len(c.ElasticsearchURLs) == 0 {
		errs = append(errs, errors.New("ELASTICSEARCH_URLS is required"))
	}
	if c.QueueDriver == DriverKafka && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.StorageDriver == DriverLocal && c.StorageRoot == "" {
		errs = append(errs, errors.New("STORAGE_ROOT is required"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL))
	}
	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 with RATE_LIMIT_BURST >= 1, got %g/%d", c.RateLimitRPS, c.RateLimitBurst))
	}
	if c.HTTPCacheMaxAge < 0 {
		errs = append(errs, fmt.Errorf("HTTP_CACHE_MAX_AGE must not be negative, got %s", c.HTTPCacheMaxAge))
	}
	for _, cidr := range c.PprofAllowedCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errs = append(errs, fmt.Errorf("PPROF_ALLOWED_CIDRS: %w", err))
		}
	}
	if c.QueueDeferDelay <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_DEFER_DELAY must be positive, got %s", c.QueueDeferDelay))
	}
	if c.QueueDriver == DriverKafka && c.KafkaDedupSweep <= 0 {
		errs = append(errs, fmt.Errorf("KAFKA_DEDUP_SWEEP_INTERVAL must be positive, got %s", c.KafkaDedupSweep))
	}
	if c.QueueMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.QueueMaxAttempts))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid catalog config: %w", err)
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), value)
}

// Postgres returns the pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		URL:             c.DatabaseURL,
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the client settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		URL:      c.RedisURL,
		Addr:     c.RedisAddr,
		Password: c.RedisPass,
		DB:       c.RedisDB,
	}
}

// CORS returns the cross-origin policy for the HTTP API.
func (c *Config) CORS() middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = c.CORSAllowedOrigins
	cors.AllowCredentials = c.CORSAllowCredentials
	return cors
}

// Cache returns the read-through cache settings.
func (c *Config) Cache() cache.Config {
	return cache.Config{
		TTL:               c.CacheTTL,
		DeepPageThreshold: c.CacheDeepPage,
		SingleFlight:      c.CacheSingleFlight,
	}
}
