package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/utafrali/catalog/internal/config"
	"github.com/utafrali/catalog/internal/repository"
	repomemory "github.com/utafrali/catalog/internal/repository/memory"
	"github.com/utafrali/catalog/internal/repository/postgres"
	"github.com/utafrali/catalog/internal/search"
	"github.com/utafrali/catalog/internal/search/elasticsearch"
	searchmemory "github.com/utafrali/catalog/internal/search/memory"
	"github.com/utafrali/catalog/migrations"
	"github.com/utafrali/catalog/pkg/breaker"
	"github.com/utafrali/catalog/pkg/database"
	apperrors "github.com/utafrali/catalog/pkg/errors"
)

// Store is the opened record store. Pool is nil for the memory driver.
type Store struct {
	Repo repository.ProductRepository
	Pool *pgxpool.Pool
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStore connects the configured record store and applies pending
// migrations when enabled.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory record store; data is lost on restart")
		return &Store{Repo: repomemory.NewProductRepository()}, nil
	}

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)

	if cfg.AutoMigrate {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)

	return &Store{Repo: postgres.NewProductRepository(pool), Pool: pool}, nil
}

// Index is the opened search index.
type Index struct {
	Adapter *search.Adapter
	Engine  search.Engine
}

// OpenIndex builds the configured search engine behind the adapter. It does
// not contact the cluster.
func OpenIndex(cfg *config.Config, logger *slog.Logger) (*Index, error) {
	var engine search.Engine
	switch cfg.SearchDriver {
	case config.DriverElasticsearch:
		es, err := elasticsearch.New(elasticsearch.Config{
			Addresses: cfg.ElasticsearchURLs,
			Username:  cfg.ElasticsearchUser,
			Password:  cfg.ElasticsearchPass,
			Index:     cfg.ElasticsearchIndex,
			Refresh:   cfg.ElasticsearchRefresh,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		engine = es
		logger.Info("elasticsearch search engine initialized",
			slog.Any("addresses", cfg.ElasticsearchURLs),
			slog.String("index", es.Index()),
		)
	default:
		engine = searchmemory.New()
		logger.Info("in-memory search engine initialized")
	}

	// Missing documents and abandoned requests say nothing about the cluster.
	isFailure := func(err error) bool {
		return !apperrors.IsNotFound(err) && !errors.Is(err, context.Canceled)
	}
	newBreaker := func(name string) *breaker.Breaker {
		bcfg := breaker.DefaultConfig(name)
		bcfg.Timeout = cfg.SearchBreakerTimeout
		bcfg.MinRequests = cfg.SearchBreakerMinCalls
		return breaker.New(bcfg, logger, isFailure)
	}
	breakers := search.Breakers{
		Query: newBreaker("search-query"),
		Write: newBreaker("search-index"),
	}

	adapter := search.NewAdapter(engine, search.Config{
		QueryTimeout:   cfg.SearchQueryTimeout,
		BatchSize:      cfg.SearchRebuildBatch,
		IncludeDeleted: cfg.SearchIncludeDeleted,
	}, breakers, logger)

	return &Index{Adapter: adapter, Engine: engine}, nil
}
