package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalog/internal/cache"
	cachememory "github.com/utafrali/catalog/internal/cache/memory"
	cacheredis "github.com/utafrali/catalog/internal/cache/redis"
	"github.com/utafrali/catalog/internal/config"
	handler "github.com/utafrali/catalog/internal/handler/http"
	"github.com/utafrali/catalog/internal/propagation"
	propkafka "github.com/utafrali/catalog/internal/propagation/kafka"
	propmemory "github.com/utafrali/catalog/internal/propagation/memory"
	"github.com/utafrali/catalog/internal/service"
	"github.com/utafrali/catalog/internal/storage"
	"github.com/utafrali/catalog/internal/storage/local"
	storagememory "github.com/utafrali/catalog/internal/storage/memory"
	"github.com/utafrali/catalog/pkg/database"
	"github.com/utafrali/catalog/pkg/health"
	pkgkafka "github.com/utafrali/catalog/pkg/kafka"
	"github.com/utafrali/catalog/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "catalog"

// App wires together all dependencies and runs the catalog service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *Store
	index    *Index
	rdb      *redis.Client
	queue    *propmemory.Queue
	worker   *propkafka.Worker
	producer *pkgkafka.Producer
	dlq      *pkgkafka.DLQProducer
	dedup    *pkgkafka.MemoryIdempotencyStore

	shutdownTracer func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
// On error, everything opened so far is released.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.shutdownTracer, err = tracing.InitTracer(initCtx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	healthHandler := health.NewHandler()

	// Record store.
	a.store, err = OpenStore(initCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if pool := a.store.Pool; pool != nil {
		healthHandler.Register("postgres", pool.Ping)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
	}

	// Cache.
	cacheStore, err := a.openCache(initCtx, healthHandler)
	if err != nil {
		return nil, err
	}
	readThrough := cache.New(cacheStore, cfg.Cache(), logger)

	// Search index. An unreachable cluster degrades search but does not stop
	// the service from starting.
	a.index, err = OpenIndex(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.index.Adapter.EnsureIndexExists(initCtx); err != nil {
		logger.Warn("search index not ensured at startup", slog.String("error", err.Error()))
	}
	healthHandler.RegisterNonCritical("search", a.index.Adapter.Ping)

	// Propagation.
	dispatcher := propagation.NewDispatcher(a.store.Repo, a.index.Adapter, logger)
	queue, err := a.openQueue(dispatcher.Handler(), healthHandler)
	if err != nil {
		return nil, err
	}

	// Image storage.
	images, files, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	productService := service.NewProductService(a.store.Repo, readThrough, a.index.Adapter, queue, images, logger)

	opts := []handler.Option{
		handler.WithCORS(cfg.CORS()),
		handler.WithCacheControl(cfg.HTTPCacheMaxAge),
	}
	if len(cfg.PprofAllowedCIDRs) > 0 {
		opts = append(opts, handler.WithPprof(cfg.PprofAllowedCIDRs, logger))
	}
	if files != nil {
		opts = append(opts, files)
	}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, handler.WithWriteLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	}
	router := handler.NewRouter(ServiceName, productService, healthHandler, logger, opts...)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func (a *App) openCache(ctx context.Context, h *health.Handler) (cache.Store, error) {
	switch a.cfg.CacheDriver {
	case config.DriverRedis:
		rdb, err := database.NewRedisClient(ctx, a.cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		store := cacheredis.NewStore(rdb, a.cfg.CachePrefix)
		h.RegisterNonCritical("redis", store.Ping)
		a.logger.Info("connected to Redis", slog.String("prefix", a.cfg.CachePrefix))
		return store, nil
	case config.DriverMemory:
		mcfg := cachememory.DefaultConfig()
		mcfg.Capacity = a.cfg.CacheMemoryCap
		return cachememory.NewStore(mcfg), nil
	default:
		a.logger.Info("read-through cache disabled")
		return cache.NopStore{}, nil
	}
}

func (a *App) openQueue(handle propagation.Handler, h *health.Handler) (propagation.Queue, error) {
	retry := propagation.RetryPolicy{MaxAttempts: a.cfg.QueueMaxAttempts, BaseBackoff: a.cfg.QueueBackoff}

	if a.cfg.QueueDriver != config.DriverKafka {
		a.queue = propmemory.New(propmemory.Config{
			Workers:        a.cfg.QueueWorkers,
			Retry:          retry,
			MaxDeadLetters: a.cfg.QueueDeadLetters,
			DrainTimeout:   a.cfg.QueueDrainTimeout,
			DeferDelay:     a.cfg.QueueDeferDelay,
		}, handle, a.logger)
		a.logger.Info("in-process propagation queue initialized", slog.Int("workers", a.cfg.QueueWorkers))
		return a.queue, nil
	}

	brokers := a.cfg.KafkaBrokers
	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(brokers), a.logger)
	a.dlq = pkgkafka.NewDLQProducer(brokers, a.logger)

	var seen pkgkafka.IdempotencyStore
	if a.rdb != nil {
		seen = pkgkafka.NewRedisIdempotencyStore(a.rdb, "catalog:indexed:", a.cfg.KafkaDedupTTL)
	} else {
		a.dedup = pkgkafka.NewMemoryIdempotencyStore(a.cfg.KafkaDedupTTL)
		seen = a.dedup
	}
	a.worker = propkafka.NewWorker(propkafka.WorkerConfig{
		Brokers:    brokers,
		Topic:      a.cfg.KafkaTopic,
		Group:      a.cfg.KafkaGroup,
		Retry:      retry,
		DeferDelay: a.cfg.QueueDeferDelay,
	}, handle, seen, a.dlq, a.logger)

	h.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, brokers)
	})
	a.logger.Info("kafka propagation queue initialized",
		slog.Any("brokers", brokers),
		slog.String("topic", a.cfg.KafkaTopic),
	)
	return propkafka.NewPublisher(a.producer, a.cfg.KafkaTopic), nil
}

func openStorage(cfg *config.Config, logger *slog.Logger) (storage.Store, handler.Option, error) {
	if cfg.StorageDriver == config.DriverMemory {
		return storagememory.New(cfg.StorageBaseURL), nil, nil
	}

	store, err := local.New(cfg.StorageRoot, cfg.StorageBaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init image storage: %w", err)
	}

	// Serve stored files ourselves when the base URL points back at us.
	u, err := url.Parse(cfg.StorageBaseURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return store, nil, nil
	}
	return store, handler.WithFiles(u.Path, store.Root()), nil
}

// Run starts the HTTP server and the propagation workers, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Workers outlive the signal so Shutdown can drain them.
	if a.queue != nil {
		a.queue.Start(context.WithoutCancel(ctx))
	}
	if a.dedup != nil {
		go a.dedup.SweepEvery(ctx, a.cfg.KafkaDedupSweep, a.logger)
	}
	if a.worker != nil {
		go func() {
			if err := a.worker.Run(ctx); err != nil {
				errCh <- fmt.Errorf("kafka worker: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	errs = append(errs, a.close())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// close releases the background components in dependency order.
func (a *App) close() error {
	var errs []error
	record := func(component string, err error) {
		if err != nil {
			a.logger.Error(component+" close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", component, err))
		}
	}

	if a.queue != nil {
		record("propagation queue", a.queue.Stop())
	}
	if a.worker != nil {
		record("kafka worker", a.worker.Close())
	}
	if a.producer != nil {
		record("kafka producer", a.producer.Close())
	}
	if a.dlq != nil {
		record("kafka dlq producer", a.dlq.Close())
	}
	if a.rdb != nil {
		record("redis", a.rdb.Close())
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		record("tracer", a.shutdownTracer(ctx))
	}
	return errors.Join(errs...)
}
