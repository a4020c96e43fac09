package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalog/internal/service"
	"github.com/utafrali/catalog/pkg/health"
	"github.com/utafrali/catalog/pkg/middleware"
)

type routerOptions struct {
	routes     []func(chi.Router)
	writeLimit func(http.Handler) http.Handler
	readCache  func(http.Handler) http.Handler
	cors       middleware.CORSConfig
}

// Option customizes NewRouter.
type Option func(*routerOptions)

// WithFiles serves the files under root at prefix.
func WithFiles(prefix, root string) Option {
	prefix = strings.TrimRight(prefix, "/")
	return func(o *routerOptions) {
		o.routes = append(o.routes, func(r chi.Router) {
			fs := http.StripPrefix(prefix, http.FileServer(http.Dir(root)))
			r.Get(prefix+"/*", fs.ServeHTTP)
		})
	}
}

// WithWriteLimit throttles every mutating product and reindex request per
// client IP.
func WithWriteLimit(rps float64, burst int, logger *slog.Logger) Option {
	return func(o *routerOptions) {
		o.writeLimit = middleware.RateLimit(rps, burst, logger)
	}
}

// WithCORS replaces the default allow-any-origin CORS policy.
func WithCORS(cfg middleware.CORSConfig) Option {
	return func(o *routerOptions) {
		o.cors = cfg
	}
}

// WithCacheControl sets Cache-Control on product and search reads.
func WithCacheControl(maxAge time.Duration) Option {
	return func(o *routerOptions) {
		o.readCache = middleware.CacheControl(maxAge)
	}
}

// WithPprof mounts the profiler for callers inside allowedCIDRs.
func WithPprof(allowedCIDRs []string, logger *slog.Logger) Option {
	return func(o *routerOptions) {
		o.routes = append(o.routes, func(r chi.Router) {
			middleware.RegisterPprof(r, allowedCIDRs, logger)
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// NewRouter creates a chi router with all catalog routes registered.
func NewRouter(
	serviceName string,
	productService *service.ProductService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	opts ...Option,
) http.Handler {
	o := routerOptions{
		writeLimit: passthrough,
		readCache:  passthrough,
		cors:       middleware.DefaultCORSConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	limit, cached := o.writeLimit, o.readCache

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(o.cors))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	productHandler := NewProductHandler(productService, logger)

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.With(cached).Get("/", productHandler.ListProducts)
			r.With(cached).Get("/{id}", productHandler.GetProduct)
			r.With(limit).Post("/", productHandler.CreateProduct)
			r.With(limit).Put("/{id}", productHandler.UpdateProduct)
			r.With(limit).Patch("/{id}", productHandler.UpdateProduct)
			r.With(limit).Delete("/{id}", productHandler.DeleteProduct)
			r.With(limit).Post("/{id}/restore", productHandler.RestoreProduct)
			r.With(limit).Delete("/{id}/force", productHandler.DestroyProduct)
		})

		r.With(limit).Post("/{id}/image", productHandler.UploadImage)
	})

	searchHandler := NewSearchHandler(productService, logger)

	r.Route("/api/v1/search", func(r chi.Router) {
		r.With(cached).Get("/products", searchHandler.SearchProducts)
		r.With(limit).Post("/reindex", searchHandler.Reindex)
	})

	for _, route := range o.routes {
		route(r)
	}

	return r
}
