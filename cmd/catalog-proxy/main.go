// Command catalog-proxy serves sorted, cached product searches, autocomplete
// and top-k selection over the upstream catalog API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-proxy/pkg/auth"
	"github.com/Sternrassler/catalog-proxy/pkg/cache"
	"github.com/Sternrassler/catalog-proxy/pkg/catalog"
	"github.com/Sternrassler/catalog-proxy/pkg/config"
	"github.com/Sternrassler/catalog-proxy/pkg/logging"
	"github.com/Sternrassler/catalog-proxy/pkg/metrics"
	"github.com/Sternrassler/catalog-proxy/pkg/search"
)

func main() {
	cfg := config.Load()

	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Service: "catalog-proxy",
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting catalog proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
}

// app holds the wired dependencies of the server.
type app struct {
	logger zerolog.Logger
	redis  *redis.Client
	search Searcher
}

// newApp wires the token source, catalog client, listing cache and search
// service from cfg. Redis is optional.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	var (
		redisClient *redis.Client
		store       auth.Store
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			// The proxy works without Redis; readiness reports it.
			logger.Warn().Err(err).Msg("Redis not reachable at startup")
		} else {
			logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		}
		store = auth.NewRedisStore(redisClient, cfg.ClientID)
	}

	tokens, err := auth.NewTokenSource(auth.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, store, &http.Client{Timeout: cfg.CatalogTimeout})
	if err != nil {
		return nil, fmt.Errorf("create token source: %w", err)
	}

	retry := catalog.DefaultRetryConfig()
	retry.MaxAttempts = cfg.CatalogMaxRetries
	catalogClient, err := catalog.New(catalog.Config{
		BaseURL:     cfg.CatalogBaseURL,
		Timeout:     cfg.CatalogTimeout,
		InsecureTLS: cfg.CatalogInsecureTLS,
		Retry:       retry,
	})
	if err != nil {
		return nil, fmt.Errorf("create catalog client: %w", err)
	}

	listings, err := cache.NewManager[search.Listing](cache.Config{MaxEntries: cfg.CacheMaxEntries})
	if err != nil {
		return nil, fmt.Errorf("create listing cache: %w", err)
	}

	svc, err := search.New(search.DefaultConfig(), tokens, catalogClient, listings)
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}

	return &app{logger: logger, redis: redisClient, search: svc}, nil
}

// routes builds the HTTP handler tree.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", instrument("/", http.HandlerFunc(rootHandler)))
	mux.Handle("GET /buscar", instrument("/buscar", listHandler(a.search)))
	mux.Handle("GET /autocomplete", instrument("/autocomplete", autocompleteHandler(a.search)))
	mux.Handle("GET /heap", instrument("/heap", topKHandler(a.search)))
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /ready", readyHandler(a.redis))
	mux.Handle("GET /metrics", metrics.Handler())
	return withLogging(a.logger, mux)
}

// Close releases the Redis connection, if any.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Redis close failed")
		}
	}
}
