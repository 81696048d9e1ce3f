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

	"mapdna/internal/assets"
	"mapdna/internal/elements"
	"mapdna/internal/events"
	apphttp "mapdna/internal/http"
	"mapdna/internal/http/router"
	"mapdna/internal/maps"
	"mapdna/internal/templates"
	"mapdna/internal/webhook"
	"mapdna/migrations"
	"mapdna/platform/config"
	"mapdna/platform/db"
	"mapdna/platform/logger"
	"mapdna/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var (
		pool   *pgxpool.Pool
		source elements.Source
		fields elements.FieldResolver
		health apphttp.HealthChecker
	)
	if cfg.IsDatabaseEnabled() {
		if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
			p, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			pool = p
			return nil
		}); err != nil {
			log.Error("failed to connect to database", "error", err)
			panic("failed to connect to database: " + err.Error())
		}
		defer pool.Close()
		log.Info("database connection established")

		if cfg.ShouldMigrateOnStart() {
			if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
				log.Error("failed to run database migrations", "error", err)
				panic("failed to run database migrations: " + err.Error())
			}
			log.Info("database migrations complete")
		}

		repo := elements.NewRepository(pool, log)
		registry, err := repo.FieldRegistry(ctx)
		if err != nil {
			log.Error("failed to load address fields", "error", err)
			panic("failed to load address fields: " + err.Error())
		}
		log.Info("address fields loaded", "count", len(registry))

		source, fields = repo, registry
		health = db.NewPoolAdapter(pool)
	} else {
		log.Warn("DATABASE_URL not configured; element references disabled")
	}

	// Event bus for element change notifications
	eventBus := events.NewInMemoryBus(log)

	if source != nil {
		if rdb := initRedis(ctx, cfg, log); rdb != nil {
			defer func() { _ = rdb.Close() }()
			cache := elements.NewCachedSource(source, rdb, cfg.GetElementCacheTTL(), log)
			eventBus.Subscribe(events.ElementsChanged{}.EventName(), events.HandlerFunc(cache.HandleElementsChanged))
			source = cache
			log.Info("element cache enabled", "ttl", cfg.GetElementCacheTTL())
		}
	}

	// Interpreter bundles come from MinIO when configured, otherwise from
	// the static assets base URL.
	var bundles assets.BundleResolver
	if cfg.IsMinIOEnabled() {
		bucket, err := assets.NewBucketResolver(cfg, assets.BundlePrefix)
		if err != nil {
			log.Error("failed to initialize bundle storage", "error", err)
			panic("failed to initialize bundle storage: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure map-assets bucket", 5, 2*time.Second, func() error {
			return bucket.EnsureBucketExists(ctx)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket.Bucket())
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		log.Info("bundle storage initialized", "bucket", bucket.Bucket())
		bundles = bucket
	}

	if cfg.GetMapboxAccessToken() == "" {
		log.Warn("MAPBOX_ACCESSTOKEN not configured; maps will not render in the browser")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Shared validator instance for dependency injection
	val := validator.New()

	mapsModule := maps.NewModule(maps.Options{
		Config:      cfg,
		Validator:   val,
		Source:      source,
		Fields:      fields,
		Popups:      templates.New(cfg),
		Assets:      assets.NewLoader(cfg, bundles, log),
		Logger:      log,
		RenderRate:  rate.Limit(cfg.GetRenderRateLimit()),
		RenderBurst: cfg.GetRenderRateBurst(),
	})

	modules := []apphttp.Module{mapsModule}
	if cfg.IsWebhookEnabled() {
		modules = append(modules, webhook.NewModule(cfg.GetWebhookAPIKey(), eventBus, val, log))
	} else {
		log.Warn("WEBHOOK_API_KEY not configured; element change webhook disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  health,
		Modules: modules,
	}

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
	eventBus.Wait()
	log.Info("server stopped")
}

// initRedis connects the element cache. The cache is optional: any failure
// is logged and the service runs against the database directly.
func initRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.IsRedisEnabled() {
		log.Warn("REDIS_URL not configured; element cache disabled")
		return nil
	}

	opts, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL; element cache disabled", "error", err)
		return nil
	}

	rdb := redis.NewClient(opts)
	if err := withRetry(ctx, log, "redis connection", 3, time.Second, func() error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		log.CacheError("connect", "redis", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
