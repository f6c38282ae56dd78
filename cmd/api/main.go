package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gallery_backend/internal/adapters/storage"
	"gallery_backend/internal/gallery"
	gallerysvc "gallery_backend/internal/gallery/service"
	apphttp "gallery_backend/internal/http"
	"gallery_backend/internal/http/router"
	"gallery_backend/internal/ingest"
	"gallery_backend/platform/config"
	"gallery_backend/platform/logger"
	"gallery_backend/platform/validator"

	"github.com/redis/go-redis/v9"
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

	// Blob store for transcoded image uploads (MinIO)
	blobStore, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize blob store", "error", err)
		panic("failed to initialize blob store: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure images bucket", 5, 2*time.Second, func() error {
		return blobStore.EnsureBucketExists(ctx)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketImages())
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("blob store initialized", "imagesBucket", cfg.GetMinioBucketImages())

	// Gallery state persistence: Redis when configured, in-memory otherwise.
	var galleryStore gallerysvc.Store
	if cfg.IsRedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
			return rdb.Ping(ctx).Err()
		}); err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		defer rdb.Close()
		galleryStore = gallerysvc.NewRedisStore(rdb, cfg.GetGalleryStateKey())
		log.Info("redis connection established", "addr", cfg.GetRedisAddr())
	} else {
		galleryStore = gallerysvc.NewMemoryStore()
		log.Warn("REDIS_ADDR not configured; gallery state is not persisted across restarts")
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	galleryModule, err := gallery.NewModule(ctx, galleryStore, blobStore, cfg.GetGalleryMaxImages(), log)
	if err != nil {
		log.Error("failed to initialize gallery module", "error", err)
		panic("failed to initialize gallery module: " + err.Error())
	}

	ingestModule := ingest.NewModule(cfg, blobStore, galleryModule.Service(), val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Modules: []apphttp.Module{
			ingestModule,
			galleryModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
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
