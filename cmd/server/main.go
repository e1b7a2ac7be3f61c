package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tilecache/internal/config"
	httphandlers "tilecache/internal/http"
	"tilecache/internal/logger"
	"tilecache/internal/render"
	"tilecache/internal/seed"
	"tilecache/internal/storage"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	registry := storage.NewRegistry()
	if err := storage.RegisterBuiltins(registry); err != nil {
		log.Fatal("Failed to register storage backends", zap.Error(err))
	}

	block, err := cfg.Storage()
	if err != nil {
		log.Fatal("Failed to load storage config", zap.Error(err))
	}

	backend, err := registry.Create(block, storage.Deps{
		Logger:  log,
		Metrics: prometheus.DefaultRegisterer,
	})
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.String("type", block.Type()), zap.Error(err))
	}
	defer backend.Close()

	log.Info("Starting tilecache server",
		zap.Int("port", cfg.Port),
		zap.String("storage", block.Type()),
		zap.Strings("backends", registry.List()),
	)

	handlers := httphandlers.New(cfg, log, backend)

	mux := http.NewServeMux()

	mux.HandleFunc("/tiles/", handlers.HandleTile)
	mux.HandleFunc("/meta/", handlers.HandleMeta)
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.SeedDir != "" {
		startVips(cfg, log)
		defer vips.Shutdown()

		seeder := seed.NewSeeder(cfg.SeedDir, render.NewSlicer(log), backend, cfg.SeedWorkers, log)
		go func() {
			stats, err := seeder.Run(ctx)
			if err != nil {
				log.Warn("Seeding stopped", zap.Error(err))
				return
			}
			log.Info("Seeding completed", zap.Int64("seeded", stats.Seeded), zap.Int64("failed", stats.Failed))
		}()
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

// startVips is only needed when seeding; serving tiles never touches libvips.
func startVips(cfg *config.Config, log *zap.Logger) {
	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)
}
