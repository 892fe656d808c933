package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fintrack/fintrack/internal/cache"
	"github.com/fintrack/fintrack/internal/config"
	"github.com/fintrack/fintrack/internal/db"
	httpx "github.com/fintrack/fintrack/internal/http"
	"github.com/fintrack/fintrack/internal/observability"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	// the insecure fallback must never pass silently
	if cfg.UsingFallbackSecret {
		log.Warn("JWT_SECRET not set; using the insecure built-in fallback, do not run like this in production")
	}

	// tracing is optional; skipped when no collector endpoint is configured
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(context.Background(), "fintrack-api", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}

		defer func() {
			ctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	if err := db.RunMigrations(cfg.DBURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	// analytics cache: shared redis when configured, per-process otherwise
	var analyticsCache cache.Store

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.AnalyticsCacheTTL,
		})

		pingCtx, cancel := config.WithTimeout(2 * time.Second)
		err = redisCache.Ping(pingCtx)
		cancel()

		if err != nil {
			log.Error("redis connection failed", "err", err)
			os.Exit(1)
		}

		defer redisCache.Close()

		analyticsCache = redisCache
	} else {
		analyticsCache = cache.NewMemory(cfg.AnalyticsCacheTTL)
	}

	router := httpx.NewRouter(cfg, log, pool, analyticsCache)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
