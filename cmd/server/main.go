package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/config"
	"fuelstation/backend/internal/httpapi"
	"fuelstation/backend/internal/logger"
	"fuelstation/backend/internal/metrics"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/store/memory"
	pgstore "fuelstation/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if len(cfg.AuthSecret) < 32 {
		log.Warn("AUTH_SECRET is unset or shorter than 32 characters; do not run production like this")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory (data is lost on restart)")
	}

	statusCache := cache.StatusCache(cache.NoopStatusCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStatusCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop status cache", zap.Error(err))
		} else {
			statusCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: noop")
	}

	metrics.Init()

	svc := service.New(repo, statusCache, log, service.Params{
		DefaultStationID:          cfg.StationID,
		EditWindowMinutes:         cfg.EditWindowMinutes,
		DeviationThresholdPercent: cfg.DeviationThresholdPercent,
		DeviationLookbackDays:     cfg.DeviationLookbackDays,
		StatusTTLSeconds:          cfg.ReadingStatusTTLSeconds,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, log, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("fuel station backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}
