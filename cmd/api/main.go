package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkline/api/internal/analyze"
	"inkline/api/internal/app"
	"inkline/api/internal/config"
	"inkline/api/internal/gitrepo"
	"inkline/api/internal/logger"
	"inkline/api/internal/session"
	"inkline/api/internal/source"
	"inkline/api/internal/store"
)

func main() {
	cfg := config.Load()
	if cfg.ConfigPath != "" {
		if err := cfg.LoadFile(cfg.ConfigPath); err != nil {
			logger.New("inkline").Fatal("config load failed", "err", err)
		}
	}
	log := logger.Configure(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
		MaxOpenConns: cfg.DBMaxConns,
		PingAttempts: cfg.DBPingAttempts,
	})
	if err != nil {
		log.Fatal("database connection failed", "err", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatal("migrations failed", "err", err)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "versions", applied)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatal("failed to create repos dir", "err", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	// Engine sessions and the batch cache share one Redis client.
	var (
		sessions app.SessionStore
		cache    analyze.BatchCache
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", "err", err)
		}
		defer redisStore.Close()
		redisStore.WithTTL(cfg.SessionTTL, cfg.BatchTTL)
		sessions = redisStore
		cache = redisStore
		log.Info("engine sessions stored in redis", "ttl", cfg.SessionTTL)
	} else {
		log.Warn("REDIS_URL not set, engine sessions are kept in memory only")
	}

	var analyzer app.Analyzer
	if strings.TrimSpace(cfg.SourceURL) != "" {
		src, err := source.NewHTTP(source.Options{
			BaseURL:      cfg.SourceURL,
			EndpointPath: cfg.SourcePath,
			APIKey:       cfg.SourceAPIKey,
			Timeout:      cfg.SourceTimeout,
			Logger:       log.WithPrefix("source"),
		})
		if err != nil {
			log.Fatal("suggestion source setup failed", "err", err)
		}
		analyzer = analyze.NewCoordinator(src, cache, log.WithPrefix("analyze"))
	} else {
		log.Warn("SUGGESTION_SOURCE_URL not set, analysis is disabled")
	}

	service := app.New(cfg, dataStore, gitService, sessions, analyzer, log)
	if err := service.Bootstrap(ctx); err != nil {
		log.Warn("bootstrap error (will retry on next restart)", "err", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.SourceTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Inkline API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "err", err)
	}
}
