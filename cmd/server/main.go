package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/choosewine/choosewine-api/internal/auth"
	"github.com/choosewine/choosewine-api/internal/config"
	httpserver "github.com/choosewine/choosewine-api/internal/http"
	"github.com/choosewine/choosewine-api/internal/logger"
	"github.com/choosewine/choosewine-api/internal/metrics"
	"github.com/choosewine/choosewine-api/internal/rating"
	"github.com/choosewine/choosewine-api/internal/recommend"
	"github.com/choosewine/choosewine-api/internal/repository"
	"github.com/choosewine/choosewine-api/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 lg,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		lg.Fatal("connect database", zap.Error(err))
	}
	defer st.Close()
	metrics.RegisterPoolStats(st.Stats)

	recClient, err := recommend.NewHTTPClient(cfg.RecommenderURL, time.Duration(cfg.RecommenderTimeoutSecs)*time.Second, lg)
	if err != nil {
		lg.Fatal("init recommender client", zap.Error(err))
	}

	var cache recommend.Cache
	if cfg.CacheEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(dbCtx).Err(); err != nil {
			lg.Warn("redis unavailable, recommendations will not be cached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			cache = recommend.NewRedisCache(rdb, time.Duration(cfg.RecommendationCacheTTLSec)*time.Second)
			lg.Info("recommendation cache enabled", zap.String("addr", cfg.RedisAddr), zap.Int("ttl_secs", cfg.RecommendationCacheTTLSec))
		}
	}

	repo := repository.New(st)
	server := httpserver.New(cfg, httpserver.Dependencies{
		Health:      st,
		Repo:        repo,
		Ratings:     rating.NewAggregator(repo.Ratings, lg),
		Recommender: recommend.NewService(recClient, repo.Wines, cache, lg),
		Issuer:      auth.NewIssuer(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour),
	}, lg)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			lg.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("graceful shutdown error", zap.Error(err))
	}
	lg.Info("server stopped")
}
