package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/adapters/auth"
	"friendly_eats/internal/adapters/gemini"
	server "friendly_eats/internal/adapters/http_server"
	"friendly_eats/internal/adapters/observability"
	redisad "friendly_eats/internal/adapters/redis"
	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
	"friendly_eats/internal/shared"
	"friendly_eats/internal/storage/memory"
	mysqlstore "friendly_eats/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// redis is optional: without it there is no cache, and the mysql driver has no change feed
	var rc *redis.Client
	if cfg.RedisAddr != "" {
		c, err := redisad.Connect(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable; running without cache")
		} else {
			rc = c
			defer rc.Close()
		}
	}

	retry := []shared.RetryOption{
		shared.WithMaxAttempts(cfg.TxnMaxAttempts),
		shared.OnConflict(observability.ObserveConflict),
	}

	var store domain.DocumentStore
	switch cfg.StoreDriver {
	case "memory":
		store = memory.New(memory.WithRetry(retry...))
		log.Warn().Msg("using in-memory store; data is lost on restart")
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		if err := mysqlstore.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		var feed domain.ChangeFeed
		if rc != nil {
			feed = redisad.NewFeed(rc)
		} else {
			log.Warn().Msg("no change feed; live listings are disabled")
		}
		store = mysqlstore.New(db, feed, mysqlstore.WithRetry(retry...))
	default:
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("unknown STORE_DRIVER (mysql|memory)")
	}

	var cache domain.Cache
	if rc != nil {
		cache = redisad.NewCache(rc)
	}

	var ai domain.Summarizer
	if cfg.GeminiKey != "" {
		client, err := gemini.New(cfg.GeminiBase, cfg.GeminiKey, cfg.GeminiModel, cfg.GeminiRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Gemini client")
		}
		ai = client
	}

	// deps
	q := app.NewQueryService(store, cache, cfg.CacheTTL)
	cmd := app.NewCommandService(store, cache)
	sum := app.NewSummaryService(q, ai, cache, cfg.CacheTTL)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:             q,
		C:             cmd,
		S:             sum,
		Auth:          auth.NewIssuer(cfg.SessionSecret, cfg.SessionTTL),
		SecureCookies: cfg.AppEnv != "dev",
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
