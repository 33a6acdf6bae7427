package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "cityinfo/internal/adapters/http_server"
	"cityinfo/internal/adapters/localcache"
	"cityinfo/internal/adapters/notify"
	"cityinfo/internal/adapters/observability"
	redisad "cityinfo/internal/adapters/redis"
	"cityinfo/internal/app"
	"cityinfo/internal/domain"
	"cityinfo/internal/shared"
	"cityinfo/internal/storage/memory"
	mysqlstore "cityinfo/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	logger := observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	observability.SetGlobal(logger)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// deps
	store := openStore(ctx, cfg)
	cache := openCache(ctx, cfg)
	notifier := openNotifier(cfg)
	q := app.NewCityQueryService(store, cache, cfg.CacheTTL)

	// http
	srv := server.New(logger, cfg.HTTPTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, Store: store, Notifier: notifier, MaxPageSize: cfg.MaxPageSize})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Str("cache", cfg.CacheDriver).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("API stopped")
}

func openStore(ctx context.Context, cfg shared.Config) domain.Store {
	switch cfg.StoreDriver {
	case "memory":
		st := memory.New()
		seedMemory(ctx, st, cfg.SeedFile)
		return st
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		return mysqlstore.New(db)
	}
	log.Fatal().Str("driver", cfg.StoreDriver).Msg("unknown STORE_DRIVER")
	return nil
}

// seedMemory loads the seed file into a fresh in-memory store. A missing file
// leaves the store empty; bad records are logged and skipped.
func seedMemory(ctx context.Context, st *memory.Store, path string) {
	records, err := app.LoadSeedFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("file", path).Msg("seed file not found, in-memory store starts empty")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("read seed file failed")
	}
	n, err := app.NewSeedService(st, nil).SeedRecords(ctx, records)
	if err != nil {
		log.Warn().Err(err).Msg("some seed records were skipped")
	}
	log.Info().Str("file", path).Int("cities", n).Msg("using in-memory store")
}

// openCache returns nil when caching is disabled; the query service reads
// straight from the store then.
func openCache(ctx context.Context, cfg shared.Config) domain.Cache {
	switch cfg.CacheDriver {
	case "none", "":
		return nil
	case "memory":
		return localcache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	case "redis":
		c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := c.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, caching disabled")
			return nil
		}
		return c
	}
	log.Fatal().Str("driver", cfg.CacheDriver).Msg("unknown CACHE_DRIVER")
	return nil
}

func openNotifier(cfg shared.Config) domain.Notifier {
	if cfg.NotifyWebhookURL == "" {
		return notify.Log{L: log.Logger, From: cfg.MailFrom, To: cfg.MailTo}
	}
	wh, err := notify.NewWebhook(cfg.NotifyWebhookURL, cfg.MailFrom, cfg.MailTo, cfg.NotifyRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize webhook notifier")
	}
	return wh
}
