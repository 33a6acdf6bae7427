package main

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"cityinfo/internal/adapters/observability"
	redisad "cityinfo/internal/adapters/redis"
	"cityinfo/internal/app"
	"cityinfo/internal/domain"
	"cityinfo/internal/shared"
	mysqlstore "cityinfo/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	observability.SetGlobal(observability.NewLogger(cfg.AppEnv, cfg.LogLevel))

	log.Info().
		Str("file", cfg.SeedFile).
		Int("workers", cfg.SeedWorkers).
		Msg("seeder starting")

	records, err := app.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		log.Fatal().Err(err).Msg("read seed file failed")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	var cache domain.Cache
	if cfg.CacheDriver == "redis" {
		c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := c.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, cached cities will expire by TTL")
		} else {
			cache = c
		}
	}

	seeder := app.NewSeedService(mysqlstore.New(db), cache)
	failed := seedAll(ctx, seeder, records, cfg.SeedWorkers)

	log.Info().Int("records", len(records)).Int64("failed", failed).Msg("seeding completed")
	if failed > 0 {
		os.Exit(1)
	}
}

type citySeeder interface {
	SeedCity(ctx context.Context, raw map[string]any) (domain.City, error)
}

// seedAll upserts records with at most workers in flight and returns the
// number of failures. Cities own disjoint points of interest, so order
// between workers does not matter.
func seedAll(ctx context.Context, s citySeeder, records []map[string]any, workers int) int64 {
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)

	for i, raw := range records {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Error().Err(err).Msg("semaphore acquire failed")
			failed.Add(int64(len(records) - i))
			break
		}

		wg.Add(1)
		go func(idx int, raw map[string]any) {
			defer wg.Done()
			defer sem.Release(1)

			c, err := s.SeedCity(ctx, raw)
			observability.ObserveSeed(err)
			if err != nil {
				failed.Add(1)
				log.Warn().Int("record", idx+1).Err(err).Msg("seed failed")
				return
			}
			log.Info().Int64("id", c.ID).Int("points_of_interest", len(c.PointsOfInterest)).Msg("seed ok")
		}(i, raw)
	}

	wg.Wait()
	return failed.Load()
}
