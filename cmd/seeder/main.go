package main

import (
	"context"
	"database/sql"
	"math/rand"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"friendly_eats/internal/adapters/observability"
	redisad "friendly_eats/internal/adapters/redis"
	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
	"friendly_eats/internal/shared"
	mysqlstore "friendly_eats/internal/storage/mysql"
)

// reviews of one restaurant are submitted concurrently to exercise the rating transaction
const reviewsInFlight = 4

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "seeder")

	log.Info().
		Int("restaurants", cfg.SeedCount).
		Int("workers", cfg.SeedWorkers).
		Int("reviews", cfg.SeedReviews).
		Msg("seeder starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")
	if err := mysqlstore.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// with redis, open listings refresh and cached restaurants are invalidated while seeding
	var (
		feed  domain.ChangeFeed
		cache domain.Cache
	)
	if rc, err := redisad.Connect(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB); err != nil {
		log.Warn().Err(err).Msg("redis unavailable; seeding without change feed")
	} else {
		defer rc.Close()
		feed, cache = redisad.NewFeed(rc), redisad.NewCache(rc)
	}

	store := mysqlstore.New(db, feed, mysqlstore.WithRetry(
		shared.WithMaxAttempts(cfg.TxnMaxAttempts),
		shared.OnConflict(func(attempt int, err error) {
			log.Debug().Int("attempt", attempt).Err(err).Msg("review transaction conflict; retrying")
		}),
	))
	cmd := app.NewCommandService(store, cache)

	data := app.SampleData(rand.New(rand.NewSource(time.Now().UnixNano())), cfg.SeedCount, cfg.SeedReviews)
	sem := semaphore.NewWeighted(int64(cfg.SeedWorkers))
	var wg sync.WaitGroup

	for _, sample := range data {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(s app.SampleRestaurant) {
			defer wg.Done()
			defer sem.Release(int64(1))

			r, err := cmd.CreateRestaurant(ctx, s.Restaurant)
			if err != nil {
				log.Warn().Str("name", s.Restaurant.Name).Err(err).Msg("create restaurant failed")
				return
			}

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(reviewsInFlight)
			for _, in := range s.Reviews {
				in := in
				g.Go(func() error {
					_, err := cmd.AddReview(gctx, r.ID, in)
					return err
				})
			}
			if err := g.Wait(); err != nil {
				log.Warn().Str("id", r.ID).Err(err).Msg("seed reviews failed")
				return
			}
			log.Info().Str("id", r.ID).Str("name", r.Name).Int("reviews", len(s.Reviews)).Msg("seed ok")
		}(sample)
	}

	wg.Wait()
	log.Info().Msg("seeding completed")
}
