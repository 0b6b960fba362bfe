package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"feedmaster/internal/cache"
	"feedmaster/internal/config"
	"feedmaster/internal/core/aggregates"
	"feedmaster/internal/core/posts"
	"feedmaster/internal/db/postgres"
	"feedmaster/internal/health"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health.Serve(ctx, cfg.HealthAddr, db)

	var payloadCache aggregates.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Println("Redis unavailable, aggregating without cache:", err)
		} else {
			defer redisCache.Close()
			payloadCache = redisCache
		}
	}

	aggregateRepo := postgres.NewAggregateRepository(db)
	weights := posts.Weights{
		Like:   cfg.Bluesky.LikeWeight,
		Repost: cfg.Bluesky.RepostWeight,
		Reply:  cfg.Bluesky.ReplyWeight,
	}

	svc := aggregates.NewService(
		aggregateRepo,
		aggregates.NewGeoFile(cfg.ConfigDir),
		aggregates.NewNewsFile(cfg.ConfigDir),
		weights,
	)

	worker := aggregates.NewWorker(
		svc,
		aggregateRepo,
		postgres.NewFeedRepository(db),
		postgres.NewUserRepository(db),
		payloadCache,
		cfg.Aggregation.LoopInterval,
		cfg.Aggregation.DefaultInterval,
	)

	log.Println("Aggregation worker started")
	worker.Start(ctx)
	log.Println("Aggregation worker stopped")
}
