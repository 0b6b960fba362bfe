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

	"feedmaster/internal/atproto/appview"
	"feedmaster/internal/config"
	"feedmaster/internal/core/polling"
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

	weights := posts.Weights{
		Like:   cfg.Bluesky.LikeWeight,
		Repost: cfg.Bluesky.RepostWeight,
		Reply:  cfg.Bluesky.ReplyWeight,
	}

	worker := polling.NewWorker(
		postgres.NewPostRepository(db),
		appview.NewClient(cfg.Bluesky.APIBaseURL),
		polling.NewFile(cfg.ConfigDir),
		weights,
		cfg.Polling.LoopInterval,
		cfg.Polling.BatchLimit,
	)

	log.Println("Engagement polling worker started")
	worker.Start(ctx)
	log.Println("Engagement polling worker stopped")
}
