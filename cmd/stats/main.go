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

	"feedmaster/internal/config"
	"feedmaster/internal/core/stats"
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

	statsRepo := postgres.NewStatsRepository(db)
	worker := stats.NewWorker(
		statsRepo,
		stats.NewService(statsRepo),
		postgres.NewUserRepository(db),
		cfg.Stats.Interval,
		cfg.Stats.RarityInterval,
	)

	log.Println("Stats worker started")
	worker.Start(ctx)
	log.Println("Stats worker stopped")
}
