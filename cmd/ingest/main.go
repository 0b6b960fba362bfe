package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"feedmaster/internal/atproto/appview"
	"feedmaster/internal/atproto/contrails"
	"feedmaster/internal/config"
	"feedmaster/internal/core/feeds"
	"feedmaster/internal/core/profiles"
	"feedmaster/internal/core/users"
	"feedmaster/internal/db/migrations"
	"feedmaster/internal/db/postgres"
	"feedmaster/internal/health"
)

// Feed generator metadata is synced at startup and re-synced on this cadence.
const metadataSyncInterval = 24 * time.Hour

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

	if err := migrations.Up(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Println("Migrations completed successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health.Serve(ctx, cfg.HealthAddr, db)

	userRepo := postgres.NewUserRepository(db)
	postRepo := postgres.NewPostRepository(db)
	feedRepo := postgres.NewFeedRepository(db)

	appviewClient := appview.NewClient(cfg.Bluesky.APIBaseURL)
	userService := users.NewService(userRepo, cfg.Profiles.StaleAfter)
	feedService := feeds.NewService(feedRepo, appviewClient)

	configured, err := feeds.LoadFile(cfg.ConfigDir)
	if err != nil {
		log.Fatal("Failed to load feed configuration:", err)
	}
	if err := feedService.Seed(ctx, configured); err != nil {
		log.Fatal("Failed to seed feeds:", err)
	}
	if synced, err := feedService.SyncMetadata(ctx); err != nil {
		log.Println("Feed metadata sync failed:", err)
	} else {
		log.Printf("Synced Bluesky metadata for %d feeds", synced)
	}

	resolver := profiles.NewResolver(appviewClient, userService)
	batcher := contrails.NewBatcher(postRepo, userService, resolver, cfg.Ingestion.BatchSize, cfg.Ingestion.BatchInterval)
	consumer := contrails.NewConsumer(batcher)

	streamable, err := feedService.Streamable(ctx)
	if err != nil {
		log.Fatal("Failed to list streamable feeds:", err)
	}
	if len(streamable) == 0 {
		log.Println("No streamable feeds configured; nothing to ingest")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		batcher.Start(ctx)
	}()

	for _, feed := range streamable {
		wg.Add(1)
		go func(id, url string) {
			defer wg.Done()
			if err := contrails.NewConnector(consumer, id, url).Start(ctx); err != nil {
				log.Printf("Connector for feed %s stopped: %v", id, err)
			}
		}(feed.ID, feed.StreamURL())
		log.Printf("Streaming feed %s", feed.ID)
	}

	scheduler := profiles.NewScheduler(userRepo, resolver, cfg.Profiles.RefreshCheckInterval, cfg.Profiles.ProminentRefreshInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(metadataSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if synced, err := feedService.SyncMetadata(ctx); err != nil {
					log.Println("Feed metadata sync failed:", err)
				} else {
					log.Printf("Synced Bluesky metadata for %d feeds", synced)
				}
			}
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down, draining pending posts")
	wg.Wait()
}
