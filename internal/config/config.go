package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-driven setting shared by the workers.
// File-based configuration (feeds.json, polling_config.json) is owned by the
// packages that consume it.
type Config struct {
	// ConfigDir is the directory holding feeds.json and polling_config.json
	ConfigDir string

	// HealthAddr is the listen address for the liveness endpoint.
	// Empty disables it.
	HealthAddr string

	Database    DatabaseConfig
	Redis       RedisConfig
	Bluesky     BlueskyConfig
	Ingestion   IngestionConfig
	Polling     PollingConfig
	Stats       StatsConfig
	Aggregation AggregationConfig
	Profiles    ProfileConfig
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds cache settings. An empty URL disables caching.
type RedisConfig struct {
	URL string
}

// BlueskyConfig holds AppView API settings and engagement score weights
type BlueskyConfig struct {
	APIBaseURL   string
	LikeWeight   int64
	RepostWeight int64
	ReplyWeight  int64
}

// IngestionConfig holds Contrails ingestion settings
type IngestionConfig struct {
	BatchSize     int
	BatchInterval time.Duration
}

// PollingConfig holds engagement polling worker settings
type PollingConfig struct {
	LoopInterval time.Duration
	BatchLimit   int
}

// StatsConfig holds the stats and achievement worker settings
type StatsConfig struct {
	Interval       time.Duration
	RarityInterval time.Duration
}

// AggregationConfig holds the aggregation worker settings
type AggregationConfig struct {
	LoopInterval    time.Duration
	DefaultInterval time.Duration
}

// ProfileConfig holds the profile refresh scheduler settings
type ProfileConfig struct {
	ProminentRefreshInterval time.Duration
	RefreshCheckInterval     time.Duration
	StaleAfter               time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ConfigDir:  getEnv("CONFIG_DIR", "config"),
		HealthAddr: os.Getenv("HEALTH_ADDR"),
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Bluesky: BlueskyConfig{
			APIBaseURL:   getEnv("BLUESKY_API_BASE_URL", "https://public.api.bsky.app"),
			LikeWeight:   int64(getEnvAsInt("LIKE_WEIGHT", 1)),
			RepostWeight: int64(getEnvAsInt("REPOST_WEIGHT", 2)),
			ReplyWeight:  int64(getEnvAsInt("REPLY_WEIGHT", 3)),
		},
		Ingestion: IngestionConfig{
			BatchSize:     getEnvAsInt("BATCH_SIZE", 100),
			BatchInterval: time.Duration(getEnvAsInt("BATCH_INTERVAL_SECONDS", 5)) * time.Second,
		},
		Polling: PollingConfig{
			LoopInterval: time.Duration(getEnvAsInt("POLLING_WORKER_LOOP_INTERVAL_SECONDS", 30)) * time.Second,
			BatchLimit:   getEnvAsInt("POLLING_WORKER_BATCH_LIMIT", 200),
		},
		Stats: StatsConfig{
			Interval:       time.Duration(getEnvAsInt("STATS_WORKER_INTERVAL_MINUTES", 15)) * time.Minute,
			RarityInterval: time.Duration(getEnvAsInt("ACHIEVEMENT_RARITY_INTERVAL_HOURS", 24)) * time.Hour,
		},
		Aggregation: AggregationConfig{
			LoopInterval:    time.Duration(getEnvAsInt("WORKER_POLLING_INTERVAL_SECONDS", 300)) * time.Second,
			DefaultInterval: time.Duration(getEnvAsInt("AGGREGATION_INTERVAL_MINUTES", 5)) * time.Minute,
		},
		Profiles: ProfileConfig{
			ProminentRefreshInterval: time.Duration(getEnvAsInt("PROMINENT_DID_REFRESH_INTERVAL_MINUTES", 30)) * time.Minute,
			RefreshCheckInterval:     time.Duration(getEnvAsInt("DID_REFRESH_CHECK_INTERVAL_SECONDS", 60)) * time.Second,
			StaleAfter:               time.Duration(getEnvAsInt("PROFILE_STALE_HOURS", 24)) * time.Hour,
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
