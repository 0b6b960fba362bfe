package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/feedmaster_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "config", cfg.ConfigDir)
	assert.Equal(t, "https://public.api.bsky.app", cfg.Bluesky.APIBaseURL)
	assert.Equal(t, int64(1), cfg.Bluesky.LikeWeight)
	assert.Equal(t, int64(2), cfg.Bluesky.RepostWeight)
	assert.Equal(t, int64(3), cfg.Bluesky.ReplyWeight)
	assert.Equal(t, 100, cfg.Ingestion.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Ingestion.BatchInterval)
	assert.Equal(t, 30*time.Second, cfg.Polling.LoopInterval)
	assert.Equal(t, 200, cfg.Polling.BatchLimit)
	assert.Equal(t, 15*time.Minute, cfg.Stats.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Stats.RarityInterval)
	assert.Equal(t, 30*time.Minute, cfg.Profiles.ProminentRefreshInterval)
	assert.Equal(t, 60*time.Second, cfg.Profiles.RefreshCheckInterval)
	assert.Equal(t, 24*time.Hour, cfg.Profiles.StaleAfter)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.HealthAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/feedmaster_test")
	t.Setenv("REPLY_WEIGHT", "5")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("POLLING_WORKER_LOOP_INTERVAL_SECONDS", "10")
	t.Setenv("STATS_WORKER_INTERVAL_MINUTES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(5), cfg.Bluesky.ReplyWeight)
	assert.Equal(t, 250, cfg.Ingestion.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Polling.LoopInterval)
	// Unparseable values fall back to the default.
	assert.Equal(t, 15*time.Minute, cfg.Stats.Interval)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
