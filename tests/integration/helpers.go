package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"feedmaster/internal/core/feeds"
	"feedmaster/internal/core/posts"
	"feedmaster/internal/db/migrations"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// setupTestDB opens the database named by TEST_DATABASE_URL, runs migrations
// once per test binary and truncates every table so each test starts clean.
// Tests are skipped when the variable is unset.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err, "Failed to open test database")
	require.NoError(t, db.Ping(), "Failed to ping test database")

	migrateOnce.Do(func() {
		migrateErr = migrations.Up(db)
	})
	require.NoError(t, migrateErr, "Failed to run migrations")

	_, err = db.Exec(`TRUNCATE users, feeds, posts, feed_posts, aggregates,
		user_stats, achievements, user_achievements, achievement_feed_rarity
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "Failed to truncate tables")

	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser inserts a user row directly for tests that only need the foreign
// key satisfied.
func seedUser(t *testing.T, db *sql.DB, did, handle string) {
	t.Helper()

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (did, handle, created_at, last_updated)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (did) DO NOTHING
	`, did, handle)
	require.NoError(t, err, "Failed to seed user")
}

// seedFeed inserts a minimal active feed row.
func seedFeed(t *testing.T, db *sql.DB, id, name string) *feeds.Feed {
	t.Helper()

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO feeds (id, name, tier, is_active, created_at, updated_at)
		VALUES ($1, $2, 'standard', TRUE, NOW(), NOW())
	`, id, name)
	require.NoError(t, err, "Failed to seed feed")

	return &feeds.Feed{ID: id, Name: name, Tier: "standard", IsActive: true}
}

var postSeq int

// testPost builds a pollable post for the given author with distinct
// URI and CID per call.
func testPost(authorDID string, createdAt time.Time) *posts.Post {
	postSeq++
	next := createdAt.Add(time.Hour)
	return &posts.Post{
		URI:                fmt.Sprintf("at://%s/app.bsky.feed.post/%d", authorDID, postSeq),
		CID:                fmt.Sprintf("bafyreitest%06d", postSeq),
		Text:               fmt.Sprintf("post %d", postSeq),
		CreatedAt:          createdAt,
		IngestedAt:         time.Now().UTC(),
		AuthorDID:          authorDID,
		IsActiveForPolling: true,
		NextPollAt:         &next,
	}
}
