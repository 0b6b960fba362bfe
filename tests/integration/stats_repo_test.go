package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmaster/internal/core/posts"
	"feedmaster/internal/core/stats"
	"feedmaster/internal/db/postgres"
)

func TestStatsComputeAndUpsert(t *testing.T) {
	db := setupTestDB(t)
	postRepo := postgres.NewPostRepository(db)
	repo := postgres.NewStatsRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	now := time.Now().UTC()
	p1 := testPost("did:plc:author1", now.Add(-2*time.Hour))
	p1.LikeCount = 5
	p1.HasImage = true
	p1.EngagementScore = 5
	p2 := testPost("did:plc:author1", now.Add(-time.Hour))
	p2.LikeCount = 3
	p2.ReplyCount = 1
	p2.EngagementScore = 6
	seedFeedPosts(t, postRepo, "feed-a", []*posts.Post{p1, p2})

	rows, err := repo.ComputeStats(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "did:plc:author1", row.UserDID)
	assert.Equal(t, "feed-a", row.FeedID)
	assert.Equal(t, int64(2), row.PostCount)
	assert.Equal(t, int64(8), row.TotalLikesReceived)
	assert.Equal(t, int64(1), row.TotalRepliesReceived)
	assert.Equal(t, int64(1), row.ImagePostCount)
	assert.Equal(t, int64(6), row.MaxPostEngagement)

	require.NoError(t, repo.UpsertStats(ctx, rows, false))

	saved, err := repo.StatsForUser(ctx, "did:plc:author1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, int64(2), saved[0].PostCount)
}

func TestStatsIncrementalUpsertMerges(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewStatsRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	now := time.Now().UTC()
	base := &stats.UserStats{
		UserDID:            "did:plc:author1",
		FeedID:             "feed-a",
		PostCount:          10,
		TotalLikesReceived: 100,
		MaxPostEngagement:  40,
		FirstPostAt:        now.Add(-72 * time.Hour),
		LatestPostAt:       now.Add(-24 * time.Hour),
	}
	require.NoError(t, repo.UpsertStats(ctx, []*stats.UserStats{base}, false))

	// A delta covering only the last cycle's posts.
	delta := &stats.UserStats{
		UserDID:            "did:plc:author1",
		FeedID:             "feed-a",
		PostCount:          2,
		TotalLikesReceived: 15,
		MaxPostEngagement:  25,
		FirstPostAt:        now.Add(-time.Hour),
		LatestPostAt:       now,
	}
	require.NoError(t, repo.UpsertStats(ctx, []*stats.UserStats{delta}, true))

	saved, err := repo.StatsForUser(ctx, "did:plc:author1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	got := saved[0]
	assert.Equal(t, int64(12), got.PostCount, "Counters add in incremental mode")
	assert.Equal(t, int64(115), got.TotalLikesReceived)
	assert.Equal(t, int64(40), got.MaxPostEngagement, "Max keeps the historical peak")
	assert.WithinDuration(t, base.FirstPostAt, got.FirstPostAt, time.Second, "First post never moves forward")
	assert.WithinDuration(t, delta.LatestPostAt, got.LatestPostAt, time.Second)
}

func seedAchievement(t *testing.T, repo stats.Repository, key string, typ stats.AchievementType) *stats.Achievement {
	t.Helper()

	a := &stats.Achievement{
		Key:         key,
		Name:        key,
		Description: "test achievement",
		Type:        typ,
		IsActive:    true,
	}
	require.NoError(t, repo.CreateAchievement(context.Background(), a))
	require.NotZero(t, a.ID)
	return a
}

func TestAwardDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewStatsRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	global := seedAchievement(t, repo, "first_post", stats.TypeGlobal)
	perFeed := seedAchievement(t, repo, "feed_regular", stats.TypePerFeed)

	feedA := "feed-a"
	awards := []*stats.UserAchievement{
		{UserDID: "did:plc:author1", AchievementID: global.ID},
		{UserDID: "did:plc:author1", AchievementID: perFeed.ID, FeedID: &feedA},
	}
	require.NoError(t, repo.Award(ctx, awards))
	// The worker re-evaluates every cycle; awarding again is a no-op.
	require.NoError(t, repo.Award(ctx, awards))

	earned, err := repo.Earned(ctx, []string{"did:plc:author1"})
	require.NoError(t, err)
	assert.Len(t, earned, 2)

	counts, err := repo.GlobalEarnerCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[global.ID])
}

func TestGlobalLeaderboardScoresByRarity(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewStatsRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:rare", "rare.bsky.social")
	seedUser(t, db, "did:plc:common", "common.bsky.social")

	legendary := seedAchievement(t, repo, "legendary_badge", stats.TypeGlobal)
	common := seedAchievement(t, repo, "common_badge", stats.TypeGlobal)
	require.NoError(t, repo.SetGlobalRarity(ctx, legendary.ID, 0.05, "legendary", "Top 0.1% of all users"))
	require.NoError(t, repo.SetGlobalRarity(ctx, common.ID, 80, "common", "Earned by most users"))

	require.NoError(t, repo.Award(ctx, []*stats.UserAchievement{
		{UserDID: "did:plc:rare", AchievementID: legendary.ID},
		{UserDID: "did:plc:common", AchievementID: common.ID},
	}))

	board, err := repo.GlobalLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "did:plc:rare", board[0].User.DID)
	assert.Equal(t, int64(1000), board[0].Score, "rarity at 0.05 percent scores 1000 points")
	assert.Equal(t, int64(10), board[1].Score, "Common badges fall to the floor score")
}

func TestFeedRarityRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewStatsRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	perFeed := seedAchievement(t, repo, "feed_regular", stats.TypePerFeed)
	feedA := "feed-a"
	require.NoError(t, repo.Award(ctx, []*stats.UserAchievement{
		{UserDID: "did:plc:author1", AchievementID: perFeed.ID, FeedID: &feedA},
	}))

	withAwards, err := repo.FeedsWithAwards(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"feed-a"}, withAwards)

	earners, err := repo.FeedEarnerCounts(ctx)
	require.NoError(t, err)
	require.Len(t, earners, 1)
	assert.Equal(t, perFeed.ID, earners[0].AchievementID)
	assert.Equal(t, "feed-a", earners[0].FeedID)
	assert.Equal(t, int64(1), earners[0].Earners)

	require.NoError(t, repo.UpsertFeedRarity(ctx, []*stats.FeedRarity{{
		AchievementID:    perFeed.ID,
		FeedID:           "feed-a",
		RarityPercentage: 12.5,
		RarityTier:       "rare",
		RarityLabel:      "Top 25% of feed posters",
	}}))

	board, err := repo.FeedLeaderboard(ctx, "feed-a", 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "did:plc:author1", board[0].User.DID)
	assert.Equal(t, int64(50), board[0].Score, "per-feed rarity at 12.5 percent scores 50 points")
}
