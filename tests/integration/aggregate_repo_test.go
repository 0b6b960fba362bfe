package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmaster/internal/core/aggregates"
	"feedmaster/internal/core/posts"
	"feedmaster/internal/db/postgres"
)

var testWeights = posts.Weights{Like: 1, Repost: 2, Reply: 3}

// seedFeedPosts stores a batch of posts, links every stored row to the feed
// and returns the stored rows in input order.
func seedFeedPosts(t *testing.T, repo posts.Repository, feedID string, batch []*posts.Post) []*posts.Post {
	t.Helper()
	ctx := context.Background()

	stored, err := repo.UpsertBatch(ctx, batch)
	require.NoError(t, err)

	links := make([]*posts.FeedPost, 0, len(stored))
	for _, p := range stored {
		links = append(links, &posts.FeedPost{PostID: p.ID, FeedID: feedID, IngestedAt: time.Now().UTC()})
	}
	require.NoError(t, repo.LinkToFeeds(ctx, links))
	return stored
}

func TestAggregateScoredPosts(t *testing.T) {
	db := setupTestDB(t)
	postRepo := postgres.NewPostRepository(db)
	repo := postgres.NewAggregateRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	now := time.Now().UTC()
	low := testPost("did:plc:author1", now.Add(-time.Hour))
	low.LikeCount = 2 // score 2
	high := testPost("did:plc:author1", now.Add(-time.Hour))
	high.LikeCount = 1
	high.RepostCount = 1
	high.ReplyCount = 2 // score 1 + 2 + 6 = 9
	seedFeedPosts(t, postRepo, "feed-a", []*posts.Post{low, high})

	scored, err := repo.ScoredPosts(ctx, "feed-a", nil, testWeights, aggregates.MediaAny, 10)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, high.URI, scored[0].Post.URI, "Highest weighted score ranks first")
	assert.Equal(t, int64(9), scored[0].Score)
	assert.Equal(t, int64(2), scored[1].Score)
	assert.Equal(t, "author1.bsky.social", scored[0].AuthorHandle)
}

func TestAggregateScoredPostsWindowAndMedia(t *testing.T) {
	db := setupTestDB(t)
	postRepo := postgres.NewPostRepository(db)
	repo := postgres.NewAggregateRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	now := time.Now().UTC()
	withImage := testPost("did:plc:author1", now.Add(-time.Hour))
	withImage.HasImage = true
	plain := testPost("did:plc:author1", now.Add(-time.Hour))
	stored := seedFeedPosts(t, postRepo, "feed-a", []*posts.Post{withImage, plain})

	// Push one link outside the window.
	_, err := db.Exec(`UPDATE feed_posts SET ingested_at = NOW() - INTERVAL '2 days' WHERE post_id = $1`, stored[1].ID)
	require.NoError(t, err)

	since := now.Add(-24 * time.Hour)
	scored, err := repo.ScoredPosts(ctx, "feed-a", &since, testWeights, aggregates.MediaAny, 10)
	require.NoError(t, err)
	require.Len(t, scored, 1, "Window filters on feed ingestion time")
	assert.Equal(t, withImage.URI, scored[0].Post.URI)

	images, err := repo.ScoredPosts(ctx, "feed-a", nil, testWeights, aggregates.MediaImages, 10)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, withImage.URI, images[0].Post.URI)
}

func TestAggregateHashtagCounts(t *testing.T) {
	db := setupTestDB(t)
	postRepo := postgres.NewPostRepository(db)
	repo := postgres.NewAggregateRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	now := time.Now().UTC()
	p1 := testPost("did:plc:author1", now)
	p1.Hashtags = []string{"GoLang", "bluesky"}
	p2 := testPost("did:plc:author1", now)
	p2.Hashtags = []string{"golang"}
	seedFeedPosts(t, postRepo, "feed-a", []*posts.Post{p1, p2})

	counts, err := repo.HashtagCounts(ctx, "feed-a", nil, 10)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "golang", counts[0].Hashtag, "Tags fold to lowercase before counting")
	assert.Equal(t, int64(2), counts[0].Count)
	assert.Equal(t, "bluesky", counts[1].Hashtag)
}

func TestAggregateFirstTimePosters(t *testing.T) {
	db := setupTestDB(t)
	postRepo := postgres.NewPostRepository(db)
	repo := postgres.NewAggregateRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:veteran", "veteran.bsky.social")
	seedUser(t, db, "did:plc:newbie", "newbie.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	now := time.Now().UTC()
	old := testPost("did:plc:veteran", now.Add(-48*time.Hour))
	recentVeteran := testPost("did:plc:veteran", now)
	fresh := testPost("did:plc:newbie", now)
	stored := seedFeedPosts(t, postRepo, "feed-a", []*posts.Post{old, recentVeteran, fresh})

	_, err := db.Exec(`UPDATE feed_posts SET ingested_at = NOW() - INTERVAL '2 days' WHERE post_id = $1`, stored[0].ID)
	require.NoError(t, err)

	since := now.Add(-24 * time.Hour)
	first, err := repo.FirstTimePosters(ctx, "feed-a", &since, 10)
	require.NoError(t, err)
	require.Len(t, first, 1, "A veteran posting again is not a first-time poster")
	assert.Equal(t, "did:plc:newbie", first[0].DID)
}

func TestAggregateStreaksCountIngestionDays(t *testing.T) {
	db := setupTestDB(t)
	postRepo := postgres.NewPostRepository(db)
	repo := postgres.NewAggregateRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:steady", "steady.bsky.social")
	seedUser(t, db, "did:plc:gappy", "gappy.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")

	// Every record claims the same week-old created_at; only the feed's
	// ingestion days differ. Streaks must follow the latter.
	claimed := time.Now().UTC().Add(-7 * 24 * time.Hour)
	steady := seedFeedPosts(t, postRepo, "feed-a", []*posts.Post{
		testPost("did:plc:steady", claimed),
		testPost("did:plc:steady", claimed),
		testPost("did:plc:steady", claimed),
	})
	gappy := seedFeedPosts(t, postRepo, "feed-a", []*posts.Post{
		testPost("did:plc:gappy", claimed),
		testPost("did:plc:gappy", claimed),
	})

	for i, p := range steady {
		_, err := db.Exec(`UPDATE feed_posts SET ingested_at = NOW() - make_interval(days => $1) WHERE post_id = $2`, 2-i, p.ID)
		require.NoError(t, err)
	}
	for i, p := range gappy {
		_, err := db.Exec(`UPDATE feed_posts SET ingested_at = NOW() - make_interval(days => $1) WHERE post_id = $2`, 5-2*i, p.ID)
		require.NoError(t, err)
	}

	longest, err := repo.LongestStreaks(ctx, "feed-a", 10)
	require.NoError(t, err)
	require.Len(t, longest, 2)
	assert.Equal(t, "did:plc:steady", longest[0].DID)
	assert.Equal(t, int64(3), longest[0].Length, "Three consecutive ingestion days make a 3-day streak")
	assert.Equal(t, int64(1), longest[1].Length, "Backdated created_at cannot bridge an ingestion gap")

	active, err := repo.ActiveStreaks(ctx, "feed-a", 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "did:plc:steady", active[0].DID)
	assert.Equal(t, int64(3), active[0].Length)
}

func TestAggregateUpsertIsIdempotentPerKey(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewAggregateRepository(db)
	ctx := context.Background()

	seedFeed(t, db, "feed-a", "Feed A")

	last, err := repo.LastUpdated(ctx, "feed-a", "top_posts", aggregates.Timeframe1Day)
	require.NoError(t, err)
	assert.Nil(t, last, "Missing aggregates have no timestamp")

	agg := &aggregates.Aggregate{
		FeedID:    "feed-a",
		Name:      "top_posts",
		Timeframe: aggregates.Timeframe1Day,
		Data:      json.RawMessage(`{"posts":[]}`),
	}
	require.NoError(t, repo.Upsert(ctx, agg))
	require.NoError(t, repo.Upsert(ctx, &aggregates.Aggregate{
		FeedID:    "feed-a",
		Name:      "top_posts",
		Timeframe: aggregates.Timeframe1Day,
		Data:      json.RawMessage(`{"posts":[1]}`),
	}))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM aggregates`).Scan(&count))
	assert.Equal(t, 1, count, "Same key overwrites in place")

	got, err := repo.Get(ctx, "feed-a", "top_posts", aggregates.Timeframe1Day)
	require.NoError(t, err)
	assert.JSONEq(t, `{"posts":[1]}`, string(got.Data))

	last, err = repo.LastUpdated(ctx, "feed-a", "top_posts", aggregates.Timeframe1Day)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, time.Now().UTC(), *last, 5*time.Second)

	_, err = repo.Get(ctx, "feed-a", "top_posts", aggregates.Timeframe1Hour)
	assert.ErrorIs(t, err, aggregates.ErrAggregateNotFound)
}
