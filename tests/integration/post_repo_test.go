package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmaster/internal/core/posts"
	"feedmaster/internal/db/postgres"
)

func TestPostUpsertDeduplicatesByCID(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")

	p := testPost("did:plc:author1", time.Now().UTC().Add(-time.Hour))
	stored, err := repo.UpsertBatch(ctx, []*posts.Post{p})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	firstID := stored[0].ID

	// Same CID seen again, now with engagement counters attached.
	again := *p
	again.LikeCount = 7
	again.ReplyCount = 2
	again.IngestedAt = p.IngestedAt.Add(time.Minute)
	stored, err = repo.UpsertBatch(ctx, []*posts.Post{&again})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, firstID, stored[0].ID, "Re-ingesting a CID must not create a new row")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count))
	assert.Equal(t, 1, count)

	got, err := repo.GetByURI(ctx, p.URI)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.LikeCount)
	assert.Equal(t, int64(2), got.ReplyCount)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Second, "created_at keeps the first write")
	assert.WithinDuration(t, again.IngestedAt, got.IngestedAt, time.Second, "ingested_at follows the replay")
	assert.False(t, got.IngestedAt.IsZero())
}

func TestPostLinkToFeedsIsIdempotentPerFeed(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")
	seedFeed(t, db, "feed-a", "Feed A")
	seedFeed(t, db, "feed-b", "Feed B")

	stored, err := repo.UpsertBatch(ctx, []*posts.Post{testPost("did:plc:author1", time.Now().UTC())})
	require.NoError(t, err)
	postID := stored[0].ID

	links := []*posts.FeedPost{
		{PostID: postID, FeedID: "feed-a", IngestedAt: time.Now().UTC()},
		{PostID: postID, FeedID: "feed-b", IngestedAt: time.Now().UTC()},
	}
	require.NoError(t, repo.LinkToFeeds(ctx, links))
	// A second delivery of the same stream events must not duplicate links.
	require.NoError(t, repo.LinkToFeeds(ctx, links))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM feed_posts WHERE post_id = $1`, postID).Scan(&count))
	assert.Equal(t, 2, count, "One link per feed regardless of redelivery")
}

func TestPostDueForPollOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")

	now := time.Now().UTC()
	overdue := testPost("did:plc:author1", now.Add(-3*time.Hour))
	early := now.Add(-2 * time.Hour)
	overdue.NextPollAt = &early

	dueSoon := testPost("did:plc:author1", now.Add(-2*time.Hour))
	soon := now.Add(-time.Minute)
	dueSoon.NextPollAt = &soon

	notYet := testPost("did:plc:author1", now)
	later := now.Add(time.Hour)
	notYet.NextPollAt = &later

	_, err := repo.UpsertBatch(ctx, []*posts.Post{overdue, dueSoon, notYet})
	require.NoError(t, err)

	due, err := repo.DueForPoll(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, overdue.URI, due[0].URI, "Most overdue post polls first")
	assert.Equal(t, dueSoon.URI, due[1].URI)

	limited, err := repo.DueForPoll(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, overdue.URI, limited[0].URI)
}

func TestPostApplyEngagementRetiresPosts(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostRepository(db)
	ctx := context.Background()

	seedUser(t, db, "did:plc:author1", "author1.bsky.social")

	now := time.Now().UTC()
	p := testPost("did:plc:author1", now.Add(-time.Hour))
	_, err := repo.UpsertBatch(ctx, []*posts.Post{p})
	require.NoError(t, err)

	next := now.Add(30 * time.Minute)
	require.NoError(t, repo.ApplyEngagement(ctx, []*posts.EngagementUpdate{{
		URI:                p.URI,
		LikeCount:          10,
		RepostCount:        3,
		ReplyCount:         1,
		EngagementScore:    19,
		IsActiveForPolling: true,
		NextPollAt:         &next,
	}}))

	got, err := repo.GetByURI(ctx, p.URI)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.LikeCount)
	assert.True(t, got.IsActiveForPolling)
	require.NotNil(t, got.NextPollAt)
	assert.WithinDuration(t, next, *got.NextPollAt, time.Second)

	// Retirement clears the schedule entirely.
	require.NoError(t, repo.ApplyEngagement(ctx, []*posts.EngagementUpdate{{
		URI:                p.URI,
		LikeCount:          11,
		RepostCount:        3,
		ReplyCount:         1,
		EngagementScore:    20,
		IsActiveForPolling: false,
		NextPollAt:         nil,
	}}))

	got, err = repo.GetByURI(ctx, p.URI)
	require.NoError(t, err)
	assert.False(t, got.IsActiveForPolling)
	assert.Nil(t, got.NextPollAt, "Retired posts carry no next poll time")

	due, err := repo.DueForPoll(ctx, now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestPostGetByURINotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewPostRepository(db)

	_, err := repo.GetByURI(context.Background(), "at://did:plc:nobody/app.bsky.feed.post/404")
	assert.ErrorIs(t, err, posts.ErrPostNotFound)
}
