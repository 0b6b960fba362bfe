package aggregates

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"feedmaster/internal/core/posts"
)

func TestService_TopPosts_HydratesCards(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rows := []*ScoredPost{
		{
			Post: &posts.Post{
				URI:                 "at://did:plc:alice/app.bsky.feed.post/3k1",
				CID:                 "bafyalice",
				AuthorDID:           "did:plc:alice",
				Text:                "big launch day",
				CreatedAt:           createdAt,
				LikeCount:           10,
				RepostCount:         4,
				ReplyCount:          2,
				QuoteCount:          1,
				QuotedPostAuthorDID: strp("did:plc:carol"),
			},
			AuthorHandle:      "alice.bsky.social",
			AuthorDisplayName: strp("Alice"),
			AuthorAvatarURL:   strp("https://cdn.example/alice.jpg"),
			Score:             24,
		},
		{
			Post: &posts.Post{
				URI:       "at://did:plc:bob/app.bsky.feed.post/3k2",
				CID:       "bafybob",
				AuthorDID: "did:plc:bob",
				Text:      "second place",
				CreatedAt: createdAt,
			},
			AuthorHandle: "bob.bsky.social",
			Score:        7,
		},
	}

	repo := new(mockRepository)
	repo.On("ScoredPosts", mock.Anything, "tech", mock.Anything, posts.DefaultWeights, MediaAny, resultLimit).Return(rows, nil)
	svc := NewService(repo, fixedGeoSource{GeoMap{}}, fixedNewsSource{}, posts.DefaultWeights)

	res, err := svc.Compute(context.Background(), "tech", TopPosts, Timeframe1Day)
	require.NoError(t, err)

	env, ok := res.Payload.(postsEnvelope)
	require.True(t, ok)
	require.Len(t, env.Top, 2)

	first := env.Top[0]
	assert.Equal(t, "post_card", first.Type)
	assert.Equal(t, "Alice", first.Author)
	assert.Equal(t, "https://cdn.example/alice.jpg", first.Avatar)
	assert.Equal(t, int64(24), first.EngagementScore)
	assert.Equal(t, "2026-03-14T09:30:00Z", first.CreatedAt)
	assert.Equal(t, "https://bsky.app/profile/alice.bsky.social/post/3k1", first.PostURL)

	// No display name falls back to the handle; no avatar becomes empty.
	second := env.Top[1]
	assert.Equal(t, "bob.bsky.social", second.Author)
	assert.Equal(t, "", second.Avatar)

	// Quoted authors count as surfaced alongside the post authors.
	assert.Equal(t, []string{"did:plc:alice", "did:plc:carol", "did:plc:bob"}, res.Prominent)
}

func TestService_TopPosts_AnonymousAuthorIsUnknown(t *testing.T) {
	rows := []*ScoredPost{
		{
			Post: &posts.Post{
				URI:       "at://did:plc:ghost/app.bsky.feed.post/3k9",
				AuthorDID: "did:plc:ghost",
				CreatedAt: time.Now().UTC(),
			},
			Score: 1,
		},
	}

	repo := new(mockRepository)
	repo.On("ScoredPosts", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	svc := NewService(repo, fixedGeoSource{GeoMap{}}, fixedNewsSource{}, posts.DefaultWeights)

	res, err := svc.Compute(context.Background(), "tech", TopPosts, Timeframe1Hour)
	require.NoError(t, err)

	env := res.Payload.(postsEnvelope)
	require.Len(t, env.Top, 1)
	assert.Equal(t, "Unknown", env.Top[0].Author)
}

func TestService_TopImagesAndVideos_PassMediaFilter(t *testing.T) {
	repo := new(mockRepository)
	repo.On("ScoredPosts", mock.Anything, "tech", mock.Anything, mock.Anything, MediaImages, resultLimit).Return([]*ScoredPost{}, nil).Once()
	repo.On("ScoredPosts", mock.Anything, "tech", mock.Anything, mock.Anything, MediaVideos, resultLimit).Return([]*ScoredPost{}, nil).Once()
	svc := NewService(repo, fixedGeoSource{GeoMap{}}, fixedNewsSource{}, posts.DefaultWeights)

	_, err := svc.Compute(context.Background(), "tech", TopImages, Timeframe1Hour)
	require.NoError(t, err)
	_, err = svc.Compute(context.Background(), "tech", TopVideos, Timeframe1Hour)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}

func TestService_TopVideos_DerivesMissingThumbnail(t *testing.T) {
	raw := json.RawMessage(`{
		"$type": "app.bsky.feed.post",
		"text": "clip",
		"createdAt": "2026-03-14T09:30:00Z",
		"embed": {
			"$type": "app.bsky.embed.video",
			"video": {"$type": "blob", "ref": {"$link": "bafkreivid"}, "mimeType": "video/mp4"}
		}
	}`)
	rows := []*ScoredPost{
		{
			Post: &posts.Post{
				URI:       "at://did:plc:vid/app.bsky.feed.post/3v1",
				AuthorDID: "did:plc:vid",
				CreatedAt: time.Now().UTC(),
				HasVideo:  true,
				RawRecord: raw,
			},
			AuthorHandle: "vid.bsky.social",
			Score:        3,
		},
	}

	repo := new(mockRepository)
	repo.On("ScoredPosts", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	svc := NewService(repo, fixedGeoSource{GeoMap{}}, fixedNewsSource{}, posts.DefaultWeights)

	res, err := svc.Compute(context.Background(), "tech", TopVideos, TimeframeAllTime)
	require.NoError(t, err)

	env := res.Payload.(postsEnvelope)
	require.Len(t, env.Top, 1)
	require.NotNil(t, env.Top[0].ThumbnailURL)
	assert.Equal(t, "https://video.cdn.bsky.app/hls/did:plc:vid/bafkreivid/thumbnail.jpg", *env.Top[0].ThumbnailURL)
}

func TestService_TopPosts_StoredThumbnailWins(t *testing.T) {
	rows := []*ScoredPost{
		{
			Post: &posts.Post{
				URI:          "at://did:plc:vid/app.bsky.feed.post/3v2",
				AuthorDID:    "did:plc:vid",
				CreatedAt:    time.Now().UTC(),
				HasVideo:     true,
				ThumbnailURL: strp("https://cdn.example/stored.jpg"),
				RawRecord:    json.RawMessage(`{"$type":"app.bsky.feed.post"}`),
			},
			AuthorHandle: "vid.bsky.social",
		},
	}

	repo := new(mockRepository)
	repo.On("ScoredPosts", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	svc := NewService(repo, fixedGeoSource{GeoMap{}}, fixedNewsSource{}, posts.DefaultWeights)

	res, err := svc.Compute(context.Background(), "tech", TopPosts, Timeframe1Hour)
	require.NoError(t, err)

	env := res.Payload.(postsEnvelope)
	require.NotNil(t, env.Top[0].ThumbnailURL)
	assert.Equal(t, "https://cdn.example/stored.jpg", *env.Top[0].ThumbnailURL)
}
