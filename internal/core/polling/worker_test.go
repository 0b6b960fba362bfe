package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/stretchr/testify/mock"

	"feedmaster/internal/core/posts"
)

type mockPostRepo struct {
	mock.Mock
}

func (m *mockPostRepo) GetByURI(ctx context.Context, uri string) (*posts.Post, error) {
	args := m.Called(ctx, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*posts.Post), args.Error(1)
}

func (m *mockPostRepo) UpsertBatch(ctx context.Context, batch []*posts.Post) ([]*posts.Post, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*posts.Post), args.Error(1)
}

func (m *mockPostRepo) LinkToFeeds(ctx context.Context, links []*posts.FeedPost) error {
	args := m.Called(ctx, links)
	return args.Error(0)
}

func (m *mockPostRepo) DueForPoll(ctx context.Context, now time.Time, limit int) ([]*posts.Post, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*posts.Post), args.Error(1)
}

func (m *mockPostRepo) ApplyEngagement(ctx context.Context, updates []*posts.EngagementUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) GetPosts(ctx context.Context, uris []string) (map[string]*bsky.FeedDefs_PostView, error) {
	args := m.Called(ctx, uris)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*bsky.FeedDefs_PostView), args.Error(1)
}

type fixedSchedule struct {
	cfg *Config
}

func (f fixedSchedule) Current() *Config { return f.cfg }

func int64p(v int64) *int64 { return &v }

func TestWorker_CycleUpdatesAndReschedules(t *testing.T) {
	repo := new(mockPostRepo)
	fetcher := new(mockFetcher)
	worker := NewWorker(repo, fetcher, fixedSchedule{Default()}, posts.DefaultWeights, time.Second, 200)

	// A twelve hour old post lands in the first tier (2h interval).
	due := []*posts.Post{
		{URI: "at://did:plc:a/app.bsky.feed.post/1", CreatedAt: time.Now().UTC().Add(-12 * time.Hour)},
	}
	repo.On("DueForPoll", mock.Anything, mock.Anything, 200).Return(due, nil)
	fetcher.On("GetPosts", mock.Anything, []string{due[0].URI}).Return(map[string]*bsky.FeedDefs_PostView{
		due[0].URI: {
			Uri:         due[0].URI,
			LikeCount:   int64p(10),
			RepostCount: int64p(4),
			ReplyCount:  int64p(2),
			QuoteCount:  int64p(99),
		},
	}, nil)
	repo.On("ApplyEngagement", mock.Anything, mock.Anything).Return(nil)

	worker.runCycle(context.Background())

	repo.AssertCalled(t, "ApplyEngagement", mock.Anything, mock.MatchedBy(func(updates []*posts.EngagementUpdate) bool {
		if len(updates) != 1 {
			return false
		}
		u := updates[0]
		// 10 likes + 4 reposts + 2 replies = 10 + 8 + 6 = 24.
		return u.URI == due[0].URI &&
			u.LikeCount == 10 && u.RepostCount == 4 && u.ReplyCount == 2 &&
			u.EngagementScore == 24 &&
			u.IsActiveForPolling && u.NextPollAt != nil
	}))
}

func TestWorker_MissingPostRetiredWithCountsPreserved(t *testing.T) {
	repo := new(mockPostRepo)
	fetcher := new(mockFetcher)
	worker := NewWorker(repo, fetcher, fixedSchedule{Default()}, posts.DefaultWeights, time.Second, 200)

	due := []*posts.Post{
		{
			URI:             "at://did:plc:a/app.bsky.feed.post/gone",
			CreatedAt:       time.Now().UTC().Add(-2 * time.Hour),
			LikeCount:       7,
			RepostCount:     1,
			ReplyCount:      3,
			EngagementScore: 18,
		},
	}
	repo.On("DueForPoll", mock.Anything, mock.Anything, 200).Return(due, nil)
	fetcher.On("GetPosts", mock.Anything, mock.Anything).Return(map[string]*bsky.FeedDefs_PostView{}, nil)
	repo.On("ApplyEngagement", mock.Anything, mock.Anything).Return(nil)

	worker.runCycle(context.Background())

	repo.AssertCalled(t, "ApplyEngagement", mock.Anything, mock.MatchedBy(func(updates []*posts.EngagementUpdate) bool {
		if len(updates) != 1 {
			return false
		}
		u := updates[0]
		return !u.IsActiveForPolling && u.NextPollAt == nil &&
			u.LikeCount == 7 && u.RepostCount == 1 && u.ReplyCount == 3 &&
			u.EngagementScore == 18
	}))
}

func TestWorker_RetiresLowScorersAtCheckpoint(t *testing.T) {
	repo := new(mockPostRepo)
	fetcher := new(mockFetcher)
	worker := NewWorker(repo, fetcher, fixedSchedule{Default()}, posts.DefaultWeights, time.Second, 200)

	// 45 minutes old with zero engagement: the 30 minute rule applies.
	due := []*posts.Post{
		{URI: "at://did:plc:a/app.bsky.feed.post/quiet", CreatedAt: time.Now().UTC().Add(-45 * time.Minute)},
	}
	repo.On("DueForPoll", mock.Anything, mock.Anything, 200).Return(due, nil)
	fetcher.On("GetPosts", mock.Anything, mock.Anything).Return(map[string]*bsky.FeedDefs_PostView{
		due[0].URI: {Uri: due[0].URI},
	}, nil)
	repo.On("ApplyEngagement", mock.Anything, mock.Anything).Return(nil)

	worker.runCycle(context.Background())

	repo.AssertCalled(t, "ApplyEngagement", mock.Anything, mock.MatchedBy(func(updates []*posts.EngagementUpdate) bool {
		return len(updates) == 1 && !updates[0].IsActiveForPolling && updates[0].NextPollAt == nil
	}))
}

func TestWorker_FetchErrorSkipsChunk(t *testing.T) {
	repo := new(mockPostRepo)
	fetcher := new(mockFetcher)
	worker := NewWorker(repo, fetcher, fixedSchedule{Default()}, posts.DefaultWeights, time.Second, 200)

	due := []*posts.Post{
		{URI: "at://did:plc:a/app.bsky.feed.post/1", CreatedAt: time.Now().UTC().Add(-time.Hour)},
	}
	repo.On("DueForPoll", mock.Anything, mock.Anything, 200).Return(due, nil)
	fetcher.On("GetPosts", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 502"))

	worker.runCycle(context.Background())

	// The posts stay due for the next cycle instead of being retired.
	repo.AssertNotCalled(t, "ApplyEngagement", mock.Anything, mock.Anything)
}

func TestWorker_ChunksLargeBatches(t *testing.T) {
	repo := new(mockPostRepo)
	fetcher := new(mockFetcher)
	worker := NewWorker(repo, fetcher, fixedSchedule{Default()}, posts.DefaultWeights, time.Second, 200)

	due := make([]*posts.Post, 30)
	for i := range due {
		due[i] = &posts.Post{
			URI:       "at://did:plc:a/app.bsky.feed.post/" + string(rune('a'+i)),
			CreatedAt: time.Now().UTC().Add(-12 * time.Hour),
		}
	}
	repo.On("DueForPoll", mock.Anything, mock.Anything, 200).Return(due, nil)
	fetcher.On("GetPosts", mock.Anything, mock.MatchedBy(func(uris []string) bool {
		return len(uris) == apiBatchSize || len(uris) == 5
	})).Return(map[string]*bsky.FeedDefs_PostView{}, nil).Twice()
	repo.On("ApplyEngagement", mock.Anything, mock.MatchedBy(func(updates []*posts.EngagementUpdate) bool {
		return len(updates) == 30
	})).Return(nil)

	worker.runCycle(context.Background())

	fetcher.AssertNumberOfCalls(t, "GetPosts", 2)
	repo.AssertExpectations(t)
}

func TestWorker_EmptyCycleDoesNothing(t *testing.T) {
	repo := new(mockPostRepo)
	fetcher := new(mockFetcher)
	worker := NewWorker(repo, fetcher, fixedSchedule{Default()}, posts.DefaultWeights, time.Second, 200)

	repo.On("DueForPoll", mock.Anything, mock.Anything, 200).Return([]*posts.Post{}, nil)

	worker.runCycle(context.Background())

	fetcher.AssertNotCalled(t, "GetPosts", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "ApplyEngagement", mock.Anything, mock.Anything)
}
