package polling

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"

	"feedmaster/internal/core/posts"
)

// apiBatchSize caps getPosts batches; the AppView rejects more than 25 URIs.
const apiBatchSize = 25

// batchPause spaces consecutive API batches within one cycle.
const batchPause = time.Second

// PostFetcher hydrates post views from the AppView.
type PostFetcher interface {
	GetPosts(ctx context.Context, uris []string) (map[string]*bsky.FeedDefs_PostView, error)
}

// ScheduleSource supplies the active polling schedule. *File satisfies it.
type ScheduleSource interface {
	Current() *Config
}

// Worker periodically refreshes engagement counts for active posts and
// reschedules or retires them according to the schedule.
type Worker struct {
	repo       posts.Repository
	fetcher    PostFetcher
	schedule   ScheduleSource
	weights    posts.Weights
	interval   time.Duration
	batchLimit int
}

// NewWorker creates an engagement polling worker.
func NewWorker(
	repo posts.Repository,
	fetcher PostFetcher,
	schedule ScheduleSource,
	weights posts.Weights,
	interval time.Duration,
	batchLimit int,
) *Worker {
	return &Worker{
		repo:       repo,
		fetcher:    fetcher,
		schedule:   schedule,
		weights:    weights,
		interval:   interval,
		batchLimit: batchLimit,
	}
}

// Start runs polling cycles until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("Starting engagement polling worker",
		"interval", w.interval,
		"batchLimit", w.batchLimit)

	for {
		w.runCycle(ctx)

		select {
		case <-ctx.Done():
			slog.Info("Engagement polling worker stopped")
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	cfg := w.schedule.Current()
	now := time.Now().UTC()

	due, err := w.repo.DueForPoll(ctx, now, w.batchLimit)
	if err != nil {
		slog.Error("Failed to query posts due for polling", "error", err)
		return
	}
	if len(due) == 0 {
		slog.Info("No posts due for polling in this cycle")
		return
	}
	slog.Info("Polling posts for engagement", "count", len(due))

	updates := make([]*posts.EngagementUpdate, 0, len(due))
	retired := 0

	for start := 0; start < len(due); start += apiBatchSize {
		end := min(start+apiBatchSize, len(due))
		chunk := due[start:end]

		uris := make([]string, len(chunk))
		for i, post := range chunk {
			uris[i] = post.URI
		}

		views, err := w.fetcher.GetPosts(ctx, uris)
		if err != nil {
			// Leave the chunk due so the next cycle retries it.
			slog.Error("Failed to fetch engagement batch", "size", len(uris), "error", err)
			continue
		}

		for _, post := range chunk {
			update := w.evaluate(cfg, post, views[post.URI], now)
			if !update.IsActiveForPolling {
				retired++
			}
			updates = append(updates, update)
		}

		if end < len(due) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(batchPause):
			}
		}
	}

	if len(updates) == 0 {
		return
	}
	if err := w.repo.ApplyEngagement(ctx, updates); err != nil {
		slog.Error("Failed to store engagement updates", "count", len(updates), "error", err)
		return
	}
	slog.Info("Engagement polling cycle complete", "updated", len(updates), "retired", retired)
}

// evaluate builds the engagement update for one post. A nil view means the
// post is gone upstream; it is retired with its last known counts.
func (w *Worker) evaluate(cfg *Config, post *posts.Post, view *bsky.FeedDefs_PostView, now time.Time) *posts.EngagementUpdate {
	update := &posts.EngagementUpdate{URI: post.URI}

	if view == nil {
		slog.Warn("Post missing from API response, retiring", "uri", post.URI)
		update.LikeCount = post.LikeCount
		update.RepostCount = post.RepostCount
		update.ReplyCount = post.ReplyCount
		update.EngagementScore = post.EngagementScore
		return update
	}

	update.LikeCount = int64Value(view.LikeCount)
	update.RepostCount = int64Value(view.RepostCount)
	update.ReplyCount = int64Value(view.ReplyCount)

	score := w.weights.Score(update.LikeCount, update.RepostCount, update.ReplyCount)
	update.EngagementScore = float64(score)

	delay, ok := cfg.NextPollDelay(now.Sub(post.CreatedAt), score)
	if !ok {
		return update
	}

	next := now.Add(delay)
	update.IsActiveForPolling = true
	update.NextPollAt = &next
	return update
}

func int64Value(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
