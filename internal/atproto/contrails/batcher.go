package contrails

import (
	"context"
	"log/slog"
	"time"

	"feedmaster/internal/core/posts"
)

const (
	// queueCapacity bounds the in-flight event queue. A full queue drops the
	// incoming event rather than blocking the stream read loops.
	queueCapacity = 1024

	// drainTimeout bounds the final flush during shutdown.
	drainTimeout = 10 * time.Second

	// defaultRelevance is the feed membership score stamped on ingested posts.
	defaultRelevance = 1.0
)

// PostStore persists flushed post batches and their feed links.
// posts.Repository satisfies it.
type PostStore interface {
	UpsertBatch(ctx context.Context, batch []*posts.Post) ([]*posts.Post, error)
	LinkToFeeds(ctx context.Context, links []*posts.FeedPost) error
}

// AuthorDirectory keeps user rows in step with the authors arriving on the
// stream. users.Service satisfies it.
type AuthorDirectory interface {
	EnsureAuthors(ctx context.Context, dids []string) error
	StaleAuthors(ctx context.Context, dids []string) ([]string, error)
}

// AuthorResolver refreshes author profiles from the AppView.
// *profiles.Resolver satisfies it.
type AuthorResolver interface {
	Resolve(ctx context.Context, dids []string) (int, error)
}

// queuedPost is one parsed post together with the feed whose stream carried it.
type queuedPost struct {
	post   *posts.Post
	feedID string
}

// pendingPost is one de-duplicated post with every feed that matched it in
// the current batch.
type pendingPost struct {
	post  *posts.Post
	feeds []string
	seen  map[string]bool
}

// Batcher collects parsed posts from every feed stream and flushes them to
// storage in batches, either when the batch fills or after the queue sits
// idle for the flush interval.
type Batcher struct {
	store    PostStore
	authors  AuthorDirectory
	resolver AuthorResolver
	queue    chan *queuedPost
	size     int
	interval time.Duration
}

// NewBatcher creates a batcher that flushes batches of size posts, or smaller
// ones once interval passes without a new event.
func NewBatcher(store PostStore, authors AuthorDirectory, resolver AuthorResolver, size int, interval time.Duration) *Batcher {
	return &Batcher{
		store:    store,
		authors:  authors,
		resolver: resolver,
		queue:    make(chan *queuedPost, queueCapacity),
		size:     size,
		interval: interval,
	}
}

// Enqueue queues one post for the next flush without blocking the caller.
func (b *Batcher) Enqueue(post *posts.Post, feedID string) {
	select {
	case b.queue <- &queuedPost{post: post, feedID: feedID}:
	default:
		slog.Warn("Post queue full, dropping event", "feed", feedID, "uri", post.URI)
	}
}

// Start consumes the queue until ctx is canceled, flushing any remaining
// batch on the way out.
func (b *Batcher) Start(ctx context.Context) {
	slog.Info("Starting post batcher", "batchSize", b.size, "flushInterval", b.interval)

	batch := make([]*queuedPost, 0, b.size)
	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
				b.flush(drainCtx, batch)
				cancel()
			}
			slog.Info("Post batcher stopped")
			return
		case item := <-b.queue:
			batch = append(batch, item)
			if len(batch) >= b.size {
				b.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-time.After(b.interval):
			if len(batch) > 0 {
				b.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// flush de-duplicates the batch by CID, settles author rows and writes the
// posts with their feed links. Errors are logged and the batch is dropped.
func (b *Batcher) flush(ctx context.Context, batch []*queuedPost) {
	if len(batch) == 0 {
		return
	}

	pending := make(map[string]*pendingPost, len(batch))
	order := make([]string, 0, len(batch))
	authorSeen := make(map[string]bool)
	authors := make([]string, 0, len(batch))

	for _, item := range batch {
		p, ok := pending[item.post.CID]
		if !ok {
			// The first sighting wins the stored schema; later duplicates
			// only contribute their feed membership.
			p = &pendingPost{post: item.post, seen: make(map[string]bool)}
			pending[item.post.CID] = p
			order = append(order, item.post.CID)
			if !authorSeen[item.post.AuthorDID] {
				authorSeen[item.post.AuthorDID] = true
				authors = append(authors, item.post.AuthorDID)
			}
		}
		if !p.seen[item.feedID] {
			p.seen[item.feedID] = true
			p.feeds = append(p.feeds, item.feedID)
		}
	}

	b.refreshAuthors(ctx, authors)
	if err := b.authors.EnsureAuthors(ctx, authors); err != nil {
		slog.Error("Failed to ensure author rows, dropping batch", "posts", len(order), "error", err)
		return
	}

	rows := make([]*posts.Post, 0, len(order))
	for _, postCID := range order {
		rows = append(rows, pending[postCID].post)
	}
	stored, err := b.store.UpsertBatch(ctx, rows)
	if err != nil {
		slog.Error("Failed to store post batch", "posts", len(rows), "error", err)
		return
	}
	slog.Info("Flushed post batch", "posts", len(rows), "queued", len(batch))

	storedByCID := make(map[string]*posts.Post, len(stored))
	for _, p := range stored {
		storedByCID[p.CID] = p
	}

	now := time.Now().UTC()
	links := make([]*posts.FeedPost, 0, len(batch))
	for _, postCID := range order {
		pend := pending[postCID]
		p := storedByCID[postCID]
		if p == nil {
			slog.Warn("Post missing from stored batch, cannot link to feeds", "cid", postCID, "feeds", pend.feeds)
			continue
		}
		for _, feedID := range pend.feeds {
			links = append(links, &posts.FeedPost{
				PostID:         p.ID,
				FeedID:         feedID,
				RelevanceScore: defaultRelevance,
				IngestedAt:     now,
			})
		}
	}
	if len(links) == 0 {
		return
	}
	if err := b.store.LinkToFeeds(ctx, links); err != nil {
		slog.Error("Failed to link posts to feeds", "links", len(links), "error", err)
	}
}

// refreshAuthors resolves profiles for batch authors whose indexed profile
// has gone stale. Failures are logged and never block the flush.
func (b *Batcher) refreshAuthors(ctx context.Context, dids []string) {
	stale, err := b.authors.StaleAuthors(ctx, dids)
	if err != nil {
		slog.Error("Failed to check for stale authors", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	slog.Info("Refreshing stale authors before flush", "count", len(stale))
	if _, err := b.resolver.Resolve(ctx, stale); err != nil {
		slog.Error("Failed to refresh stale author profiles", "count", len(stale), "error", err)
	}
}
