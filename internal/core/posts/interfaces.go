package posts

import (
	"context"
	"time"
)

// EngagementUpdate carries freshly polled counters for one post along with its
// next scheduled poll. A nil NextPollAt together with a false
// IsActiveForPolling retires the post from the polling pool.
type EngagementUpdate struct {
	URI                string
	LikeCount          int64
	RepostCount        int64
	ReplyCount         int64
	EngagementScore    float64
	IsActiveForPolling bool
	NextPollAt         *time.Time
}

// Repository defines the interface for post data access
type Repository interface {
	// GetByURI retrieves a post by its AT URI.
	// Returns ErrPostNotFound if the post doesn't exist.
	GetByURI(ctx context.Context, uri string) (*Post, error)

	// UpsertBatch inserts or replaces a batch of posts keyed by CID and
	// returns the stored rows with their assigned IDs.
	//
	// Parameters:
	//   - posts: de-duplicated batch (one entry per CID)
	//
	// Returns:
	//   - The stored posts, including rows that already existed. Callers use
	//     the returned IDs to link posts to feeds.
	UpsertBatch(ctx context.Context, posts []*Post) ([]*Post, error)

	// LinkToFeeds records feed membership rows, ignoring duplicates.
	LinkToFeeds(ctx context.Context, links []*FeedPost) error

	// DueForPoll returns up to limit active posts whose next_poll_at has
	// passed, most overdue first.
	DueForPoll(ctx context.Context, now time.Time, limit int) ([]*Post, error)

	// ApplyEngagement writes polled counters and poll scheduling decisions.
	ApplyEngagement(ctx context.Context, updates []*EngagementUpdate) error
}
