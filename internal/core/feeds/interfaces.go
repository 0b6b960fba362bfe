package feeds

import (
	"context"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
)

// Repository defines data access for feeds
type Repository interface {
	// GetByID returns a feed by its ID, or ErrFeedNotFound
	GetByID(ctx context.Context, id string) (*Feed, error)

	// GetAll returns every configured feed ordered by display_order
	GetAll(ctx context.Context) ([]*Feed, error)

	// GetActive returns active feeds ordered by display_order
	GetActive(ctx context.Context) ([]*Feed, error)

	// Upsert inserts the feed or refreshes its configured fields (name,
	// description, contrails_websocket_url, bluesky_at_uri, tier,
	// display_order). Columns synced from Bluesky and the is_active flag
	// are left untouched so reseeding never clobbers them.
	Upsert(ctx context.Context, feed *Feed) error

	// UpdateBlueskyMetadata writes the Bluesky-synced columns: name,
	// avatar_url, like_count, bluesky_description, last_bluesky_sync.
	UpdateBlueskyMetadata(ctx context.Context, feed *Feed) error

	// SetLastAggregatedAt records when the aggregation worker last
	// completed a pass over the feed.
	SetLastAggregatedAt(ctx context.Context, id string, at time.Time) error
}

// GeneratorFetcher fetches feed generator records from the Bluesky AppView.
type GeneratorFetcher interface {
	GetFeedGenerator(ctx context.Context, atURI string) (*bsky.FeedDefs_GeneratorView, error)
}

// Service defines business operations for feeds
type Service interface {
	GetByID(ctx context.Context, id string) (*Feed, error)
	GetAll(ctx context.Context) ([]*Feed, error)

	// Streamable returns the feeds that can open a Contrails stream
	Streamable(ctx context.Context) ([]*Feed, error)

	// Seed creates or refreshes feeds from static configuration. Existing
	// rows keep their Bluesky-synced metadata.
	Seed(ctx context.Context, configured []*Feed) error

	// SyncMetadata refreshes generator metadata for every feed with an
	// AT URI and returns how many synced successfully.
	SyncMetadata(ctx context.Context) (int, error)
}
