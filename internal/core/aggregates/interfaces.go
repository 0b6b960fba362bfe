package aggregates

import (
	"context"
	"time"

	"feedmaster/internal/core/posts"
)

// MediaFilter narrows post queries to a media capability flag.
type MediaFilter int

const (
	MediaAny MediaFilter = iota
	MediaImages
	MediaVideos
)

// ScoredPost is one post hydrated with author display fields and an
// engagement score recomputed from the raw counters, so weight changes take
// effect without backfilling the stored score column.
type ScoredPost struct {
	Post              *posts.Post
	AuthorHandle      string
	AuthorDisplayName *string
	AuthorAvatarURL   *string
	Score             int64
}

// AuthorPostScore is one post's score attributed to its author, the input to
// drop-lowest user ranking.
type AuthorPostScore struct {
	DID         string
	Handle      string
	DisplayName *string
	AvatarURL   *string
	Score       int64
}

// AuthorCount is an author with a distinct-post count.
type AuthorCount struct {
	DID         string
	Handle      string
	DisplayName *string
	AvatarURL   *string
	Count       int64
}

// FirstPoster is an author and the first time one of their posts entered the
// feed.
type FirstPoster struct {
	DID         string
	Handle      string
	DisplayName *string
	AvatarURL   *string
	FirstPostAt time.Time
}

// AuthorStreak is an author's consecutive-day posting run.
type AuthorStreak struct {
	DID         string
	Handle      string
	DisplayName *string
	AvatarURL   *string
	Length      int64
}

// HashtagCount is a lowercased hashtag with a distinct-post count.
type HashtagCount struct {
	Hashtag string
	Count   int64
}

// LinkCount is a shared link URI with its share count.
type LinkCount struct {
	URI   string
	Count int64
}

// LinkCardRow is one post's link card fields. URI is the post's AT URI.
type LinkCardRow struct {
	URI             string
	LinkURL         *string
	LinkTitle       *string
	LinkDescription *string
	ThumbnailURL    *string
	Count           int64
}

// Repository defines data access for aggregates: the windowed queries behind
// the aggregation functions plus storage of their results.
//
// A nil since means no lower bound (the allTime window); otherwise rows are
// filtered on feed_posts.ingested_at >= since. List queries order by their
// headline metric descending, breaking ties newest first.
type Repository interface {
	// ScoredPosts returns up to limit posts with author info, ordered by
	// engagement score then created_at descending.
	ScoredPosts(ctx context.Context, feedID string, since *time.Time, weights posts.Weights, media MediaFilter, limit int) ([]*ScoredPost, error)

	// AuthorPostScores returns one row per post in the window with the
	// author's display fields, unordered.
	AuthorPostScores(ctx context.Context, feedID string, since *time.Time, weights posts.Weights) ([]*AuthorPostScore, error)

	// PosterCounts returns authors ranked by distinct posts in the window.
	PosterCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*AuthorCount, error)

	// MentionCounts returns indexed users ranked by the distinct posts that
	// mention them. Mentions of unindexed DIDs are not counted.
	MentionCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*AuthorCount, error)

	// FirstTimePosters returns users whose first post in the feed falls
	// inside the window, most recent first.
	FirstTimePosters(ctx context.Context, feedID string, since *time.Time, limit int) ([]*FirstPoster, error)

	// LongestStreaks returns each author's longest consecutive-day posting
	// streak, longest first. Single-day streaks are included; callers filter.
	LongestStreaks(ctx context.Context, feedID string, limit int) ([]*AuthorStreak, error)

	// ActiveStreaks returns streaks whose last day is today or yesterday.
	ActiveStreaks(ctx context.Context, feedID string, limit int) ([]*AuthorStreak, error)

	// HashtagCounts returns lowercased hashtags by distinct-post count.
	HashtagCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*HashtagCount, error)

	// LinkCounts returns shared link URIs by total shares.
	LinkCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*LinkCount, error)

	// LinkURIs returns every link URI shared in the window, one element per
	// occurrence.
	LinkURIs(ctx context.Context, feedID string, since *time.Time) ([]string, error)

	// LinkCards returns posts carrying a link card. requireTitle drops cards
	// without a title; a non-empty domains list keeps only link URLs
	// containing one of the given fragments.
	LinkCards(ctx context.Context, feedID string, since *time.Time, domains []string, requireTitle bool, limit int) ([]*LinkCardRow, error)

	// HashtagLists returns each post's hashtag array, one element per post
	// with at least one hashtag.
	HashtagLists(ctx context.Context, feedID string, since *time.Time) ([][]string, error)

	// Get returns a stored aggregate or ErrAggregateNotFound.
	Get(ctx context.Context, feedID, name string, tf Timeframe) (*Aggregate, error)

	// GetForFeed returns every stored aggregate for the feed and timeframe.
	GetForFeed(ctx context.Context, feedID string, tf Timeframe) ([]*Aggregate, error)

	// LastUpdated returns when the aggregate was last computed, or nil if it
	// has never been stored.
	LastUpdated(ctx context.Context, feedID, name string, tf Timeframe) (*time.Time, error)

	// Upsert stores a payload, replacing any previous one under the same
	// (feed, name, timeframe) key.
	Upsert(ctx context.Context, agg *Aggregate) error
}
