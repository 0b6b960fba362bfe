package aggregates

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Canonical aggregation names. These are part of the public read contract and
// double as the keys the scheduler stores results under.
const (
	TopPosts             = "top_posts"
	TopImages            = "top_images"
	TopVideos            = "top_videos"
	TopHashtags          = "top_hashtags"
	TopLinks             = "top_links"
	TopDomains           = "top_domains"
	TopLinkCards         = "top_link_cards"
	TopNewsLinkCards     = "top_news_link_cards"
	TopCities            = "top_cities"
	TopRegions           = "top_regions"
	TopCountries         = "top_countries"
	TopUsers             = "top_users"
	TopPostersByCount    = "top_posters_by_count"
	TopMentions          = "top_mentions"
	FirstTimePosters     = "first_time_posters"
	LongestPosterStreaks = "longest_poster_streaks"
	ActivePosterStreaks  = "active_poster_streaks"
)

// resultLimit caps every aggregation payload.
const resultLimit = 50

// Aggregate is one computed aggregation payload for a feed and timeframe.
type Aggregate struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	FeedID    string          `json:"feedId" db:"feed_id"`
	Name      string          `json:"name" db:"agg_name"`
	Timeframe Timeframe       `json:"timeframe" db:"timeframe"`
	Data      json.RawMessage `json:"data" db:"data_json"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}
