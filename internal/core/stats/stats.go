package stats

import "time"

// Stat names referenced by achievement criteria. Each maps onto a UserStats
// counter except StatFeedCount, which only exists as a global aggregate (the
// number of stats rows a user has).
const (
	StatPostCount            = "post_count"
	StatTotalLikesReceived   = "total_likes_received"
	StatTotalRepostsReceived = "total_reposts_received"
	StatTotalRepliesReceived = "total_replies_received"
	StatTotalQuotesReceived  = "total_quotes_received"
	StatImagePostCount       = "image_post_count"
	StatVideoPostCount       = "video_post_count"
	StatMaxPostEngagement    = "max_post_engagement"
	StatFeedCount            = "feed_count"
)

// UserStats accumulates one author's activity within one feed. Rows are keyed
// by (user_did, feed_id) and maintained incrementally by the stats worker.
type UserStats struct {
	UserDID              string    `json:"userDid" db:"user_did"`
	FeedID               string    `json:"feedId" db:"feed_id"`
	PostCount            int64     `json:"postCount" db:"post_count"`
	TotalLikesReceived   int64     `json:"totalLikesReceived" db:"total_likes_received"`
	TotalRepostsReceived int64     `json:"totalRepostsReceived" db:"total_reposts_received"`
	TotalRepliesReceived int64     `json:"totalRepliesReceived" db:"total_replies_received"`
	TotalQuotesReceived  int64     `json:"totalQuotesReceived" db:"total_quotes_received"`
	ImagePostCount       int64     `json:"imagePostCount" db:"image_post_count"`
	VideoPostCount       int64     `json:"videoPostCount" db:"video_post_count"`
	MaxPostEngagement    int64     `json:"maxPostEngagement" db:"max_post_engagement"`
	FirstPostAt          time.Time `json:"firstPostAt" db:"first_post_at"`
	LatestPostAt         time.Time `json:"latestPostAt" db:"latest_post_at"`
	LastUpdated          time.Time `json:"lastUpdated" db:"last_updated"`
}

// StatValue returns the named counter from this row. The second return is
// false for names the row does not carry, such as StatFeedCount.
func (s *UserStats) StatValue(name string) (int64, bool) {
	switch name {
	case StatPostCount:
		return s.PostCount, true
	case StatTotalLikesReceived:
		return s.TotalLikesReceived, true
	case StatTotalRepostsReceived:
		return s.TotalRepostsReceived, true
	case StatTotalRepliesReceived:
		return s.TotalRepliesReceived, true
	case StatTotalQuotesReceived:
		return s.TotalQuotesReceived, true
	case StatImagePostCount:
		return s.ImagePostCount, true
	case StatVideoPostCount:
		return s.VideoPostCount, true
	case StatMaxPostEngagement:
		return s.MaxPostEngagement, true
	default:
		return 0, false
	}
}
