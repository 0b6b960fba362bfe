package stats

import (
	"context"
	"time"

	"feedmaster/internal/core/users"
)

// FeedEarnerCount is the distinct-earner tally for one per-feed achievement
// within one feed, the numerator of per-feed rarity.
type FeedEarnerCount struct {
	AchievementID int64
	FeedID        string
	Earners       int64
}

// LeaderboardEntry is one user's total achievement score, summed from the
// rarity of every badge they hold.
type LeaderboardEntry struct {
	User  *users.User `json:"user"`
	Score int64       `json:"score"`
}

// Repository is the persistence surface for user stats, achievements, awards
// and rarity.
type Repository interface {
	// ComputeStats aggregates per-(author, feed) stats over feed posts.
	// A nil since covers all history; otherwise only posts created after
	// since contribute, producing partial rows for merge-style upserts.
	ComputeStats(ctx context.Context, since *time.Time) ([]*UserStats, error)

	// UpsertStats writes stats rows in chunks. When incremental is true,
	// counters are added onto existing rows, max_post_engagement takes the
	// greater value and latest_post_at the newer; otherwise existing values
	// are replaced. first_post_at is only ever set on first insert.
	UpsertStats(ctx context.Context, rows []*UserStats, incremental bool) error

	// StatsForUsers returns every stats row belonging to the given DIDs.
	StatsForUsers(ctx context.Context, dids []string) ([]*UserStats, error)

	// StatsForUser returns all of one user's stats rows.
	StatsForUser(ctx context.Context, did string) ([]*UserStats, error)

	// Achievements returns every achievement row, active or not.
	Achievements(ctx context.Context) ([]*Achievement, error)

	// CreateAchievement inserts a new achievement definition.
	CreateAchievement(ctx context.Context, a *Achievement) error

	// Earned returns every award held by the given DIDs.
	Earned(ctx context.Context, dids []string) ([]*UserAchievement, error)

	// Award inserts a batch of new awards. Re-inserting an existing
	// (user, achievement, feed) award is a no-op.
	Award(ctx context.Context, awards []*UserAchievement) error

	// GlobalEarnerCounts returns the distinct-earner count per global
	// achievement id.
	GlobalEarnerCounts(ctx context.Context) (map[int64]int64, error)

	// SetGlobalRarity stores recomputed global rarity on an achievement row.
	SetGlobalRarity(ctx context.Context, achievementID int64, percentage float64, tierName, label string) error

	// PostersPerFeed returns the distinct poster count per feed id, the
	// denominator of per-feed rarity.
	PostersPerFeed(ctx context.Context) (map[string]int64, error)

	// FeedEarnerCounts returns distinct-earner tallies for every per-feed
	// achievement that has been awarded in a feed.
	FeedEarnerCounts(ctx context.Context) ([]*FeedEarnerCount, error)

	// UpsertFeedRarity writes per-feed rarity rows in bulk.
	UpsertFeedRarity(ctx context.Context, rows []*FeedRarity) error

	// GlobalLeaderboard ranks users by total achievement score site-wide.
	GlobalLeaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)

	// FeedLeaderboard ranks users by achievement score within one feed.
	FeedLeaderboard(ctx context.Context, feedID string, limit int) ([]*LeaderboardEntry, error)

	// FeedsWithAwards returns the ids of feeds where at least one per-feed
	// achievement has been earned, ordered by feed name.
	FeedsWithAwards(ctx context.Context) ([]string, error)
}
