package stats

import (
	"encoding/json"
	"time"
)

// AchievementType scopes how an achievement's criteria are evaluated.
type AchievementType string

const (
	// TypeGlobal evaluates against a user's stats aggregated across all feeds.
	TypeGlobal AchievementType = "GLOBAL"
	// TypePerFeed evaluates against each of a user's per-feed stats rows.
	TypePerFeed AchievementType = "PER_FEED"
)

// Aggregation methods for global criteria.
const (
	AggSum   = "sum"
	AggCount = "count"
	AggMax   = "max"
)

// Achievement is one awardable badge. Rows are seeded from the definitions
// registry; edits made afterwards (deactivation, reworded copy) survive
// restarts because seeding never overwrites existing keys.
type Achievement struct {
	ID           int64           `json:"id" db:"id"`
	Key          string          `json:"key" db:"key"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	Icon         *string         `json:"icon,omitempty" db:"icon"`
	Type         AchievementType `json:"type" db:"type"`
	IsRepeatable bool            `json:"isRepeatable" db:"is_repeatable"`
	IsActive     bool            `json:"isActive" db:"is_active"`
	SeriesKey    *string         `json:"seriesKey,omitempty" db:"series_key"`
	Criteria     *Criteria       `json:"criteria,omitempty" db:"criteria"`

	// Rarity across the whole user base, refreshed on a slow cadence.
	// Per-feed achievements keep these as a fallback; their authoritative
	// rarity lives in FeedRarity rows.
	RarityPercentage float64 `json:"rarityPercentage" db:"rarity_percentage"`
	RarityTier       *string `json:"rarityTier,omitempty" db:"rarity_tier"`
	RarityLabel      *string `json:"rarityLabel,omitempty" db:"rarity_label"`
}

// UserAchievement records one award. FeedID is nil for global achievements.
type UserAchievement struct {
	ID            int64           `json:"id" db:"id"`
	UserDID       string          `json:"userDid" db:"user_did"`
	AchievementID int64           `json:"achievementId" db:"achievement_id"`
	FeedID        *string         `json:"feedId,omitempty" db:"feed_id"`
	EarnedAt      time.Time       `json:"earnedAt" db:"earned_at"`
	Context       json.RawMessage `json:"context,omitempty" db:"context"`
}

// FeedRarity is the per-feed rarity of a per-feed achievement, computed
// against the distinct posters of that feed rather than the whole user base.
type FeedRarity struct {
	AchievementID    int64     `json:"achievementId" db:"achievement_id"`
	FeedID           string    `json:"feedId" db:"feed_id"`
	RarityPercentage float64   `json:"rarityPercentage" db:"rarity_percentage"`
	RarityTier       string    `json:"rarityTier" db:"rarity_tier"`
	RarityLabel      string    `json:"rarityLabel" db:"rarity_label"`
	LastUpdated      time.Time `json:"lastUpdated" db:"last_updated"`
}

// InProgress is a partially completed achievement for one user, surfaced so
// the read API can show progress bars. FeedID is nil for global achievements.
type InProgress struct {
	Achievement        *Achievement `json:"achievement"`
	FeedID             *string      `json:"feedId,omitempty"`
	CurrentValue       int64        `json:"currentValue"`
	RequiredValue      int64        `json:"requiredValue"`
	ProgressPercentage float64      `json:"progressPercentage"`
}
