package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// defaultLeaderboardLimit caps leaderboard queries when callers pass no limit.
const defaultLeaderboardLimit = 100

// Service evaluates achievements against user stats and serves achievement
// read paths.
type Service interface {
	// AwardAchievements checks every active achievement against the stats
	// of the given users and inserts the awards they newly qualify for.
	// Returns the number of awards granted.
	AwardAchievements(ctx context.Context, dids []string) (int, error)

	// InProgress lists the achievements a user has partial progress toward,
	// sorted by completion descending.
	InProgress(ctx context.Context, did string) ([]*InProgress, error)

	// GlobalLeaderboard ranks users by total achievement score site-wide.
	GlobalLeaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)

	// FeedLeaderboard ranks users by achievement score within one feed.
	FeedLeaderboard(ctx context.Context, feedID string, limit int) ([]*LeaderboardEntry, error)

	// FeedsWithAwards lists feeds where at least one achievement has been
	// earned, so clients know which feed leaderboards exist.
	FeedsWithAwards(ctx context.Context) ([]string, error)
}

type service struct {
	repo Repository
}

// NewService creates an achievement service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// awardKey identifies one earned (user, achievement, feed) combination.
// Global awards use an empty feed id.
type awardKey struct {
	did           string
	achievementID int64
	feedID        string
}

func earnedKey(ua *UserAchievement) awardKey {
	key := awardKey{did: ua.UserDID, achievementID: ua.AchievementID}
	if ua.FeedID != nil {
		key.feedID = *ua.FeedID
	}
	return key
}

func (s *service) AwardAchievements(ctx context.Context, dids []string) (int, error) {
	if len(dids) == 0 {
		return 0, nil
	}

	achievements, err := s.repo.Achievements(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load achievements: %w", err)
	}
	var perFeed, global []*Achievement
	for _, a := range achievements {
		if !a.IsActive {
			continue
		}
		switch a.Type {
		case TypePerFeed:
			perFeed = append(perFeed, a)
		case TypeGlobal:
			global = append(global, a)
		}
	}
	if len(perFeed) == 0 && len(global) == 0 {
		return 0, nil
	}

	rows, err := s.repo.StatsForUsers(ctx, dids)
	if err != nil {
		return 0, fmt.Errorf("failed to load user stats: %w", err)
	}
	statsByUser := make(map[string][]*UserStats)
	for _, row := range rows {
		statsByUser[row.UserDID] = append(statsByUser[row.UserDID], row)
	}

	existing, err := s.repo.Earned(ctx, dids)
	if err != nil {
		return 0, fmt.Errorf("failed to load earned achievements: %w", err)
	}
	earned := make(map[awardKey]bool, len(existing))
	for _, ua := range existing {
		earned[earnedKey(ua)] = true
	}

	now := time.Now().UTC()
	var awards []*UserAchievement

	for _, did := range dids {
		userRows := statsByUser[did]
		if len(userRows) == 0 {
			continue
		}

		for _, row := range userRows {
			for _, a := range perFeed {
				key := awardKey{did: did, achievementID: a.ID, feedID: row.FeedID}
				if earned[key] || !a.Criteria.Valid() {
					continue
				}
				value, ok := a.Criteria.PerFeedValue(row)
				if !ok || !a.Criteria.Met(value) {
					continue
				}
				feedID := row.FeedID
				awards = append(awards, &UserAchievement{
					UserDID:       did,
					AchievementID: a.ID,
					FeedID:        &feedID,
					EarnedAt:      now,
				})
				earned[key] = true
			}
		}

		for _, a := range global {
			key := awardKey{did: did, achievementID: a.ID}
			if earned[key] || !a.Criteria.Valid() {
				continue
			}
			value, ok := a.Criteria.GlobalValue(userRows)
			if !ok || !a.Criteria.Met(value) {
				continue
			}
			awards = append(awards, &UserAchievement{
				UserDID:       did,
				AchievementID: a.ID,
				EarnedAt:      now,
			})
			earned[key] = true
		}
	}

	if len(awards) == 0 {
		return 0, nil
	}
	if err := s.repo.Award(ctx, awards); err != nil {
		return 0, fmt.Errorf("failed to store awards: %w", err)
	}
	slog.Info("Awarded achievements", "count", len(awards), "users", len(dids))
	return len(awards), nil
}

func (s *service) InProgress(ctx context.Context, did string) ([]*InProgress, error) {
	achievements, err := s.repo.Achievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load achievements: %w", err)
	}
	rows, err := s.repo.StatsForUser(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}
	existing, err := s.repo.Earned(ctx, []string{did})
	if err != nil {
		return nil, fmt.Errorf("failed to load earned achievements: %w", err)
	}
	earned := make(map[awardKey]bool, len(existing))
	for _, ua := range existing {
		earned[earnedKey(ua)] = true
	}

	var out []*InProgress
	for _, a := range achievements {
		if !a.IsActive || !a.Criteria.Valid() || a.Criteria.Value <= 0 {
			continue
		}
		required := a.Criteria.Value

		switch a.Type {
		case TypePerFeed:
			for _, row := range rows {
				if earned[awardKey{did: did, achievementID: a.ID, feedID: row.FeedID}] {
					continue
				}
				current, ok := a.Criteria.PerFeedValue(row)
				if !ok || current <= 0 || current >= required {
					continue
				}
				feedID := row.FeedID
				out = append(out, &InProgress{
					Achievement:        a,
					FeedID:             &feedID,
					CurrentValue:       current,
					RequiredValue:      required,
					ProgressPercentage: progressPercentage(current, required),
				})
			}
		case TypeGlobal:
			if earned[awardKey{did: did, achievementID: a.ID}] {
				continue
			}
			current, ok := a.Criteria.GlobalValue(rows)
			if !ok || current <= 0 || current >= required {
				continue
			}
			out = append(out, &InProgress{
				Achievement:        a,
				CurrentValue:       current,
				RequiredValue:      required,
				ProgressPercentage: progressPercentage(current, required),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProgressPercentage > out[j].ProgressPercentage
	})
	return out, nil
}

func progressPercentage(current, required int64) float64 {
	return math.Min(float64(current)/float64(required)*100, 100)
}

func (s *service) GlobalLeaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	entries, err := s.repo.GlobalLeaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load global leaderboard: %w", err)
	}
	return entries, nil
}

func (s *service) FeedLeaderboard(ctx context.Context, feedID string, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	entries, err := s.repo.FeedLeaderboard(ctx, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed leaderboard: %w", err)
	}
	return entries, nil
}

func (s *service) FeedsWithAwards(ctx context.Context) ([]string, error) {
	ids, err := s.repo.FeedsWithAwards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds with awards: %w", err)
	}
	return ids, nil
}
