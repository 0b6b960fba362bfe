package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"feedmaster/internal/core/stats"
	"feedmaster/internal/core/users"
)

// statsUpsertChunkSize keeps multi-row upserts under the wire protocol's
// parameter limit.
const statsUpsertChunkSize = 500

type postgresStatsRepo struct {
	db *sql.DB
}

// NewStatsRepository creates a new PostgreSQL stats and achievements repository
func NewStatsRepository(db *sql.DB) stats.Repository {
	return &postgresStatsRepo{db: db}
}

func (r *postgresStatsRepo) ComputeStats(ctx context.Context, since *time.Time) ([]*stats.UserStats, error) {
	query := `
		SELECT p.author_did, fp.feed_id,
			COUNT(DISTINCT p.id) AS post_count,
			COALESCE(SUM(p.like_count), 0),
			COALESCE(SUM(p.repost_count), 0),
			COALESCE(SUM(p.reply_count), 0),
			COALESCE(SUM(p.quote_count), 0),
			COUNT(DISTINCT p.id) FILTER (WHERE p.has_image),
			COUNT(DISTINCT p.id) FILTER (WHERE p.has_video),
			COALESCE(MAX(p.engagement_score)::bigint, 0),
			MIN(p.created_at),
			MAX(p.created_at)
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id`

	var args []any
	if since != nil {
		query += ` WHERE p.created_at > $1`
		args = append(args, *since)
	}
	query += ` GROUP BY p.author_did, fp.feed_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute user stats: %w", err)
	}
	defer rows.Close()

	var result []*stats.UserStats
	for rows.Next() {
		row := &stats.UserStats{}
		err := rows.Scan(
			&row.UserDID, &row.FeedID, &row.PostCount,
			&row.TotalLikesReceived, &row.TotalRepostsReceived,
			&row.TotalRepliesReceived, &row.TotalQuotesReceived,
			&row.ImagePostCount, &row.VideoPostCount, &row.MaxPostEngagement,
			&row.FirstPostAt, &row.LatestPostAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user stats: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresStatsRepo) UpsertStats(ctx context.Context, rows []*stats.UserStats, incremental bool) error {
	if len(rows) == 0 {
		return nil
	}

	// Incremental rows are partial: counters add on, max/latest take the
	// greater. Replace rows carry full history and overwrite. Either way
	// first_post_at keeps its original insert value.
	conflict := `
		ON CONFLICT (user_did, feed_id) DO UPDATE SET
			post_count = EXCLUDED.post_count,
			total_likes_received = EXCLUDED.total_likes_received,
			total_reposts_received = EXCLUDED.total_reposts_received,
			total_replies_received = EXCLUDED.total_replies_received,
			total_quotes_received = EXCLUDED.total_quotes_received,
			image_post_count = EXCLUDED.image_post_count,
			video_post_count = EXCLUDED.video_post_count,
			max_post_engagement = EXCLUDED.max_post_engagement,
			latest_post_at = EXCLUDED.latest_post_at,
			last_updated = NOW()`
	if incremental {
		conflict = `
		ON CONFLICT (user_did, feed_id) DO UPDATE SET
			post_count = user_stats.post_count + EXCLUDED.post_count,
			total_likes_received = user_stats.total_likes_received + EXCLUDED.total_likes_received,
			total_reposts_received = user_stats.total_reposts_received + EXCLUDED.total_reposts_received,
			total_replies_received = user_stats.total_replies_received + EXCLUDED.total_replies_received,
			total_quotes_received = user_stats.total_quotes_received + EXCLUDED.total_quotes_received,
			image_post_count = user_stats.image_post_count + EXCLUDED.image_post_count,
			video_post_count = user_stats.video_post_count + EXCLUDED.video_post_count,
			max_post_engagement = GREATEST(user_stats.max_post_engagement, EXCLUDED.max_post_engagement),
			latest_post_at = GREATEST(user_stats.latest_post_at, EXCLUDED.latest_post_at),
			last_updated = NOW()`
	}

	for _, batch := range chunk(rows, statsUpsertChunkSize) {
		var (
			values []string
			args   []any
		)
		for i, row := range batch {
			base := i * 12
			values = append(values, fmt.Sprintf(
				"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
				base+1, base+2, base+3, base+4, base+5, base+6,
				base+7, base+8, base+9, base+10, base+11, base+12))
			args = append(args,
				row.UserDID, row.FeedID, row.PostCount,
				row.TotalLikesReceived, row.TotalRepostsReceived,
				row.TotalRepliesReceived, row.TotalQuotesReceived,
				row.ImagePostCount, row.VideoPostCount, row.MaxPostEngagement,
				row.FirstPostAt, row.LatestPostAt)
		}

		query := `
		INSERT INTO user_stats (
			user_did, feed_id, post_count,
			total_likes_received, total_reposts_received,
			total_replies_received, total_quotes_received,
			image_post_count, video_post_count, max_post_engagement,
			first_post_at, latest_post_at, last_updated
		) VALUES ` + strings.Join(values, ", ") + conflict

		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert user stats chunk: %w", err)
		}
	}
	return nil
}

const statsColumns = `user_did, feed_id, post_count,
		total_likes_received, total_reposts_received,
		total_replies_received, total_quotes_received,
		image_post_count, video_post_count, max_post_engagement,
		first_post_at, latest_post_at, last_updated`

func (r *postgresStatsRepo) StatsForUsers(ctx context.Context, dids []string) ([]*stats.UserStats, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + statsColumns + ` FROM user_stats WHERE user_did = ANY($1)`
	return r.queryStats(ctx, query, pq.Array(dids))
}

func (r *postgresStatsRepo) StatsForUser(ctx context.Context, did string) ([]*stats.UserStats, error) {
	query := `SELECT ` + statsColumns + ` FROM user_stats WHERE user_did = $1`
	return r.queryStats(ctx, query, did)
}

func (r *postgresStatsRepo) queryStats(ctx context.Context, query string, args ...any) ([]*stats.UserStats, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user stats: %w", err)
	}
	defer rows.Close()

	var result []*stats.UserStats
	for rows.Next() {
		row := &stats.UserStats{}
		err := rows.Scan(
			&row.UserDID, &row.FeedID, &row.PostCount,
			&row.TotalLikesReceived, &row.TotalRepostsReceived,
			&row.TotalRepliesReceived, &row.TotalQuotesReceived,
			&row.ImagePostCount, &row.VideoPostCount, &row.MaxPostEngagement,
			&row.FirstPostAt, &row.LatestPostAt, &row.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user stats: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

const achievementColumns = `id, key, name, description, icon, type,
		is_repeatable, is_active, series_key, criteria,
		rarity_percentage, rarity_tier, rarity_label`

func (r *postgresStatsRepo) Achievements(ctx context.Context) ([]*stats.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var result []*stats.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *postgresStatsRepo) CreateAchievement(ctx context.Context, a *stats.Achievement) error {
	criteria, err := jsonbOrNull(a.Criteria)
	if err != nil {
		return fmt.Errorf("failed to encode criteria for %s: %w", a.Key, err)
	}

	query := `
		INSERT INTO achievements (
			key, name, description, icon, type,
			is_repeatable, is_active, series_key, criteria,
			rarity_percentage, rarity_tier, rarity_label
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		a.Key, a.Name, a.Description, a.Icon, string(a.Type),
		a.IsRepeatable, a.IsActive, a.SeriesKey, criteria,
		a.RarityPercentage, a.RarityTier, a.RarityLabel,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create achievement %s: %w", a.Key, err)
	}
	return nil
}

func (r *postgresStatsRepo) Earned(ctx context.Context, dids []string) ([]*stats.UserAchievement, error) {
	if len(dids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_did, achievement_id, feed_id, earned_at, context
		FROM user_achievements
		WHERE user_did = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(dids))
	if err != nil {
		return nil, fmt.Errorf("failed to query earned achievements: %w", err)
	}
	defer rows.Close()

	var result []*stats.UserAchievement
	for rows.Next() {
		ua := &stats.UserAchievement{}
		var feedID sql.NullString
		var context []byte
		if err := rows.Scan(&ua.ID, &ua.UserDID, &ua.AchievementID, &feedID, &ua.EarnedAt, &context); err != nil {
			return nil, fmt.Errorf("failed to scan earned achievement: %w", err)
		}
		ua.FeedID = nullStringPtr(feedID)
		ua.Context = json.RawMessage(context)
		result = append(result, ua)
	}
	return result, rows.Err()
}

func (r *postgresStatsRepo) Award(ctx context.Context, awards []*stats.UserAchievement) error {
	if len(awards) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin award insert: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO user_achievements (user_did, achievement_id, feed_id, earned_at, context)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_did, achievement_id, COALESCE(feed_id, '')) DO NOTHING`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare award insert: %w", err)
	}
	defer stmt.Close()

	for _, ua := range awards {
		earnedAt := ua.EarnedAt
		if earnedAt.IsZero() {
			earnedAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			ua.UserDID, ua.AchievementID, ua.FeedID, earnedAt, rawOrNull(ua.Context))
		if err != nil {
			return fmt.Errorf("failed to award achievement %d to %s: %w", ua.AchievementID, ua.UserDID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit awards: %w", err)
	}
	return nil
}

func (r *postgresStatsRepo) GlobalEarnerCounts(ctx context.Context) (map[int64]int64, error) {
	query := `
		SELECT ua.achievement_id, COUNT(DISTINCT ua.user_did)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE a.type = 'GLOBAL'
		GROUP BY ua.achievement_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query global earner counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("failed to scan earner count: %w", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func (r *postgresStatsRepo) SetGlobalRarity(ctx context.Context, achievementID int64, percentage float64, tierName, label string) error {
	query := `
		UPDATE achievements
		SET rarity_percentage = $2, rarity_tier = $3, rarity_label = $4
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, achievementID, percentage, tierName, label); err != nil {
		return fmt.Errorf("failed to set global rarity for achievement %d: %w", achievementID, err)
	}
	return nil
}

func (r *postgresStatsRepo) PostersPerFeed(ctx context.Context) (map[string]int64, error) {
	// user_stats carries exactly one row per (poster, feed), making it the
	// cheapest source for the rarity denominator.
	query := `SELECT feed_id, COUNT(*) FROM user_stats GROUP BY feed_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query posters per feed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var feedID string
		var count int64
		if err := rows.Scan(&feedID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan poster count: %w", err)
		}
		counts[feedID] = count
	}
	return counts, rows.Err()
}

func (r *postgresStatsRepo) FeedEarnerCounts(ctx context.Context) ([]*stats.FeedEarnerCount, error) {
	query := `
		SELECT ua.achievement_id, ua.feed_id, COUNT(DISTINCT ua.user_did)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.feed_id IS NOT NULL AND a.type = 'PER_FEED'
		GROUP BY ua.achievement_id, ua.feed_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed earner counts: %w", err)
	}
	defer rows.Close()

	var result []*stats.FeedEarnerCount
	for rows.Next() {
		row := &stats.FeedEarnerCount{}
		if err := rows.Scan(&row.AchievementID, &row.FeedID, &row.Earners); err != nil {
			return nil, fmt.Errorf("failed to scan feed earner count: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresStatsRepo) UpsertFeedRarity(ctx context.Context, rarities []*stats.FeedRarity) error {
	if len(rarities) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin feed rarity upsert: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO achievement_feed_rarity (
			achievement_id, feed_id, rarity_percentage, rarity_tier, rarity_label, last_updated
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (achievement_id, feed_id) DO UPDATE SET
			rarity_percentage = EXCLUDED.rarity_percentage,
			rarity_tier = EXCLUDED.rarity_tier,
			rarity_label = EXCLUDED.rarity_label,
			last_updated = NOW()`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare feed rarity upsert: %w", err)
	}
	defer stmt.Close()

	for _, fr := range rarities {
		_, err := stmt.ExecContext(ctx,
			fr.AchievementID, fr.FeedID, fr.RarityPercentage, fr.RarityTier, fr.RarityLabel)
		if err != nil {
			return fmt.Errorf("failed to upsert feed rarity %d/%s: %w", fr.AchievementID, fr.FeedID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feed rarity upsert: %w", err)
	}
	return nil
}

// rarityScoreCase converts a rarity percentage into leaderboard points.
// A NULL percentage falls through to the 10-point floor, which covers
// per-feed awards whose rarity has not been computed yet.
func rarityScoreCase(column string) string {
	return `CASE
		WHEN ` + column + ` <= 0.1 THEN 1000
		WHEN ` + column + ` <= 1 THEN 500
		WHEN ` + column + ` <= 5 THEN 200
		WHEN ` + column + ` <= 10 THEN 100
		WHEN ` + column + ` <= 25 THEN 50
		WHEN ` + column + ` <= 50 THEN 20
		ELSE 10 END`
}

func (r *postgresStatsRepo) GlobalLeaderboard(ctx context.Context, limit int) ([]*stats.LeaderboardEntry, error) {
	score := `CASE a.type
		WHEN 'GLOBAL' THEN ` + rarityScoreCase("a.rarity_percentage") + `
		WHEN 'PER_FEED' THEN ` + rarityScoreCase("afr.rarity_percentage") + `
		ELSE 0 END`

	query := `
		SELECT ` + prefixColumns(userColumns, "u") + `, SUM(` + score + `) AS total_score
		FROM users u
		JOIN user_achievements ua ON ua.user_did = u.did
		JOIN achievements a ON a.id = ua.achievement_id
		LEFT JOIN achievement_feed_rarity afr
			ON afr.achievement_id = ua.achievement_id AND afr.feed_id = ua.feed_id
		GROUP BY u.did
		ORDER BY total_score DESC
		LIMIT $1`

	return r.queryLeaderboard(ctx, query, limit)
}

func (r *postgresStatsRepo) FeedLeaderboard(ctx context.Context, feedID string, limit int) ([]*stats.LeaderboardEntry, error) {
	query := `
		SELECT ` + prefixColumns(userColumns, "u") + `,
			SUM(` + rarityScoreCase("afr.rarity_percentage") + `) AS total_score
		FROM users u
		JOIN user_achievements ua ON ua.user_did = u.did
		JOIN achievement_feed_rarity afr
			ON afr.achievement_id = ua.achievement_id AND afr.feed_id = ua.feed_id
		WHERE ua.feed_id = $1
		GROUP BY u.did
		ORDER BY total_score DESC
		LIMIT $2`

	return r.queryLeaderboard(ctx, query, feedID, limit)
}

func (r *postgresStatsRepo) queryLeaderboard(ctx context.Context, query string, args ...any) ([]*stats.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var result []*stats.LeaderboardEntry
	for rows.Next() {
		entry := &stats.LeaderboardEntry{User: &users.User{}}
		var (
			displayName  sql.NullString
			description  sql.NullString
			avatarURL    sql.NullString
			refreshCheck sql.NullTime
		)
		u := entry.User
		err := rows.Scan(
			&u.DID, &u.Handle, &displayName, &description, &avatarURL,
			&u.FollowersCount, &u.FollowingCount, &u.PostsCount,
			&u.CreatedAt, &u.LastUpdated, &u.IsProminent, &refreshCheck,
			&entry.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		u.DisplayName = nullStringPtr(displayName)
		u.Description = nullStringPtr(description)
		u.AvatarURL = nullStringPtr(avatarURL)
		u.LastProminentRefreshCheck = nullTimePtr(refreshCheck)
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *postgresStatsRepo) FeedsWithAwards(ctx context.Context) ([]string, error) {
	query := `
		SELECT f.id
		FROM feeds f
		WHERE f.id IN (
			SELECT DISTINCT feed_id FROM user_achievements WHERE feed_id IS NOT NULL
		)
		ORDER BY f.name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds with awards: %w", err)
	}
	defer rows.Close()

	var feedIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan feed id: %w", err)
		}
		feedIDs = append(feedIDs, id)
	}
	return feedIDs, rows.Err()
}

func scanAchievement(row interface{ Scan(...any) error }) (*stats.Achievement, error) {
	var (
		a           stats.Achievement
		icon        sql.NullString
		achType     string
		seriesKey   sql.NullString
		criteria    []byte
		rarityTier  sql.NullString
		rarityLabel sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Key, &a.Name, &a.Description, &icon, &achType,
		&a.IsRepeatable, &a.IsActive, &seriesKey, &criteria,
		&a.RarityPercentage, &rarityTier, &rarityLabel,
	)
	if err != nil {
		return nil, err
	}
	a.Icon = nullStringPtr(icon)
	a.Type = stats.AchievementType(achType)
	a.SeriesKey = nullStringPtr(seriesKey)
	a.RarityTier = nullStringPtr(rarityTier)
	a.RarityLabel = nullStringPtr(rarityLabel)
	if len(criteria) > 0 {
		a.Criteria = &stats.Criteria{}
		if err := json.Unmarshal(criteria, a.Criteria); err != nil {
			return nil, fmt.Errorf("failed to decode criteria for %s: %w", a.Key, err)
		}
	}
	return &a, nil
}
