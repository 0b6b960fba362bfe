package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"feedmaster/internal/core/aggregates"
	"feedmaster/internal/core/posts"
)

type postgresAggregateRepo struct {
	db *sql.DB
}

// NewAggregateRepository creates a new PostgreSQL aggregate repository
func NewAggregateRepository(db *sql.DB) aggregates.Repository {
	return &postgresAggregateRepo{db: db}
}

// scoreExpr recomputes the engagement score from the raw counters so weight
// changes apply without backfilling the stored score column. The weights bind
// to the first three placeholders of every query using it.
const scoreExpr = `(p.like_count * $1 + p.repost_count * $2 + p.reply_count * $3)`

// windowClause appends the feed filter and optional window bound. The feed id
// binds after the preceding args; since binds last when non-nil.
func windowClause(argOffset int, since *time.Time) string {
	clause := fmt.Sprintf(" AND fp.feed_id = $%d", argOffset)
	if since != nil {
		clause += fmt.Sprintf(" AND fp.ingested_at >= $%d", argOffset+1)
	}
	return clause
}

func (r *postgresAggregateRepo) ScoredPosts(ctx context.Context, feedID string, since *time.Time, weights posts.Weights, media aggregates.MediaFilter, limit int) ([]*aggregates.ScoredPost, error) {
	mediaClause := ""
	switch media {
	case aggregates.MediaImages:
		mediaClause = " AND p.has_image"
	case aggregates.MediaVideos:
		mediaClause = " AND p.has_video"
	}

	query := `
		SELECT ` + prefixColumns(postColumns, "p") + `,
			u.handle, u.display_name, u.avatar_url, ` + scoreExpr + ` AS score
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		JOIN users u ON u.did = p.author_did
		WHERE TRUE` + windowClause(4, since) + mediaClause

	args := []any{weights.Like, weights.Repost, weights.Reply, feedID}
	if since != nil {
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY score DESC, p.created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored posts: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.ScoredPost
	for rows.Next() {
		sp := &aggregates.ScoredPost{}
		var displayName, avatarURL sql.NullString
		post, err := scanPostWith(rows, &sp.AuthorHandle, &displayName, &avatarURL, &sp.Score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scored post: %w", err)
		}
		sp.Post = post
		sp.AuthorDisplayName = nullStringPtr(displayName)
		sp.AuthorAvatarURL = nullStringPtr(avatarURL)
		result = append(result, sp)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) AuthorPostScores(ctx context.Context, feedID string, since *time.Time, weights posts.Weights) ([]*aggregates.AuthorPostScore, error) {
	query := `
		SELECT p.author_did, u.handle, u.display_name, u.avatar_url, ` + scoreExpr + ` AS score
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		JOIN users u ON u.did = p.author_did
		WHERE TRUE` + windowClause(4, since)

	args := []any{weights.Like, weights.Repost, weights.Reply, feedID}
	if since != nil {
		args = append(args, *since)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query author post scores: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.AuthorPostScore
	for rows.Next() {
		row := &aggregates.AuthorPostScore{}
		var displayName, avatarURL sql.NullString
		if err := rows.Scan(&row.DID, &row.Handle, &displayName, &avatarURL, &row.Score); err != nil {
			return nil, fmt.Errorf("failed to scan author post score: %w", err)
		}
		row.DisplayName = nullStringPtr(displayName)
		row.AvatarURL = nullStringPtr(avatarURL)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) PosterCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*aggregates.AuthorCount, error) {
	query := `
		SELECT p.author_did, u.handle, u.display_name, u.avatar_url,
			COUNT(DISTINCT p.id) AS post_count
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		JOIN users u ON u.did = p.author_did
		WHERE TRUE` + windowClause(1, since) + `
		GROUP BY p.author_did, u.handle, u.display_name, u.avatar_url`

	args := []any{feedID}
	if since != nil {
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY post_count DESC, MAX(p.created_at) DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return r.queryAuthorCounts(ctx, query, args...)
}

func (r *postgresAggregateRepo) MentionCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*aggregates.AuthorCount, error) {
	// Inner join on users drops mentions of DIDs this index has never seen.
	query := `
		SELECT u.did, u.handle, u.display_name, u.avatar_url,
			COUNT(DISTINCT p.id) AS mention_count
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		CROSS JOIN LATERAL jsonb_array_elements(p.mentions) AS m
		JOIN users u ON u.did = m->>'did'
		WHERE p.mentions IS NOT NULL` + windowClause(1, since) + `
		GROUP BY u.did, u.handle, u.display_name, u.avatar_url`

	args := []any{feedID}
	if since != nil {
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY mention_count DESC, MAX(p.created_at) DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	return r.queryAuthorCounts(ctx, query, args...)
}

func (r *postgresAggregateRepo) queryAuthorCounts(ctx context.Context, query string, args ...any) ([]*aggregates.AuthorCount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query author counts: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.AuthorCount
	for rows.Next() {
		row := &aggregates.AuthorCount{}
		var displayName, avatarURL sql.NullString
		if err := rows.Scan(&row.DID, &row.Handle, &displayName, &avatarURL, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan author count: %w", err)
		}
		row.DisplayName = nullStringPtr(displayName)
		row.AvatarURL = nullStringPtr(avatarURL)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) FirstTimePosters(ctx context.Context, feedID string, since *time.Time, limit int) ([]*aggregates.FirstPoster, error) {
	// The first sighting is per feed over all history; the window only
	// selects whose debut falls inside it.
	query := `
		SELECT p.author_did, u.handle, u.display_name, u.avatar_url,
			MIN(fp.ingested_at) AS first_post_at
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		JOIN users u ON u.did = p.author_did
		WHERE fp.feed_id = $1
		GROUP BY p.author_did, u.handle, u.display_name, u.avatar_url`

	args := []any{feedID}
	if since != nil {
		query += ` HAVING MIN(fp.ingested_at) >= $2`
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY first_post_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query first-time posters: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.FirstPoster
	for rows.Next() {
		row := &aggregates.FirstPoster{}
		var displayName, avatarURL sql.NullString
		if err := rows.Scan(&row.DID, &row.Handle, &displayName, &avatarURL, &row.FirstPostAt); err != nil {
			return nil, fmt.Errorf("failed to scan first-time poster: %w", err)
		}
		row.DisplayName = nullStringPtr(displayName)
		row.AvatarURL = nullStringPtr(avatarURL)
		result = append(result, row)
	}
	return result, rows.Err()
}

// streakCTE labels each author's consecutive posting days with the classic
// gap-and-islands pattern: LAG finds day gaps, a running sum of gap flags
// numbers the islands, and the final grouping measures each island.
// Days come from the feed's ingestion time, not the record's self-reported
// created_at, so authors cannot backdate their way into a streak.
const streakCTE = `
	WITH post_days AS (
		SELECT DISTINCT p.author_did, (fp.ingested_at AT TIME ZONE 'UTC')::date AS day
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		WHERE fp.feed_id = $1
	),
	flagged AS (
		SELECT author_did, day,
			CASE WHEN day - LAG(day) OVER (PARTITION BY author_did ORDER BY day) = 1
				THEN 0 ELSE 1 END AS new_streak
		FROM post_days
	),
	islands AS (
		SELECT author_did, day,
			SUM(new_streak) OVER (PARTITION BY author_did ORDER BY day) AS streak_no
		FROM flagged
	),
	streaks AS (
		SELECT author_did, streak_no, COUNT(*) AS length, MAX(day) AS last_day
		FROM islands
		GROUP BY author_did, streak_no
	)`

func (r *postgresAggregateRepo) LongestStreaks(ctx context.Context, feedID string, limit int) ([]*aggregates.AuthorStreak, error) {
	query := streakCTE + `
		SELECT s.author_did, u.handle, u.display_name, u.avatar_url,
			MAX(s.length) AS longest
		FROM streaks s
		JOIN users u ON u.did = s.author_did
		GROUP BY s.author_did, u.handle, u.display_name, u.avatar_url
		ORDER BY longest DESC, s.author_did
		LIMIT $2`

	return r.queryStreaks(ctx, query, feedID, limit)
}

func (r *postgresAggregateRepo) ActiveStreaks(ctx context.Context, feedID string, limit int) ([]*aggregates.AuthorStreak, error) {
	// Only the newest island can end today or yesterday, so this yields at
	// most one streak per author.
	query := streakCTE + `
		SELECT s.author_did, u.handle, u.display_name, u.avatar_url, s.length
		FROM streaks s
		JOIN users u ON u.did = s.author_did
		WHERE s.last_day >= CURRENT_DATE - 1
		ORDER BY s.length DESC, s.author_did
		LIMIT $2`

	return r.queryStreaks(ctx, query, feedID, limit)
}

func (r *postgresAggregateRepo) queryStreaks(ctx context.Context, query string, args ...any) ([]*aggregates.AuthorStreak, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.AuthorStreak
	for rows.Next() {
		row := &aggregates.AuthorStreak{}
		var displayName, avatarURL sql.NullString
		if err := rows.Scan(&row.DID, &row.Handle, &displayName, &avatarURL, &row.Length); err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		row.DisplayName = nullStringPtr(displayName)
		row.AvatarURL = nullStringPtr(avatarURL)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) HashtagCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*aggregates.HashtagCount, error) {
	query := `
		SELECT LOWER(tag) AS hashtag, COUNT(DISTINCT p.id) AS post_count
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		CROSS JOIN LATERAL jsonb_array_elements_text(p.hashtags) AS tag
		WHERE p.hashtags IS NOT NULL` + windowClause(1, since) + `
		GROUP BY LOWER(tag)`

	args := []any{feedID}
	if since != nil {
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY post_count DESC, hashtag LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashtag counts: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.HashtagCount
	for rows.Next() {
		row := &aggregates.HashtagCount{}
		if err := rows.Scan(&row.Hashtag, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan hashtag count: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) LinkCounts(ctx context.Context, feedID string, since *time.Time, limit int) ([]*aggregates.LinkCount, error) {
	query := `
		SELECT l->>'uri' AS uri, COUNT(*) AS share_count
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		CROSS JOIN LATERAL jsonb_array_elements(p.links) AS l
		WHERE p.links IS NOT NULL` + windowClause(1, since) + `
		GROUP BY l->>'uri'`

	args := []any{feedID}
	if since != nil {
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY share_count DESC, uri LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query link counts: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.LinkCount
	for rows.Next() {
		row := &aggregates.LinkCount{}
		if err := rows.Scan(&row.URI, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan link count: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) LinkURIs(ctx context.Context, feedID string, since *time.Time) ([]string, error) {
	query := `
		SELECT l->>'uri'
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		CROSS JOIN LATERAL jsonb_array_elements(p.links) AS l
		WHERE p.links IS NOT NULL` + windowClause(1, since)

	args := []any{feedID}
	if since != nil {
		args = append(args, *since)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query link URIs: %w", err)
	}
	defer rows.Close()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("failed to scan link URI: %w", err)
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}

func (r *postgresAggregateRepo) LinkCards(ctx context.Context, feedID string, since *time.Time, domains []string, requireTitle bool, limit int) ([]*aggregates.LinkCardRow, error) {
	query := `
		SELECT p.uri, p.link_url, p.link_title, p.link_description, p.thumbnail_url,
			COUNT(DISTINCT p.id) AS post_count
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		WHERE p.link_url IS NOT NULL` + windowClause(1, since)

	args := []any{feedID}
	if since != nil {
		args = append(args, *since)
	}
	if requireTitle {
		query += " AND p.link_title IS NOT NULL"
	}
	if len(domains) > 0 {
		patterns := make([]string, len(domains))
		for i, d := range domains {
			patterns[i] = "%" + d + "%"
		}
		query += fmt.Sprintf(" AND p.link_url LIKE ANY($%d)", len(args)+1)
		args = append(args, pq.Array(patterns))
	}

	query += `
		GROUP BY p.uri, p.link_url, p.link_title, p.link_description, p.thumbnail_url`
	query += fmt.Sprintf(" ORDER BY post_count DESC, MAX(p.created_at) DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query link cards: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.LinkCardRow
	for rows.Next() {
		row := &aggregates.LinkCardRow{}
		var linkURL, linkTitle, linkDescription, thumbnailURL sql.NullString
		if err := rows.Scan(&row.URI, &linkURL, &linkTitle, &linkDescription, &thumbnailURL, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan link card: %w", err)
		}
		row.LinkURL = nullStringPtr(linkURL)
		row.LinkTitle = nullStringPtr(linkTitle)
		row.LinkDescription = nullStringPtr(linkDescription)
		row.ThumbnailURL = nullStringPtr(thumbnailURL)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) HashtagLists(ctx context.Context, feedID string, since *time.Time) ([][]string, error) {
	query := `
		SELECT p.hashtags
		FROM posts p
		JOIN feed_posts fp ON fp.post_id = p.id
		WHERE p.hashtags IS NOT NULL` + windowClause(1, since)

	args := []any{feedID}
	if since != nil {
		args = append(args, *since)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashtag lists: %w", err)
	}
	defer rows.Close()

	var result [][]string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan hashtag list: %w", err)
		}
		var tags []string
		if err := json.Unmarshal(raw, &tags); err != nil {
			return nil, fmt.Errorf("failed to decode hashtag list: %w", err)
		}
		if len(tags) > 0 {
			result = append(result, tags)
		}
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) Get(ctx context.Context, feedID, name string, tf aggregates.Timeframe) (*aggregates.Aggregate, error) {
	query := `
		SELECT id, feed_id, agg_name, timeframe, data_json, updated_at
		FROM aggregates
		WHERE feed_id = $1 AND agg_name = $2 AND timeframe = $3`

	agg, err := scanAggregate(r.db.QueryRowContext(ctx, query, feedID, name, string(tf)))
	if err == sql.ErrNoRows {
		return nil, aggregates.ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	return agg, nil
}

func (r *postgresAggregateRepo) GetForFeed(ctx context.Context, feedID string, tf aggregates.Timeframe) ([]*aggregates.Aggregate, error) {
	query := `
		SELECT id, feed_id, agg_name, timeframe, data_json, updated_at
		FROM aggregates
		WHERE feed_id = $1 AND timeframe = $2
		ORDER BY agg_name`

	rows, err := r.db.QueryContext(ctx, query, feedID, string(tf))
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.Aggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		result = append(result, agg)
	}
	return result, rows.Err()
}

func (r *postgresAggregateRepo) LastUpdated(ctx context.Context, feedID, name string, tf aggregates.Timeframe) (*time.Time, error) {
	query := `
		SELECT updated_at FROM aggregates
		WHERE feed_id = $1 AND agg_name = $2 AND timeframe = $3`

	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, query, feedID, name, string(tf)).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate freshness: %w", err)
	}
	return &updatedAt, nil
}

func (r *postgresAggregateRepo) Upsert(ctx context.Context, agg *aggregates.Aggregate) error {
	if agg.ID == uuid.Nil {
		agg.ID = uuid.New()
	}

	// (feed_id, agg_name, timeframe) is the idempotency key; recomputes
	// replace the payload atomically.
	query := `
		INSERT INTO aggregates (id, feed_id, agg_name, timeframe, data_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (feed_id, agg_name, timeframe) DO UPDATE SET
			data_json = EXCLUDED.data_json,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		agg.ID, agg.FeedID, agg.Name, string(agg.Timeframe), string(agg.Data))
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate %s/%s/%s: %w", agg.FeedID, agg.Name, agg.Timeframe, err)
	}
	return nil
}

func scanAggregate(row interface{ Scan(...any) error }) (*aggregates.Aggregate, error) {
	var (
		agg  aggregates.Aggregate
		tf   string
		data []byte
	)
	if err := row.Scan(&agg.ID, &agg.FeedID, &agg.Name, &tf, &data, &agg.UpdatedAt); err != nil {
		return nil, err
	}
	agg.Timeframe = aggregates.Timeframe(tf)
	agg.Data = json.RawMessage(data)
	return &agg, nil
}

// scanPostWith scans a post row followed by extra trailing columns.
func scanPostWith(rows *sql.Rows, extra ...any) (*posts.Post, error) {
	var s postScanner
	if err := rows.Scan(append(s.dest(), extra...)...); err != nil {
		return nil, err
	}
	return s.post()
}
