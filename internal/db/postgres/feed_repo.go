package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedmaster/internal/core/feeds"
)

type postgresFeedRepo struct {
	db *sql.DB
}

// NewFeedRepository creates a new PostgreSQL feed repository
func NewFeedRepository(db *sql.DB) feeds.Repository {
	return &postgresFeedRepo{db: db}
}

const feedColumns = `id, name, description, contrails_websocket_url, bluesky_at_uri,
		tier, display_order, is_active, owner_did,
		avatar_url, like_count, bluesky_description, last_bluesky_sync,
		last_aggregated_at, created_at, updated_at`

func (r *postgresFeedRepo) GetByID(ctx context.Context, id string) (*feeds.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE id = $1`

	feed, err := scanFeed(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, feeds.ErrFeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

func (r *postgresFeedRepo) GetAll(ctx context.Context) ([]*feeds.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds ORDER BY display_order NULLS LAST, id`
	return r.queryFeeds(ctx, query)
}

func (r *postgresFeedRepo) GetActive(ctx context.Context) ([]*feeds.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE is_active ORDER BY display_order NULLS LAST, id`
	return r.queryFeeds(ctx, query)
}

func (r *postgresFeedRepo) Upsert(ctx context.Context, feed *feeds.Feed) error {
	// Only the configured columns are refreshed. Bluesky-synced metadata,
	// is_active and owner_did survive a reseed.
	query := `
		INSERT INTO feeds (
			id, name, description, contrails_websocket_url, bluesky_at_uri,
			tier, display_order, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			contrails_websocket_url = EXCLUDED.contrails_websocket_url,
			bluesky_at_uri = EXCLUDED.bluesky_at_uri,
			tier = EXCLUDED.tier,
			display_order = EXCLUDED.display_order,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		feed.ID, feed.Name, feed.Description, feed.ContrailsWebsocketURL,
		feed.BlueskyATURI, feed.Tier, feed.DisplayOrder)
	if err != nil {
		return fmt.Errorf("failed to upsert feed %s: %w", feed.ID, err)
	}
	return nil
}

func (r *postgresFeedRepo) UpdateBlueskyMetadata(ctx context.Context, feed *feeds.Feed) error {
	query := `
		UPDATE feeds SET
			name = $2,
			avatar_url = $3,
			like_count = $4,
			bluesky_description = $5,
			owner_did = $6,
			last_bluesky_sync = NOW(),
			updated_at = NOW()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		feed.ID, feed.Name, feed.AvatarURL, feed.LikeCount,
		feed.BlueskyDescription, feed.OwnerDID)
	if err != nil {
		return fmt.Errorf("failed to update feed metadata for %s: %w", feed.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return feeds.ErrFeedNotFound
	}
	return nil
}

func (r *postgresFeedRepo) SetLastAggregatedAt(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE feeds SET last_aggregated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to set last aggregated time for %s: %w", id, err)
	}
	return nil
}

func (r *postgresFeedRepo) queryFeeds(ctx context.Context, query string, args ...any) ([]*feeds.Feed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var result []*feeds.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		result = append(result, feed)
	}
	return result, rows.Err()
}

func scanFeed(row interface{ Scan(...any) error }) (*feeds.Feed, error) {
	var (
		f             feeds.Feed
		description   sql.NullString
		wsURL         sql.NullString
		atURI         sql.NullString
		displayOrder  sql.NullInt64
		ownerDID      sql.NullString
		avatarURL     sql.NullString
		bskyDesc      sql.NullString
		lastSync      sql.NullTime
		lastAggregate sql.NullTime
	)
	err := row.Scan(
		&f.ID, &f.Name, &description, &wsURL, &atURI,
		&f.Tier, &displayOrder, &f.IsActive, &ownerDID,
		&avatarURL, &f.LikeCount, &bskyDesc, &lastSync,
		&lastAggregate, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Description = nullStringPtr(description)
	f.ContrailsWebsocketURL = nullStringPtr(wsURL)
	f.BlueskyATURI = nullStringPtr(atURI)
	f.DisplayOrder = nullInt64Ptr(displayOrder)
	f.OwnerDID = nullStringPtr(ownerDID)
	f.AvatarURL = nullStringPtr(avatarURL)
	f.BlueskyDescription = nullStringPtr(bskyDesc)
	f.LastBlueskySync = nullTimePtr(lastSync)
	f.LastAggregatedAt = nullTimePtr(lastAggregate)
	return &f, nil
}
