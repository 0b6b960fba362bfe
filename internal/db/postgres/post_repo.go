package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"feedmaster/internal/core/posts"
)

type postgresPostRepo struct {
	db *sql.DB
}

// NewPostRepository creates a new PostgreSQL post repository
func NewPostRepository(db *sql.DB) posts.Repository {
	return &postgresPostRepo{db: db}
}

const postColumns = `id, uri, cid, text, created_at, ingested_at, author_did,
		has_image, has_alt_text, has_video, has_link, has_quote, has_mention,
		images, thumbnail_url, aspect_ratio_width, aspect_ratio_height,
		link_url, link_title, link_description,
		hashtags, links, mentions, embeds, facets, raw_record,
		quoted_post_uri, quoted_post_cid, quoted_post_author_did,
		quoted_post_author_handle, quoted_post_author_display_name,
		quoted_post_text, quoted_post_like_count, quoted_post_repost_count,
		quoted_post_reply_count, quoted_post_created_at,
		like_count, repost_count, reply_count, quote_count, engagement_score,
		is_active_for_polling, next_poll_at`

func (r *postgresPostRepo) GetByURI(ctx context.Context, uri string) (*posts.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE uri = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, uri))
	if err == sql.ErrNoRows {
		return nil, posts.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post by URI: %w", err)
	}
	return post, nil
}

func (r *postgresPostRepo) UpsertBatch(ctx context.Context, batch []*posts.Post) ([]*posts.Post, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin post upsert: %w", err)
	}
	defer tx.Rollback()

	// CID is the idempotency key: a reconnect replaying records overwrites
	// the mutable columns but keeps the first write's id and created_at.
	// ingested_at advances to the latest sighting; the per-feed ingestion
	// time that windows aggregations lives on feed_posts and is untouched.
	query := `
		INSERT INTO posts (
			id, uri, cid, text, created_at, ingested_at, author_did,
			has_image, has_alt_text, has_video, has_link, has_quote, has_mention,
			images, thumbnail_url, aspect_ratio_width, aspect_ratio_height,
			link_url, link_title, link_description,
			hashtags, links, mentions, embeds, facets, raw_record,
			quoted_post_uri, quoted_post_cid, quoted_post_author_did,
			quoted_post_author_handle, quoted_post_author_display_name,
			quoted_post_text, quoted_post_like_count, quoted_post_repost_count,
			quoted_post_reply_count, quoted_post_created_at,
			like_count, repost_count, reply_count, quote_count, engagement_score,
			is_active_for_polling, next_poll_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20,
			$21, $22, $23, $24, $25, $26,
			$27, $28, $29,
			$30, $31,
			$32, $33, $34,
			$35, $36,
			$37, $38, $39, $40, $41,
			$42, $43
		)
		ON CONFLICT (cid) DO UPDATE SET
			text = EXCLUDED.text,
			ingested_at = EXCLUDED.ingested_at,
			has_image = EXCLUDED.has_image,
			has_alt_text = EXCLUDED.has_alt_text,
			has_video = EXCLUDED.has_video,
			has_link = EXCLUDED.has_link,
			has_quote = EXCLUDED.has_quote,
			has_mention = EXCLUDED.has_mention,
			images = EXCLUDED.images,
			thumbnail_url = EXCLUDED.thumbnail_url,
			aspect_ratio_width = EXCLUDED.aspect_ratio_width,
			aspect_ratio_height = EXCLUDED.aspect_ratio_height,
			link_url = EXCLUDED.link_url,
			link_title = EXCLUDED.link_title,
			link_description = EXCLUDED.link_description,
			hashtags = EXCLUDED.hashtags,
			links = EXCLUDED.links,
			mentions = EXCLUDED.mentions,
			embeds = EXCLUDED.embeds,
			facets = EXCLUDED.facets,
			raw_record = EXCLUDED.raw_record,
			quoted_post_uri = EXCLUDED.quoted_post_uri,
			quoted_post_cid = EXCLUDED.quoted_post_cid,
			quoted_post_author_did = EXCLUDED.quoted_post_author_did,
			quoted_post_author_handle = EXCLUDED.quoted_post_author_handle,
			quoted_post_author_display_name = EXCLUDED.quoted_post_author_display_name,
			quoted_post_text = EXCLUDED.quoted_post_text,
			quoted_post_like_count = EXCLUDED.quoted_post_like_count,
			quoted_post_repost_count = EXCLUDED.quoted_post_repost_count,
			quoted_post_reply_count = EXCLUDED.quoted_post_reply_count,
			quoted_post_created_at = EXCLUDED.quoted_post_created_at,
			like_count = EXCLUDED.like_count,
			repost_count = EXCLUDED.repost_count,
			reply_count = EXCLUDED.reply_count,
			quote_count = EXCLUDED.quote_count,
			engagement_score = EXCLUDED.engagement_score,
			is_active_for_polling = EXCLUDED.is_active_for_polling,
			next_poll_at = EXCLUDED.next_poll_at
		RETURNING id, created_at, ingested_at`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare post upsert: %w", err)
	}
	defer stmt.Close()

	stored := make([]*posts.Post, 0, len(batch))
	for _, p := range batch {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}

		images, err := jsonbOrNull(p.Images)
		if err != nil {
			return nil, fmt.Errorf("failed to encode images for %s: %w", p.CID, err)
		}
		hashtags, err := jsonbOrNull(p.Hashtags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode hashtags for %s: %w", p.CID, err)
		}
		links, err := jsonbOrNull(p.Links)
		if err != nil {
			return nil, fmt.Errorf("failed to encode links for %s: %w", p.CID, err)
		}
		mentions, err := jsonbOrNull(p.Mentions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode mentions for %s: %w", p.CID, err)
		}

		row := stmt.QueryRowContext(ctx,
			p.ID, p.URI, p.CID, p.Text, p.CreatedAt, p.IngestedAt, p.AuthorDID,
			p.HasImage, p.HasAltText, p.HasVideo, p.HasLink, p.HasQuote, p.HasMention,
			images, p.ThumbnailURL, p.AspectRatioWidth, p.AspectRatioHeight,
			p.LinkURL, p.LinkTitle, p.LinkDescription,
			hashtags, links, mentions,
			rawOrNull(p.Embed), rawOrNull(p.Facets), rawOrNull(p.RawRecord),
			p.QuotedPostURI, p.QuotedPostCID, p.QuotedPostAuthorDID,
			p.QuotedPostAuthorHandle, p.QuotedPostAuthorDisplayName,
			p.QuotedPostText, p.QuotedPostLikeCount, p.QuotedPostRepostCount,
			p.QuotedPostReplyCount, p.QuotedPostCreatedAt,
			p.LikeCount, p.RepostCount, p.ReplyCount, p.QuoteCount, p.EngagementScore,
			p.IsActiveForPolling, p.NextPollAt,
		)

		result := *p
		if err := row.Scan(&result.ID, &result.CreatedAt, &result.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to upsert post %s: %w", p.CID, err)
		}
		stored = append(stored, &result)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit post upsert: %w", err)
	}
	return stored, nil
}

func (r *postgresPostRepo) LinkToFeeds(ctx context.Context, feedPosts []*posts.FeedPost) error {
	if len(feedPosts) == 0 {
		return nil
	}

	ids := make([]string, len(feedPosts))
	postIDs := make([]string, len(feedPosts))
	feedIDs := make([]string, len(feedPosts))
	relevance := make([]float64, len(feedPosts))
	ingestedAt := make([]time.Time, len(feedPosts))
	for i, fp := range feedPosts {
		if fp.ID == uuid.Nil {
			fp.ID = uuid.New()
		}
		ids[i] = fp.ID.String()
		postIDs[i] = fp.PostID.String()
		feedIDs[i] = fp.FeedID
		relevance[i] = fp.RelevanceScore
		ingestedAt[i] = fp.IngestedAt
	}

	query := `
		INSERT INTO feed_posts (id, post_id, feed_id, relevance_score, ingested_at)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::float8[], $5::timestamptz[])
		ON CONFLICT (post_id, feed_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		pq.Array(ids), pq.Array(postIDs), pq.Array(feedIDs),
		pq.Array(relevance), pq.Array(ingestedAt))
	if err != nil {
		return fmt.Errorf("failed to link posts to feeds: %w", err)
	}
	return nil
}

func (r *postgresPostRepo) DueForPoll(ctx context.Context, now time.Time, limit int) ([]*posts.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts
		WHERE is_active_for_polling AND next_poll_at <= $1
		ORDER BY next_poll_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts due for poll: %w", err)
	}
	defer rows.Close()

	var due []*posts.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		due = append(due, post)
	}
	return due, rows.Err()
}

func (r *postgresPostRepo) ApplyEngagement(ctx context.Context, updates []*posts.EngagementUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin engagement update: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE posts SET
			like_count = $2,
			repost_count = $3,
			reply_count = $4,
			engagement_score = $5,
			is_active_for_polling = $6,
			next_poll_at = $7
		WHERE uri = $1`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare engagement update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		_, err := stmt.ExecContext(ctx,
			u.URI, u.LikeCount, u.RepostCount, u.ReplyCount,
			u.EngagementScore, u.IsActiveForPolling, u.NextPollAt)
		if err != nil {
			return fmt.Errorf("failed to update engagement for %s: %w", u.URI, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit engagement update: %w", err)
	}
	return nil
}

// postScanner collects the nullable intermediates of one post row so the
// plain scan and the joined aggregate scans share column order.
type postScanner struct {
	p posts.Post

	images, hashtags, links, mentions []byte
	embeds, facets, rawRecord         []byte

	thumbnailURL    sql.NullString
	aspectW         sql.NullInt64
	aspectH         sql.NullInt64
	linkURL         sql.NullString
	linkTitle       sql.NullString
	linkDescription sql.NullString

	quotedURI         sql.NullString
	quotedCID         sql.NullString
	quotedAuthorDID   sql.NullString
	quotedHandle      sql.NullString
	quotedDisplayName sql.NullString
	quotedText        sql.NullString
	quotedCreatedAt   sql.NullTime

	nextPollAt sql.NullTime
}

// dest returns scan destinations in postColumns order.
func (s *postScanner) dest() []any {
	p := &s.p
	return []any{
		&p.ID, &p.URI, &p.CID, &p.Text, &p.CreatedAt, &p.IngestedAt, &p.AuthorDID,
		&p.HasImage, &p.HasAltText, &p.HasVideo, &p.HasLink, &p.HasQuote, &p.HasMention,
		&s.images, &s.thumbnailURL, &s.aspectW, &s.aspectH,
		&s.linkURL, &s.linkTitle, &s.linkDescription,
		&s.hashtags, &s.links, &s.mentions, &s.embeds, &s.facets, &s.rawRecord,
		&s.quotedURI, &s.quotedCID, &s.quotedAuthorDID,
		&s.quotedHandle, &s.quotedDisplayName,
		&s.quotedText, &p.QuotedPostLikeCount, &p.QuotedPostRepostCount,
		&p.QuotedPostReplyCount, &s.quotedCreatedAt,
		&p.LikeCount, &p.RepostCount, &p.ReplyCount, &p.QuoteCount, &p.EngagementScore,
		&p.IsActiveForPolling, &s.nextPollAt,
	}
}

// post decodes the JSONB intermediates and resolves the nullable columns.
func (s *postScanner) post() (*posts.Post, error) {
	p := s.p

	jsonFields := []struct {
		raw    []byte
		target any
	}{
		{s.images, &p.Images},
		{s.hashtags, &p.Hashtags},
		{s.links, &p.Links},
		{s.mentions, &p.Mentions},
	}
	for _, f := range jsonFields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.target); err != nil {
			return nil, fmt.Errorf("failed to decode post field for %s: %w", p.CID, err)
		}
	}
	p.Embed = json.RawMessage(s.embeds)
	p.Facets = json.RawMessage(s.facets)
	p.RawRecord = json.RawMessage(s.rawRecord)

	p.ThumbnailURL = nullStringPtr(s.thumbnailURL)
	p.AspectRatioWidth = nullInt64Ptr(s.aspectW)
	p.AspectRatioHeight = nullInt64Ptr(s.aspectH)
	p.LinkURL = nullStringPtr(s.linkURL)
	p.LinkTitle = nullStringPtr(s.linkTitle)
	p.LinkDescription = nullStringPtr(s.linkDescription)

	p.QuotedPostURI = nullStringPtr(s.quotedURI)
	p.QuotedPostCID = nullStringPtr(s.quotedCID)
	p.QuotedPostAuthorDID = nullStringPtr(s.quotedAuthorDID)
	p.QuotedPostAuthorHandle = nullStringPtr(s.quotedHandle)
	p.QuotedPostAuthorDisplayName = nullStringPtr(s.quotedDisplayName)
	p.QuotedPostText = nullStringPtr(s.quotedText)
	p.QuotedPostCreatedAt = nullTimePtr(s.quotedCreatedAt)

	p.NextPollAt = nullTimePtr(s.nextPollAt)
	return &p, nil
}

// scanPost reads one full post row from either a *sql.Row or *sql.Rows.
func scanPost(row interface{ Scan(...any) error }) (*posts.Post, error) {
	var s postScanner
	if err := row.Scan(s.dest()...); err != nil {
		return nil, err
	}
	return s.post()
}
