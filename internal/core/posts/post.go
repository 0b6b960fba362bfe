package posts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Post is the canonical indexed form of an app.bsky.feed.post record together
// with the engagement counters maintained by the polling worker.
type Post struct {
	ID         uuid.UUID `json:"id" db:"id"`
	URI        string    `json:"uri" db:"uri"`
	CID        string    `json:"cid" db:"cid"`
	Text       string    `json:"text" db:"text"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	IngestedAt time.Time `json:"ingestedAt" db:"ingested_at"`
	AuthorDID  string    `json:"authorDid" db:"author_did"`

	HasImage   bool `json:"hasImage" db:"has_image"`
	HasAltText bool `json:"hasAltText" db:"has_alt_text"`
	HasVideo   bool `json:"hasVideo" db:"has_video"`
	HasLink    bool `json:"hasLink" db:"has_link"`
	HasQuote   bool `json:"hasQuote" db:"has_quote"`
	HasMention bool `json:"hasMention" db:"has_mention"`

	Images            []ImageDetail `json:"images,omitempty" db:"images"`
	ThumbnailURL      *string       `json:"thumbnailUrl,omitempty" db:"thumbnail_url"`
	AspectRatioWidth  *int64        `json:"aspectRatioWidth,omitempty" db:"aspect_ratio_width"`
	AspectRatioHeight *int64        `json:"aspectRatioHeight,omitempty" db:"aspect_ratio_height"`

	LinkURL         *string `json:"linkUrl,omitempty" db:"link_url"`
	LinkTitle       *string `json:"linkTitle,omitempty" db:"link_title"`
	LinkDescription *string `json:"linkDescription,omitempty" db:"link_description"`

	Hashtags []string     `json:"hashtags,omitempty" db:"hashtags"`
	Links    []LinkDetail `json:"links,omitempty" db:"links"`
	Mentions []Mention    `json:"mentions,omitempty" db:"mentions"`

	// Raw JSON preserved verbatim from the firehose record.
	Embed     json.RawMessage `json:"embed,omitempty" db:"embeds"`
	Facets    json.RawMessage `json:"facets,omitempty" db:"facets"`
	RawRecord json.RawMessage `json:"rawRecord" db:"raw_record"`

	// Quoted post details, flattened from app.bsky.embed.record embeds.
	QuotedPostURI               *string    `json:"quotedPostUri,omitempty" db:"quoted_post_uri"`
	QuotedPostCID               *string    `json:"quotedPostCid,omitempty" db:"quoted_post_cid"`
	QuotedPostAuthorDID         *string    `json:"quotedPostAuthorDid,omitempty" db:"quoted_post_author_did"`
	QuotedPostAuthorHandle      *string    `json:"quotedPostAuthorHandle,omitempty" db:"quoted_post_author_handle"`
	QuotedPostAuthorDisplayName *string    `json:"quotedPostAuthorDisplayName,omitempty" db:"quoted_post_author_display_name"`
	QuotedPostText              *string    `json:"quotedPostText,omitempty" db:"quoted_post_text"`
	QuotedPostLikeCount         int64      `json:"quotedPostLikeCount" db:"quoted_post_like_count"`
	QuotedPostRepostCount       int64      `json:"quotedPostRepostCount" db:"quoted_post_repost_count"`
	QuotedPostReplyCount        int64      `json:"quotedPostReplyCount" db:"quoted_post_reply_count"`
	QuotedPostCreatedAt         *time.Time `json:"quotedPostCreatedAt,omitempty" db:"quoted_post_created_at"`

	LikeCount       int64   `json:"likeCount" db:"like_count"`
	RepostCount     int64   `json:"repostCount" db:"repost_count"`
	ReplyCount      int64   `json:"replyCount" db:"reply_count"`
	QuoteCount      int64   `json:"quoteCount" db:"quote_count"`
	EngagementScore float64 `json:"engagementScore" db:"engagement_score"`

	IsActiveForPolling bool       `json:"isActiveForPolling" db:"is_active_for_polling"`
	NextPollAt         *time.Time `json:"nextPollAt,omitempty" db:"next_poll_at"`
}

// FeedPost links a post to one feed it was seen on. A post observed on
// multiple Contrails streams gets one row per feed.
type FeedPost struct {
	ID             uuid.UUID `json:"id" db:"id"`
	PostID         uuid.UUID `json:"postId" db:"post_id"`
	FeedID         string    `json:"feedId" db:"feed_id"`
	RelevanceScore float64   `json:"relevanceScore" db:"relevance_score"`
	IngestedAt     time.Time `json:"ingestedAt" db:"ingested_at"`
}

// ImageDetail is one resolved image attachment.
type ImageDetail struct {
	URL string  `json:"url"`
	Alt *string `json:"alt,omitempty"`
}

// LinkDetail is one outbound link referenced by a post.
type LinkDetail struct {
	URI string `json:"uri"`
}

// Mention is one account referenced through a mention facet.
type Mention struct {
	DID         string  `json:"did"`
	Handle      *string `json:"handle,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
}
