package aggregates

import (
	"encoding/json"
	"time"

	"feedmaster/internal/core/posts"
)

// PostCard is the hydrated post payload stored inside content aggregations.
// JSON keys are the stored contract consumed by the read API, so every field
// is emitted even when null.
type PostCard struct {
	Type                   string              `json:"type"`
	URI                    string              `json:"uri"`
	CID                    string              `json:"cid"`
	AuthorDID              string              `json:"author_did"`
	Text                   string              `json:"text"`
	EngagementScore        int64               `json:"engagement_score"`
	LikeCount              int64               `json:"like_count"`
	RepostCount            int64               `json:"repost_count"`
	ReplyCount             int64               `json:"reply_count"`
	QuoteCount             int64               `json:"quote_count"`
	CreatedAt              string              `json:"created_at"`
	Embeds                 json.RawMessage     `json:"embeds"`
	HasImage               bool                `json:"has_image"`
	HasVideo               bool                `json:"has_video"`
	Images                 []posts.ImageDetail `json:"images"`
	ThumbnailURL           *string             `json:"thumbnail_url"`
	AspectRatioWidth       *int64              `json:"aspect_ratio_width"`
	AspectRatioHeight      *int64              `json:"aspect_ratio_height"`
	LinkURL                *string             `json:"link_url"`
	LinkTitle              *string             `json:"link_title"`
	LinkDescription        *string             `json:"link_description"`
	QuotedPostURI          *string             `json:"quoted_post_uri"`
	QuotedPostText         *string             `json:"quoted_post_text"`
	QuotedPostAuthorHandle *string             `json:"quoted_post_author_handle"`
	Author                 string              `json:"author"`
	Avatar                 string              `json:"avatar"`
	PostURL                string              `json:"post_url"`
}

// UserCard is the user payload stored inside user aggregations. The extras
// beyond the profile fields vary per aggregation: a count, the first post
// time or a streak length.
type UserCard struct {
	Type          string  `json:"type"`
	DID           string  `json:"did"`
	Handle        string  `json:"handle"`
	DisplayName   *string `json:"display_name"`
	AvatarURL     *string `json:"avatar_url"`
	Count         *int64  `json:"count,omitempty"`
	FirstPostAt   *string `json:"first_post_at,omitempty"`
	LongestStreak *int64  `json:"longest_streak,omitempty"`
}

// HashtagCard counts distinct posts using one lowercased hashtag.
type HashtagCard struct {
	Type    string `json:"type"`
	Hashtag string `json:"hashtag"`
	Count   int64  `json:"count"`
}

// LinkCard counts shares of one link URI.
type LinkCard struct {
	Type  string `json:"type"`
	URI   string `json:"uri"`
	Count int64  `json:"count"`
}

// DomainCard counts link shares per domain.
type DomainCard struct {
	Type   string `json:"type"`
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// ExternalCard is an unfurled link card: the external embed's URL, title,
// description and preview image as extracted at ingestion. URI addresses the
// post that shared it.
type ExternalCard struct {
	Type        string  `json:"type"`
	URI         string  `json:"uri"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Image       *string `json:"image"`
	Count       int64   `json:"count"`
}

// GeoCard counts posts inferred to one location. Exactly one of City, Region
// or Country is set depending on the aggregation level.
type GeoCard struct {
	Type    string  `json:"type"`
	City    *string `json:"city,omitempty"`
	Region  *string `json:"region,omitempty"`
	Country *string `json:"country,omitempty"`
	Count   int64   `json:"count"`
}

// newPostCard hydrates a card from a scored post row. The author label falls
// back from display name to handle; videos without a stored thumbnail get one
// derived from the raw record's video blob.
func newPostCard(row *ScoredPost) *PostCard {
	p := row.Post

	author := "Unknown"
	switch {
	case row.AuthorDisplayName != nil && *row.AuthorDisplayName != "":
		author = *row.AuthorDisplayName
	case row.AuthorHandle != "":
		author = row.AuthorHandle
	}

	avatar := ""
	if row.AuthorAvatarURL != nil {
		avatar = *row.AuthorAvatarURL
	}

	thumbnail := p.ThumbnailURL
	if thumbnail == nil && p.HasVideo && len(p.RawRecord) > 0 {
		if url := posts.VideoHLSThumbnail(p.AuthorDID, p.RawRecord); url != "" {
			thumbnail = &url
		}
	}

	return &PostCard{
		Type:                   "post_card",
		URI:                    p.URI,
		CID:                    p.CID,
		AuthorDID:              p.AuthorDID,
		Text:                   p.Text,
		EngagementScore:        row.Score,
		LikeCount:              p.LikeCount,
		RepostCount:            p.RepostCount,
		ReplyCount:             p.ReplyCount,
		QuoteCount:             p.QuoteCount,
		CreatedAt:              p.CreatedAt.UTC().Format(time.RFC3339),
		Embeds:                 p.Embed,
		HasImage:               p.HasImage,
		HasVideo:               p.HasVideo,
		Images:                 p.Images,
		ThumbnailURL:           thumbnail,
		AspectRatioWidth:       p.AspectRatioWidth,
		AspectRatioHeight:      p.AspectRatioHeight,
		LinkURL:                p.LinkURL,
		LinkTitle:              p.LinkTitle,
		LinkDescription:        p.LinkDescription,
		QuotedPostURI:          p.QuotedPostURI,
		QuotedPostText:         p.QuotedPostText,
		QuotedPostAuthorHandle: p.QuotedPostAuthorHandle,
		Author:                 author,
		Avatar:                 avatar,
		PostURL:                posts.WebURL(row.AuthorHandle, p.URI),
	}
}

func newUserCard(did, handle string, displayName, avatarURL *string) *UserCard {
	return &UserCard{
		Type:        "user",
		DID:         did,
		Handle:      handle,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
	}
}
