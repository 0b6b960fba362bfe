package feeds

import (
	"net/url"
	"time"
)

// Feed tiers group feeds in navigation and control aggregation priority.
const (
	TierGold   = "gold"
	TierSilver = "silver"
	TierBronze = "bronze"
)

// Feed is a curated Bluesky feed tracked by the pipeline. The ID doubles as
// the feed_id on ingested posts and aggregates. Contrails streams new posts
// for the feed; the AT URI identifies the feed generator record on Bluesky.
type Feed struct {
	ID                    string     `json:"id" db:"id"`
	Name                  string     `json:"name" db:"name"`
	Description           *string    `json:"description,omitempty" db:"description"`
	ContrailsWebsocketURL *string    `json:"contrails_websocket_url,omitempty" db:"contrails_websocket_url"`
	BlueskyATURI          *string    `json:"bluesky_at_uri,omitempty" db:"bluesky_at_uri"`
	Tier                  string     `json:"tier" db:"tier"`
	DisplayOrder          *int64     `json:"order,omitempty" db:"display_order"`
	IsActive              bool       `json:"is_active" db:"is_active"`
	OwnerDID              *string    `json:"owner_did,omitempty" db:"owner_did"`
	AvatarURL             *string    `json:"avatar_url,omitempty" db:"avatar_url"`
	LikeCount             int64      `json:"like_count" db:"like_count"`
	BlueskyDescription    *string    `json:"bluesky_description,omitempty" db:"bluesky_description"`
	LastBlueskySync       *time.Time `json:"last_bluesky_sync,omitempty" db:"last_bluesky_sync"`
	LastAggregatedAt      *time.Time `json:"last_aggregated_at,omitempty" db:"last_aggregated_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// Streamable reports whether the feed carries everything needed to open a
// Contrails stream: a websocket base URL and a generator AT URI.
func (f *Feed) Streamable() bool {
	return f.ContrailsWebsocketURL != nil && *f.ContrailsWebsocketURL != "" &&
		f.BlueskyATURI != nil && *f.BlueskyATURI != ""
}

// StreamURL composes the per-feed Contrails WebSocket URL from the base
// endpoint and the feed generator's AT URI, e.g.
// wss://api.graze.social/app/contrail?feed=at%3A%2F%2F...
func (f *Feed) StreamURL() string {
	if !f.Streamable() {
		return ""
	}
	return *f.ContrailsWebsocketURL + "?feed=" + url.QueryEscape(*f.BlueskyATURI)
}
