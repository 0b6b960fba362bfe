package users

import (
	"strings"
	"time"
)

// User represents an indexed Bluesky account.
// Accounts enter the index as placeholders the moment one of their posts is
// ingested; the profile resolver fills in the real handle and profile fields
// afterwards.
type User struct {
	DID                       string     `json:"did" db:"did"`
	Handle                    string     `json:"handle" db:"handle"`
	DisplayName               *string    `json:"displayName,omitempty" db:"display_name"`
	Description               *string    `json:"description,omitempty" db:"description"`
	AvatarURL                 *string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	FollowersCount            int64      `json:"followersCount" db:"followers_count"`
	FollowingCount            int64      `json:"followingCount" db:"following_count"`
	PostsCount                int64      `json:"postsCount" db:"posts_count"`
	CreatedAt                 time.Time  `json:"createdAt" db:"created_at"`
	LastUpdated               time.Time  `json:"lastUpdated" db:"last_updated"`
	IsProminent               bool       `json:"isProminent" db:"is_prominent"`
	LastProminentRefreshCheck *time.Time `json:"lastProminentRefreshCheck,omitempty" db:"last_prominent_refresh_check"`
}

const placeholderHandlePrefix = "unknown."

// PlaceholderHandle derives the synthetic handle used for an account whose
// profile has not been resolved yet. The DID's last segment keeps placeholders
// unique per account, e.g. did:plc:abc123 -> unknown.abc123.
func PlaceholderHandle(did string) string {
	parts := strings.Split(did, ":")
	return placeholderHandlePrefix + parts[len(parts)-1]
}

// IsPlaceholderHandle reports whether a handle was synthesized by
// PlaceholderHandle rather than resolved from the network.
func IsPlaceholderHandle(handle string) bool {
	return strings.HasPrefix(handle, placeholderHandlePrefix)
}
