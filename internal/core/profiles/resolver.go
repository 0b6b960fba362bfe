package profiles

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"

	"feedmaster/internal/atproto/appview"
	"feedmaster/internal/core/users"
)

// ProfileFetcher hydrates detailed profile views from the AppView.
// *appview.Client satisfies it.
type ProfileFetcher interface {
	GetProfiles(ctx context.Context, dids []string) ([]*bsky.ActorDefs_ProfileViewDetailed, error)
}

// ProfileStore persists resolved profiles. users.Service satisfies it.
type ProfileStore interface {
	SaveProfiles(ctx context.Context, profiles []*users.User) error
}

// Resolver fetches full profiles for batches of DIDs and stores them.
type Resolver struct {
	fetcher ProfileFetcher
	store   ProfileStore
}

// NewResolver creates a profile resolver.
func NewResolver(fetcher ProfileFetcher, store ProfileStore) *Resolver {
	return &Resolver{fetcher: fetcher, store: store}
}

// Resolve fetches the given DIDs in AppView-sized batches and stores every
// profile that came back in one write. A failed batch is logged and skipped
// so one bad request cannot starve the rest; the refresh scheduler retries
// its DIDs on a later pass. Returns the number of profiles stored.
func (r *Resolver) Resolve(ctx context.Context, dids []string) (int, error) {
	if len(dids) == 0 {
		return 0, nil
	}

	var resolved []*users.User
	for start := 0; start < len(dids); start += appview.MaxBatchSize {
		end := min(start+appview.MaxBatchSize, len(dids))
		batch := dids[start:end]

		views, err := r.fetcher.GetProfiles(ctx, batch)
		if err != nil {
			slog.Error("Failed to fetch profile batch", "size", len(batch), "error", err)
			continue
		}
		for _, view := range views {
			resolved = append(resolved, profileUser(view))
		}
	}

	if len(resolved) == 0 {
		return 0, nil
	}
	if err := r.store.SaveProfiles(ctx, resolved); err != nil {
		return 0, fmt.Errorf("failed to store resolved profiles: %w", err)
	}
	slog.Info("Resolved user profiles", "requested", len(dids), "stored", len(resolved))
	return len(resolved), nil
}

// profileUser maps an AppView profile view onto a user row. Accounts that
// report no creation date get the resolution time, never a zero timestamp.
func profileUser(view *bsky.ActorDefs_ProfileViewDetailed) *users.User {
	u := &users.User{
		DID:         view.Did,
		Handle:      view.Handle,
		DisplayName: view.DisplayName,
		Description: view.Description,
		AvatarURL:   view.Avatar,
	}
	if view.FollowersCount != nil {
		u.FollowersCount = *view.FollowersCount
	}
	if view.FollowsCount != nil {
		u.FollowingCount = *view.FollowsCount
	}
	if view.PostsCount != nil {
		u.PostsCount = *view.PostsCount
	}
	u.CreatedAt = time.Now().UTC()
	if view.CreatedAt != nil {
		if ts, err := time.Parse(time.RFC3339, *view.CreatedAt); err == nil {
			u.CreatedAt = ts.UTC()
		}
	}
	return u
}
