package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type service struct {
	repo    Repository
	fetcher GeneratorFetcher
}

// NewService creates a new feed service
func NewService(repo Repository, fetcher GeneratorFetcher) Service {
	return &service{
		repo:    repo,
		fetcher: fetcher,
	}
}

func (s *service) GetByID(ctx context.Context, id string) (*Feed, error) {
	if id == "" {
		return nil, ErrFeedNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetAll(ctx context.Context) ([]*Feed, error) {
	return s.repo.GetAll(ctx)
}

func (s *service) Streamable(ctx context.Context) ([]*Feed, error) {
	active, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	streamable := make([]*Feed, 0, len(active))
	for _, feed := range active {
		if feed.Streamable() {
			streamable = append(streamable, feed)
		}
	}
	return streamable, nil
}

// Seed creates or refreshes feeds from static configuration
func (s *service) Seed(ctx context.Context, configured []*Feed) error {
	seeded := 0
	for _, feed := range configured {
		if feed.ID == "" {
			slog.Warn("Skipping configured feed with missing id", "name", feed.Name)
			continue
		}
		if feed.Tier == "" {
			feed.Tier = TierBronze
		}
		// Configured feeds start active; deactivation is an admin operation
		// the seeder must not undo.
		feed.IsActive = true

		if err := s.repo.Upsert(ctx, feed); err != nil {
			return fmt.Errorf("failed to seed feed %s: %w", feed.ID, err)
		}
		seeded++
	}

	slog.Info("Seeded feeds from configuration", "count", seeded)
	return nil
}

// SyncMetadata refreshes Bluesky generator metadata for every feed with an AT URI
func (s *service) SyncMetadata(ctx context.Context) (int, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list feeds: %w", err)
	}

	synced := 0
	for _, feed := range all {
		if feed.BlueskyATURI == nil || *feed.BlueskyATURI == "" {
			continue
		}

		if err := s.syncOne(ctx, feed); err != nil {
			slog.Warn("Failed to sync feed metadata", "feedID", feed.ID, "error", err)
			continue
		}
		synced++
	}

	slog.Info("Feed metadata sync complete", "synced", synced, "total", len(all))
	return synced, nil
}

func (s *service) syncOne(ctx context.Context, feed *Feed) error {
	atURI := *feed.BlueskyATURI

	// Expected shape: at://did:plc:xyz/app.bsky.feed.generator/rkey
	parts := strings.Split(strings.TrimPrefix(atURI, "at://"), "/")
	if len(parts) != 3 {
		return &InvalidATURIError{URI: atURI}
	}

	view, err := s.fetcher.GetFeedGenerator(ctx, atURI)
	if err != nil {
		return fmt.Errorf("failed to fetch feed generator: %w", err)
	}

	// A locally configured name wins over the Bluesky display name.
	if feed.Name == "" || feed.Name == feed.ID {
		if view.DisplayName != "" {
			feed.Name = view.DisplayName
		} else {
			feed.Name = feed.ID
		}
	}
	feed.AvatarURL = view.Avatar
	feed.LikeCount = 0
	if view.LikeCount != nil {
		feed.LikeCount = *view.LikeCount
	}
	feed.BlueskyDescription = view.Description

	now := time.Now().UTC()
	feed.LastBlueskySync = &now

	if err := s.repo.UpdateBlueskyMetadata(ctx, feed); err != nil {
		return fmt.Errorf("failed to store feed metadata: %w", err)
	}
	return nil
}
