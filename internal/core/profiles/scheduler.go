package profiles

import (
	"context"
	"log/slog"
	"time"
)

// Batch limits for the slow-path refresh categories. Placeholders get the
// bigger share because they render as "unknown.*" until resolved; the
// general sweep just works through backlog.
const (
	placeholderBatchLimit = 100
	staleBatchLimit       = 50
)

// generalStaleness is how old a non-prominent profile may get before the
// sweep picks it up again.
const generalStaleness = 30 * 24 * time.Hour

// RefreshSource selects the users due for a profile refresh.
// users.Repository satisfies it.
type RefreshSource interface {
	ProminentDueForRefresh(ctx context.Context, cutoff time.Time) ([]string, error)
	PlaceholderDIDs(ctx context.Context, limit int) ([]string, error)
	StaleDIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	MarkProminentRefreshChecked(ctx context.Context, dids []string, at time.Time) error
}

// ProfileResolver fetches and stores profiles for a set of DIDs.
// *Resolver satisfies it.
type ProfileResolver interface {
	Resolve(ctx context.Context, dids []string) (int, error)
}

// Scheduler periodically queues profile refreshes for three categories:
// prominent users on a fast cadence, placeholder accounts awaiting their
// first resolution, and a slow sweep over long-stale profiles.
type Scheduler struct {
	source            RefreshSource
	resolver          ProfileResolver
	checkInterval     time.Duration
	prominentInterval time.Duration
}

// NewScheduler creates a profile refresh scheduler.
func NewScheduler(source RefreshSource, resolver ProfileResolver, checkInterval, prominentInterval time.Duration) *Scheduler {
	return &Scheduler{
		source:            source,
		resolver:          resolver,
		checkInterval:     checkInterval,
		prominentInterval: prominentInterval,
	}
}

// Start runs refresh passes until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting profile refresh scheduler",
		"checkInterval", s.checkInterval,
		"prominentInterval", s.prominentInterval)

	for {
		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			slog.Info("Profile refresh scheduler stopped")
			return
		case <-time.After(s.checkInterval):
		}
	}
}

// runCycle gathers the three refresh categories, resolves the union, and
// stamps the prominent slice. A category that fails to list is skipped this
// pass rather than blocking the others.
func (s *Scheduler) runCycle(ctx context.Context) {
	now := time.Now().UTC()

	prominent, err := s.source.ProminentDueForRefresh(ctx, now.Add(-s.prominentInterval))
	if err != nil {
		slog.Error("Failed to list prominent users due for refresh", "error", err)
		prominent = nil
	}
	placeholders, err := s.source.PlaceholderDIDs(ctx, placeholderBatchLimit)
	if err != nil {
		slog.Error("Failed to list placeholder users", "error", err)
		placeholders = nil
	}
	stale, err := s.source.StaleDIDs(ctx, now.Add(-generalStaleness), staleBatchLimit)
	if err != nil {
		slog.Error("Failed to list stale users", "error", err)
		stale = nil
	}

	dids := dedupe(prominent, placeholders, stale)
	if len(dids) == 0 {
		return
	}

	slog.Info("Refreshing user profiles",
		"total", len(dids),
		"prominent", len(prominent),
		"placeholders", len(placeholders),
		"stale", len(stale))

	if _, err := s.resolver.Resolve(ctx, dids); err != nil {
		// Leave last_prominent_refresh_check alone so the next pass retries.
		slog.Error("Profile refresh failed", "error", err)
		return
	}

	if len(prominent) > 0 {
		if err := s.source.MarkProminentRefreshChecked(ctx, prominent, now); err != nil {
			slog.Error("Failed to stamp prominent refresh checks", "error", err)
		}
	}
}

func dedupe(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, did := range group {
			if seen[did] {
				continue
			}
			seen[did] = true
			out = append(out, did)
		}
	}
	return out
}
