package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"feedmaster/internal/core/feeds"
)

// cacheTTL bounds how long a mirrored payload outlives its recompute.
const cacheTTL = 10 * time.Minute

// FeedSource lists the feeds to aggregate and records completion.
type FeedSource interface {
	GetActive(ctx context.Context) ([]*feeds.Feed, error)
	SetLastAggregatedAt(ctx context.Context, id string, at time.Time) error
}

// ProminenceStore maintains the prominent-user flags the profile resolver
// uses to refresh top users on a faster cadence.
type ProminenceStore interface {
	ProminentDIDs(ctx context.Context) ([]string, error)
	SetProminence(ctx context.Context, dids []string, prominent bool) error
}

// Cache mirrors fresh payloads for fast reads. Implementations log and
// swallow their own errors; a cache outage never blocks aggregation.
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

// Worker periodically recomputes aggregates for every active feed and keeps
// the prominent-user set in sync with what the payloads surface.
type Worker struct {
	svc          Service
	repo         Repository
	feeds        FeedSource
	users        ProminenceStore
	cache        Cache
	interval     time.Duration
	feedInterval time.Duration

	// surfaced carries each pair's DIDs from its last compute, so pairs
	// skipped by the freshness check still count toward prominence.
	surfaced map[string][]string
}

// NewWorker creates an aggregation worker. cache may be nil to disable
// payload mirroring. feedInterval gates whole feeds between passes; gold
// tier feeds run at half that interval.
func NewWorker(
	svc Service,
	repo Repository,
	feedSource FeedSource,
	users ProminenceStore,
	cache Cache,
	interval time.Duration,
	feedInterval time.Duration,
) *Worker {
	return &Worker{
		svc:          svc,
		repo:         repo,
		feeds:        feedSource,
		users:        users,
		cache:        cache,
		interval:     interval,
		feedInterval: feedInterval,
		surfaced:     make(map[string][]string),
	}
}

// Start runs aggregation cycles until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("Aggregation worker started", "interval", w.interval)
	for {
		w.runCycle(ctx)
		select {
		case <-ctx.Done():
			slog.Info("Aggregation worker stopped")
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	started := time.Now().UTC()

	active, err := w.feeds.GetActive(ctx)
	if err != nil {
		slog.Error("Failed to list feeds for aggregation", "error", err)
		return
	}

	computed, skipped, failed := 0, 0, 0
	for _, feed := range active {
		if ctx.Err() != nil {
			return
		}
		if feed.LastAggregatedAt != nil && started.Sub(*feed.LastAggregatedAt) < w.effectiveFeedInterval(feed.Tier) {
			continue
		}

		c, s, f := w.aggregateFeed(ctx, feed.ID, started)
		computed += c
		skipped += s
		failed += f

		if c > 0 {
			if err := w.feeds.SetLastAggregatedAt(ctx, feed.ID, time.Now().UTC()); err != nil {
				slog.Warn("Failed to record aggregation time", "feedID", feed.ID, "error", err)
			}
		}
	}

	if computed > 0 {
		w.updateProminence(ctx)
	}

	slog.Info("Aggregation cycle complete",
		"feeds", len(active),
		"computed", computed,
		"skipped", skipped,
		"failed", failed,
		"elapsed", time.Since(started).Round(time.Millisecond))
}

// Gold feeds refresh twice as often as the configured default.
func (w *Worker) effectiveFeedInterval(tier string) time.Duration {
	if tier == feeds.TierGold {
		if half := w.feedInterval / 2; half >= time.Minute {
			return half
		}
		return time.Minute
	}
	return w.feedInterval
}

func (w *Worker) aggregateFeed(ctx context.Context, feedID string, now time.Time) (computed, skipped, failed int) {
	for _, def := range Schedule {
		for _, tf := range def.Timeframes {
			if ctx.Err() != nil {
				return
			}

			fresh, err := w.recentlyComputed(ctx, feedID, def.Name, tf, now)
			if err != nil {
				slog.Warn("Failed to read aggregate age", "feedID", feedID, "name", def.Name, "timeframe", tf, "error", err)
			}
			if fresh {
				skipped++
				continue
			}

			if err := w.computeOne(ctx, feedID, def.Name, tf); err != nil {
				slog.Error("Aggregation failed", "feedID", feedID, "name", def.Name, "timeframe", tf, "error", err)
				failed++
				continue
			}
			computed++
		}
	}
	return
}

func (w *Worker) recentlyComputed(ctx context.Context, feedID, name string, tf Timeframe, now time.Time) (bool, error) {
	last, err := w.repo.LastUpdated(ctx, feedID, name, tf)
	if err != nil {
		return false, err
	}
	if last == nil {
		return false, nil
	}
	return now.Sub(*last) < MinRecomputeInterval(name, tf), nil
}

func (w *Worker) computeOne(ctx context.Context, feedID, name string, tf Timeframe) error {
	res, err := w.svc.Compute(ctx, feedID, name, tf)
	if err != nil {
		return err
	}

	data, err := json.Marshal(res.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := w.repo.Upsert(ctx, &Aggregate{FeedID: feedID, Name: name, Timeframe: tf, Data: data}); err != nil {
		return fmt.Errorf("failed to store aggregate: %w", err)
	}

	if w.cache != nil {
		w.cache.Set(ctx, cacheKey(feedID, name, tf), data, cacheTTL)
	}
	w.surfaced[pairKey(feedID, name, tf)] = res.Prominent
	return nil
}

// updateProminence diffs the DIDs surfaced across every pair against the
// currently flagged set and applies both directions in bulk.
func (w *Worker) updateProminence(ctx context.Context) {
	desired := make(map[string]struct{})
	for _, dids := range w.surfaced {
		for _, did := range dids {
			desired[did] = struct{}{}
		}
	}

	current, err := w.users.ProminentDIDs(ctx)
	if err != nil {
		slog.Error("Failed to load prominent users", "error", err)
		return
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, did := range current {
		currentSet[did] = struct{}{}
	}

	var toAdd, toRemove []string
	for did := range desired {
		if _, ok := currentSet[did]; !ok {
			toAdd = append(toAdd, did)
		}
	}
	for _, did := range current {
		if _, ok := desired[did]; !ok {
			toRemove = append(toRemove, did)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)

	if len(toAdd) > 0 {
		if err := w.users.SetProminence(ctx, toAdd, true); err != nil {
			slog.Error("Failed to flag prominent users", "count", len(toAdd), "error", err)
		}
	}
	if len(toRemove) > 0 {
		if err := w.users.SetProminence(ctx, toRemove, false); err != nil {
			slog.Error("Failed to unflag prominent users", "count", len(toRemove), "error", err)
		}
	}
	if len(toAdd) > 0 || len(toRemove) > 0 {
		slog.Info("Prominent user set updated", "added", len(toAdd), "removed", len(toRemove), "total", len(desired))
	}
}

func cacheKey(feedID, name string, tf Timeframe) string {
	return "agg:" + feedID + ":" + name + ":" + string(tf)
}

func pairKey(feedID, name string, tf Timeframe) string {
	return feedID + "/" + name + "/" + string(tf)
}
