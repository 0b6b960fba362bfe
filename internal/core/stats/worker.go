package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// UserCounter supplies the total user count, the denominator of global
// rarity. users.Repository satisfies it.
type UserCounter interface {
	CountAll(ctx context.Context) (int64, error)
}

// Worker maintains UserStats incrementally, awards achievements to users
// whose stats changed, and recomputes rarity on a slow cadence.
type Worker struct {
	repo     Repository
	svc      Service
	users    UserCounter
	interval time.Duration
	// rarityEvery spaces full rarity recomputation, which scans every award.
	rarityEvery time.Duration

	// lastProcessed is the post-creation high-water mark. Nil forces a full
	// stats rebuild, which happens on every process start.
	lastProcessed *time.Time
	lastRarity    time.Time
}

// NewWorker creates a stats and achievements worker.
func NewWorker(repo Repository, svc Service, users UserCounter, interval, rarityEvery time.Duration) *Worker {
	return &Worker{
		repo:        repo,
		svc:         svc,
		users:       users,
		interval:    interval,
		rarityEvery: rarityEvery,
	}
}

// Start seeds the achievement registry and runs update cycles until the
// context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("Starting stats worker",
		"interval", w.interval,
		"rarityInterval", w.rarityEvery)

	if err := w.seedAchievements(ctx); err != nil {
		slog.Error("Failed to seed achievements", "error", err)
	}

	for {
		w.runCycle(ctx)

		select {
		case <-ctx.Done():
			slog.Info("Stats worker stopped")
			return
		case <-time.After(w.interval):
		}
	}
}

// seedAchievements inserts registry definitions whose keys are not in the DB
// yet. Existing rows are left untouched so edits made through the admin
// surface survive restarts.
func (w *Worker) seedAchievements(ctx context.Context) error {
	existing, err := w.repo.Achievements(ctx)
	if err != nil {
		return fmt.Errorf("failed to load achievements: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.Key] = true
	}

	created := 0
	for _, def := range Definitions() {
		if known[def.Key] {
			continue
		}
		if err := w.repo.CreateAchievement(ctx, def.Achievement()); err != nil {
			return fmt.Errorf("failed to create achievement %s: %w", def.Key, err)
		}
		created++
	}
	if created > 0 {
		slog.Info("Seeded new achievements", "count", created)
	}
	return nil
}

func (w *Worker) runCycle(ctx context.Context) {
	if err := w.updateStats(ctx); err != nil {
		slog.Error("Stats update failed", "error", err)
	}

	if time.Since(w.lastRarity) >= w.rarityEvery {
		if err := w.updateRarity(ctx); err != nil {
			slog.Error("Rarity update failed", "error", err)
		} else {
			w.lastRarity = time.Now().UTC()
		}
	}
}

// updateStats recomputes stats rows touched since the high-water mark,
// merges them in, and awards achievements to the affected users. The mark
// advances as soon as the stats rows are committed: counters are merged
// additively, so replaying a window after a partial failure would double
// count.
func (w *Worker) updateStats(ctx context.Context) error {
	full := w.lastProcessed == nil
	rows, err := w.repo.ComputeStats(ctx, w.lastProcessed)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}
	if len(rows) == 0 {
		slog.Info("No new post activity since last stats cycle")
		return nil
	}

	if err := w.repo.UpsertStats(ctx, rows, !full); err != nil {
		return fmt.Errorf("failed to store stats: %w", err)
	}

	mark := w.highWaterMark(rows)
	w.lastProcessed = &mark

	dids := touchedUsers(rows)
	slog.Info("Updated user stats",
		"rows", len(rows),
		"users", len(dids),
		"fullRebuild", full)

	if _, err := w.svc.AwardAchievements(ctx, dids); err != nil {
		return fmt.Errorf("failed to award achievements: %w", err)
	}
	return nil
}

func (w *Worker) highWaterMark(rows []*UserStats) time.Time {
	var mark time.Time
	for _, row := range rows {
		if row.LatestPostAt.After(mark) {
			mark = row.LatestPostAt
		}
	}
	return mark
}

func touchedUsers(rows []*UserStats) []string {
	seen := make(map[string]bool, len(rows))
	dids := make([]string, 0, len(rows))
	for _, row := range rows {
		if seen[row.UserDID] {
			continue
		}
		seen[row.UserDID] = true
		dids = append(dids, row.UserDID)
	}
	return dids
}

// updateRarity recomputes global rarity for every global achievement and
// per-feed rarity for every (achievement, feed) that has awards.
func (w *Worker) updateRarity(ctx context.Context) error {
	achievements, err := w.repo.Achievements(ctx)
	if err != nil {
		return fmt.Errorf("failed to load achievements: %w", err)
	}

	totalUsers, err := w.users.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if totalUsers == 0 {
		slog.Warn("No users indexed yet, skipping rarity update")
		return nil
	}

	earners, err := w.repo.GlobalEarnerCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count global earners: %w", err)
	}
	updated := 0
	for _, a := range achievements {
		if a.Type != TypeGlobal {
			continue
		}
		pct := float64(earners[a.ID]) / float64(totalUsers) * 100
		tier := TierForPercentage(pct)
		if err := w.repo.SetGlobalRarity(ctx, a.ID, pct, tier.Name, GlobalRarityLabel(tier)); err != nil {
			return fmt.Errorf("failed to store global rarity for %s: %w", a.Key, err)
		}
		updated++
	}

	feedRows, err := w.feedRarity(ctx)
	if err != nil {
		return err
	}
	slog.Info("Recomputed achievement rarity",
		"global", updated,
		"perFeed", feedRows,
		"totalUsers", totalUsers)
	return nil
}

func (w *Worker) feedRarity(ctx context.Context) (int, error) {
	posters, err := w.repo.PostersPerFeed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count posters per feed: %w", err)
	}
	if len(posters) == 0 {
		return 0, nil
	}

	counts, err := w.repo.FeedEarnerCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count feed earners: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]*FeedRarity, 0, len(counts))
	for _, c := range counts {
		// A feed with awards but no stats rows yet reads as fully common.
		pct := 100.0
		if total := posters[c.FeedID]; total > 0 {
			pct = float64(c.Earners) / float64(total) * 100
		}
		tier := TierForPercentage(pct)
		rows = append(rows, &FeedRarity{
			AchievementID:    c.AchievementID,
			FeedID:           c.FeedID,
			RarityPercentage: pct,
			RarityTier:       tier.Name,
			RarityLabel:      FeedRarityLabel(tier),
			LastUpdated:      now,
		})
	}
	if err := w.repo.UpsertFeedRarity(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to store feed rarity: %w", err)
	}
	return len(rows), nil
}
