package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Handle Bluesky reports for accounts whose identity state is broken.
const invalidHandle = "handle.invalid"

type service struct {
	repo       Repository
	staleAfter time.Duration
}

// NewService creates a user service.
// staleAfter controls how old a profile may get before StaleAuthors reports it.
func NewService(repo Repository, staleAfter time.Duration) Service {
	return &service{repo: repo, staleAfter: staleAfter}
}

func (s *service) GetByDID(ctx context.Context, did string) (*User, error) {
	if !strings.HasPrefix(did, "did:") {
		return nil, InvalidDIDError{DID: did, Reason: "missing did: prefix"}
	}
	return s.repo.GetByDID(ctx, did)
}

func (s *service) EnsureAuthors(ctx context.Context, dids []string) error {
	if len(dids) == 0 {
		return nil
	}
	if err := s.repo.EnsurePlaceholders(ctx, dids); err != nil {
		return fmt.Errorf("failed to ensure author placeholders: %w", err)
	}
	return nil
}

func (s *service) StaleAuthors(ctx context.Context, dids []string) ([]string, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	return s.repo.FilterStale(ctx, dids, time.Now().UTC().Add(-s.staleAfter))
}

func (s *service) SaveProfiles(ctx context.Context, profiles []*User) error {
	if len(profiles) == 0 {
		return nil
	}

	sanitized := SanitizeProfiles(profiles)

	// Release handles that moved to a different DID before upserting, otherwise
	// the unique index on handle rejects the whole batch. The displaced user
	// keeps a placeholder until the refresh scheduler re-resolves them.
	var claimed []string
	dids := make([]string, 0, len(sanitized))
	for _, u := range sanitized {
		dids = append(dids, u.DID)
		if !IsPlaceholderHandle(u.Handle) {
			claimed = append(claimed, u.Handle)
		}
	}
	if len(claimed) > 0 {
		freed, err := s.repo.FreeConflictingHandles(ctx, claimed, dids)
		if err != nil {
			return fmt.Errorf("failed to free conflicting handles: %w", err)
		}
		if freed > 0 {
			slog.Info("released handles taken over by other accounts", "count", freed)
		}
	}

	if err := s.repo.UpsertProfiles(ctx, sanitized); err != nil {
		return fmt.Errorf("failed to upsert profiles: %w", err)
	}
	return nil
}

// SanitizeProfiles de-duplicates a profile batch by DID (last write wins) and
// rewrites unusable handles. Missing handles and "handle.invalid" become
// per-DID placeholders. A placeholder that still collides within the batch
// gets a random suffix so the unique handle index can't reject the batch.
func SanitizeProfiles(profiles []*User) []*User {
	byDID := make(map[string]*User, len(profiles))
	order := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if _, ok := byDID[p.DID]; !ok {
			order = append(order, p.DID)
		}
		byDID[p.DID] = p
	}

	out := make([]*User, 0, len(byDID))
	seen := make(map[string]bool, len(byDID))
	for _, did := range order {
		u := byDID[did]
		if u.Handle == "" || u.Handle == invalidHandle {
			u.Handle = PlaceholderHandle(u.DID)
		}
		if seen[u.Handle] && IsPlaceholderHandle(u.Handle) {
			// First 8 chars of a UUID string are plain hex.
			u.Handle = u.Handle + "." + uuid.NewString()[:8]
		}
		seen[u.Handle] = true
		out = append(out, u)
	}
	return out
}
