package users

import (
	"context"
	"time"
)

// Repository defines the interface for user data access
type Repository interface {
	// GetByDID retrieves a user by their DID.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByDID(ctx context.Context, did string) (*User, error)

	// GetByHandle retrieves a user by their current handle.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByHandle(ctx context.Context, handle string) (*User, error)

	// GetByDIDs retrieves multiple users by their DIDs in a single query.
	// This is a batch operation for performance optimization, primarily used
	// when hydrating aggregation payloads with author info.
	//
	// Parameters:
	//   - dids: Slice of DIDs to look up (duplicates are allowed)
	//
	// Returns:
	//   - Slice of users found (may be fewer than requested if some don't exist)
	//   - Missing DIDs are silently skipped, no error returned
	//
	// Example: GetByDIDs(ctx, []string{"did:plc:abc", "did:plc:xyz"})
	GetByDIDs(ctx context.Context, dids []string) ([]*User, error)

	// CountAll returns the total number of indexed users.
	CountAll(ctx context.Context) (int64, error)

	// EnsurePlaceholders inserts placeholder rows for any DIDs not yet present.
	// Existing profiles are never overwritten.
	EnsurePlaceholders(ctx context.Context, dids []string) error

	// UpsertProfiles inserts or replaces full profile rows keyed by DID.
	// last_prominent_refresh_check is intentionally left untouched on update.
	UpsertProfiles(ctx context.Context, profiles []*User) error

	// FreeConflictingHandles finds users holding one of the given handles under
	// a DID outside keepDIDs and resets their handle to a placeholder, so the
	// handle can be claimed by its new owner. Returns the number of rows changed.
	FreeConflictingHandles(ctx context.Context, handles []string, keepDIDs []string) (int64, error)

	// FilterStale returns the subset of dids whose profile was last updated
	// before the cutoff. Placeholder accounts are excluded; the refresh
	// scheduler picks those up separately.
	FilterStale(ctx context.Context, dids []string, cutoff time.Time) ([]string, error)

	// ProminentDIDs returns every DID currently flagged as prominent.
	ProminentDIDs(ctx context.Context) ([]string, error)

	// SetProminence flags or unflags a batch of DIDs as prominent.
	SetProminence(ctx context.Context, dids []string, prominent bool) error

	// ProminentDueForRefresh returns prominent DIDs whose last refresh check is
	// missing or older than the cutoff.
	ProminentDueForRefresh(ctx context.Context, cutoff time.Time) ([]string, error)

	// PlaceholderDIDs returns up to limit DIDs still carrying a placeholder handle.
	PlaceholderDIDs(ctx context.Context, limit int) ([]string, error)

	// StaleDIDs returns up to limit non-prominent DIDs last updated before the cutoff.
	StaleDIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// MarkProminentRefreshChecked records that the given prominent users were
	// considered in a refresh pass at the given time.
	MarkProminentRefreshChecked(ctx context.Context, dids []string, at time.Time) error
}

// Service handles user business logic
type Service interface {
	// GetByDID retrieves a user, returning ErrUserNotFound if absent.
	GetByDID(ctx context.Context, did string) (*User, error)

	// EnsureAuthors guarantees a user row exists for every DID, creating
	// placeholder profiles where needed.
	EnsureAuthors(ctx context.Context, dids []string) error

	// StaleAuthors returns the subset of dids due for a profile refresh.
	StaleAuthors(ctx context.Context, dids []string) ([]string, error)

	// SaveProfiles sanitizes and stores a batch of resolved profiles.
	// Handles are de-duplicated within the batch and conflicting handles held
	// by other DIDs are released first.
	SaveProfiles(ctx context.Context, profiles []*User) error
}
