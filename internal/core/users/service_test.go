package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetByDID(ctx context.Context, did string) (*User, error) {
	args := m.Called(ctx, did)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockRepository) GetByHandle(ctx context.Context, handle string) (*User, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockRepository) GetByDIDs(ctx context.Context, dids []string) ([]*User, error) {
	args := m.Called(ctx, dids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*User), args.Error(1)
}

func (m *mockRepository) CountAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepository) EnsurePlaceholders(ctx context.Context, dids []string) error {
	args := m.Called(ctx, dids)
	return args.Error(0)
}

func (m *mockRepository) UpsertProfiles(ctx context.Context, profiles []*User) error {
	args := m.Called(ctx, profiles)
	return args.Error(0)
}

func (m *mockRepository) FreeConflictingHandles(ctx context.Context, handles []string, keepDIDs []string) (int64, error) {
	args := m.Called(ctx, handles, keepDIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepository) FilterStale(ctx context.Context, dids []string, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, dids, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRepository) ProminentDIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRepository) SetProminence(ctx context.Context, dids []string, prominent bool) error {
	args := m.Called(ctx, dids, prominent)
	return args.Error(0)
}

func (m *mockRepository) ProminentDueForRefresh(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRepository) PlaceholderDIDs(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRepository) StaleDIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRepository) MarkProminentRefreshChecked(ctx context.Context, dids []string, at time.Time) error {
	args := m.Called(ctx, dids, at)
	return args.Error(0)
}

func TestPlaceholderHandle(t *testing.T) {
	tests := []struct {
		name     string
		did      string
		expected string
	}{
		{
			name:     "plc DID",
			did:      "did:plc:abc123xyz",
			expected: "unknown.abc123xyz",
		},
		{
			name:     "web DID",
			did:      "did:web:example.com",
			expected: "unknown.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PlaceholderHandle(tt.did))
		})
	}
}

func TestSanitizeProfiles_InvalidHandleBecomesPlaceholder(t *testing.T) {
	profiles := []*User{
		{DID: "did:plc:aaa", Handle: "handle.invalid"},
		{DID: "did:plc:bbb", Handle: ""},
		{DID: "did:plc:ccc", Handle: "carol.bsky.social"},
	}

	out := SanitizeProfiles(profiles)
	require.Len(t, out, 3)

	assert.Equal(t, "unknown.aaa", out[0].Handle)
	assert.Equal(t, "unknown.bbb", out[1].Handle)
	assert.Equal(t, "carol.bsky.social", out[2].Handle)
}

func TestSanitizeProfiles_DedupesByDIDLastWins(t *testing.T) {
	first := "First"
	second := "Second"
	profiles := []*User{
		{DID: "did:plc:aaa", Handle: "alice.bsky.social", DisplayName: &first},
		{DID: "did:plc:aaa", Handle: "alice.bsky.social", DisplayName: &second},
	}

	out := SanitizeProfiles(profiles)
	require.Len(t, out, 1)
	assert.Equal(t, "Second", *out[0].DisplayName)
}

func TestSanitizeProfiles_CollidingPlaceholdersGetSuffix(t *testing.T) {
	// Two different DIDs that would map to the same placeholder handle.
	profiles := []*User{
		{DID: "did:plc:same", Handle: "handle.invalid"},
		{DID: "did:web:same", Handle: ""},
	}

	out := SanitizeProfiles(profiles)
	require.Len(t, out, 2)

	assert.Equal(t, "unknown.same", out[0].Handle)
	assert.NotEqual(t, out[0].Handle, out[1].Handle)
	assert.True(t, IsPlaceholderHandle(out[1].Handle))
	// Suffix form: unknown.same.<8 hex chars>
	assert.Len(t, out[1].Handle, len("unknown.same.")+8)
}

func TestSanitizeProfiles_RealHandleCollisionNotSuffixed(t *testing.T) {
	// Resolved handles are never rewritten in-batch; the repository pre-pass
	// handles DB-level conflicts instead.
	profiles := []*User{
		{DID: "did:plc:aaa", Handle: "shared.bsky.social"},
		{DID: "did:plc:bbb", Handle: "shared.bsky.social"},
	}

	out := SanitizeProfiles(profiles)
	require.Len(t, out, 2)
	assert.Equal(t, "shared.bsky.social", out[0].Handle)
	assert.Equal(t, "shared.bsky.social", out[1].Handle)
}

func TestSaveProfiles_FreesConflictingHandlesFirst(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo, 24*time.Hour)

	profiles := []*User{
		{DID: "did:plc:aaa", Handle: "alice.bsky.social"},
		{DID: "did:plc:bbb", Handle: "handle.invalid"},
	}

	repo.On("FreeConflictingHandles", mock.Anything, []string{"alice.bsky.social"},
		[]string{"did:plc:aaa", "did:plc:bbb"}).Return(int64(1), nil)
	repo.On("UpsertProfiles", mock.Anything, mock.MatchedBy(func(us []*User) bool {
		return len(us) == 2 && us[1].Handle == "unknown.bbb"
	})).Return(nil)

	err := svc.SaveProfiles(context.Background(), profiles)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestSaveProfiles_AllPlaceholdersSkipsConflictPass(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo, 24*time.Hour)

	profiles := []*User{{DID: "did:plc:aaa", Handle: ""}}

	repo.On("UpsertProfiles", mock.Anything, mock.Anything).Return(nil)

	err := svc.SaveProfiles(context.Background(), profiles)
	require.NoError(t, err)
	repo.AssertNotCalled(t, "FreeConflictingHandles", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetByDID_RejectsMalformedDID(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo, 24*time.Hour)

	_, err := svc.GetByDID(context.Background(), "not-a-did")
	require.Error(t, err)

	var invalidErr InvalidDIDError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestEnsureAuthors_EmptyBatchIsNoop(t *testing.T) {
	repo := new(mockRepository)
	svc := NewService(repo, 24*time.Hour)

	require.NoError(t, svc.EnsureAuthors(context.Background(), nil))
	repo.AssertNotCalled(t, "EnsurePlaceholders", mock.Anything, mock.Anything)
}
