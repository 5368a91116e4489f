package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRevocationStore implements RevocationStore for testing
type MockRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	epochs  map[string]time.Time
}

func NewMockRevocationStore() *MockRevocationStore {
	return &MockRevocationStore{
		revoked: make(map[string]time.Time),
		epochs:  make(map[string]time.Time),
	}
}

func (m *MockRevocationStore) Revoke(_ context.Context, jti, _, _, _ string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = expiresAt
	return nil
}

func (m *MockRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *MockRevocationStore) SetEpoch(_ context.Context, subjectID string, revokedBefore time.Time, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.epochs[subjectID]; !ok || revokedBefore.After(existing) {
		m.epochs[subjectID] = revokedBefore
	}
	return nil
}

func (m *MockRevocationStore) EpochFor(_ context.Context, subjectID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	epoch, ok := m.epochs[subjectID]
	if !ok {
		return nil, nil
	}
	return &epoch, nil
}

func newTokenService(revocations auth.RevocationStore) *auth.TokenService {
	return auth.NewTokenService(
		"access-secret-for-tests-0123",
		"refresh-secret-for-tests-0123",
		"civicwatch",
		"civicwatch-api",
		2*time.Hour,
		7*24*time.Hour,
		revocations,
	)
}

func TestTokenServiceIssueAndVerify(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())
	ctx := context.Background()

	perms := models.ResolvePermissions("staff")
	pair, err := ts.Issue("subject-1", "staff", perms)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessJTI, pair.RefreshJTI)

	claims, err := ts.Verify(ctx, pair.AccessToken, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", claims.Subject)
	assert.Equal(t, "staff", claims.Role)
	assert.Equal(t, models.TokenTypeAccess, claims.Type)
	assert.True(t, claims.Permissions.Has(models.PermIssuesAssign))

	refreshClaims, err := ts.Verify(ctx, pair.RefreshToken, models.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeRefresh, refreshClaims.Type)
}

func TestTokenServiceRejectsWrongTokenType(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())
	ctx := context.Background()

	pair, err := ts.Issue("subject-1", "citizen", models.ResolvePermissions("citizen"))
	require.NoError(t, err)

	_, err = ts.Verify(ctx, pair.AccessToken, models.TokenTypeRefresh)
	assert.ErrorIs(t, err, models.ErrWrongTokenType)

	_, err = ts.Verify(ctx, pair.RefreshToken, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrWrongTokenType)
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())

	_, err := ts.Verify(context.Background(), "not-a-token", models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrMalformedToken)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())
	ctx := context.Background()

	issued := time.Now()
	ts.SetClock(func() time.Time { return issued })

	pair, err := ts.Issue("subject-1", "citizen", models.ResolvePermissions("citizen"))
	require.NoError(t, err)

	// Jump past the access expiry but not the refresh expiry
	ts.SetClock(func() time.Time { return issued.Add(3 * time.Hour) })

	_, err = ts.Verify(ctx, pair.AccessToken, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrExpiredToken)

	_, err = ts.Verify(ctx, pair.RefreshToken, models.TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestTokenServiceRevoke(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())
	ctx := context.Background()

	pair, err := ts.Issue("subject-1", "citizen", models.ResolvePermissions("citizen"))
	require.NoError(t, err)

	require.NoError(t, ts.Revoke(ctx, pair.AccessToken, models.TokenTypeAccess, "logout"))

	_, err = ts.Verify(ctx, pair.AccessToken, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrRevokedToken)

	// The refresh token is untouched
	_, err = ts.Verify(ctx, pair.RefreshToken, models.TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestTokenServiceRotateOnRefresh(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())
	ctx := context.Background()

	pair, err := ts.Issue("subject-1", "staff", models.ResolvePermissions("staff"))
	require.NoError(t, err)

	newPair, oldClaims, err := ts.RotateOnRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshJTI, oldClaims.ID)
	assert.NotEqual(t, pair.RefreshJTI, newPair.RefreshJTI)

	// Role and permissions carry forward into the new pair
	newClaims, err := ts.Verify(ctx, newPair.AccessToken, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "staff", newClaims.Role)
	assert.True(t, newClaims.Permissions.Has(models.PermReportsRead))
}

func TestTokenServiceRotationReplayFailsAsRevoked(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())
	ctx := context.Background()

	pair, err := ts.Issue("subject-1", "citizen", models.ResolvePermissions("citizen"))
	require.NoError(t, err)

	_, _, err = ts.RotateOnRefresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Replaying the consumed refresh token must read as revoked, not expired
	_, _, err = ts.RotateOnRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, models.ErrRevokedToken)
	assert.NotErrorIs(t, err, models.ErrExpiredToken)
}

func TestTokenServiceRevokeAllForSubject(t *testing.T) {
	ts := newTokenService(NewMockRevocationStore())
	ctx := context.Background()

	issued := time.Now()
	ts.SetClock(func() time.Time { return issued })

	oldPair, err := ts.Issue("subject-1", "citizen", models.ResolvePermissions("citizen"))
	require.NoError(t, err)
	otherPair, err := ts.Issue("subject-2", "citizen", models.ResolvePermissions("citizen"))
	require.NoError(t, err)

	// Epoch lands strictly after issuance
	ts.SetClock(func() time.Time { return issued.Add(time.Second) })
	require.NoError(t, ts.RevokeAllForSubject(ctx, "subject-1", "role_changed"))

	_, err = ts.Verify(ctx, oldPair.AccessToken, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrRevokedToken)
	_, err = ts.Verify(ctx, oldPair.RefreshToken, models.TokenTypeRefresh)
	assert.ErrorIs(t, err, models.ErrRevokedToken)

	// Other subjects are untouched
	_, err = ts.Verify(ctx, otherPair.AccessToken, models.TokenTypeAccess)
	assert.NoError(t, err)

	// Tokens issued after the epoch are fine
	ts.SetClock(func() time.Time { return issued.Add(2 * time.Second) })
	newPair, err := ts.Issue("subject-1", "citizen", models.ResolvePermissions("citizen"))
	require.NoError(t, err)
	_, err = ts.Verify(ctx, newPair.AccessToken, models.TokenTypeAccess)
	assert.NoError(t, err)
}
