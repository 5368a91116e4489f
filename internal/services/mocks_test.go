package services_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/identity"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/internal/services"
	"github.com/harborview/civicwatch/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockEventStore implements SecurityEventStore for testing
type MockEventStore struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (m *MockEventStore) Create(_ context.Context, event *models.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventStore) ListByActor(_ context.Context, actorID string, limit int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SecurityEvent
	for _, e := range m.events {
		if e.ActorID != nil && *e.ActorID == actorID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockEventStore) ListBySeverity(_ context.Context, severity string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SecurityEvent
	for _, e := range m.events {
		if e.Severity == severity && !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockEventStore) ListRecent(_ context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SecurityEvent
	for _, e := range m.events {
		if !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockEventStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var removed int64
	for _, e := range m.events {
		if e.OccurredAt.Before(cutoff) {
			removed++
		} else {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return removed, nil
}

// TypesRecorded returns the recorded event types, sorted.
func (m *MockEventStore) TypesRecorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.EventType)
	}
	sort.Strings(types)
	return types
}

// HasEventType reports whether an event of the given type was recorded.
func (m *MockEventStore) HasEventType(eventType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

func newTestEventService(store *MockEventStore) *services.SecurityEventService {
	log := testLogger()
	return services.NewSecurityEventService(store, logger.NewSecurityLogger(log), nil, log)
}

// MockRevocationStore implements auth.RevocationStore for testing
type MockRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]string // jti -> reason
	epochs  map[string]time.Time
}

func NewMockRevocationStore() *MockRevocationStore {
	return &MockRevocationStore{
		revoked: make(map[string]string),
		epochs:  make(map[string]time.Time),
	}
}

func (m *MockRevocationStore) Revoke(_ context.Context, jti, _, _, reason string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = reason
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

func (m *MockRevocationStore) RevokedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.revoked)
}

func (m *MockRevocationStore) IsJTIRevoked(jti string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*models.Session)}
}

func (m *MockSessionRepository) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *MockSessionRepository) GetByID(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) GetByAccessJTI(_ context.Context, jti string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AccessJTI == jti {
			copied := *s
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) GetByRefreshJTI(_ context.Context, jti string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshJTI == jti {
			copied := *s
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) ListActiveForSubject(_ context.Context, subjectID string) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Session
	for _, s := range m.sessions {
		if s.SubjectID == subjectID && s.Active {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockSessionRepository) CountActiveForSubject(ctx context.Context, subjectID string) (int, error) {
	active, err := m.ListActiveForSubject(ctx, subjectID)
	return len(active), err
}

func (m *MockSessionRepository) OldestActiveForSubject(ctx context.Context, subjectID string) (*models.Session, error) {
	active, err := m.ListActiveForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, models.ErrNotFound
	}
	return active[0], nil
}

func (m *MockSessionRepository) MarkInactive(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.Active {
		return models.ErrSessionNotFound
	}
	now := time.Now()
	s.Active = false
	s.InvalidatedAt = &now
	s.InvalidReason = &reason
	return nil
}

func (m *MockSessionRepository) MarkAllInactiveForSubject(_ context.Context, subjectID, reason string) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*models.Session
	for _, s := range m.sessions {
		if s.SubjectID == subjectID && s.Active {
			s.Active = false
			s.InvalidatedAt = &now
			s.InvalidReason = &reason
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockSessionRepository) RotateTokens(_ context.Context, id, accessJTI, refreshJTI string, expiresAt, refreshExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.Active {
		return models.ErrSessionNotFound
	}
	s.AccessJTI = accessJTI
	s.RefreshJTI = refreshJTI
	s.ExpiresAt = expiresAt
	s.RefreshExpires = refreshExpiresAt
	s.LastActivityAt = time.Now()
	return nil
}

func (m *MockSessionRepository) TouchActivity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivityAt = time.Now()
	}
	return nil
}

func (m *MockSessionRepository) DeleteExpired(_ context.Context, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	now := time.Now()
	for id, s := range m.sessions {
		if now.After(s.RefreshExpires) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// MockVerifier implements identity.Verifier for testing
type MockVerifier struct {
	VerifyFunc func(ctx context.Context, identityStr, credential string) (*identity.Result, error)
}

func (m *MockVerifier) VerifyCredentials(ctx context.Context, identityStr, credential string) (*identity.Result, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, identityStr, credential)
	}
	return nil, models.ErrUnauthorized
}

func newTestTokenService(revocations auth.RevocationStore) *auth.TokenService {
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
