package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/models"
)

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByAccessJTI(ctx context.Context, jti string) (*models.Session, error)
	GetByRefreshJTI(ctx context.Context, jti string) (*models.Session, error)
	ListActiveForSubject(ctx context.Context, subjectID string) ([]*models.Session, error)
	CountActiveForSubject(ctx context.Context, subjectID string) (int, error)
	OldestActiveForSubject(ctx context.Context, subjectID string) (*models.Session, error)
	MarkInactive(ctx context.Context, id, reason string) error
	MarkAllInactiveForSubject(ctx context.Context, subjectID, reason string) ([]*models.Session, error)
	RotateTokens(ctx context.Context, id, accessJTI, refreshJTI string, expiresAt, refreshExpiresAt time.Time) error
	TouchActivity(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, inactiveRetention time.Duration) (int64, error)
}

// inactiveSessionRetention is how long invalidated sessions stay queryable
// before the sweep reclaims them.
const inactiveSessionRetention = 30 * 24 * time.Hour

// SessionService manages the session lifecycle: creation under the
// per-subject cap, validation on the request path, invalidation with token
// revocation, and the expiry sweep.
type SessionService struct {
	sessions      SessionRepository
	tokens        *auth.TokenService
	events        *SecurityEventService
	logger        *slog.Logger
	maxPerSubject int
	now           func() time.Time
	// touch runs the last-activity update off the request path; tests
	// replace it with a synchronous call.
	touch func(fn func())
}

// NewSessionService creates a new SessionService
func NewSessionService(sessions SessionRepository, tokens *auth.TokenService, events *SecurityEventService, logger *slog.Logger, maxPerSubject int) *SessionService {
	if maxPerSubject <= 0 {
		maxPerSubject = 5
	}
	return &SessionService{
		sessions:      sessions,
		tokens:        tokens,
		events:        events,
		logger:        logger,
		maxPerSubject: maxPerSubject,
		now:           time.Now,
		touch:         func(fn func()) { go fn() },
	}
}

// SetClock overrides the service's time source. Test hook.
func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

// SetTouchRunner overrides how activity updates are scheduled. Test hook.
func (s *SessionService) SetTouchRunner(touch func(fn func())) {
	s.touch = touch
}

// Create persists a session for a freshly issued token pair. When the
// subject is at the session cap, the least-recently-created active session
// is evicted first, tokens and all. The count-evict-insert sequence is not
// atomic under concurrent logins for the same subject; a transient overshoot
// corrects on the next creation.
func (s *SessionService) Create(ctx context.Context, subjectID string, pair *models.TokenPair, device models.DeviceInfo) (*models.Session, error) {
	count, err := s.sessions.CountActiveForSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	for count >= s.maxPerSubject {
		oldest, err := s.sessions.OldestActiveForSubject(ctx, subjectID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("failed to find session to evict: %w", err)
		}

		if err := s.invalidate(ctx, oldest, models.SessionReasonCapEvicted); err != nil {
			return nil, fmt.Errorf("failed to evict session: %w", err)
		}

		_, _ = s.events.Record(ctx, models.EventSessionEvicted, &subjectID, nil, device.IPAddress, device.UserAgent, models.EventDetails{
			"evicted_session_id": oldest.ID,
			"session_cap":        s.maxPerSubject,
		})
		count--
	}

	now := s.now()
	session := &models.Session{
		ID:             uuid.New().String(),
		SubjectID:      subjectID,
		AccessJTI:      pair.AccessJTI,
		RefreshJTI:     pair.RefreshJTI,
		IPAddress:      device.IPAddress,
		UserAgent:      device.UserAgent,
		DeviceClass:    device.DeviceClass,
		Platform:       device.Platform,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Duration(pair.ExpiresIn) * time.Second),
		RefreshExpires: now.Add(time.Duration(pair.RefreshExpiry) * time.Second),
		Active:         true,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		// Authentication cannot be assumed safe when the session record is
		// missing; kill the freshly issued tokens.
		s.revokeSessionTokens(ctx, session, "session_create_failed")
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return session, nil
}

// Validate resolves a bearer access token to its live session. Token
// verification runs first (signature, expiry, revocation, epoch); the
// session must exist, be active, and be unexpired. Last-activity is updated
// off the critical path.
func (s *SessionService) Validate(ctx context.Context, accessToken string) (*models.Session, *models.TokenClaims, error) {
	claims, err := s.tokens.Verify(ctx, accessToken, models.TokenTypeAccess)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.GetByAccessJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	if !session.Active || s.now().After(session.ExpiresAt) {
		return nil, nil, models.ErrSessionNotFound
	}

	sessionID := session.ID
	s.touch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sessions.TouchActivity(ctx, sessionID); err != nil {
			s.logger.Warn("failed to update session activity",
				slog.String("session_id", sessionID),
				slog.Any("error", err))
		}
	})

	return session, claims, nil
}

// RotateTokens binds a refreshed token pair to the session that held the old
// refresh token.
func (s *SessionService) RotateTokens(ctx context.Context, oldRefreshJTI string, pair *models.TokenPair) (*models.Session, error) {
	session, err := s.sessions.GetByRefreshJTI(ctx, oldRefreshJTI)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.Active {
		return nil, models.ErrSessionNotFound
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(pair.ExpiresIn) * time.Second)
	refreshExpiresAt := now.Add(time.Duration(pair.RefreshExpiry) * time.Second)

	if err := s.sessions.RotateTokens(ctx, session.ID, pair.AccessJTI, pair.RefreshJTI, expiresAt, refreshExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to rotate session tokens: %w", err)
	}

	session.AccessJTI = pair.AccessJTI
	session.RefreshJTI = pair.RefreshJTI
	session.ExpiresAt = expiresAt
	session.RefreshExpires = refreshExpiresAt
	return session, nil
}

// ListActive enumerates a subject's active sessions for the self-service
// device listing.
func (s *SessionService) ListActive(ctx context.Context, subjectID string) ([]*models.Session, error) {
	return s.sessions.ListActiveForSubject(ctx, subjectID)
}

// Invalidate marks one session inactive and revokes both of its tokens.
// Subjects may only invalidate their own sessions.
func (s *SessionService) Invalidate(ctx context.Context, subjectID, sessionID, reason string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrSessionNotFound
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session.SubjectID != subjectID || !session.Active {
		return models.ErrSessionNotFound
	}

	if err := s.invalidate(ctx, session, reason); err != nil {
		return err
	}

	_, _ = s.events.Record(ctx, models.EventSessionInvalidated, &subjectID, nil, session.IPAddress, session.UserAgent, models.EventDetails{
		"session_id": session.ID,
		"reason":     reason,
	})
	return nil
}

// InvalidateByAccessJTI invalidates the session holding a given access jti.
func (s *SessionService) InvalidateByAccessJTI(ctx context.Context, accessJTI, reason string) (*models.Session, error) {
	session, err := s.sessions.GetByAccessJTI(ctx, accessJTI)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.Active {
		return nil, models.ErrSessionNotFound
	}
	return session, s.invalidate(ctx, session, reason)
}

// InvalidateAllForSubject bulk-invalidates the subject's sessions, revokes
// their tokens, and records a revocation epoch so nothing issued before now
// survives. Required whenever the subject's role or permissions change.
func (s *SessionService) InvalidateAllForSubject(ctx context.Context, subjectID, reason string) (int, error) {
	invalidated, err := s.sessions.MarkAllInactiveForSubject(ctx, subjectID, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate sessions: %w", err)
	}

	for _, session := range invalidated {
		s.revokeSessionTokens(ctx, session, reason)
	}

	if err := s.tokens.RevokeAllForSubject(ctx, subjectID, reason); err != nil {
		return len(invalidated), fmt.Errorf("failed to set revocation epoch: %w", err)
	}

	return len(invalidated), nil
}

// invalidate revokes the session's tokens, then marks the record inactive.
// Revocation runs first: if the mark fails, the tokens are already dead.
func (s *SessionService) invalidate(ctx context.Context, session *models.Session, reason string) error {
	s.revokeSessionTokens(ctx, session, reason)

	if err := s.sessions.MarkInactive(ctx, session.ID, reason); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return fmt.Errorf("failed to mark session inactive: %w", err)
	}
	return nil
}

func (s *SessionService) revokeSessionTokens(ctx context.Context, session *models.Session, reason string) {
	if err := s.tokens.RevokeID(ctx, session.AccessJTI, session.SubjectID, models.TokenTypeAccess, reason, session.ExpiresAt); err != nil {
		s.logger.Error("failed to revoke access token",
			slog.String("session_id", session.ID),
			slog.Any("error", err))
	}
	if err := s.tokens.RevokeID(ctx, session.RefreshJTI, session.SubjectID, models.TokenTypeRefresh, reason, session.RefreshExpires); err != nil {
		s.logger.Error("failed to revoke refresh token",
			slog.String("session_id", session.ID),
			slog.Any("error", err))
	}
}

// SweepExpired reclaims storage for expired and long-inactive sessions.
// Best-effort; never on the request path.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, inactiveSessionRetention)
}
