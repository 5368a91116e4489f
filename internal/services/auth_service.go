package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/identity"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/pkg/logger"
)

// AuthService orchestrates a credential submission through the protection
// layers: lockout check, progressive delay, human-verification gate,
// external identity verification, token issuance, and session creation.
// Every outcome, pass or fail, lands in the security event log.
type AuthService struct {
	verifier     identity.Verifier
	guard        *LoginGuard
	tokens       *auth.TokenService
	sessions     *SessionService
	verification *auth.VerificationManager
	events       *SecurityEventService
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(verifier identity.Verifier, guard *LoginGuard, tokens *auth.TokenService, sessions *SessionService, verification *auth.VerificationManager, events *SecurityEventService, log *slog.Logger) *AuthService {
	return &AuthService{
		verifier:     verifier,
		guard:        guard,
		tokens:       tokens,
		sessions:     sessions,
		verification: verification,
		events:       events,
		logger:       log,
	}
}

// LoginResult is the outcome of a successful credential submission.
type LoginResult struct {
	TokenPair *models.TokenPair
	Session   *models.Session
	SubjectID string
	Role      string
}

// Login runs one credential submission through the full pipeline. The block
// list has already rejected blocked origins at the transport layer; checks
// here run cheapest-first so abusive traffic does minimal work.
func (s *AuthService) Login(ctx context.Context, identityStr, credential, verificationCode string, device models.DeviceInfo) (*LoginResult, error) {
	identityStr = strings.ToLower(strings.TrimSpace(identityStr))
	if identityStr == "" || credential == "" {
		return nil, models.ErrUnauthorized
	}

	locked, remaining, err := s.guard.CheckLock(ctx, identityStr, device.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("lockout check failed: %w", err)
	}
	if locked {
		s.logger.Info("login rejected: account locked",
			slog.String("identity", logger.SanitizedEmail(identityStr)),
			slog.Duration("remaining", remaining))
		return nil, &LockedError{Remaining: remaining}
	}

	// Soft brake: applies on top of any lockout once failures accumulate,
	// whether or not this attempt ultimately succeeds.
	if _, err := s.guard.ApplyDelay(ctx, identityStr, device.IPAddress); err != nil {
		return nil, fmt.Errorf("progressive delay failed: %w", err)
	}

	gated, err := s.guard.RequiresHumanVerification(ctx, identityStr, device.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("verification gate check failed: %w", err)
	}
	if gated {
		ok, err := s.verification.Validate(ctx, identityStr, verificationCode)
		if err != nil {
			return nil, fmt.Errorf("verification code check failed: %w", err)
		}
		if !ok {
			_, _ = s.events.Record(ctx, models.EventHumanVerificationGate, nil, &identityStr, device.IPAddress, device.UserAgent, models.EventDetails{
				"code_present": verificationCode != "",
			})
			return nil, models.ErrHumanVerificationRequired
		}
	}

	result, err := s.verifier.VerifyCredentials(ctx, identityStr, credential)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			return nil, s.recordFailure(ctx, identityStr, device, "invalid_credentials", models.ErrUnauthorized)
		}
		// A credential-store outage is not a rejection: it must not count
		// toward the failure ladder or masquerade as a 401.
		s.logger.Error("credential verification unavailable",
			slog.String("identity", logger.SanitizedEmail(identityStr)),
			slog.Any("error", err))
		return nil, fmt.Errorf("credential verification failed: %w", err)
	}

	if !result.IsActive {
		return nil, s.recordFailure(ctx, identityStr, device, "account_inactive", models.ErrAccountInactive)
	}
	if !result.IsVerified {
		return nil, s.recordFailure(ctx, identityStr, device, "account_unverified", models.ErrAccountUnverified)
	}

	if _, err := s.guard.RecordAttempt(ctx, identityStr, device.IPAddress, true, ""); err != nil {
		s.logger.Error("failed to record successful attempt", slog.Any("error", err))
	}

	// Permissions are resolved from the role exactly once, here, and ride
	// inside the claims from then on.
	perms := models.ResolvePermissions(result.Role)
	pair, err := s.tokens.Issue(result.SubjectID, result.Role, perms)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	session, err := s.sessions.Create(ctx, result.SubjectID, pair, device)
	if err != nil {
		return nil, err
	}

	_, _ = s.events.Record(ctx, models.EventLoginSuccess, &result.SubjectID, &identityStr, device.IPAddress, device.UserAgent, models.EventDetails{
		"session_id":   session.ID,
		"role":         result.Role,
		"device_class": device.DeviceClass,
	})

	return &LoginResult{
		TokenPair: pair,
		Session:   session,
		SubjectID: result.SubjectID,
		Role:      result.Role,
	}, nil
}

// recordFailure books a failed attempt, emits the matching events, and
// passes the caller's rejection through.
func (s *AuthService) recordFailure(ctx context.Context, identityStr string, device models.DeviceInfo, reason string, rejection error) error {
	rec, err := s.guard.RecordAttempt(ctx, identityStr, device.IPAddress, false, reason)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		return rejection
	}

	_, _ = s.events.Record(ctx, models.EventLoginFailed, nil, &identityStr, device.IPAddress, device.UserAgent, models.EventDetails{
		"failure_reason":       reason,
		"consecutive_failures": rec.ConsecutiveFailures,
	})

	switch rec.ConsecutiveFailures {
	case verificationThreshold:
		_, _ = s.events.Record(ctx, models.EventRepeatedFailures, nil, &identityStr, device.IPAddress, device.UserAgent, models.EventDetails{
			"consecutive_failures": rec.ConsecutiveFailures,
		})
	case lockoutThreshold:
		_, _ = s.events.Record(ctx, models.EventAccountLocked, nil, &identityStr, device.IPAddress, device.UserAgent, models.EventDetails{
			"consecutive_failures": rec.ConsecutiveFailures,
		})
	}

	return rejection
}

// Refresh rotates a refresh token: the old pair dies, a new pair binds to
// the same session. A replayed refresh token is a critical signal; the
// subject's sessions are not auto-invalidated here, but the event log makes
// the replay visible immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, device models.DeviceInfo) (*models.TokenPair, error) {
	pair, oldClaims, err := s.tokens.RotateOnRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrRevokedToken) {
			_, _ = s.events.Record(ctx, models.EventRefreshReplay, nil, nil, device.IPAddress, device.UserAgent, nil)
		}
		return nil, err
	}

	session, err := s.sessions.RotateTokens(ctx, oldClaims.ID, pair)
	if err != nil {
		// The new pair has no session backing it; kill it rather than leave
		// orphaned live tokens.
		s.revokeOrphanedPair(ctx, pair, oldClaims.Subject)
		return nil, err
	}

	_, _ = s.events.Record(ctx, models.EventTokenRefreshed, &oldClaims.Subject, nil, device.IPAddress, device.UserAgent, models.EventDetails{
		"session_id": session.ID,
	})

	return pair, nil
}

func (s *AuthService) revokeOrphanedPair(ctx context.Context, pair *models.TokenPair, subjectID string) {
	if err := s.tokens.Revoke(ctx, pair.AccessToken, models.TokenTypeAccess, "orphaned"); err != nil {
		s.logger.Error("failed to revoke orphaned access token",
			slog.String("subject_id", subjectID), slog.Any("error", err))
	}
	if err := s.tokens.Revoke(ctx, pair.RefreshToken, models.TokenTypeRefresh, "orphaned"); err != nil {
		s.logger.Error("failed to revoke orphaned refresh token",
			slog.String("subject_id", subjectID), slog.Any("error", err))
	}
}

// Logout invalidates the session behind a verified access token's claims.
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims, device models.DeviceInfo) error {
	session, err := s.sessions.InvalidateByAccessJTI(ctx, claims.ID, models.SessionReasonLogout)
	if err != nil {
		return err
	}

	_, _ = s.events.Record(ctx, models.EventLogout, &claims.Subject, nil, device.IPAddress, device.UserAgent, models.EventDetails{
		"session_id": session.ID,
	})
	return nil
}

// LogoutAll invalidates every session the subject holds, on every device.
func (s *AuthService) LogoutAll(ctx context.Context, subjectID string, device models.DeviceInfo) (int, error) {
	count, err := s.sessions.InvalidateAllForSubject(ctx, subjectID, models.SessionReasonLogoutAll)
	if err != nil {
		return count, err
	}

	_, _ = s.events.Record(ctx, models.EventLogoutAll, &subjectID, nil, device.IPAddress, device.UserAgent, models.EventDetails{
		"sessions_invalidated": count,
	})
	return count, nil
}

// HandleRoleChange tears down every session for the subject so no token can
// carry the old role's permission set. Must run whenever the identity
// collaborator changes a subject's role.
func (s *AuthService) HandleRoleChange(ctx context.Context, subjectID, newRole string) error {
	count, err := s.sessions.InvalidateAllForSubject(ctx, subjectID, models.SessionReasonRoleChanged)
	if err != nil {
		return err
	}

	_, _ = s.events.Record(ctx, models.EventRoleChanged, &subjectID, nil, "", "", models.EventDetails{
		"new_role":             newRole,
		"sessions_invalidated": count,
	})
	return nil
}

// EnrollVerification provisions a human-verification secret for an identity
// and returns the otpauth URL plus a QR code PNG.
func (s *AuthService) EnrollVerification(ctx context.Context, identityStr string) (string, []byte, error) {
	identityStr = strings.ToLower(strings.TrimSpace(identityStr))
	if identityStr == "" {
		return "", nil, models.ErrBadRequest
	}
	return s.verification.Enroll(ctx, identityStr)
}

// LockedError carries the remaining lockout duration for the rejection
// contract's retry hint.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return models.ErrLocked.Error()
}

// Unwrap lets errors.Is(err, models.ErrLocked) match.
func (e *LockedError) Unwrap() error {
	return models.ErrLocked
}
