package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harborview/civicwatch/internal/models"
)

// RevocationStore persists revoked token ids and per-subject revocation
// epochs. Revoked entries carry the token's remaining validity as their TTL.
type RevocationStore interface {
	Revoke(ctx context.Context, jti, subjectID, tokenType, reason string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	SetEpoch(ctx context.Context, subjectID string, revokedBefore time.Time, reason string) error
	EpochFor(ctx context.Context, subjectID string) (*time.Time, error)
}

// TokenService issues and verifies signed access/refresh token pairs.
// Access and refresh tokens are signed with separate secrets; the key is
// chosen by the token's own type claim, so a wrong-type token still passes
// signature verification and fails with the precise wrong-type reason.
type TokenService struct {
	accessSecret       []byte
	refreshSecret      []byte
	issuer             string
	audience           string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	revocations        RevocationStore
	now                func() time.Time
}

// NewTokenService creates a new TokenService
func NewTokenService(accessSecret, refreshSecret, issuer, audience string, accessExpiry, refreshExpiry time.Duration, revocations RevocationStore) *TokenService {
	return &TokenService{
		accessSecret:       []byte(accessSecret),
		refreshSecret:      []byte(refreshSecret),
		issuer:             issuer,
		audience:           audience,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		revocations:        revocations,
		now:                time.Now,
	}
}

// SetClock overrides the service's time source. Test hook.
func (ts *TokenService) SetClock(now func() time.Time) {
	ts.now = now
}

// AccessTokenExpiry returns the configured access token lifetime.
func (ts *TokenService) AccessTokenExpiry() time.Duration {
	return ts.accessTokenExpiry
}

// Issue generates a fresh token pair for a subject. Each token carries its
// own unique jti; permissions are embedded once here and never recomputed
// per request.
func (ts *TokenService) Issue(subjectID, role string, perms models.PermissionSet) (*models.TokenPair, error) {
	now := ts.now()

	accessJTI := uuid.New().String()
	accessToken, err := ts.sign(subjectID, role, perms, models.TokenTypeAccess, accessJTI, now, now.Add(ts.accessTokenExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshJTI := uuid.New().String()
	refreshToken, err := ts.sign(subjectID, role, perms, models.TokenTypeRefresh, refreshJTI, now, now.Add(ts.refreshTokenExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessJTI:     accessJTI,
		RefreshJTI:    refreshJTI,
		ExpiresIn:     int64(ts.accessTokenExpiry.Seconds()),
		RefreshExpiry: int64(ts.refreshTokenExpiry.Seconds()),
	}, nil
}

func (ts *TokenService) sign(subjectID, role string, perms models.PermissionSet, tokenType, jti string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &models.TokenClaims{
		Type:        tokenType,
		Role:        role,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subjectID,
			Issuer:    ts.issuer,
			Audience:  jwt.ClaimStrings{ts.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ts.secretFor(tokenType))
}

func (ts *TokenService) secretFor(tokenType string) []byte {
	if tokenType == models.TokenTypeRefresh {
		return ts.refreshSecret
	}
	return ts.accessSecret
}

// Verify parses a token, checks its signature and registered claims, rejects
// type mismatches, and consults both the jti blacklist and the subject's
// revocation epoch before accepting.
func (ts *TokenService) Verify(ctx context.Context, tokenString, expectedType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if tc, ok := token.Claims.(*models.TokenClaims); ok {
			return ts.secretFor(tc.Type), nil
		}
		return ts.accessSecret, nil
	},
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience),
		jwt.WithTimeFunc(ts.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrExpiredToken
		}
		return nil, models.ErrMalformedToken
	}
	if !token.Valid {
		return nil, models.ErrMalformedToken
	}

	// A correctly-signed token of the wrong type is never accepted.
	if claims.Type != expectedType {
		return nil, models.ErrWrongTokenType
	}

	revoked, err := ts.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("revocation check failed: %w", err)
	}
	if revoked {
		return nil, models.ErrRevokedToken
	}

	// Epoch revocation: anything issued before the subject's epoch is dead,
	// without enumerating the subject's outstanding tokens.
	epoch, err := ts.revocations.EpochFor(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("revocation epoch check failed: %w", err)
	}
	if epoch != nil && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(*epoch) {
		return nil, models.ErrRevokedToken
	}

	return claims, nil
}

// RevokeClaims blacklists an already-verified token's jti. The entry expires
// with the token itself, so the sweep can prune without re-decoding.
func (ts *TokenService) RevokeClaims(ctx context.Context, claims *models.TokenClaims, reason string) error {
	expiresAt := ts.now().Add(ts.refreshTokenExpiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return ts.revocations.Revoke(ctx, claims.ID, claims.Subject, claims.Type, reason, expiresAt)
}

// RevokeID blacklists a token id directly, for callers that already hold
// the session record binding the id to its subject and expiry.
func (ts *TokenService) RevokeID(ctx context.Context, jti, subjectID, tokenType, reason string, expiresAt time.Time) error {
	return ts.revocations.Revoke(ctx, jti, subjectID, tokenType, reason, expiresAt)
}

// Revoke verifies a token of the given type and blacklists it.
func (ts *TokenService) Revoke(ctx context.Context, tokenString, expectedType, reason string) error {
	claims, err := ts.Verify(ctx, tokenString, expectedType)
	if err != nil {
		return err
	}
	return ts.RevokeClaims(ctx, claims, reason)
}

// RevokeAllForSubject records a revocation epoch for the subject. Every
// token issued before now becomes invalid on its next verification.
func (ts *TokenService) RevokeAllForSubject(ctx context.Context, subjectID, reason string) error {
	return ts.revocations.SetEpoch(ctx, subjectID, ts.now(), reason)
}

// RotateOnRefresh verifies the old refresh token, revokes it
// unconditionally, and issues a new pair carrying the claims' role and
// permission set forward. A role change invalidates every session for the
// subject, so rotation never resurrects stale authorization. A replayed
// refresh token fails with ErrRevokedToken, never ErrExpiredToken, so
// callers can tell replay from ordinary expiry.
func (ts *TokenService) RotateOnRefresh(ctx context.Context, oldRefreshToken string) (*models.TokenPair, *models.TokenClaims, error) {
	claims, err := ts.Verify(ctx, oldRefreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, nil, err
	}

	// Revoke before issuing: the old token must be unusable even when the
	// new pair cannot be produced.
	if err := ts.RevokeClaims(ctx, claims, "rotated"); err != nil {
		return nil, nil, fmt.Errorf("failed to revoke rotated refresh token: %w", err)
	}

	pair, err := ts.Issue(claims.Subject, claims.Role, claims.Permissions)
	if err != nil {
		return nil, claims, err
	}

	return pair, claims, nil
}
