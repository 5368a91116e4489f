package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/harborview/civicwatch/internal/models"
	pkghttp "github.com/harborview/civicwatch/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing verified token claims in context
	ClaimsContextKey contextKey = "claims"
)

// SessionValidator resolves a verified access token to its live session.
type SessionValidator interface {
	Validate(ctx context.Context, accessToken string) (*models.Session, *models.TokenClaims, error)
}

// Middleware validates bearer access tokens against the token service and
// session store, then injects the claims into the request context. Refresh
// tokens are rejected here; they are only accepted by the refresh endpoint.
func Middleware(sessions SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			_, claims, err := sessions.Validate(r.Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrExpiredToken),
					errors.Is(err, models.ErrRevokedToken),
					errors.Is(err, models.ErrWrongTokenType),
					errors.Is(err, models.ErrMalformedToken),
					errors.Is(err, models.ErrSessionNotFound):
					pkghttp.WriteError(w, http.StatusUnauthorized, models.RejectionCode(err), "invalid or expired token")
				default:
					pkghttp.WriteInternalError(w, "unable to verify token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission enforces a permission from the claims' embedded set.
// No database lookup: the set was resolved once at session creation.
func RequirePermission(permission string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if !claims.Permissions.Has(permission) {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext extracts verified token claims from a request context.
func ClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, _ := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
