package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values. An access-typed token is never accepted where a
// refresh token is expected, and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the signed claim set carried by both access and refresh
// tokens. Permissions are resolved once at issuance and embedded, so request
// paths never recompute them from the role name.
type TokenClaims struct {
	Type        string        `json:"type"`
	Role        string        `json:"role"`
	Permissions PermissionSet `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair bundles a freshly issued access/refresh pair. ExpiresIn is the
// access token lifetime in seconds, for the login response body.
type TokenPair struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	AccessJTI     string `json:"-"`
	RefreshJTI    string `json:"-"`
	ExpiresIn     int64  `json:"expires_in"`
	RefreshExpiry int64  `json:"refresh_expires_in"`
}
