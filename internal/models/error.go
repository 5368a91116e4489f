package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Token verification failures
	ErrMalformedToken = errors.New("token is malformed")
	ErrExpiredToken   = errors.New("token has expired")
	ErrRevokedToken   = errors.New("token has been revoked")
	ErrWrongTokenType = errors.New("token type does not match expected use")

	// Session failures
	ErrSessionNotFound = errors.New("session not found or inactive")

	// Abuse-protection rejections
	ErrRateLimited               = errors.New("too many requests")
	ErrLocked                    = errors.New("account is temporarily locked")
	ErrBlockedOrigin             = errors.New("origin is blocked")
	ErrHumanVerificationRequired = errors.New("human verification required")

	// Identity collaborator rejections
	ErrAccountInactive   = errors.New("account is inactive")
	ErrAccountUnverified = errors.New("account is not verified")
)

// RejectionCode returns the machine-readable code for an abuse-protection
// rejection, per the rejection contract. Unknown errors map to "unauthorized".
func RejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrBlockedOrigin):
		return "origin_blocked"
	case errors.Is(err, ErrLocked):
		return "account_locked"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrHumanVerificationRequired):
		return "human_verification_required"
	case errors.Is(err, ErrRevokedToken):
		return "token_revoked"
	case errors.Is(err, ErrExpiredToken):
		return "token_expired"
	case errors.Is(err, ErrWrongTokenType):
		return "wrong_token_type"
	case errors.Is(err, ErrMalformedToken):
		return "token_malformed"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	default:
		return "unauthorized"
	}
}
