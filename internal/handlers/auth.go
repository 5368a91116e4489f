package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/internal/services"
	pkghttp "github.com/harborview/civicwatch/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, identity, credential, verificationCode string, device models.DeviceInfo) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, device models.DeviceInfo) (*models.TokenPair, error)
	Logout(ctx context.Context, claims *models.TokenClaims, device models.DeviceInfo) error
	LogoutAll(ctx context.Context, subjectID string, device models.DeviceInfo) (int, error)
	EnrollVerification(ctx context.Context, identity string) (string, []byte, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Identity   string `json:"identity" validate:"required,min=3,max=254"`
	Credential string `json:"credential" validate:"required"`
	// VerificationCode accompanies attempts after the human-verification
	// gate has engaged for this identity/origin.
	VerificationCode string `json:"verification_code,omitempty"`
}

// RefreshRequest represents the request body for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// EnrollVerificationRequest represents the request body for verification enrollment
type EnrollVerificationRequest struct {
	Identity string `json:"identity" validate:"required,min=3,max=254"`
}

// Response DTOs

// TokenResponse carries an issued token pair
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id,omitempty"`
}

// EnrollVerificationResponse carries authenticator provisioning material
type EnrollVerificationResponse struct {
	ProvisioningURL string `json:"provisioning_url"`
	QRCodePNG       string `json:"qr_code_png"` // base64-encoded
}

func (h *AuthHandler) device(r *http.Request) models.DeviceInfo {
	return models.DeriveDeviceInfo(
		pkghttp.ExtractClientIP(r, h.ipConfig),
		r.UserAgent(),
	)
}

// Login handles a credential submission
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Identity, req.Credential, req.VerificationCode, h.device(r))
	if err != nil {
		writeLoginError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  result.TokenPair.AccessToken,
		RefreshToken: result.TokenPair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.TokenPair.ExpiresIn,
		SessionID:    result.Session.ID,
	})
}

func writeLoginError(w http.ResponseWriter, err error) {
	var locked *services.LockedError
	switch {
	case errors.As(err, &locked):
		pkghttp.WriteErrorWithRetry(w, http.StatusTooManyRequests, models.RejectionCode(err),
			"Too many failed attempts. Try again later.", locked.Remaining)
	case errors.Is(err, models.ErrHumanVerificationRequired):
		pkghttp.WriteError(w, http.StatusForbidden, models.RejectionCode(err),
			"A verification code is required for this attempt")
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrAccountInactive),
		errors.Is(err, models.ErrAccountUnverified):
		// One generic answer for credential and account-state failures,
		// preventing account enumeration.
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Refresh rotates a refresh token for a new pair
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken, h.device(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrExpiredToken),
			errors.Is(err, models.ErrRevokedToken),
			errors.Is(err, models.ErrWrongTokenType),
			errors.Is(err, models.ErrMalformedToken),
			errors.Is(err, models.ErrSessionNotFound):
			pkghttp.WriteError(w, http.StatusUnauthorized, models.RejectionCode(err), "Invalid refresh token")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Logout invalidates the caller's current session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), claims, h.device(r)); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// Already gone; logout is idempotent from the caller's view.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll invalidates every session the caller holds
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	count, err := h.service.LogoutAll(r.Context(), claims.Subject, h.device(r))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"sessions_invalidated": count})
}

// EnrollVerification provisions an authenticator secret for the caller
func (h *AuthHandler) EnrollVerification(w http.ResponseWriter, r *http.Request) {
	var req EnrollVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	url, png, err := h.service.EnrollVerification(r.Context(), req.Identity)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid identity")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, EnrollVerificationResponse{
		ProvisioningURL: url,
		QRCodePNG:       base64.StdEncoding.EncodeToString(png),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
