package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/models"
	pkghttp "github.com/harborview/civicwatch/pkg/http"
)

// SessionServiceInterface defines the interface for session management
type SessionServiceInterface interface {
	ListActive(ctx context.Context, subjectID string) ([]*models.Session, error)
	Invalidate(ctx context.Context, subjectID, sessionID, reason string) error
}

// SessionHandler exposes the self-service "manage my devices" surface.
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// SessionResponse describes one active session for the device listing
type SessionResponse struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	DeviceClass    string    `json:"device_class"`
	Platform       string    `json:"platform"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current"`
}

// List enumerates the caller's active sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessions, err := h.service.ListActive(r.Context(), claims.Subject)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, SessionResponse{
			ID:             s.ID,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			DeviceClass:    s.DeviceClass,
			Platform:       s.Platform,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
			Current:        s.AccessJTI == claims.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": resp})
}

// Invalidate signs out one of the caller's sessions by id
func (h *SessionHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session id is required")
		return
	}

	err := h.service.Invalidate(r.Context(), claims.Subject, sessionID, models.SessionReasonLogout)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
