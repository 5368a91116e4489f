package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/handlers"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/internal/services"
	pkghttp "github.com/harborview/civicwatch/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAuthService implements handlers.AuthServiceInterface
type MockAuthService struct {
	LoginFunc              func(ctx context.Context, identity, credential, verificationCode string, device models.DeviceInfo) (*services.LoginResult, error)
	RefreshFunc            func(ctx context.Context, refreshToken string, device models.DeviceInfo) (*models.TokenPair, error)
	LogoutFunc             func(ctx context.Context, claims *models.TokenClaims, device models.DeviceInfo) error
	LogoutAllFunc          func(ctx context.Context, subjectID string, device models.DeviceInfo) (int, error)
	EnrollVerificationFunc func(ctx context.Context, identity string) (string, []byte, error)
}

func (m *MockAuthService) Login(ctx context.Context, identity, credential, verificationCode string, device models.DeviceInfo) (*services.LoginResult, error) {
	return m.LoginFunc(ctx, identity, credential, verificationCode, device)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string, device models.DeviceInfo) (*models.TokenPair, error) {
	return m.RefreshFunc(ctx, refreshToken, device)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims, device models.DeviceInfo) error {
	return m.LogoutFunc(ctx, claims, device)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, subjectID string, device models.DeviceInfo) (int, error) {
	return m.LogoutAllFunc(ctx, subjectID, device)
}

func (m *MockAuthService) EnrollVerification(ctx context.Context, identity string) (string, []byte, error) {
	return m.EnrollVerificationFunc(ctx, identity)
}

// MockSessionService implements handlers.SessionServiceInterface
type MockSessionService struct {
	ListActiveFunc func(ctx context.Context, subjectID string) ([]*models.Session, error)
	InvalidateFunc func(ctx context.Context, subjectID, sessionID, reason string) error
}

func (m *MockSessionService) ListActive(ctx context.Context, subjectID string) ([]*models.Session, error) {
	return m.ListActiveFunc(ctx, subjectID)
}

func (m *MockSessionService) Invalidate(ctx context.Context, subjectID, sessionID, reason string) error {
	return m.InvalidateFunc(ctx, subjectID, sessionID, reason)
}

func newAuthHandler(svc handlers.AuthServiceInterface) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, &pkghttp.IPConfig{})
}

func newTestRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")
	return req
}

func withClaims(r *http.Request, claims *models.TokenClaims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.ClaimsContextKey, claims))
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, code string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, status, w.Code)
	var resp pkghttp.ErrorResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, code, resp.Error)
	return resp
}
