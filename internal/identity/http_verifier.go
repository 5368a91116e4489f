package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harborview/civicwatch/internal/models"
)

// HTTPVerifier checks credentials against the credential store's internal
// verification endpoint.
type HTTPVerifier struct {
	verifyURL string
	client    *http.Client
}

// NewHTTPVerifier creates a verifier that calls the given endpoint.
func NewHTTPVerifier(verifyURL string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPVerifier{
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Identity   string `json:"identity"`
	Credential string `json:"credential"`
}

type verifyResponse struct {
	SubjectID  string `json:"subject_id"`
	Role       string `json:"role"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
}

// VerifyCredentials submits the credential pair and returns the verified
// identity. A 401 from the store means the credentials are wrong; anything
// else unexpected is an infrastructure error, not a rejection.
func (v *HTTPVerifier) VerifyCredentials(ctx context.Context, identity, credential string) (*Result, error) {
	body, err := json.Marshal(verifyRequest{Identity: identity, Credential: credential})
	if err != nil {
		return nil, fmt.Errorf("failed to encode verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential store unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var vr verifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			return nil, fmt.Errorf("failed to decode verification response: %w", err)
		}
		if vr.SubjectID == "" {
			return nil, fmt.Errorf("credential store returned an empty subject id")
		}
		return &Result{
			SubjectID:  vr.SubjectID,
			Role:       vr.Role,
			IsActive:   vr.IsActive,
			IsVerified: vr.IsVerified,
		}, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, models.ErrUnauthorized
	default:
		return nil, fmt.Errorf("credential store returned status %d", resp.StatusCode)
	}
}
