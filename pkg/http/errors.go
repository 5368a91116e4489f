package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse is the standard API error body. Error carries the
// machine-readable rejection code; RetryAfter is set for time-bounded
// rejections (lockout, block, rate limit) so callers can render an accurate
// wait message.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after_seconds,omitempty"`
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeError(w, statusCode, errorCode, message, 0)
}

// WriteErrorWithRetry writes a JSON error response including the remaining
// wait before the caller may retry.
func WriteErrorWithRetry(w http.ResponseWriter, statusCode int, errorCode, message string, retryAfter time.Duration) {
	seconds := int64(retryAfter.Seconds())
	if seconds < 1 && retryAfter > 0 {
		seconds = 1
	}
	writeError(w, statusCode, errorCode, message, seconds)
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, retryAfter int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:      errorCode,
		Message:    message,
		RetryAfter: retryAfter,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limited", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
