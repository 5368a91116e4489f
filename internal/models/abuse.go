package models

import "time"

// AttemptOutcome is one observed login attempt for an (identity, origin) key.
type AttemptOutcome struct {
	At            time.Time `json:"at"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// LoginAttemptRecord tracks recent attempts for one (identity, origin) key.
// ConsecutiveFailures counts only contiguous trailing failures; any success
// resets it to zero.
type LoginAttemptRecord struct {
	Identity            string           `json:"identity"`
	IPAddress           string           `json:"ip_address"`
	Attempts            []AttemptOutcome `json:"attempts"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastFailureAt       time.Time        `json:"last_failure_at"`
}

// TrackedRequest is one inbound request observed by the abuse engine.
type TrackedRequest struct {
	At        time.Time `json:"at"`
	Path      string    `json:"path"`
	UserAgent string    `json:"user_agent"`
}

// SuspicionRecord holds the rolling request window for one origin. Score and
// PatternTags are recomputed deterministically from the current window on
// every request; there is no carry-over beyond the window contents.
type SuspicionRecord struct {
	IPAddress   string           `json:"ip_address"`
	Requests    []TrackedRequest `json:"requests"`
	Score       int              `json:"score"`
	PatternTags []string         `json:"pattern_tags"`
}

// BlockListEntry rejects all requests from an origin until it expires.
type BlockListEntry struct {
	IPAddress string    `json:"ip_address"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
