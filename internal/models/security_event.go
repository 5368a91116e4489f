package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Security event types
const (
	EventLoginSuccess          = "login_success"
	EventLoginFailed           = "login_failed"
	EventRepeatedFailures      = "repeated_login_failures"
	EventAccountLocked         = "account_locked"
	EventHumanVerificationGate = "human_verification_gate"
	EventOriginBlocked         = "origin_blocked"
	EventSuspiciousActivity    = "suspicious_activity"
	EventTokenRefreshed        = "token_refreshed"
	EventRefreshReplay         = "refresh_token_replay"
	EventLogout                = "logout"
	EventLogoutAll             = "logout_all"
	EventSessionEvicted        = "session_evicted"
	EventSessionInvalidated    = "session_invalidated"
	EventRoleChanged           = "role_changed"
	EventProfileUpdated        = "profile_updated"
)

// Severity levels, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// eventSeverity is the fixed type → severity table. Types not listed here
// record as low.
var eventSeverity = map[string]string{
	EventLoginSuccess:          SeverityLow,
	EventLoginFailed:           SeverityMedium,
	EventRepeatedFailures:      SeverityHigh,
	EventAccountLocked:         SeverityHigh,
	EventHumanVerificationGate: SeverityMedium,
	EventOriginBlocked:         SeverityHigh,
	EventSuspiciousActivity:    SeverityMedium,
	EventTokenRefreshed:        SeverityLow,
	EventRefreshReplay:         SeverityCritical,
	EventLogout:                SeverityLow,
	EventLogoutAll:             SeverityMedium,
	EventSessionEvicted:        SeverityLow,
	EventSessionInvalidated:    SeverityMedium,
	EventRoleChanged:           SeverityMedium,
	EventProfileUpdated:        SeverityLow,
}

// SeverityFor returns the severity for an event type.
func SeverityFor(eventType string) string {
	if sev, ok := eventSeverity[eventType]; ok {
		return sev
	}
	return SeverityLow
}

// IsHighSeverity reports whether events of this type trigger the alerting hook.
func IsHighSeverity(severity string) bool {
	return severity == SeverityHigh || severity == SeverityCritical
}

// SecurityEvent is one append-only record of a security-relevant outcome.
// ActorID and Identity are nullable: pre-authentication events know at most
// the submitted identity string.
type SecurityEvent struct {
	ID         string       `db:"id"` // ULID, sortable by creation time
	EventType  string       `db:"event_type"`
	Severity   string       `db:"severity"`
	ActorID    *string      `db:"actor_id"`
	Identity   *string      `db:"identity"`
	IPAddress  string       `db:"ip_address"`
	UserAgent  string       `db:"user_agent"`
	Details    EventDetails `db:"details"`
	OccurredAt time.Time    `db:"occurred_at"`
}

// EventDetails holds structured context for security events (JSONB).
type EventDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *EventDetails) Scan(value interface{}) error {
	if value == nil {
		*d = make(EventDetails)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = EventDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d EventDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}
