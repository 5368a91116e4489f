package models

import (
	"strings"
	"time"
)

// Session invalidation reasons recorded when a session is marked inactive.
const (
	SessionReasonLogout       = "logout"
	SessionReasonLogoutAll    = "logout_all"
	SessionReasonCapEvicted   = "session_cap_evicted"
	SessionReasonRoleChanged  = "role_changed"
	SessionReasonExpired      = "expired"
	SessionReasonAdminRevoked = "admin_revoked"
)

// DeviceInfo describes the device a session was created from.
type DeviceInfo struct {
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
	DeviceClass string `json:"device_class"` // "mobile", "tablet", "desktop", "bot", "unknown"
	Platform    string `json:"platform"`     // "ios", "android", "windows", "macos", "linux", "unknown"
}

// Session binds a subject, a device, and the current token pair. A session
// holds exactly one live token pair; invalidation revokes both tokens
// atomically with marking the record inactive.
type Session struct {
	ID             string     `db:"id"`
	SubjectID      string     `db:"subject_id"`
	AccessJTI      string     `db:"access_jti"`
	RefreshJTI     string     `db:"refresh_jti"`
	IPAddress      string     `db:"ip_address"`
	UserAgent      string     `db:"user_agent"`
	DeviceClass    string     `db:"device_class"`
	Platform       string     `db:"platform"`
	CreatedAt      time.Time  `db:"created_at"`
	LastActivityAt time.Time  `db:"last_activity_at"`
	ExpiresAt      time.Time  `db:"expires_at"`
	RefreshExpires time.Time  `db:"refresh_expires_at"`
	Active         bool       `db:"active"`
	Suspicious     bool       `db:"suspicious"`
	Compromised    bool       `db:"compromised"`
	ReauthRequired bool       `db:"reauth_required"`
	InvalidatedAt  *time.Time `db:"invalidated_at"`
	InvalidReason  *string    `db:"invalidation_reason"`
}

// DeriveDeviceInfo classifies a client string into a device class and
// platform. The classification is coarse on purpose; it feeds session
// listings and abuse signals, never authorization decisions.
func DeriveDeviceInfo(ipAddress, userAgent string) DeviceInfo {
	info := DeviceInfo{
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		DeviceClass: "unknown",
		Platform:    "unknown",
	}

	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		// leave unknown
	case strings.Contains(ua, "bot") || strings.Contains(ua, "curl") ||
		strings.Contains(ua, "python") || strings.Contains(ua, "wget"):
		info.DeviceClass = "bot"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		info.DeviceClass = "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "android"):
		info.DeviceClass = "mobile"
	default:
		info.DeviceClass = "desktop"
	}

	switch {
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		info.Platform = "ios"
	case strings.Contains(ua, "android"):
		info.Platform = "android"
	case strings.Contains(ua, "windows"):
		info.Platform = "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		info.Platform = "macos"
	case strings.Contains(ua, "linux"):
		info.Platform = "linux"
	}

	return info
}
