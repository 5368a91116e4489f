package logger

import (
	"strings"
)

// SanitizedEmail masks an identity string for logging (e.g., "u***@e***.com").
// Non-email identities are masked wholesale.
func SanitizedEmail(identity string) string {
	parts := strings.Split(identity, "@")
	if len(parts) != 2 {
		if len(identity) <= 1 {
			return "*"
		}
		return string(identity[0]) + strings.Repeat("*", len(identity)-1)
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// SanitizeQueryString reports whether a query string contains sensitive
// parameters and should be redacted from request logs.
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password", "token", "secret", "code", "credential", "auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
