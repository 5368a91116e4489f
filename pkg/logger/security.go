package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityEvent is the structured payload for security log lines. The
// database log in internal/services is the durable record; this logger is
// the immediate half of the dual-write.
type SecurityEvent struct {
	EventType string
	Severity  string
	ActorID   string
	Identity  string
	IPAddress string
	UserAgent string
	Details   map[string]string
}

// SecurityLogger emits structured security events via slog
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger}
}

// Log writes one security event. Medium severity logs at warn, high and
// critical at error, everything else at info.
func (sl *SecurityLogger) Log(event SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("security_event", event.EventType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	if event.Identity != "" {
		attrs = append(attrs, slog.String("identity", SanitizedEmail(event.Identity)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	for key, val := range event.Details {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	switch event.Severity {
	case "medium":
		level = slog.LevelWarn
	case "high", "critical":
		level = slog.LevelError
	}

	sl.logger.LogAttrs(context.Background(), level, "security", attrs...)
}
