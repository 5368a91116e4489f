package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/pkg/logger"
	"github.com/oklog/ulid/v2"
)

// SecurityEventStore persists append-only security events.
type SecurityEventStore interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
	ListByActor(ctx context.Context, actorID string, limit int) ([]*models.SecurityEvent, error)
	ListBySeverity(ctx context.Context, severity string, since time.Time, limit int) ([]*models.SecurityEvent, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventRetention is how long security events are kept before the sweep
// prunes them.
const EventRetention = 7 * 24 * time.Hour

// SecurityEventService dual-writes security events: immediately to the
// structured log, durably to the event store. High-severity events also
// invoke the alerting hook; alert delivery failures never propagate to the
// operation that raised the event.
type SecurityEventService struct {
	events  SecurityEventStore
	secLog  *logger.SecurityLogger
	alerter Alerter
	logger  *slog.Logger
	now     func() time.Time
}

// NewSecurityEventService creates a new SecurityEventService. alerter may be
// nil when alerting is not configured.
func NewSecurityEventService(events SecurityEventStore, secLog *logger.SecurityLogger, alerter Alerter, log *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		events:  events,
		secLog:  secLog,
		alerter: alerter,
		logger:  log,
		now:     time.Now,
	}
}

// SetClock overrides the service's time source. Test hook.
func (s *SecurityEventService) SetClock(now func() time.Time) {
	s.now = now
}

// Record appends one security event and returns its id. Severity comes from
// the fixed type table; callers never choose it. The structured log line is
// emitted even when persistence fails, so an outage leaves a trace.
func (s *SecurityEventService) Record(ctx context.Context, eventType string, actorID, identity *string, ipAddress, userAgent string, details models.EventDetails) (string, error) {
	occurredAt := s.now()
	severity := models.SeverityFor(eventType)

	event := &models.SecurityEvent{
		ID:         ulid.MustNew(ulid.Timestamp(occurredAt), rand.Reader).String(),
		EventType:  eventType,
		Severity:   severity,
		ActorID:    actorID,
		Identity:   identity,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Details:    details,
		OccurredAt: occurredAt,
	}

	s.logEvent(event)

	if err := s.events.Create(ctx, event); err != nil {
		return "", fmt.Errorf("failed to persist security event: %w", err)
	}

	if models.IsHighSeverity(severity) && s.alerter != nil {
		// Fire-and-forget: the triggering operation has already succeeded
		// or failed on its own merits.
		go func(ev *models.SecurityEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.alerter.SendSecurityAlert(ctx, ev); err != nil {
				s.logger.Error("security alert delivery failed",
					slog.String("event_id", ev.ID),
					slog.String("event_type", ev.EventType),
					slog.Any("error", err))
			}
		}(event)
	}

	return event.ID, nil
}

func (s *SecurityEventService) logEvent(event *models.SecurityEvent) {
	logDetails := make(map[string]string, len(event.Details))
	for key, val := range event.Details {
		logDetails[key] = fmt.Sprintf("%v", val)
	}

	le := logger.SecurityEvent{
		EventType: event.EventType,
		Severity:  event.Severity,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Details:   logDetails,
	}
	if event.ActorID != nil {
		le.ActorID = *event.ActorID
	}
	if event.Identity != nil {
		le.Identity = *event.Identity
	}

	s.secLog.Log(le)
}

// EventsForActor lists an actor's recent events, newest first.
func (s *SecurityEventService) EventsForActor(ctx context.Context, actorID string, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.events.ListByActor(ctx, actorID, limit)
}

// RecentEvents lists recent events, optionally filtered by severity.
func (s *SecurityEventService) RecentEvents(ctx context.Context, severity string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if since.IsZero() {
		since = s.now().Add(-EventRetention)
	}
	if severity == "" {
		return s.events.ListRecent(ctx, since, limit)
	}
	return s.events.ListBySeverity(ctx, severity, since, limit)
}

// PruneExpired removes events older than the retention window.
func (s *SecurityEventService) PruneExpired(ctx context.Context) (int64, error) {
	return s.events.DeleteOlderThan(ctx, s.now().Add(-EventRetention))
}
