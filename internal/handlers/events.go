package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/harborview/civicwatch/internal/models"
	pkghttp "github.com/harborview/civicwatch/pkg/http"
)

// EventServiceInterface defines the interface for security event queries
type EventServiceInterface interface {
	EventsForActor(ctx context.Context, actorID string, limit int) ([]*models.SecurityEvent, error)
	RecentEvents(ctx context.Context, severity string, since time.Time, limit int) ([]*models.SecurityEvent, error)
}

// EventHandler exposes the security event log to operators.
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// EventResponse describes one security event
type EventResponse struct {
	ID         string              `json:"id"`
	EventType  string              `json:"event_type"`
	Severity   string              `json:"severity"`
	ActorID    *string             `json:"actor_id,omitempty"`
	Identity   *string             `json:"identity,omitempty"`
	IPAddress  string              `json:"ip_address"`
	UserAgent  string              `json:"user_agent"`
	Details    models.EventDetails `json:"details,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// List returns recent security events, filterable by actor or severity
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 50
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	var (
		events []*models.SecurityEvent
		err    error
	)
	if actorID := query.Get("actor_id"); actorID != "" {
		events, err = h.service.EventsForActor(r.Context(), actorID, limit)
	} else {
		var since time.Time
		if raw := query.Get("since"); raw != "" {
			since, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				pkghttp.WriteBadRequest(w, "since must be an RFC 3339 timestamp")
				return
			}
		}
		events, err = h.service.RecentEvents(r.Context(), query.Get("severity"), since, limit)
	}
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, EventResponse{
			ID:         e.ID,
			EventType:  e.EventType,
			Severity:   e.Severity,
			ActorID:    e.ActorID,
			Identity:   e.Identity,
			IPAddress:  e.IPAddress,
			UserAgent:  e.UserAgent,
			Details:    e.Details,
			OccurredAt: e.OccurredAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": resp})
}
