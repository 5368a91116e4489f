package repositories

import (
	"context"
	"time"

	"github.com/harborview/civicwatch/internal/database"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

const eventColumns = `
	id, event_type, severity, actor_id, identity, ip_address, user_agent,
	details, occurred_at
`

func scanEvent(row pgx.Row) (*models.SecurityEvent, error) {
	var e models.SecurityEvent
	err := row.Scan(
		&e.ID, &e.EventType, &e.Severity, &e.ActorID, &e.Identity,
		&e.IPAddress, &e.UserAgent, &e.Details, &e.OccurredAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &e, nil
}

// Create appends a security event. Events are never updated or individually
// deleted; only the retention prune removes them.
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			id, event_type, severity, actor_id, identity, ip_address,
			user_agent, details, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.EventType, event.Severity, event.ActorID,
		event.Identity, event.IPAddress, event.UserAgent, event.Details,
		event.OccurredAt,
	)
	return database.MapPostgresError(err)
}

func (r *SecurityEventRepository) collect(ctx context.Context, query string, args ...interface{}) ([]*models.SecurityEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var events []*models.SecurityEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, database.MapPostgresError(rows.Err())
}

// ListByActor returns the actor's most recent events, newest first.
func (r *SecurityEventRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM security_events
		WHERE actor_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	return r.collect(ctx, query, actorID, limit)
}

// ListBySeverity returns recent events at or above the given recency cutoff
// with the given severity, newest first.
func (r *SecurityEventRepository) ListBySeverity(ctx context.Context, severity string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM security_events
		WHERE severity = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`
	return r.collect(ctx, query, severity, since, limit)
}

// ListRecent returns the newest events across all actors.
func (r *SecurityEventRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM security_events
		WHERE occurred_at >= $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	return r.collect(ctx, query, since, limit)
}

// DeleteOlderThan prunes events past the retention window.
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_events WHERE occurred_at < $1`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
