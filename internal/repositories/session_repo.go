package repositories

import (
	"context"
	"time"

	"github.com/harborview/civicwatch/internal/database"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `
	id, subject_id, access_jti, refresh_jti, ip_address, user_agent,
	device_class, platform, created_at, last_activity_at, expires_at,
	refresh_expires_at, active, suspicious, compromised, reauth_required,
	invalidated_at, invalidation_reason
`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.SubjectID, &s.AccessJTI, &s.RefreshJTI, &s.IPAddress,
		&s.UserAgent, &s.DeviceClass, &s.Platform, &s.CreatedAt,
		&s.LastActivityAt, &s.ExpiresAt, &s.RefreshExpires, &s.Active,
		&s.Suspicious, &s.Compromised, &s.ReauthRequired,
		&s.InvalidatedAt, &s.InvalidReason,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (
			id, subject_id, access_jti, refresh_jti, ip_address, user_agent,
			device_class, platform, created_at, last_activity_at, expires_at,
			refresh_expires_at, active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.SubjectID, s.AccessJTI, s.RefreshJTI, s.IPAddress,
		s.UserAgent, s.DeviceClass, s.Platform, s.CreatedAt,
		s.LastActivityAt, s.ExpiresAt, s.RefreshExpires,
	)
	return database.MapPostgresError(err)
}

// GetByAccessJTI resolves the session holding the given access token id.
func (r *SessionRepository) GetByAccessJTI(ctx context.Context, jti string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE access_jti = $1`
	return scanSession(r.pool.QueryRow(ctx, query, jti))
}

// GetByRefreshJTI resolves the session holding the given refresh token id.
func (r *SessionRepository) GetByRefreshJTI(ctx context.Context, jti string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_jti = $1`
	return scanSession(r.pool.QueryRow(ctx, query, jti))
}

// GetByID fetches a session by its id.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// ListActiveForSubject returns the subject's active sessions, oldest first.
func (r *SessionRepository) ListActiveForSubject(ctx context.Context, subjectID string) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE subject_id = $1 AND active
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, database.MapPostgresError(rows.Err())
}

// CountActiveForSubject counts the subject's active sessions.
func (r *SessionRepository) CountActiveForSubject(ctx context.Context, subjectID string) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE subject_id = $1 AND active`

	var count int
	if err := r.pool.QueryRow(ctx, query, subjectID).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// OldestActiveForSubject returns the least-recently-created active session.
func (r *SessionRepository) OldestActiveForSubject(ctx context.Context, subjectID string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE subject_id = $1 AND active
		ORDER BY created_at ASC
		LIMIT 1
	`
	return scanSession(r.pool.QueryRow(ctx, query, subjectID))
}

// MarkInactive stamps a session inactive with its invalidation reason.
func (r *SessionRepository) MarkInactive(ctx context.Context, id, reason string) error {
	query := `
		UPDATE sessions
		SET active = FALSE, invalidated_at = NOW(), invalidation_reason = $2
		WHERE id = $1 AND active
	`

	result, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// MarkAllInactiveForSubject stamps every active session for a subject
// inactive and returns the affected sessions for token revocation.
func (r *SessionRepository) MarkAllInactiveForSubject(ctx context.Context, subjectID, reason string) ([]*models.Session, error) {
	query := `
		UPDATE sessions
		SET active = FALSE, invalidated_at = NOW(), invalidation_reason = $2
		WHERE subject_id = $1 AND active
		RETURNING ` + sessionColumns

	rows, err := r.pool.Query(ctx, query, subjectID, reason)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, database.MapPostgresError(rows.Err())
}

// RotateTokens swaps a session's token pair after a refresh and extends its
// activity and expiry stamps.
func (r *SessionRepository) RotateTokens(ctx context.Context, id, accessJTI, refreshJTI string, expiresAt, refreshExpiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET access_jti = $2, refresh_jti = $3, expires_at = $4,
		    refresh_expires_at = $5, last_activity_at = NOW()
		WHERE id = $1 AND active
	`

	result, err := r.pool.Exec(ctx, query, id, accessJTI, refreshJTI, expiresAt, refreshExpiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// TouchActivity updates last_activity_at. Called off the request's critical
// path; a lost update only costs timestamp freshness.
func (r *SessionRepository) TouchActivity(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_activity_at = NOW() WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// SetSecurityFlags updates a session's security flags.
func (r *SessionRepository) SetSecurityFlags(ctx context.Context, id string, suspicious, compromised, reauthRequired bool) error {
	query := `
		UPDATE sessions
		SET suspicious = $2, compromised = $3, reauth_required = $4
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, suspicious, compromised, reauthRequired)
	return database.MapPostgresError(err)
}

// DeleteExpired removes sessions past their refresh expiry and inactive
// sessions stale for more than the retention window. Storage reclamation
// only; expiry checks on the request path never depend on this.
func (r *SessionRepository) DeleteExpired(ctx context.Context, inactiveRetention time.Duration) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE refresh_expires_at < NOW()
		   OR (NOT active AND invalidated_at < NOW() - $1::interval)
	`

	result, err := r.pool.Exec(ctx, query, inactiveRetention)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
