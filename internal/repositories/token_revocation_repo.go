package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/harborview/civicwatch/internal/database"
	"github.com/harborview/civicwatch/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRevocationRepository(db *database.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{pool: db.Pool}
}

// Revoke adds a token id to the blacklist. The row expires when the token
// itself would have, so pruning never needs to re-decode tokens.
func (r *TokenRevocationRepository) Revoke(ctx context.Context, jti, subjectID, tokenType, reason string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (jti, subject_id, token_type, reason, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (jti) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, jti, subjectID, tokenType, reason, expiresAt)
	return database.MapPostgresError(err)
}

// IsRevoked checks whether a token id is blacklisted. Expired rows still
// waiting for the sweep do not count; the token is already dead on its own.
func (r *TokenRevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > NOW())`

	var exists bool
	err := r.pool.QueryRow(ctx, query, jti).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}

// SetEpoch records the subject's revocation epoch. Later calls only move the
// epoch forward.
func (r *TokenRevocationRepository) SetEpoch(ctx context.Context, subjectID string, revokedBefore time.Time, reason string) error {
	query := `
		INSERT INTO revocation_epochs (subject_id, revoked_before, reason, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (subject_id) DO UPDATE
		SET revoked_before = GREATEST(revocation_epochs.revoked_before, EXCLUDED.revoked_before),
		    reason = EXCLUDED.reason,
		    updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, subjectID, revokedBefore, reason)
	return database.MapPostgresError(err)
}

// EpochFor returns the subject's revocation epoch, or nil when none is set.
func (r *TokenRevocationRepository) EpochFor(ctx context.Context, subjectID string) (*time.Time, error) {
	query := `SELECT revoked_before FROM revocation_epochs WHERE subject_id = $1`

	var revokedBefore time.Time
	err := r.pool.QueryRow(ctx, query, subjectID).Scan(&revokedBefore)
	if err != nil {
		if errors.Is(database.MapPostgresError(err), models.ErrNotFound) {
			return nil, nil
		}
		return nil, database.MapPostgresError(err)
	}

	return &revokedBefore, nil
}

// CleanupExpired removes blacklist rows whose tokens have expired on their
// own (call periodically).
func (r *TokenRevocationRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at < NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
