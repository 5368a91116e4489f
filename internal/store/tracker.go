// Package store provides the keyed tracker state behind the login attempt
// guard and the abuse detection engine. The TrackerStore interface keeps the
// trackers free of hard-coded singletons: the in-memory implementation serves
// a single process, the Redis implementation a shared deployment, and the
// two are interchangeable.
package store

import (
	"context"
	"time"

	"github.com/harborview/civicwatch/internal/models"
)

// TrackerStore is the injected state store for per-key abuse trackers.
// Update operations apply the mutation atomically with respect to other
// updates of the same key; different keys never contend.
type TrackerStore interface {
	// GetAttempts returns the attempt record for (identity, origin), or nil
	// when none exists.
	GetAttempts(ctx context.Context, identity, ipAddress string) (*models.LoginAttemptRecord, error)

	// UpdateAttempts applies fn to the current record (a zero-value record on
	// first use) and persists the result with the given retention.
	UpdateAttempts(ctx context.Context, identity, ipAddress string, retention time.Duration, fn func(rec *models.LoginAttemptRecord)) (*models.LoginAttemptRecord, error)

	// UpdateSuspicion applies fn to the origin's suspicion record (zero-value
	// on first use) and persists the result with the given retention.
	UpdateSuspicion(ctx context.Context, ipAddress string, retention time.Duration, fn func(rec *models.SuspicionRecord)) (*models.SuspicionRecord, error)

	// GetBlock returns the active block entry for an origin, or nil when the
	// origin is not blocked. Expired entries read as absent.
	GetBlock(ctx context.Context, ipAddress string) (*models.BlockListEntry, error)

	// PutBlock records a block entry until its expiry.
	PutBlock(ctx context.Context, entry *models.BlockListEntry) error

	// SweepExpired removes expired records and returns the number removed.
	// Implementations backed by native TTLs may report zero.
	SweepExpired(ctx context.Context) (int, error)
}
