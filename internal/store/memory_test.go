package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAttemptsRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	rec, err := s.UpdateAttempts(ctx, "a@b.com", "1.2.3.4", time.Hour, func(rec *models.LoginAttemptRecord) {
		rec.ConsecutiveFailures++
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ConsecutiveFailures)

	got, err := s.GetAttempts(ctx, "a@b.com", "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a@b.com", got.Identity)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}

func TestMemoryStoreEntriesExpire(t *testing.T) {
	s := store.NewMemoryStore()
	current := time.Now()
	s.SetClock(func() time.Time { return current })
	ctx := context.Background()

	_, err := s.UpdateAttempts(ctx, "a@b.com", "1.2.3.4", time.Hour, func(rec *models.LoginAttemptRecord) {
		rec.ConsecutiveFailures = 4
	})
	require.NoError(t, err)

	// Still live just inside the retention window
	current = current.Add(59 * time.Minute)
	got, err := s.GetAttempts(ctx, "a@b.com", "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Gone past it; a later update starts from a fresh record
	current = current.Add(2 * time.Minute)
	got, err = s.GetAttempts(ctx, "a@b.com", "1.2.3.4")
	require.NoError(t, err)
	assert.Nil(t, got)

	rec, err := s.UpdateAttempts(ctx, "a@b.com", "1.2.3.4", time.Hour, func(rec *models.LoginAttemptRecord) {
		rec.ConsecutiveFailures++
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ConsecutiveFailures)
}

func TestMemoryStoreKeysAreIsolated(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	_, err := s.UpdateAttempts(ctx, "a@b.com", "1.2.3.4", time.Hour, func(rec *models.LoginAttemptRecord) {
		rec.ConsecutiveFailures = 3
	})
	require.NoError(t, err)

	// Same identity, different origin
	got, err := s.GetAttempts(ctx, "a@b.com", "5.6.7.8")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Same origin, different identity
	got, err = s.GetAttempts(ctx, "c@d.com", "1.2.3.4")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreSuspicionWindow(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	rec, err := s.UpdateSuspicion(ctx, "10.0.0.1", time.Hour, func(rec *models.SuspicionRecord) {
		rec.Requests = append(rec.Requests, models.TrackedRequest{
			At: time.Now(), Path: "/api/v1/issues", UserAgent: "test",
		})
		rec.Score = 10
	})
	require.NoError(t, err)
	assert.Len(t, rec.Requests, 1)
	assert.Equal(t, 10, rec.Score)

	rec, err = s.UpdateSuspicion(ctx, "10.0.0.1", time.Hour, func(rec *models.SuspicionRecord) {
		rec.Requests = append(rec.Requests, models.TrackedRequest{
			At: time.Now(), Path: "/api/v1/issues", UserAgent: "test",
		})
	})
	require.NoError(t, err)
	assert.Len(t, rec.Requests, 2)
	assert.Equal(t, 10, rec.Score)
}

func TestMemoryStoreBlockExpiry(t *testing.T) {
	s := store.NewMemoryStore()
	current := time.Now()
	s.SetClock(func() time.Time { return current })
	ctx := context.Background()

	require.NoError(t, s.PutBlock(ctx, &models.BlockListEntry{
		IPAddress: "10.0.0.2",
		Reason:    "suspicion score 55",
		BlockedAt: current,
		ExpiresAt: current.Add(24 * time.Hour),
	}))

	blocked, err := s.GetBlock(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.NotNil(t, blocked)
	assert.Equal(t, "suspicion score 55", blocked.Reason)

	current = current.Add(24*time.Hour + time.Minute)
	blocked, err = s.GetBlock(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.Nil(t, blocked)
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	s := store.NewMemoryStore()
	current := time.Now()
	s.SetClock(func() time.Time { return current })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		identity := fmt.Sprintf("user-%d@b.com", i)
		_, err := s.UpdateAttempts(ctx, identity, "1.2.3.4", time.Hour, func(rec *models.LoginAttemptRecord) {
			rec.ConsecutiveFailures++
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.PutBlock(ctx, &models.BlockListEntry{
		IPAddress: "10.0.0.3",
		ExpiresAt: current.Add(24 * time.Hour),
	}))

	// Nothing has expired yet
	removed, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// The attempt records expire; the day-long block stays
	current = current.Add(time.Hour + time.Minute)
	removed, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, removed)

	blocked, err := s.GetBlock(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.NotNil(t, blocked)
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	const workers = 16
	const iterations = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				_, err := s.UpdateAttempts(ctx, "a@b.com", "1.2.3.4", time.Hour, func(rec *models.LoginAttemptRecord) {
					rec.ConsecutiveFailures++
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Updates run under the shard lock: no increments lost
	got, err := s.GetAttempts(ctx, "a@b.com", "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, workers*iterations, got.ConsecutiveFailures)
}
