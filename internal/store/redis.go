package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harborview/civicwatch/internal/models"
	"github.com/redis/go-redis/v9"
)

// optimistic update attempts before giving up on a contended key
const maxTxRetries = 5

// RedisStore is the shared-deployment TrackerStore. Per-key atomicity comes
// from WATCH-based optimistic transactions; retention rides on native key
// TTLs, so SweepExpired is a no-op.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed tracker store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetAttempts(ctx context.Context, identity, ipAddress string) (*models.LoginAttemptRecord, error) {
	var rec models.LoginAttemptRecord
	found, err := s.get(ctx, attemptsKey(identity, ipAddress), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) UpdateAttempts(ctx context.Context, identity, ipAddress string, retention time.Duration, fn func(rec *models.LoginAttemptRecord)) (*models.LoginAttemptRecord, error) {
	key := attemptsKey(identity, ipAddress)
	var out *models.LoginAttemptRecord

	err := s.update(ctx, key, retention, func(raw []byte) ([]byte, error) {
		rec := models.LoginAttemptRecord{Identity: identity, IPAddress: ipAddress}
		if raw != nil {
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, err
			}
		}
		fn(&rec)
		out = &rec
		return json.Marshal(rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) UpdateSuspicion(ctx context.Context, ipAddress string, retention time.Duration, fn func(rec *models.SuspicionRecord)) (*models.SuspicionRecord, error) {
	key := suspicionKey(ipAddress)
	var out *models.SuspicionRecord

	err := s.update(ctx, key, retention, func(raw []byte) ([]byte, error) {
		rec := models.SuspicionRecord{IPAddress: ipAddress}
		if raw != nil {
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, err
			}
		}
		fn(&rec)
		out = &rec
		return json.Marshal(rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) GetBlock(ctx context.Context, ipAddress string) (*models.BlockListEntry, error) {
	var blocked models.BlockListEntry
	found, err := s.get(ctx, blockKey(ipAddress), &blocked)
	if err != nil || !found {
		return nil, err
	}
	return &blocked, nil
}

func (s *RedisStore) PutBlock(ctx context.Context, blocked *models.BlockListEntry) error {
	raw, err := json.Marshal(blocked)
	if err != nil {
		return err
	}

	ttl := time.Until(blocked.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, blockKey(blocked.IPAddress), raw, ttl).Err()
}

// SweepExpired is a no-op: Redis evicts tracker keys via their TTLs.
func (s *RedisStore) SweepExpired(context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// update runs a WATCH/MULTI read-modify-write so concurrent updates to the
// same key never lose writes.
func (s *RedisStore) update(ctx context.Context, key string, retention time.Duration, mutate func(raw []byte) ([]byte, error)) error {
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			raw = nil
		} else if err != nil {
			return err
		}

		next, err := mutate(raw)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, retention)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}

	return fmt.Errorf("tracker update contention on %s", key)
}
