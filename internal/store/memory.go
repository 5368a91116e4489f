package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/harborview/civicwatch/internal/models"
)

const shardCount = 32

// entry wraps a tracked value with its retention deadline.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// MemoryStore is the single-process TrackerStore. Keys are spread across
// shards so updates to different keys do not contend on one lock.
type MemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewMemoryStore creates an in-memory tracker store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return s
}

// SetClock overrides the store's time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func attemptsKey(identity, ip string) string { return "attempts:" + identity + "|" + ip }
func suspicionKey(ip string) string          { return "suspicion:" + ip }
func blockKey(ip string) string              { return "block:" + ip }

func (s *MemoryStore) GetAttempts(_ context.Context, identity, ipAddress string) (*models.LoginAttemptRecord, error) {
	sh := s.shardFor(attemptsKey(identity, ipAddress))
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[attemptsKey(identity, ipAddress)]
	if !ok || s.now().After(e.expiresAt) {
		return nil, nil
	}
	rec := e.value.(models.LoginAttemptRecord)
	return &rec, nil
}

func (s *MemoryStore) UpdateAttempts(_ context.Context, identity, ipAddress string, retention time.Duration, fn func(rec *models.LoginAttemptRecord)) (*models.LoginAttemptRecord, error) {
	key := attemptsKey(identity, ipAddress)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := models.LoginAttemptRecord{Identity: identity, IPAddress: ipAddress}
	if e, ok := sh.entries[key]; ok && !s.now().After(e.expiresAt) {
		rec = e.value.(models.LoginAttemptRecord)
	}

	fn(&rec)

	sh.entries[key] = entry{value: rec, expiresAt: s.now().Add(retention)}
	out := rec
	return &out, nil
}

func (s *MemoryStore) UpdateSuspicion(_ context.Context, ipAddress string, retention time.Duration, fn func(rec *models.SuspicionRecord)) (*models.SuspicionRecord, error) {
	key := suspicionKey(ipAddress)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := models.SuspicionRecord{IPAddress: ipAddress}
	if e, ok := sh.entries[key]; ok && !s.now().After(e.expiresAt) {
		rec = e.value.(models.SuspicionRecord)
	}

	fn(&rec)

	sh.entries[key] = entry{value: rec, expiresAt: s.now().Add(retention)}
	out := rec
	return &out, nil
}

func (s *MemoryStore) GetBlock(_ context.Context, ipAddress string) (*models.BlockListEntry, error) {
	key := blockKey(ipAddress)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		return nil, nil
	}
	blocked := e.value.(models.BlockListEntry)
	return &blocked, nil
}

func (s *MemoryStore) PutBlock(_ context.Context, blocked *models.BlockListEntry) error {
	key := blockKey(blocked.IPAddress)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.entries[key] = entry{value: *blocked, expiresAt: blocked.ExpiresAt}
	return nil
}

func (s *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	now := s.now()
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if now.After(e.expiresAt) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed, nil
}
