package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store persists session state as JSON keyed by token.
type Store interface {
	Put(ctx context.Context, token string, v interface{}) error
	Get(ctx context.Context, token string, v interface{}) error
	Delete(ctx context.Context, token string) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory until they expire.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, token string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string, v interface{}) error {
	s.mu.Lock()
	entry, ok := s.entries[token]
	if ok && s.ttl > 0 && s.now().After(entry.expiresAt) {
		delete(s.entries, token)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	return json.Unmarshal(entry.data, v)
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}

// redisClient is the part of *redis.Client the store uses.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

const redisKeyPrefix = "bulkgen:session:"

// RedisStore shares sessions between API instances.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
}

func NewRedisStore(client redisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, token string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}
	if err := s.client.Set(ctx, redisKeyPrefix+token, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to store session %s", token)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string, v interface{}) error {
	data, err := s.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrUnknownSession
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load session %s", token)
	}
	return json.Unmarshal(data, v)
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKeyPrefix+token).Err()
}
