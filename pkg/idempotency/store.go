// Package idempotency remembers keys of work that already committed so
// repeated deliveries can be answered before they reach the database.
package idempotency

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store is a hint, never the source of truth. A key is marked only after
// the work it stands for has committed, so a lost or failed mark costs a
// repeated database lookup and nothing more.
type Store interface {
	// Seen reports whether key was marked and has not expired.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records key for ttl.
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up key: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark key: %w", err)
	}
	return nil
}

type memoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore keeps keys in process. Other API replicas fall through to
// the database.
func NewMemoryStore(cleanupInterval time.Duration) Store {
	return &memoryStore{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *memoryStore) Seen(_ context.Context, key string) (bool, error) {
	_, found := s.cache.Get(key)
	return found, nil
}

func (s *memoryStore) Mark(_ context.Context, key string, ttl time.Duration) error {
	s.cache.Set(key, time.Now(), ttl)
	return nil
}
