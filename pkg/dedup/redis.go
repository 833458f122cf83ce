package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis SET NX EX, matching the Python
// source's redis SETNX-with-expiry usage exactly.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore dials redisURL and returns a store namespacing its keys
// under namespace (defaults to "dedup").
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	if namespace == "" {
		namespace = "dedup"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("dedup: invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), namespace: namespace}, nil
}

func (s *RedisStore) SeenOrAdd(ctx context.Context, key string, ttlSec int) (bool, error) {
	namespaced := s.namespace + ":" + key
	created, err := s.client.SetNX(ctx, namespaced, "1", time.Duration(ttlSec)*time.Second).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: setnx %s: %w", namespaced, err)
	}
	return !created, nil
}
