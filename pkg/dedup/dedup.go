// Package dedup implements the "have I seen this key before" check used
// by the ingest stage (news dedup hash). The execution stage keeps its
// processed intent ids and seen report tuples in its own in-process maps
// instead.
package dedup

import (
	"context"
	"fmt"
)

// Store records keys with a TTL and reports whether a key was already
// present. SeenOrAdd is the only operation: it atomically checks and
// inserts so concurrent callers never both observe "not seen".
type Store interface {
	// SeenOrAdd returns true if key was already recorded and still live
	// within ttlSec; otherwise it records key with that TTL and returns
	// false.
	SeenOrAdd(ctx context.Context, key string, ttlSec int) (bool, error)
}

// Build selects a Store implementation by backend name.
func Build(backend, redisURL string) (Store, error) {
	switch backend {
	case "memory", "inmemory":
		return NewMemoryStore(), nil
	case "redis", "":
		return NewRedisStore(redisURL, "dedup")
	default:
		return nil, fmt.Errorf("dedup: unknown backend %q", backend)
	}
}
