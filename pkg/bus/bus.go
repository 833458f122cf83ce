// Package bus implements the append-only event log every stage reads
// from and publishes to. It mirrors the Python source's EventBus
// abstraction: publish appends to a stream and returns a monotonically
// increasing record id; read returns every record with an id greater
// than last_id, blocking briefly when the stream is empty.
package bus

import (
	"context"
	"fmt"
)

// Record is one entry read back off a stream: its id (used as the next
// worker cursor) and its raw JSON payload.
type Record struct {
	ID      string
	Payload []byte
}

// EventBus is the shared-log abstraction every stage talks to. Two
// implementations exist: an in-memory bus for tests and single-process
// runs, and a Redis Streams-backed bus for real deployments.
type EventBus interface {
	// Publish appends payload to stream and returns the new record's id.
	Publish(ctx context.Context, stream string, payload []byte) (string, error)

	// Read returns up to count records from stream with id > lastID. If
	// none are available yet, it blocks for up to blockMs before
	// returning an empty slice.
	Read(ctx context.Context, stream, lastID string, blockMs int, count int) ([]Record, error)

	// ReadRange returns up to count records from stream with id > lastID
	// without ever blocking, even once the cursor reaches the tail of the
	// stream. It is the primitive bounded historical scans (the replay
	// engine's page-through-in-batches loop) use instead of Read, so
	// reaching the end of a finite window returns an empty slice rather
	// than hanging.
	ReadRange(ctx context.Context, stream, lastID string, count int) ([]Record, error)

	// Close releases any underlying connection.
	Close() error
}

// Build selects an EventBus implementation by backend name:
// "memory"/"inmemory" give the in-memory bus, "redis" or an empty name
// give the Redis bus, and any other name is an error.
func Build(backend, redisURL string) (EventBus, error) {
	switch backend {
	case "memory", "inmemory":
		return NewMemoryEventBus(), nil
	case "redis", "":
		return NewRedisEventBus(redisURL)
	default:
		return nil, fmt.Errorf("bus: unknown backend %q", backend)
	}
}
