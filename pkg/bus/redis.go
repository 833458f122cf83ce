package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// payloadField is the single hash field each stream entry stores its JSON
// payload under, matching the Python source's {"payload": json.dumps(...)}
// encoding so a Redis-backed Go deployment stays wire-compatible with one
// running the original services.
const payloadField = "payload"

// RedisEventBus implements EventBus on top of Redis Streams (XADD/XREAD).
type RedisEventBus struct {
	client *redis.Client
}

// NewRedisEventBus dials redisURL (a redis:// connection string) and
// returns a bus backed by it.
func NewRedisEventBus(redisURL string) (*RedisEventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("bus: invalid redis url: %w", err)
	}
	return &RedisEventBus{client: redis.NewClient(opts)}, nil
}

func (b *RedisEventBus) Publish(ctx context.Context, stream string, payload []byte) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("bus: xadd %s: %w", stream, err)
	}
	return id, nil
}

func (b *RedisEventBus) Read(ctx context.Context, stream, lastID string, blockMs int, count int) ([]Record, error) {
	res, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   time.Duration(blockMs) * time.Millisecond,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bus: xread %s: %w", stream, err)
	}

	var out []Record
	for _, s := range res {
		for _, msg := range s.Messages {
			raw, ok := msg.Values[payloadField]
			if !ok {
				continue
			}
			str, ok := raw.(string)
			if !ok {
				continue
			}
			out = append(out, Record{ID: msg.ID, Payload: []byte(str)})
		}
	}
	return out, nil
}

// ReadRange returns up to count records from stream with id > lastID
// using XRANGE rather than XREAD, so it never blocks even once lastID
// reaches the tail of the stream. The "(" prefix makes the range
// exclusive of lastID itself, matching Read's id > lastID semantics.
func (b *RedisEventBus) ReadRange(ctx context.Context, stream, lastID string, count int) ([]Record, error) {
	start := "-"
	if lastID != "" && lastID != "0-0" && lastID != "0" {
		start = "(" + lastID
	}
	res, err := b.client.XRangeN(ctx, stream, start, "+", int64(count)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bus: xrange %s: %w", stream, err)
	}

	out := make([]Record, 0, len(res))
	for _, msg := range res {
		raw, ok := msg.Values[payloadField]
		if !ok {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			continue
		}
		out = append(out, Record{ID: msg.ID, Payload: []byte(str)})
	}
	return out, nil
}

func (b *RedisEventBus) Close() error {
	return b.client.Close()
}
