package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis INCRBYFLOAT counters, namespaced
// so multiple logical stores (state vs dedup) can share one Redis
// instance without key collisions.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore dials redisURL and returns a store namespacing its keys
// under namespace (defaults to "state").
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	if namespace == "" {
		namespace = "state"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("state: invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), namespace: namespace}, nil
}

func (s *RedisStore) symbolKey(symbol string) string {
	return fmt.Sprintf("%s:symbol_exposure:%s", s.namespace, strings.ToUpper(symbol))
}

func (s *RedisStore) totalKey() string { return s.namespace + ":total_exposure" }

func (s *RedisStore) marketKey(market string) string {
	return fmt.Sprintf("%s:market_exposure:%s", s.namespace, strings.ToLower(market))
}

func (s *RedisStore) sideKey(side int) string {
	return fmt.Sprintf("%s:side_exposure:%s", s.namespace, sideKey(side))
}

func (s *RedisStore) dailyPnLKey() string { return s.namespace + ":daily_realized_pnl" }

func (s *RedisStore) getFloat(ctx context.Context, key string) (float64, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("state: get %s: %w", key, err)
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("state: parse %s: %w", key, err)
	}
	return f, nil
}

func (s *RedisStore) incrByFloat(ctx context.Context, key string, delta float64) error {
	if err := s.client.IncrByFloat(ctx, key, delta).Err(); err != nil {
		return fmt.Errorf("state: incrbyfloat %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SymbolExposure(ctx context.Context, symbol string) (float64, error) {
	return s.getFloat(ctx, s.symbolKey(symbol))
}

func (s *RedisStore) AddSymbolExposure(ctx context.Context, symbol string, delta float64) error {
	return s.incrByFloat(ctx, s.symbolKey(symbol), delta)
}

func (s *RedisStore) TotalExposure(ctx context.Context) (float64, error) {
	return s.getFloat(ctx, s.totalKey())
}

func (s *RedisStore) AddTotalExposure(ctx context.Context, delta float64) error {
	return s.incrByFloat(ctx, s.totalKey(), delta)
}

func (s *RedisStore) MarketExposure(ctx context.Context, market string) (float64, error) {
	return s.getFloat(ctx, s.marketKey(market))
}

func (s *RedisStore) AddMarketExposure(ctx context.Context, market string, delta float64) error {
	return s.incrByFloat(ctx, s.marketKey(market), delta)
}

func (s *RedisStore) SideExposure(ctx context.Context, side int) (float64, error) {
	return s.getFloat(ctx, s.sideKey(side))
}

func (s *RedisStore) AddSideExposure(ctx context.Context, side int, delta float64) error {
	return s.incrByFloat(ctx, s.sideKey(side), delta)
}

func (s *RedisStore) ReplaceExposureSnapshot(ctx context.Context, snap Snapshot) error {
	var stale []string
	for _, pattern := range []string{
		s.namespace + ":symbol_exposure:*",
		s.namespace + ":market_exposure:*",
		s.namespace + ":side_exposure:*",
	} {
		keys, err := s.client.Keys(ctx, pattern).Result()
		if err != nil {
			return fmt.Errorf("state: scan %s: %w", pattern, err)
		}
		stale = append(stale, keys...)
	}

	pipe := s.client.TxPipeline()
	if len(stale) > 0 {
		pipe.Del(ctx, stale...)
	}
	for symbol, exposure := range snap.SymbolExposure {
		pipe.Set(ctx, s.symbolKey(symbol), strconv.FormatFloat(exposure, 'f', -1, 64), 0)
	}
	for market, exposure := range snap.MarketExposure {
		pipe.Set(ctx, s.marketKey(market), strconv.FormatFloat(exposure, 'f', -1, 64), 0)
	}
	pipe.Set(ctx, s.sideKey(1), strconv.FormatFloat(snap.LongExposure, 'f', -1, 64), 0)
	pipe.Set(ctx, s.sideKey(-1), strconv.FormatFloat(snap.ShortExposure, 'f', -1, 64), 0)
	pipe.Set(ctx, s.totalKey(), strconv.FormatFloat(snap.TotalExposure, 'f', -1, 64), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state: replace snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) DailyRealizedPnL(ctx context.Context) (float64, error) {
	return s.getFloat(ctx, s.dailyPnLKey())
}

func (s *RedisStore) AddDailyRealizedPnL(ctx context.Context, delta float64) error {
	return s.incrByFloat(ctx, s.dailyPnLKey(), delta)
}
