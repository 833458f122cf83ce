// Package state holds the trading exposure counters the risk stage reads
// and updates: per-symbol, per-market, per-side, and total USD exposure,
// plus the day's realized PnL used by the kill switch. Two backends exist,
// selected the same way pkg/bus picks its backend.
package state

import (
	"context"
	"fmt"
)

// Store is the exposure/PnL counter abstraction. All Add* methods are
// atomic increments-by-delta so concurrent risk evaluations never race.
type Store interface {
	SymbolExposure(ctx context.Context, symbol string) (float64, error)
	AddSymbolExposure(ctx context.Context, symbol string, delta float64) error

	TotalExposure(ctx context.Context) (float64, error)
	AddTotalExposure(ctx context.Context, delta float64) error

	MarketExposure(ctx context.Context, market string) (float64, error)
	AddMarketExposure(ctx context.Context, market string, delta float64) error

	SideExposure(ctx context.Context, side int) (float64, error)
	AddSideExposure(ctx context.Context, side int, delta float64) error

	// ReplaceExposureSnapshot overwrites every counter wholesale, used by
	// the position-sync stage after reconciling against the exchange.
	ReplaceExposureSnapshot(ctx context.Context, snapshot Snapshot) error

	DailyRealizedPnL(ctx context.Context) (float64, error)
	AddDailyRealizedPnL(ctx context.Context, delta float64) error
}

// Snapshot is the full exposure state as reported by the exchange,
// applied atomically by ReplaceExposureSnapshot.
type Snapshot struct {
	SymbolExposure map[string]float64
	MarketExposure map[string]float64
	LongExposure   float64
	ShortExposure  float64
	TotalExposure  float64
}

// Build selects a Store implementation by backend name.
func Build(backend, redisURL string) (Store, error) {
	switch backend {
	case "memory", "inmemory":
		return NewMemoryStore(), nil
	case "redis", "":
		return NewRedisStore(redisURL, "state")
	default:
		return nil, fmt.Errorf("state: unknown backend %q", backend)
	}
}
