// Package exchange implements the ExchangeAdapter abstraction: a
// simulated paper-trading adapter for local runs and tests, and a live
// Binance adapter for real execution.
package exchange

import (
	"context"
	"fmt"

	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// Position is one open position as reported by an adapter's position
// listing.
type Position struct {
	Market      string
	Symbol      string
	Qty         float64
	NotionalUSD float64
}

// AdapterEvent is one item off a live adapter's execution-event stream.
// Type is "execution" (Report is populated) or "alert" (Severity/Message
// are populated), mirroring the two shapes the Python adapter's
// stream_execution_events async iterator yields.
type AdapterEvent struct {
	Type     string // "execution" | "alert"
	Report   models.ExecutionReport
	Severity string
	Message  string
}

// Adapter is the venue-facing interface every execution-path component
// depends on.
type Adapter interface {
	PlaceOrder(ctx context.Context, intent models.OrderIntent) (models.ExecutionReport, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	FetchPositions(ctx context.Context) ([]Position, error)
	// StreamExecutionEvents delivers out-of-band fill/status updates and
	// connection-health alerts (used by live adapters with a user-data
	// websocket). Simulated adapters return a channel that is immediately
	// closed.
	StreamExecutionEvents(ctx context.Context) (<-chan AdapterEvent, error)
}

// Config bundles the settings the factory needs to build a live adapter.
type Config struct {
	ExecutionMode       string // "paper" | "live"
	BinanceAPIKey       string
	BinanceAPISecret    string
	BinanceUseTestnet   bool
	BinanceRecvWindowMs int
}

// Build selects an Adapter by execution mode, matching the Python
// source's build_exchange_adapter factory.
func Build(cfg Config) (Adapter, error) {
	if cfg.ExecutionMode == "paper" || cfg.ExecutionMode == "" {
		return NewSimulatedAdapter(), nil
	}
	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		return nil, fmt.Errorf("exchange: BINANCE_API_KEY/BINANCE_API_SECRET are required for live execution mode")
	}
	return NewBinanceAdapter(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceUseTestnet, cfg.BinanceRecvWindowMs), nil
}
