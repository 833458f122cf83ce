package exchange

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

var basePrices = map[string]float64{
	"BTCUSDT":  65000.0,
	"ETHUSDT":  3200.0,
	"BNBUSDT":  580.0,
	"SOLUSDT":  140.0,
	"XRPUSDT":  0.62,
	"ADAUSDT":  0.47,
	"DOGEUSDT": 0.12,
	"LINKUSDT": 19.0,
	"AVAXUSDT": 34.0,
	"TONUSDT":  6.8,
}

type positionKey struct {
	market string
	symbol string
}

// SimulatedAdapter fills every order immediately at a synthetically
// jittered price, and tracks net quantity per (market, symbol) so
// position-sync has something to reconcile against in paper mode.
type SimulatedAdapter struct {
	mu        sync.Mutex
	positions map[positionKey]float64
}

// NewSimulatedAdapter returns a flat-book adapter.
func NewSimulatedAdapter() *SimulatedAdapter {
	return &SimulatedAdapter{positions: make(map[positionKey]float64)}
}

func (a *SimulatedAdapter) price(symbol string) float64 {
	base, ok := basePrices[symbol]
	if !ok {
		base = 10.0
	}
	jitter := 1 + (rand.Float64()*0.003 - 0.0015)
	px := base * jitter
	if px < 0.0001 {
		px = 0.0001
	}
	return px
}

func (a *SimulatedAdapter) PlaceOrder(_ context.Context, intent models.OrderIntent) (models.ExecutionReport, error) {
	px := a.price(intent.Symbol)
	qty := intent.QtyUSD / px
	fee := intent.QtyUSD * 0.0004

	signedQty := qty
	if intent.Side < 0 {
		signedQty = -qty
	}

	key := positionKey{market: intent.Market, symbol: intent.Symbol}
	a.mu.Lock()
	a.positions[key] += signedQty
	a.mu.Unlock()

	return models.ExecutionReport{
		BaseEvent: models.BaseEvent{SchemaVersion: models.SchemaVersion},
		OrderID:   "paper-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		IntentID:  intent.IntentID,
		Symbol:    intent.Symbol,
		Market:    intent.Market,
		Side:      intent.Side,
		Status:    "filled",
		FilledQty: qty,
		AvgPrice:  px,
		Fee:       fee,
		Ts:        time.Now().UTC(),
	}, nil
}

func (a *SimulatedAdapter) CancelOrder(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (a *SimulatedAdapter) FetchPositions(_ context.Context) ([]Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Position, 0, len(a.positions))
	for key, qty := range a.positions {
		px, ok := basePrices[key.symbol]
		if !ok {
			px = 10.0
		}
		notional := qty * px
		if notional < 0 {
			notional = -notional
		}
		out = append(out, Position{Market: key.market, Symbol: key.symbol, Qty: qty, NotionalUSD: notional})
	}
	return out, nil
}

func (a *SimulatedAdapter) StreamExecutionEvents(_ context.Context) (<-chan AdapterEvent, error) {
	ch := make(chan AdapterEvent)
	close(ch)
	return ch, nil
}
