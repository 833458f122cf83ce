// Package pnl implements the position/PnL accounting stage: a
// FIFO-style weighted-average-cost position tracker that realizes PnL on
// opposite-sign fills and emits a snapshot after every execution report.
package pnl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/busworker"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

type positionKey struct {
	market string
	symbol string
}

// Service tracks net position and realized PnL per (market, symbol).
//
// Known simplification carried over from the source: when a fill flips a
// position's sign, avg_cost is not reset for the residual quantity that
// opens the new side; it keeps the prior side's avg_cost, and later
// same-sign fills average against that value.
type Service struct {
	mu        sync.Mutex
	positions map[positionKey]float64
	avgCost   map[positionKey]float64
	realized  float64
}

// New returns a zeroed-out Service.
func New() *Service {
	return &Service{
		positions: make(map[positionKey]float64),
		avgCost:   make(map[positionKey]float64),
	}
}

// Handle is the busworker.Handler for execution.report.
func (s *Service) Handle(_ context.Context, record bus.Record) ([]busworker.Output, error) {
	decoded, err := models.Decode(models.StreamExecutionReport, record.Payload)
	if err != nil {
		return nil, err
	}
	report, ok := decoded.(models.ExecutionReport)
	if !ok {
		return nil, fmt.Errorf("pnl: unexpected decoded type %T", decoded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{market: report.Market, symbol: report.Symbol}
	qty := report.FilledQty
	if report.Side < 0 {
		qty = -report.FilledQty
	}
	prevQty := s.positions[key]
	newQty := prevQty + qty

	switch {
	case prevQty == 0, prevQty > 0 && qty > 0, prevQty < 0 && qty < 0:
		prevCost, ok := s.avgCost[key]
		if !ok {
			prevCost = report.AvgPrice
		}
		weightedQty := absFloat(prevQty) + absFloat(qty)
		if weightedQty < 1e-9 {
			weightedQty = 1e-9
		}
		s.avgCost[key] = (prevCost*absFloat(prevQty) + report.AvgPrice*absFloat(qty)) / weightedQty
	default:
		entry, ok := s.avgCost[key]
		if !ok {
			entry = report.AvgPrice
		}
		closing := minFloat(absFloat(prevQty), absFloat(qty))
		direction := 1.0
		if prevQty < 0 {
			direction = -1.0
		}
		s.realized += direction * (report.AvgPrice - entry) * closing
	}

	s.positions[key] = newQty

	exposure := 0.0
	for _, q := range s.positions {
		exposure += absFloat(q)
	}
	drawdown := maxFloat(0, -s.realized/100000.0)

	snapshot := models.NewPnLSnapshot(time.Now().UTC())
	snapshot.Realized = s.realized - report.Fee
	snapshot.Exposure = exposure
	snapshot.Drawdown = drawdown

	payload, err := models.Encode(snapshot)
	if err != nil {
		return nil, err
	}
	return []busworker.Output{{Stream: models.StreamPnLSnapshot, Payload: payload}}, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
