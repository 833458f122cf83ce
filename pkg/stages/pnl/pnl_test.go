package pnl

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

func handleReport(t *testing.T, svc *Service, r models.ExecutionReport) models.PnLSnapshot {
	t.Helper()
	payload, err := models.Encode(r)
	require.NoError(t, err)
	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, models.StreamPnLSnapshot, outputs[0].Stream)

	var snap models.PnLSnapshot
	require.NoError(t, json.Unmarshal(outputs[0].Payload, &snap))
	return snap
}

func TestHandle_OpeningFillSetsAvgCost(t *testing.T) {
	svc := New()
	snap := handleReport(t, svc, models.ExecutionReport{
		Market: "spot", Symbol: "BTCUSDT", Side: 1, Status: "filled",
		FilledQty: 1.0, AvgPrice: 60000, Fee: 1, Ts: time.Now(),
	})

	assert.InDelta(t, 60000.0, svc.avgCost[positionKey{market: "spot", symbol: "BTCUSDT"}], 1e-9)
	assert.Equal(t, -1.0, snap.Realized) // realized - fee, but realized starts at 0 minus the fee
}

func TestHandle_SameSideAddFillUpdatesWeightedAverage(t *testing.T) {
	svc := New()
	handleReport(t, svc, models.ExecutionReport{
		Market: "spot", Symbol: "BTCUSDT", Side: 1, Status: "filled",
		FilledQty: 1.0, AvgPrice: 60000, Ts: time.Now(),
	})
	handleReport(t, svc, models.ExecutionReport{
		Market: "spot", Symbol: "BTCUSDT", Side: 1, Status: "filled",
		FilledQty: 1.0, AvgPrice: 62000, Ts: time.Now(),
	})

	// (60000*1 + 62000*1) / 2 = 61000
	assert.InDelta(t, 61000.0, svc.avgCost[positionKey{market: "spot", symbol: "BTCUSDT"}], 1e-9)
}

func TestHandle_OppositeSignFillRealizesPnL(t *testing.T) {
	svc := New()
	handleReport(t, svc, models.ExecutionReport{
		Market: "spot", Symbol: "BTCUSDT", Side: 1, Status: "filled",
		FilledQty: 1.0, AvgPrice: 60000, Ts: time.Now(),
	})

	snap := handleReport(t, svc, models.ExecutionReport{
		Market: "spot", Symbol: "BTCUSDT", Side: -1, Status: "filled",
		FilledQty: 0.5, AvgPrice: 62000, Ts: time.Now(),
	})

	// Closing 0.5 of a long entered at 60000, exited at 62000: +1000 realized.
	assert.InDelta(t, 1000.0, svc.realized, 1e-9)
	assert.InDelta(t, 1000.0, snap.Realized, 1e-9)
}

func TestHandle_ExposureSumsAbsoluteNetPositions(t *testing.T) {
	svc := New()
	handleReport(t, svc, models.ExecutionReport{
		Market: "spot", Symbol: "BTCUSDT", Side: 1, Status: "filled",
		FilledQty: 1.0, AvgPrice: 60000, Ts: time.Now(),
	})
	snap := handleReport(t, svc, models.ExecutionReport{
		Market: "perp", Symbol: "ETHUSDT", Side: -1, Status: "filled",
		FilledQty: 2.0, AvgPrice: 3000, Ts: time.Now(),
	})

	assert.InDelta(t, 3.0, snap.Exposure, 1e-9)
}

func TestHandle_FeeIsSubtractedFromRealizedInSnapshot(t *testing.T) {
	svc := New()
	snap := handleReport(t, svc, models.ExecutionReport{
		Market: "spot", Symbol: "BTCUSDT", Side: 1, Status: "filled",
		FilledQty: 1.0, AvgPrice: 60000, Fee: 5.0, Ts: time.Now(),
	})

	assert.InDelta(t, -5.0, snap.Realized, 1e-9)
}
