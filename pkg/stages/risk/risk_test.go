package risk

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/state"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func testLimits() Limits {
	return Limits{
		AccountEquityUSD:     100000,
		MaxSymbolExposurePct: 0.05,
		MaxTotalExposurePct:  0.20,
		MaxSpotExposurePct:   0.12,
		MaxPerpExposurePct:   0.12,
		MaxLongExposurePct:   0.12,
		MaxShortExposurePct:  0.12,
		MaxDailyDrawdownPct:  0.02,
	}
}

func handleIntent(t *testing.T, svc *Service, intent models.OrderIntent) ([]bus.Record, string) {
	t.Helper()
	payload, err := models.Encode(intent)
	require.NoError(t, err)
	outputs, err := svc.HandleOrderIntent(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	return []bus.Record{{Payload: outputs[0].Payload}}, outputs[0].Stream
}

func TestHandleOrderIntent_ApprovesWithinLimits(t *testing.T) {
	svc := New(testLimits(), state.NewMemoryStore())
	intent := models.OrderIntent{IntentID: "i1", Symbol: "BTCUSDT", Market: "spot", Side: 1, QtyUSD: 1000}

	recs, stream := handleIntent(t, svc, intent)

	assert.Equal(t, models.StreamOrderApproved, stream)
	var approved models.OrderIntent
	require.NoError(t, json.Unmarshal(recs[0].Payload, &approved))
	assert.Equal(t, 1000.0, approved.QtyUSD)
}

func TestHandleOrderIntent_CapsAtSymbolLimit(t *testing.T) {
	svc := New(testLimits(), state.NewMemoryStore())
	// symbol limit = 100000 * 0.05 = 5000
	intent := models.OrderIntent{IntentID: "i1", Symbol: "BTCUSDT", Market: "spot", Side: 1, QtyUSD: 8000}

	recs, stream := handleIntent(t, svc, intent)

	assert.Equal(t, models.StreamOrderApproved, stream)
	var approved models.OrderIntent
	require.NoError(t, json.Unmarshal(recs[0].Payload, &approved))
	assert.Equal(t, 5000.0, approved.QtyUSD)
}

func TestHandleOrderIntent_RejectsWhenSymbolExposureExhausted(t *testing.T) {
	store := state.NewMemoryStore()
	svc := New(testLimits(), store)
	require.NoError(t, store.AddSymbolExposure(context.Background(), "BTCUSDT", 5000))

	intent := models.OrderIntent{IntentID: "i2", Symbol: "BTCUSDT", Market: "spot", Side: 1, QtyUSD: 1000}
	recs, stream := handleIntent(t, svc, intent)

	assert.Equal(t, models.StreamOrderRejected, stream)
	var decision models.RiskDecision
	require.NoError(t, json.Unmarshal(recs[0].Payload, &decision))
	assert.False(t, decision.Allow)
	assert.Equal(t, "SYMBOL_EXPOSURE_LIMIT", decision.ReasonCode)
}

func TestHandleOrderIntent_ReasonCodePriorityPrefersSymbolOverMarket(t *testing.T) {
	store := state.NewMemoryStore()
	svc := New(testLimits(), store)
	require.NoError(t, store.AddSymbolExposure(context.Background(), "BTCUSDT", 5000))
	require.NoError(t, store.AddMarketExposure(context.Background(), "spot", 12000))

	intent := models.OrderIntent{IntentID: "i3", Symbol: "BTCUSDT", Market: "spot", Side: 1, QtyUSD: 1000}
	recs, stream := handleIntent(t, svc, intent)
	assert.Equal(t, models.StreamOrderRejected, stream)

	var decision models.RiskDecision
	require.NoError(t, json.Unmarshal(recs[0].Payload, &decision))
	assert.Equal(t, "SYMBOL_EXPOSURE_LIMIT", decision.ReasonCode)
}

func TestHandleOrderIntent_KillSwitchLatchesAfterDrawdownBreach(t *testing.T) {
	store := state.NewMemoryStore()
	svc := New(testLimits(), store)
	// Drawdown limit = 100000 * 0.02 = 2000
	require.NoError(t, store.AddDailyRealizedPnL(context.Background(), -2500))

	intent := models.OrderIntent{IntentID: "i4", Symbol: "BTCUSDT", Market: "spot", Side: 1, QtyUSD: 100}
	recs, stream := handleIntent(t, svc, intent)
	assert.Equal(t, models.StreamOrderRejected, stream)
	var decision models.RiskDecision
	require.NoError(t, json.Unmarshal(recs[0].Payload, &decision))
	assert.Equal(t, "DAILY_DRAWDOWN_BREACH", decision.ReasonCode)

	// Kill switch stays latched even once PnL recovers.
	require.NoError(t, store.AddDailyRealizedPnL(context.Background(), 5000))
	intent2 := models.OrderIntent{IntentID: "i5", Symbol: "ETHUSDT", Market: "spot", Side: 1, QtyUSD: 100}
	_, stream2 := handleIntent(t, svc, intent2)
	assert.Equal(t, models.StreamOrderRejected, stream2)
}

func TestHandlePnLSnapshot_LatchesKillSwitchAndEmitsAlert(t *testing.T) {
	store := state.NewMemoryStore()
	svc := New(testLimits(), store)

	snap := models.PnLSnapshot{Ts: fixedNow(), Account: "paper", Realized: -2500, Drawdown: 0.1}
	payload, err := models.Encode(snap)
	require.NoError(t, err)

	outputs, err := svc.HandlePnLSnapshot(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, models.StreamRiskAlert, outputs[0].Stream)

	var alert map[string]any
	require.NoError(t, json.Unmarshal(outputs[0].Payload, &alert))
	assert.Contains(t, alert["message"], "halted")
}

func TestHandlePnLSnapshot_NoAlertWhenWithinLimit(t *testing.T) {
	store := state.NewMemoryStore()
	svc := New(testLimits(), store)

	snap := models.PnLSnapshot{Ts: fixedNow(), Account: "paper", Realized: -100, Drawdown: 0.01}
	payload, err := models.Encode(snap)
	require.NoError(t, err)

	outputs, err := svc.HandlePnLSnapshot(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	assert.Empty(t, outputs)
}
