package positionsync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/exchange"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
	"github.com/zilinissleepin/crypto-news-trading/pkg/state"
)

// stubAdapter reports a fixed position listing; only FetchPositions is
// exercised by the position-sync stage.
type stubAdapter struct {
	positions []exchange.Position
}

func (a *stubAdapter) PlaceOrder(context.Context, models.OrderIntent) (models.ExecutionReport, error) {
	return models.ExecutionReport{}, nil
}
func (a *stubAdapter) CancelOrder(context.Context, string) (bool, error) { return true, nil }
func (a *stubAdapter) FetchPositions(context.Context) ([]exchange.Position, error) {
	return a.positions, nil
}
func (a *stubAdapter) StreamExecutionEvents(context.Context) (<-chan exchange.AdapterEvent, error) {
	ch := make(chan exchange.AdapterEvent)
	close(ch)
	return ch, nil
}

func TestRunOnce_SkipsWhenNotLive(t *testing.T) {
	svc := New(Settings{ExecutionMode: "paper"}, &stubAdapter{}, state.NewMemoryStore(), bus.NewMemoryEventBus())

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "execution_mode_not_live", result.Reason)
}

func TestRunOnce_NoAlertWhenDriftBelowThreshold(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.AddTotalExposure(context.Background(), 5000))

	adapter := &stubAdapter{positions: []exchange.Position{
		{Market: "spot", Symbol: "BTCUSDT", Qty: 0.1, NotionalUSD: 5010},
	}}
	eventBus := bus.NewMemoryEventBus()
	svc := New(Settings{
		ExecutionMode:             "live",
		AccountEquityUSD:          100000,
		PositionSyncDriftAlertPct: 0.02,
	}, adapter, store, eventBus)

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Less(t, result.DriftPct, 0.02)

	records, err := eventBus.Read(context.Background(), models.StreamRiskAlert, "0-0", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunOnce_PublishesAlertWhenDriftExceedsThreshold(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.AddTotalExposure(context.Background(), 1000))

	adapter := &stubAdapter{positions: []exchange.Position{
		{Market: "spot", Symbol: "BTCUSDT", Qty: 1, NotionalUSD: 6000},
	}}
	eventBus := bus.NewMemoryEventBus()
	svc := New(Settings{
		ExecutionMode:             "live",
		AccountEquityUSD:          100000,
		PositionSyncDriftAlertPct: 0.02,
	}, adapter, store, eventBus)

	result, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.DriftPct, 0.02)

	records, err := eventBus.Read(context.Background(), models.StreamRiskAlert, "0-0", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	var alert map[string]any
	require.NoError(t, json.Unmarshal(records[0].Payload, &alert))
	assert.Equal(t, "warning", alert["severity"])
	assert.Contains(t, alert["message"], "drift")

	total, err := store.TotalExposure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6000.0, total)
}

func TestBuildSnapshot_AggregatesPerSymbolMarketAndSide(t *testing.T) {
	positions := []exchange.Position{
		{Market: "spot", Symbol: "BTCUSDT", Qty: 0.1, NotionalUSD: 6000},
		{Market: "perp", Symbol: "ETHUSDT", Qty: -2, NotionalUSD: 4000},
		{Market: "spot", Symbol: "BTCUSDT", Qty: 0.05, NotionalUSD: 3000},
	}

	snapshot := BuildSnapshot(positions)

	assert.Equal(t, 9000.0, snapshot.SymbolExposure["BTCUSDT"])
	assert.Equal(t, 4000.0, snapshot.SymbolExposure["ETHUSDT"])
	assert.Equal(t, 9000.0, snapshot.MarketExposure["spot"])
	assert.Equal(t, 4000.0, snapshot.MarketExposure["perp"])
	assert.Equal(t, 9000.0, snapshot.LongExposure)
	assert.Equal(t, 4000.0, snapshot.ShortExposure)
	assert.Equal(t, 13000.0, snapshot.TotalExposure)
}
