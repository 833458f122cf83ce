package portfolio

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

func handle(t *testing.T, svc *Service, sig models.SignalEvent) models.OrderIntent {
	t.Helper()
	payload, err := models.Encode(sig)
	require.NoError(t, err)
	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, models.StreamOrderIntent, outputs[0].Stream)

	var intent models.OrderIntent
	require.NoError(t, json.Unmarshal(outputs[0].Payload, &intent))
	return intent
}

func TestHandle_SizesByStrengthAndRiskCapital(t *testing.T) {
	svc := New(100000, 0.005, 20) // risk capital = 500
	sig := models.SignalEvent{EventID: "e1", Symbol: "BTCUSDT", Side: 1, Strength: 0.8, Confidence: 0.9}

	intent := handle(t, svc, sig)

	assert.InDelta(t, 500*0.8, intent.QtyUSD, 1e-9)
	assert.Equal(t, "spot", intent.Market)
	assert.Equal(t, 1, intent.Side)
	assert.Len(t, intent.IntentID, 20)
}

func TestHandle_ClampsStrengthFloorAt0Point2(t *testing.T) {
	svc := New(100000, 0.005, 20)
	sig := models.SignalEvent{EventID: "e2", Symbol: "BTCUSDT", Side: -1, Strength: 0.05, Confidence: 0.7}

	intent := handle(t, svc, sig)

	assert.InDelta(t, 500*0.2, intent.QtyUSD, 1e-9)
	assert.Equal(t, "perp", intent.Market)
	assert.Equal(t, -1, intent.Side)
}

func TestHandle_ClampsMinimumNotionalAt10USD(t *testing.T) {
	svc := New(1000, 0.001, 20) // risk capital = 1, below the $10 floor
	sig := models.SignalEvent{EventID: "e3", Symbol: "BTCUSDT", Side: 1, Strength: 0.5, Confidence: 0.7}

	intent := handle(t, svc, sig)

	assert.Equal(t, 10.0, intent.QtyUSD)
}
