package fusion

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

func makeSignal(symbol string, side int, strength, confidence float64, generatedAt time.Time) models.SignalEvent {
	return models.SignalEvent{
		BaseEvent:   models.BaseEvent{SchemaVersion: models.SchemaVersion},
		EventID:     "evt-1",
		Symbol:      symbol,
		Side:        side,
		Strength:    strength,
		Confidence:  confidence,
		HorizonMin:  60,
		TTLSec:      3600,
		GeneratedAt: generatedAt,
	}
}

func handleSignal(t *testing.T, svc *Service, sig models.SignalEvent) []bus.Record {
	t.Helper()
	payload, err := models.Encode(sig)
	require.NoError(t, err)
	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	out := make([]bus.Record, len(outputs))
	for i, o := range outputs {
		out[i] = bus.Record{Payload: o.Payload}
	}
	return out
}

func TestHandle_DropsNeutralSide(t *testing.T) {
	svc := New(0.5)
	outputs := handleSignal(t, svc, makeSignal("BTCUSDT", 0, 0.8, 0.9, time.Now().UTC()))
	assert.Empty(t, outputs)
}

func TestHandle_DropsBelowMinConfidence(t *testing.T) {
	svc := New(0.7)
	outputs := handleSignal(t, svc, makeSignal("BTCUSDT", 1, 0.8, 0.5, time.Now().UTC()))
	assert.Empty(t, outputs)
}

func TestHandle_DropsStaleSignal(t *testing.T) {
	svc := New(0.5)
	sig := makeSignal("BTCUSDT", 1, 0.8, 0.9, time.Now().UTC().Add(-2*time.Hour))
	sig.TTLSec = 60
	outputs := handleSignal(t, svc, sig)
	assert.Empty(t, outputs)
}

func TestHandle_ScalesSurvivingSignalStrength(t *testing.T) {
	svc := New(0.5)
	sig := makeSignal("BTCUSDT", 1, 0.8, 0.9, time.Now().UTC())
	outputs := handleSignal(t, svc, sig)
	require.Len(t, outputs, 1)

	var fused models.SignalEvent
	require.NoError(t, json.Unmarshal(outputs[0].Payload, &fused))
	assert.InDelta(t, 0.8*(0.8+0.2*0.9), fused.Strength, 1e-9)
	assert.Contains(t, fused.Rationale, "fused:")
}

func TestHandle_SuppressesOppositeConflictWithinWindowAndCloseStrength(t *testing.T) {
	svc := New(0.5)
	now := time.Now().UTC()

	first := handleSignal(t, svc, makeSignal("ETHUSDT", 1, 0.6, 0.8, now))
	require.Len(t, first, 1)

	// Opposite side, close strength vs. the stored fused strength, within 30min window.
	second := handleSignal(t, svc, makeSignal("ETHUSDT", -1, 0.5, 0.8, now.Add(10*time.Minute)))
	assert.Empty(t, second)
}

func TestHandle_AllowsOppositeConflictOutsideWindow(t *testing.T) {
	svc := New(0.5)
	now := time.Now().UTC()

	first := handleSignal(t, svc, makeSignal("ETHUSDT", 1, 0.6, 0.8, now))
	require.Len(t, first, 1)

	second := handleSignal(t, svc, makeSignal("ETHUSDT", -1, 0.5, 0.8, now.Add(31*time.Minute)))
	assert.Len(t, second, 1)
}

func TestHandle_AllowsOppositeConflictWhenStrengthDiverges(t *testing.T) {
	svc := New(0.5)
	now := time.Now().UTC()

	first := handleSignal(t, svc, makeSignal("ETHUSDT", 1, 0.9, 0.8, now))
	require.Len(t, first, 1)

	// Stored fused strength is 0.9*(0.8+0.2*0.8) = 0.864; delta 0.864 - 0.2 = 0.664 >= 0.2,
	// so not suppressed despite opposite side.
	second := handleSignal(t, svc, makeSignal("ETHUSDT", -1, 0.2, 0.8, now.Add(5*time.Minute)))
	assert.Len(t, second, 1)
}
