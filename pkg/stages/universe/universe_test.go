package universe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

func handleSignal(t *testing.T, svc *Service, symbol string) []bus.Record {
	t.Helper()
	sig := models.SignalEvent{EventID: "e1", Symbol: symbol, Side: 1, Strength: 0.5, Confidence: 0.8}
	payload, err := models.Encode(sig)
	require.NoError(t, err)
	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	recs := make([]bus.Record, len(outputs))
	for i, o := range outputs {
		recs[i] = bus.Record{Payload: o.Payload}
	}
	return recs
}

func TestHandle_PassesThroughMemberUSDTPair(t *testing.T) {
	svc := New(map[string]bool{"BTCUSDT": true})
	outputs := handleSignal(t, svc, "BTCUSDT")
	assert.Len(t, outputs, 1)
}

func TestHandle_DropsNonUSDTPair(t *testing.T) {
	svc := New(map[string]bool{"BTCUSDT": true})
	outputs := handleSignal(t, svc, "BTCUSD")
	assert.Empty(t, outputs)
}

func TestHandle_DropsSymbolOutsideUniverse(t *testing.T) {
	svc := New(map[string]bool{"BTCUSDT": true})
	outputs := handleSignal(t, svc, "ETHUSDT")
	assert.Empty(t, outputs)
}
