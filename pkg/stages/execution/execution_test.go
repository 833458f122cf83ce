package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilinissleepin/crypto-news-trading/pkg/bus"
	"github.com/zilinissleepin/crypto-news-trading/pkg/exchange"
	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

// stubAdapter implements exchange.Adapter and returns a fixed report for
// every PlaceOrder call so tests can control exactly what execution.report
// looks like.
type stubAdapter struct {
	report models.ExecutionReport
	calls  int
}

func (a *stubAdapter) PlaceOrder(_ context.Context, intent models.OrderIntent) (models.ExecutionReport, error) {
	a.calls++
	r := a.report
	r.IntentID = intent.IntentID
	return r, nil
}

func (a *stubAdapter) CancelOrder(_ context.Context, _ string) (bool, error) { return true, nil }

func (a *stubAdapter) FetchPositions(_ context.Context) ([]exchange.Position, error) {
	return nil, nil
}

func (a *stubAdapter) StreamExecutionEvents(_ context.Context) (<-chan exchange.AdapterEvent, error) {
	ch := make(chan exchange.AdapterEvent)
	close(ch)
	return ch, nil
}

func TestHandle_PlacesOrderOnce(t *testing.T) {
	adapter := &stubAdapter{report: models.ExecutionReport{OrderID: "o1", Status: "filled", FilledQty: 0.1, AvgPrice: 65000}}
	svc := New(adapter)

	intent := models.OrderIntent{IntentID: "intent-1", Symbol: "BTCUSDT", Market: "spot", Side: 1, QtyUSD: 1000}
	payload, err := models.Encode(intent)
	require.NoError(t, err)

	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, models.StreamExecutionReport, outputs[0].Stream)
	assert.Equal(t, 1, adapter.calls)
}

func TestHandle_DedupsRepeatedIntentID(t *testing.T) {
	adapter := &stubAdapter{report: models.ExecutionReport{OrderID: "o1", Status: "filled", FilledQty: 0.1, AvgPrice: 65000}}
	svc := New(adapter)

	intent := models.OrderIntent{IntentID: "intent-dup", Symbol: "BTCUSDT", Market: "spot", Side: 1, QtyUSD: 1000}
	payload, err := models.Encode(intent)
	require.NoError(t, err)

	_, err = svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})
	require.NoError(t, err)
	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "2-0", Payload: payload})
	require.NoError(t, err)

	assert.Empty(t, outputs)
	assert.Equal(t, 1, adapter.calls)
}

func TestIsDuplicateReport_SameRoundedTripleSuppressed(t *testing.T) {
	svc := New(&stubAdapter{})

	r := models.ExecutionReport{OrderID: "o2", Status: "partially_filled", FilledQty: 0.30000000001}
	assert.False(t, svc.isDuplicateReport(r))

	r2 := r
	r2.FilledQty = 0.3 // rounds to the same value at 1e-10 precision
	assert.True(t, svc.isDuplicateReport(r2))
}

func TestNormalizeAdapterEvent_ReturnsNotOKOnDuplicate(t *testing.T) {
	svc := New(&stubAdapter{})
	event := exchange.AdapterEvent{Type: "execution", Report: models.ExecutionReport{OrderID: "o3", Status: "filled", FilledQty: 1.0}}

	_, ok, err := svc.NormalizeAdapterEvent(event)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = svc.NormalizeAdapterEvent(event)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNormalizeAdapterEvent_DifferentStatusesForSameOrderAreNotDuplicates(t *testing.T) {
	svc := New(&stubAdapter{})

	_, firstOK, err := svc.NormalizeAdapterEvent(exchange.AdapterEvent{Type: "execution", Report: models.ExecutionReport{OrderID: "o4", Status: "partially_filled", FilledQty: 0.2, Ts: time.Now()}})
	require.NoError(t, err)
	_, secondOK, err := svc.NormalizeAdapterEvent(exchange.AdapterEvent{Type: "execution", Report: models.ExecutionReport{OrderID: "o4", Status: "filled", FilledQty: 0.5, Ts: time.Now()}})
	require.NoError(t, err)

	assert.True(t, firstOK)
	assert.True(t, secondOK)
}

func TestNormalizeAdapterEvent_AlertForwardsToRiskAlertStream(t *testing.T) {
	svc := New(&stubAdapter{})

	out, ok, err := svc.NormalizeAdapterEvent(exchange.AdapterEvent{Type: "alert", Severity: "error", Message: "listenKey keepalive failed"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StreamRiskAlert, out.Stream)
	assert.Contains(t, string(out.Payload), "listenKey keepalive failed")
}
