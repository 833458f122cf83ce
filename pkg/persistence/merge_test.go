package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zilinissleepin/crypto-news-trading/pkg/models"
)

func reportAt(status string, filledQty, avgPrice float64, ts time.Time) models.ExecutionReport {
	return models.ExecutionReport{
		OrderID:   "order-1",
		Status:    status,
		FilledQty: filledQty,
		AvgPrice:  avgPrice,
		Ts:        ts,
	}
}

func TestMergeExecutionState_HigherRankWinsStatusAndAvgPrice(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := reportAt("filled", 0.5, 64500, base.Add(20*time.Second))
	incoming := reportAt("partially_filled", 0.3, 64000, base.Add(30*time.Second))

	merged := mergeExecutionState(current, incoming)

	assert.Equal(t, "filled", merged.Status)
	assert.Equal(t, 0.5, merged.FilledQty)
	assert.Equal(t, 64500.0, merged.AvgPrice)
	assert.Equal(t, base.Add(30*time.Second), merged.Ts)
}

func TestMergeExecutionState_SameRankLaterTimestampAdvancesStatus(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := reportAt("filled", 0.5, 64500, base)
	incoming := reportAt("canceled", 0.5, 64500, base.Add(5*time.Second))

	merged := mergeExecutionState(current, incoming)

	assert.Equal(t, "canceled", merged.Status)
}

func TestMergeExecutionState_LowerRankNeverRollsStatusBack(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := reportAt("filled", 0.5, 64500, base)
	incoming := reportAt("new", 0.0, 64000, base.Add(time.Second))

	merged := mergeExecutionState(current, incoming)

	assert.Equal(t, "filled", merged.Status)
	// filled_qty/fee/ts independently take the max regardless of status rank.
	assert.Equal(t, 0.5, merged.FilledQty)
	assert.Equal(t, base.Add(time.Second), merged.Ts)
}

func TestMergeExecutionState_AvgPriceFollowsHigherFilledQty(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := reportAt("partially_filled", 0.2, 64000, base)
	incoming := reportAt("partially_filled", 0.2, 64900, base.Add(time.Second))

	merged := mergeExecutionState(current, incoming)

	// incoming.FilledQty (0.2) >= current.FilledQty (0.2) -> incoming wins the tie.
	assert.Equal(t, 64900.0, merged.AvgPrice)
}

func TestMergeExecutionState_FeeIsMonotonic(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := reportAt("partially_filled", 0.2, 64000, base)
	current.Fee = 5.0
	incoming := reportAt("partially_filled", 0.1, 64000, base.Add(time.Second))
	incoming.Fee = 2.0

	merged := mergeExecutionState(current, incoming)

	assert.Equal(t, 5.0, merged.Fee)
}

func TestRankOf_UnknownStatusDefaultsToZero(t *testing.T) {
	assert.Equal(t, 0, rankOf("some_unknown_status"))
	assert.Equal(t, 3, rankOf("filled"))
	assert.Equal(t, 1, rankOf("partially_filled"))
}
