package entity

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

func fixedTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func testUniverse() map[string]bool {
	return map[string]bool{"BTCUSDT": true, "ETHUSDT": true, "SOLUSDT": true}
}

func TestExtractSymbols_LiteralAndAlias(t *testing.T) {
	svc := New(testUniverse())

	symbols := svc.ExtractSymbols("BTCUSDT rallies as Ethereum ETF inflows accelerate")

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)
}

func TestExtractSymbols_WordBoundaryAvoidsSubstringMatch(t *testing.T) {
	svc := New(testUniverse())

	// No alias appears as a whole word here; "solana" should not match inside "unsolanaable".
	symbols := svc.ExtractSymbols("this is an unsolanaable situation with no real coin mentioned")

	assert.Empty(t, symbols)
}

func TestExtractSymbols_DedupesAndSorts(t *testing.T) {
	svc := New(testUniverse())

	symbols := svc.ExtractSymbols("bitcoin bitcoin BITCOIN BTCUSDT")

	assert.Equal(t, []string{"BTCUSDT"}, symbols)
}

func TestExtractTags_KeywordMatch(t *testing.T) {
	svc := New(testUniverse())

	tags := svc.ExtractTags("Exchange delists token after hack exploit investigation")

	assert.Equal(t, []string{"exchange", "security"}, tags)
}

func TestHandle_EmitsNothingWhenNoSymbolsFound(t *testing.T) {
	svc := New(testUniverse())
	news := models.NewNewsEvent("evt-1", "coindesk", fixedTime(), "No crypto content here", "just noise")
	payload, err := models.Encode(news)
	require.NoError(t, err)

	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})

	require.NoError(t, err)
	assert.Nil(t, outputs)
}

func TestHandle_EmitsEntityEventWithRelevanceScore(t *testing.T) {
	svc := New(testUniverse())
	news := models.NewNewsEvent("evt-2", "coindesk", fixedTime(), "Bitcoin ETF approval sparks partnership rumors", "more content")
	payload, err := models.Encode(news)
	require.NoError(t, err)

	outputs, err := svc.Handle(context.Background(), bus.Record{ID: "1-0", Payload: payload})

	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, models.StreamNewsEntity, outputs[0].Stream)

	var entity models.EntityEvent
	require.NoError(t, json.Unmarshal(outputs[0].Payload, &entity))
	assert.Equal(t, []string{"BTCUSDT"}, entity.Symbols)
	assert.Contains(t, entity.Tags, "macro")
	assert.Contains(t, entity.Tags, "adoption")
	// 0.5 base + 0.1*2 tags + 0.1*1 symbol = 0.8
	assert.InDelta(t, 0.8, entity.RelevanceScore, 1e-9)
}
