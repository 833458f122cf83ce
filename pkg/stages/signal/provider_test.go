package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProvider_NoAPIKeyUsesHeuristic(t *testing.T) {
	p := NewProvider("", "", "qwen-plus")
	assert.Nil(t, p.client)

	inf := p.Infer(context.Background(), "Major exchange hack drains funds", "exploit investigation underway", "BTCUSDT")
	assert.Equal(t, -1, inf.Side)
}

func TestHeuristic_PositiveKeywordsYieldPositiveSide(t *testing.T) {
	p := NewProvider("", "", "qwen-plus")
	inf := p.heuristic("ETF approval sparks rally", "adoption surges after partnership announcement")
	assert.Equal(t, 1, inf.Side)
	assert.Greater(t, inf.Strength, 0.4)
}

func TestHeuristic_NoKeywordsYieldsNeutralSide(t *testing.T) {
	p := NewProvider("", "", "qwen-plus")
	inf := p.heuristic("Quarterly report released", "nothing notable happened")
	assert.Equal(t, 0, inf.Side)
}

func TestHeuristic_MoreNegativeEdgeIncreasesHorizon(t *testing.T) {
	p := NewProvider("", "", "qwen-plus")
	inf := p.heuristic("Exchange hacked in exploit", "lawsuit and ban follow, outflow accelerates")
	assert.Equal(t, -1, inf.Side)
	assert.Equal(t, 180, inf.HorizonMin)
}

func TestParseJSONText_ExtractsFromFencedContent(t *testing.T) {
	text := "Here is the result:\n```json\n{\"side\": 1, \"strength\": 0.7, \"confidence\": 0.8, \"horizon_min\": 90, \"rationale\": \"ok\"}\n```"
	inf, ok := parseJSONText(text)
	assert.True(t, ok)
	assert.Equal(t, 1, inf.Side)
	assert.Equal(t, 90, inf.HorizonMin)
}

func TestParseJSONText_RejectsNonJSON(t *testing.T) {
	_, ok := parseJSONText("not json at all")
	assert.False(t, ok)
}
