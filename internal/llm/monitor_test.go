package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/llms"
)

func TestHeuristicTokens(t *testing.T) {
	assert.Equal(t, 0, HeuristicTokens(""))
	assert.Equal(t, 1, HeuristicTokens("a"))
	// 11 chars, 1 space: (11 - 0.5) / 4
	assert.Equal(t, 2, HeuristicTokens("hello world"))
}

func TestMonitorAggregatesPerIntent(t *testing.T) {
	m := NewMonitorWithCounter("gpt-4o-mini", HeuristicTokens, nil, nil)

	m.Record("search_hotels", nil, "", &Usage{InputTokens: 100, OutputTokens: 10})
	m.Record("search_hotels", nil, "", &Usage{InputTokens: 50, OutputTokens: 5})
	m.Record("", []llms.MessageContent{UserMessage("hello world")}, "ok", nil)

	s := m.Stats()
	assert.Equal(t, 3, s.Total.Calls)
	assert.Equal(t, 2, s.ByIntent["search_hotels"].Calls)
	assert.Equal(t, 150, s.ByIntent["search_hotels"].InputTokens)
	assert.Equal(t, 2, s.ByIntent["classifier"].InputTokens)
	assert.Greater(t, s.EstimatedCost, 0.0)

	m.Reset()
	assert.Equal(t, 0, m.Stats().Total.Calls)
	assert.Empty(t, m.Stats().ByIntent)
}

func TestMonitorUnknownModelHasNoCost(t *testing.T) {
	m := NewMonitorWithCounter("local-model", HeuristicTokens, nil, nil)
	m.Record("x", nil, "", &Usage{InputTokens: 10})
	assert.Zero(t, m.Stats().EstimatedCost)
}
