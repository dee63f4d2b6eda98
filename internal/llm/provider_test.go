package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func wordCounter(text string) int { return len(text) }

func TestGenerateUsesReportedUsage(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        `{"intent": "search_hotels"}`,
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 5},
	}}}}
	col := metrics.New()
	monitor := NewMonitorWithCounter("test", wordCounter, col, nil)
	p := NewProvider(model, "test", monitor, nil)

	resp, err := p.Generate(context.Background(), &Request{
		Messages:  []llms.MessageContent{SystemMessage("sys"), UserMessage("hi")},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent": "search_hotels"}`, resp.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, 100, model.opts.MaxTokens)
	assert.Len(t, model.messages, 2)

	stats := monitor.Stats()
	assert.Equal(t, 1, stats.Total.Calls)
	assert.Equal(t, 1, stats.ByIntent["classifier"].Calls)
	assert.Equal(t, float64(12), testutil.ToFloat64(col.LLMTokens.WithLabelValues("classifier", "input")))
}

func TestGenerateCountsTokensWithoutUsage(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "abcd"}}}}
	monitor := NewMonitorWithCounter("test", wordCounter, nil, nil)
	p := NewProvider(model, "test", monitor, nil)

	resp, err := p.Generate(context.Background(), &Request{
		Messages: []llms.MessageContent{UserMessage("hello")},
		Intent:   "book_listing",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
	assert.Equal(t, 1, monitor.Stats().ByIntent["book_listing"].Calls)
}

func TestGeneratePassesTools(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "lookup", Arguments: "{}"}}},
	}}}}
	p := NewProvider(model, "test", nil, nil)

	tools := []llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "lookup"}}}
	resp, err := p.Generate(context.Background(), &Request{Messages: []llms.MessageContent{UserMessage("x")}, Tools: tools})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].FunctionCall.Name)
	assert.Len(t, model.opts.Tools, 1)
}

func TestGenerateErrors(t *testing.T) {
	p := NewProvider(&fakeModel{err: errors.New("boom")}, "test", nil, nil)
	_, err := p.Generate(context.Background(), &Request{})
	assert.ErrorContains(t, err, "boom")

	p = NewProvider(&fakeModel{resp: &llms.ContentResponse{}}, "test", nil, nil)
	_, err = p.Generate(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestMessageText(t *testing.T) {
	msg := llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{
			llms.TextContent{Text: "a"},
			llms.ToolCallResponse{ToolCallID: "1", Name: "t", Content: "b"},
		},
	}
	assert.Equal(t, "ab", MessageText(msg))
}
