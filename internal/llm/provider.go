package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// Provider defines the interface for chat-completion backends
type Provider interface {
	Generate(ctx context.Context, request *Request) (*Response, error)
}

// Request represents the structured request to the LLM
type Request struct {
	Messages    []llms.MessageContent
	Tools       []llms.Tool
	MaxTokens   int
	Temperature float64
	// Intent labels the call for usage accounting. Empty for classification.
	Intent string
}

// Response represents the raw response from the LLM
type Response struct {
	Content   string
	ToolCalls []llms.ToolCall
	Usage     *Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// SystemMessage and UserMessage build single-text messages.
func SystemMessage(text string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeSystem, text)
}

func UserMessage(text string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeHuman, text)
}

// MessageText concatenates the text parts of a message.
func MessageText(m llms.MessageContent) string {
	var out string
	for _, part := range m.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			out += p.Text
		case llms.ToolCallResponse:
			out += p.Content
		case llms.ToolCall:
			if p.FunctionCall != nil {
				out += p.FunctionCall.Name + p.FunctionCall.Arguments
			}
		}
	}
	return out
}
