package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the backend answers without choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// OpenAIProvider talks to OpenAI or any OpenAI-compatible chat completion API.
type OpenAIProvider struct {
	model   llms.Model
	name    string
	monitor *Monitor
	logger  *zap.Logger
}

// ProviderConfig configures an OpenAI-compatible backend.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func NewOpenAIProvider(cfg ProviderConfig, monitor *Monitor, logger *zap.Logger) (*OpenAIProvider, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return NewProvider(model, cfg.Model, monitor, logger), nil
}

// NewProvider wraps an already constructed langchaingo model.
func NewProvider(model llms.Model, name string, monitor *Monitor, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("🤖 LLM provider initialized", zap.String("model", name))
	return &OpenAIProvider{
		model:   model,
		name:    name,
		monitor: monitor,
		logger:  logger,
	}
}

// Name returns the configured model name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, request *Request) (*Response, error) {
	var opts []llms.CallOption
	if request.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(request.MaxTokens))
	}
	if request.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(request.Temperature))
	}
	if len(request.Tools) > 0 {
		opts = append(opts, llms.WithTools(request.Tools))
	}

	p.logger.Debug("Sending request to LLM",
		zap.Int("messages", len(request.Messages)),
		zap.Int("tools", len(request.Tools)),
		zap.String("intent", request.Intent))

	resp, err := p.model.GenerateContent(ctx, request.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:   choice.Content,
		ToolCalls: choice.ToolCalls,
		Usage:     usageFrom(choice.GenerationInfo),
	}

	if p.monitor != nil {
		usage := p.monitor.Record(request.Intent, request.Messages, choice.Content, out.Usage)
		out.Usage = &usage
	}

	p.logger.Debug("LLM response received",
		zap.Int("content_len", len(out.Content)),
		zap.Int("tool_calls", len(out.ToolCalls)))

	return out, nil
}

// usageFrom reads the token counts the openai backend reports, if any.
func usageFrom(info map[string]any) *Usage {
	in, okIn := intValue(info["PromptTokens"])
	out, okOut := intValue(info["CompletionTokens"])
	if !okIn && !okOut {
		return nil
	}
	return &Usage{InputTokens: in, OutputTokens: out}
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
