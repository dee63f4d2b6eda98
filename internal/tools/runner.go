package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// Tool is anything the model can call.
type Tool interface {
	Name() string
	Schema() llms.Tool
	// Call runs the tool with the JSON-encoded arguments chosen by the model.
	// Failures are reported in the result, never returned.
	Call(ctx context.Context, arguments string) *Result
}

// Runner holds the tools offered to the model and executes its tool calls.
type Runner struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	metrics *metrics.Collectors
	logger  *zap.Logger
}

func NewRunner(m *metrics.Collectors, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		tools:   make(map[string]Tool),
		metrics: m,
		logger:  logger,
	}
}

// Register adds tools, replacing any previous tool of the same name.
func (r *Runner) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
}

// Names returns the registered tool names, sorted.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the tool definitions in name order.
func (r *Runner) Schemas() []llms.Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llms.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].Schema())
	}
	return out
}

// Run executes one tool call. Unknown tools produce an UnknownTool error result.
func (r *Runner) Run(ctx context.Context, call llms.ToolCall) *Result {
	name, args := "", ""
	if call.FunctionCall != nil {
		name, args = call.FunctionCall.Name, call.FunctionCall.Arguments
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	var result *Result
	start := time.Now()
	if !ok {
		result = Error(name, KindUnknownTool, fmt.Sprintf("tool %q is not available", name), 0)
	} else {
		result = tool.Call(ctx, args)
	}

	r.metrics.ToolCall(name, result.Status())
	fields := []zap.Field{
		zap.String("tool", name),
		zap.String("call_id", call.ID),
		zap.Duration("duration", time.Since(start)),
		zap.Stringer("result", result),
	}
	if result.IsSuccess() {
		r.logger.Info("🔧 Tool call succeeded", fields...)
	} else {
		r.logger.Warn("🔧 Tool call failed", append(fields, zap.String("arguments", args))...)
	}
	return result
}

// AssistantMessage rebuilds the model turn that requested calls, so the tool
// responses that follow it have something to answer.
func AssistantMessage(content string, calls []llms.ToolCall) llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if content != "" {
		msg.Parts = append(msg.Parts, llms.TextContent{Text: content})
	}
	for _, call := range calls {
		msg.Parts = append(msg.Parts, call)
	}
	return msg
}

// ToolMessage feeds a result back to the model as the answer to call.
func ToolMessage(call llms.ToolCall, result *Result) llms.MessageContent {
	name := ""
	if call.FunctionCall != nil {
		name = call.FunctionCall.Name
	}
	body, err := json.Marshal(result)
	if err != nil {
		body = []byte(result.String())
	}
	return llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       name,
			Content:    string(body),
		}},
	}
}

// DecodeArguments unmarshals tool call arguments. Empty arguments decode as {}.
func DecodeArguments(arguments string, into any) error {
	if arguments == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), into); err != nil {
		return &ArgumentError{Err: err}
	}
	return nil
}

// ArgumentError reports tool arguments that are not valid JSON for the tool.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string     { return "invalid tool arguments: " + e.Err.Error() }
func (e *ArgumentError) Unwrap() error     { return e.Err }
func (e *ArgumentError) ErrorType() string { return "ArgumentError" }
