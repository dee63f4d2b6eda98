package intent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/avvvet/tod-intent/internal/llm"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/prompts"
	"github.com/avvvet/tod-intent/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

const defaultMaxToolRounds = 5

// ErrToolRoundsExceeded is returned when the model keeps calling tools.
var ErrToolRoundsExceeded = errors.New("model did not answer within the tool round limit")

// AskBehavior asks for missing slots from a template and, once everything is
// gathered, confirms the collected values.
type AskBehavior struct{}

func (AskBehavior) HandleMissingSlots(_ context.Context, s *Server, missing []string, _ Input) (string, error) {
	return prompts.MissingSlotsMessage(s.Catalog(), s.Intent(), missing), nil
}

func (AskBehavior) RunTools(_ context.Context, s *Server, _ Input) (*ToolOutput, error) {
	return &ToolOutput{Data: s.Gathered()}, nil
}

func (AskBehavior) UseToolOutput(_ context.Context, s *Server, out *ToolOutput, _ Input) (string, error) {
	return fmt.Sprintf("Got it. I'll %s with:\n%s", describe(s), prompts.FormatSlots(out.Data)), nil
}

// LLMBehavior answers with the language model once the slots are gathered.
// Collaborating intents are offered to the model as tools; a call is served
// by the collaborator's own server.
type LLMBehavior struct {
	AskBehavior
	Provider      llm.Provider
	MaxTokens     int
	MaxToolRounds int
}

func (b *LLMBehavior) RunTools(ctx context.Context, s *Server, in Input) (*ToolOutput, error) {
	schemas, err := s.CollabToolSchemas()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	toolDefs := make([]llms.Tool, 0, len(names))
	for _, name := range names {
		toolDefs = append(toolDefs, schemas[name])
	}

	messages := prompts.IntentAnswerMessages(s.Intent(), s.Gathered(), in.Turn.Content)
	exec := func(ctx context.Context, call llms.ToolCall) *tools.Result {
		return serveCollaborator(ctx, s, call, in)
	}
	return runToolLoop(ctx, b.Provider, s.Intent().Name, messages, toolDefs, exec, b.MaxTokens, b.MaxToolRounds)
}

func (b *LLMBehavior) UseToolOutput(_ context.Context, _ *Server, out *ToolOutput, _ Input) (string, error) {
	return out.Content, nil
}

func serveCollaborator(ctx context.Context, s *Server, call llms.ToolCall, in Input) *tools.Result {
	name := call.FunctionCall.Name
	collab, err := s.Collaborator(name)
	if err != nil {
		return tools.Error(name, tools.KindUnknownTool, err.Error(), 0)
	}

	var slots map[string]any
	if err := tools.DecodeArguments(call.FunctionCall.Arguments, &slots); err != nil {
		return tools.FromError(name, err)
	}
	turn := models.NewMessage(models.RoleUser, in.Turn.Content)
	for key, value := range slots {
		if slot, ok := s.Catalog().SlotByName(key); ok {
			turn.Slots[slot.Name] = value
		}
	}

	resp, err := collab.Serve(ctx, Input{UserID: in.UserID, Turn: turn, Dialog: in.Dialog})
	if err != nil {
		return tools.FromError(name, err)
	}
	result, err := tools.Success(name, "", map[string]any{
		"state":   resp.State,
		"message": resp.Message,
		"missing": resp.Missing,
	}, nil)
	if err != nil {
		return tools.FromError(name, err)
	}
	return result
}

// ToolBehavior lets the model work through a set of data tools until it can
// answer the user.
type ToolBehavior struct {
	AskBehavior
	Provider      llm.Provider
	Runner        *tools.Runner
	Platform      string
	MaxTokens     int
	MaxToolRounds int
}

func (b *ToolBehavior) RunTools(ctx context.Context, s *Server, in Input) (*ToolOutput, error) {
	messages := prompts.DataAnalystMessages(b.Platform, s.Gathered(), in.Turn.Content)
	return runToolLoop(ctx, b.Provider, s.Intent().Name, messages, b.Runner.Schemas(), b.Runner.Run, b.MaxTokens, b.MaxToolRounds)
}

func (b *ToolBehavior) UseToolOutput(_ context.Context, _ *Server, out *ToolOutput, _ Input) (string, error) {
	return out.Content, nil
}

// ClarifyBehavior answers turns no intent could take with a clarification.
type ClarifyBehavior struct {
	AskBehavior
}

func (ClarifyBehavior) RunTools(context.Context, *Server, Input) (*ToolOutput, error) {
	return &ToolOutput{}, nil
}

func (ClarifyBehavior) UseToolOutput(context.Context, *Server, *ToolOutput, Input) (string, error) {
	return prompts.ClarifyMessage, nil
}

// runToolLoop sends messages to the model, executes the tool calls it asks
// for and feeds the results back until it answers in plain text.
func runToolLoop(
	ctx context.Context,
	provider llm.Provider,
	intentName string,
	messages []llms.MessageContent,
	toolDefs []llms.Tool,
	exec func(context.Context, llms.ToolCall) *tools.Result,
	maxTokens, maxRounds int,
) (*ToolOutput, error) {
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	out := &ToolOutput{}

	for round := 0; round <= maxRounds; round++ {
		req := &llm.Request{
			Messages:  messages,
			MaxTokens: maxTokens,
			Intent:    intentName,
		}
		if round < maxRounds {
			req.Tools = toolDefs
		}

		resp, err := provider.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			out.Content = resp.Content
			return out, nil
		}

		messages = append(messages, tools.AssistantMessage(resp.Content, resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			var result *tools.Result
			if call.FunctionCall == nil {
				result = tools.Error("", tools.KindUnknownTool, "tool call without a function", 0)
			} else {
				result = exec(ctx, call)
			}
			out.Results = append(out.Results, result)
			messages = append(messages, tools.ToolMessage(call, result))
		}
	}
	return nil, ErrToolRoundsExceeded
}

func describe(s *Server) string {
	return prompts.DescribeIntent(s.Intent())
}
