package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type echoRunner struct {
	requests []*models.TurnRequest
}

func (e *echoRunner) HandleTurn(_ context.Context, r *models.TurnRequest) (*models.TurnResponse, error) {
	e.requests = append(e.requests, r)
	return &models.TurnResponse{SessionID: r.SessionID, Status: models.StatusNeedsInfo, UserMessage: "echo: " + r.UserMessage}, nil
}

func TestChatStopsOnExit(t *testing.T) {
	runner := &echoRunner{}
	var out bytes.Buffer

	err := chat(context.Background(), runner, "s1", "u1", strings.NewReader("hello\n\nbook a room\nexit\nignored\n"), &out)
	require.NoError(t, err)
	require.Len(t, runner.requests, 2)
	assert.Equal(t, "s1", runner.requests[1].SessionID)
	assert.Contains(t, out.String(), "[NEEDS_INFO] echo: book a room")
	assert.NotContains(t, out.String(), "ignored")
}

type staticTool struct{}

func (staticTool) Name() string { return "qb_data_size_retriever" }

func (staticTool) Schema() llms.Tool {
	return llms.Tool{Type: "function", Function: &llms.FunctionDefinition{Name: "qb_data_size_retriever"}}
}

func (staticTool) Call(context.Context, string) *tools.Result {
	r, _ := tools.Success("qb_data_size_retriever", "count.jsonl", map[string]any{"totalCount": 12}, nil)
	return r
}

func TestRetrieveWith(t *testing.T) {
	runner := tools.NewRunner(nil, nil)
	runner.Register(staticTool{})

	var out bytes.Buffer
	require.NoError(t, retrieveWith(context.Background(), runner, "qb_data_size_retriever", "{}", &out))

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &envelope))
	assert.Equal(t, "success", envelope["status"])

	out.Reset()
	err := retrieveWith(context.Background(), runner, "missing_tool", "{}", &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "error")
}
