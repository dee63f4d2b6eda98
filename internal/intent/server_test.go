package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/llm"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/tools"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap/zaptest"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Generate(ctx context.Context, request *llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, request)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

func turn(content string, slots map[string]any) Input {
	msg := models.NewMessage(models.RoleUser, content)
	for k, v := range slots {
		msg.Slots[k] = v
	}
	return Input{UserID: "u1", Turn: msg}
}

func newServer(t *testing.T, name string, b Behavior, opts ...ServerOption) *Server {
	t.Helper()
	cat := catalog.Default()
	in, ok := cat.IntentByName(name)
	require.True(t, ok)
	return NewServer(in, cat, b, append(opts, WithLogger(zaptest.NewLogger(t)))...)
}

func TestServeGathersUntilReady(t *testing.T) {
	col := metrics.New()
	s := newServer(t, "get_booking", AskBehavior{}, WithMetrics(col))

	resp, err := s.Serve(context.Background(), turn("show my booking", nil))
	require.NoError(t, err)
	assert.Equal(t, Gathering, resp.State)
	assert.Equal(t, []string{"booking_id"}, resp.Missing)
	assert.Contains(t, resp.Message, "booking_id")
	assert.Equal(t, Gathering, s.State())

	resp, err = s.Serve(context.Background(), turn("it is B42", map[string]any{"booking_id": "B42"}))
	require.NoError(t, err)
	assert.Equal(t, Done, resp.State)
	assert.Empty(t, resp.Missing)
	assert.Equal(t, "B42", resp.Output.Data["booking_id"])
	assert.Contains(t, resp.Message, "booking_id: B42")

	assert.Equal(t, float64(1), testutil.ToFloat64(col.IntentTransitions.WithLabelValues("get_booking", string(Done))))
	assert.Equal(t, float64(1), testutil.ToFloat64(col.IntentTransitions.WithLabelValues("get_booking", string(Ready))))
}

func TestServeAccumulatesAcrossTurns(t *testing.T) {
	s := newServer(t, "cancel_booking", AskBehavior{})

	resp, err := s.Serve(context.Background(), turn("cancel B1", map[string]any{"booking_id": "B1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"cancellation_reason"}, resp.Missing)

	resp, err = s.Serve(context.Background(), turn("plans changed", map[string]any{"cancellation_reason": "plans changed"}))
	require.NoError(t, err)
	assert.Equal(t, Done, resp.State)
	assert.Equal(t, "B1", resp.Slots["booking_id"])
}

func TestServeDropsUndeclaredSlots(t *testing.T) {
	s := newServer(t, "get_booking", AskBehavior{})
	s.UpdateSlots(map[string]any{"location": "Paris", "booking_id": "B1"})

	assert.Equal(t, map[string]any{"booking_id": "B1"}, s.Gathered())
	ok, missing := s.CanContinue()
	assert.True(t, ok)
	assert.Empty(t, missing)
}

func TestSlotsResetAfterDone(t *testing.T) {
	s := newServer(t, "get_booking", AskBehavior{})

	_, err := s.Serve(context.Background(), turn("B1", map[string]any{"booking_id": "B1"}))
	require.NoError(t, err)
	assert.Empty(t, s.Gathered())
	assert.Equal(t, Gathering, s.State())

	resp, err := s.Serve(context.Background(), turn("again", nil))
	require.NoError(t, err)
	assert.Equal(t, Gathering, resp.State)
}

func TestMissingSlotsFollowDeclarationOrder(t *testing.T) {
	s := newServer(t, "search_hotels", AskBehavior{})
	s.UpdateSlots(map[string]any{"guests": 2})
	assert.Equal(t, []string{"location", "check_in", "check_out"}, s.MissingSlots())
}

type rejectingBehavior struct {
	AskBehavior
}

func (rejectingBehavior) ValidateSlots(slots map[string]any) error {
	if slots["booking_id"] == "bad" {
		return errors.New("booking bad does not exist")
	}
	return nil
}

func TestServeBlockedByValidator(t *testing.T) {
	s := newServer(t, "cancel_booking", rejectingBehavior{})

	resp, err := s.Serve(context.Background(), turn("cancel bad", map[string]any{"booking_id": "bad"}))
	require.NoError(t, err)
	assert.Equal(t, Blocked, resp.State)
	assert.Equal(t, "booking bad does not exist", resp.Message)
	assert.Equal(t, Blocked, s.State())
	assert.Empty(t, s.Gathered())

	resp, err = s.Serve(context.Background(), turn("sorry, B9", map[string]any{"booking_id": "B9"}))
	require.NoError(t, err)
	assert.Equal(t, Done, resp.State)
}

type failingBehavior struct {
	AskBehavior
}

func (failingBehavior) RunTools(context.Context, *Server, Input) (*ToolOutput, error) {
	return nil, errors.New("backend down")
}

func TestServeToolFailure(t *testing.T) {
	s := newServer(t, "get_booking", failingBehavior{})
	_, err := s.Serve(context.Background(), turn("B1", map[string]any{"booking_id": "B1"}))
	assert.ErrorContains(t, err, "backend down")
	assert.Equal(t, Ready, s.State())
	assert.Equal(t, "B1", s.Gathered()["booking_id"])
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := newServer(t, "get_booking", AskBehavior{})
	r.Register("get_booking", s)

	got, err := r.Server("get_booking")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Server("book_listing")
	assert.ErrorIs(t, err, ErrServerNotRegistered)
	assert.Equal(t, []string{"get_booking"}, r.Names())

	s.UpdateSlots(map[string]any{"booking_id": "B1"})
	r.Reset()
	assert.Empty(t, s.Gathered())
}

func TestCollabToolSchemas(t *testing.T) {
	r := NewRegistry()
	details := newServer(t, "get_listing_details", AskBehavior{})
	booking := newServer(t, "book_listing", AskBehavior{}, WithCollaborators("get_listing_details"))
	r.Register("get_listing_details", details)
	r.Register("book_listing", booking)

	schemas, err := booking.CollabToolSchemas()
	require.NoError(t, err)
	require.Contains(t, schemas, "get_listing_details")
	assert.Equal(t, "get_listing_details", schemas["get_listing_details"].Function.Name)

	lonely := newServer(t, "cancel_booking", AskBehavior{}, WithCollaborators("get_booking"))
	r.Register("cancel_booking", lonely)
	_, err = lonely.CollabToolSchemas()
	assert.ErrorIs(t, err, ErrServerNotRegistered)
}

func TestLLMBehaviorServesCollaborators(t *testing.T) {
	provider := &mockProvider{}
	r := NewRegistry()
	details := newServer(t, "get_listing_details", AskBehavior{})
	booking := newServer(t, "book_listing", &LLMBehavior{Provider: provider}, WithCollaborators("get_listing_details"))
	r.Register("get_listing_details", details)
	r.Register("book_listing", booking)

	call := llms.ToolCall{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{
		Name:      "get_listing_details",
		Arguments: `{"hotel_name": "Ritz"}`,
	}}
	provider.On("Generate", mock.Anything, mock.MatchedBy(func(r *llm.Request) bool {
		return len(r.Messages) == 2 && len(r.Tools) == 1 && r.Intent == "book_listing"
	})).Return(&llm.Response{ToolCalls: []llms.ToolCall{call}}, nil).Once()
	provider.On("Generate", mock.Anything, mock.MatchedBy(func(r *llm.Request) bool {
		return len(r.Messages) == 4
	})).Return(&llm.Response{Content: "Booked the Ritz for 2 guests."}, nil).Once()

	resp, err := booking.Serve(context.Background(), turn("book the Ritz", map[string]any{
		"hotel_name": "Ritz", "check_in": "2026-05-01", "check_out": "2026-05-03", "guests": 2,
	}))
	require.NoError(t, err)
	assert.Equal(t, Done, resp.State)
	assert.Equal(t, "Booked the Ritz for 2 guests.", resp.Message)
	require.Len(t, resp.Output.Results, 1)
	assert.True(t, resp.Output.Results[0].IsSuccess())
	assert.Equal(t, Done, resp.Output.Results[0].Data().(map[string]any)["state"])
	provider.AssertExpectations(t)
}

func TestLLMBehaviorRejectsUndeclaredCollaborator(t *testing.T) {
	provider := &mockProvider{}
	r := NewRegistry()
	details := newServer(t, "get_listing_details", AskBehavior{})
	cancel := newServer(t, "cancel_booking", AskBehavior{})
	booking := newServer(t, "book_listing", &LLMBehavior{Provider: provider}, WithCollaborators("get_listing_details"))
	r.Register("get_listing_details", details)
	r.Register("cancel_booking", cancel)
	r.Register("book_listing", booking)

	calls := []llms.ToolCall{
		{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "cancel_booking", Arguments: `{"booking_id": "B7"}`}},
		{ID: "c2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "book_listing", Arguments: `{}`}},
	}
	provider.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{ToolCalls: calls}, nil).Once()
	provider.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Content: "I can only look up listings."}, nil).Once()

	resp, err := booking.Serve(context.Background(), turn("book the Ritz", map[string]any{
		"hotel_name": "Ritz", "check_in": "2026-05-01", "check_out": "2026-05-03", "guests": 2,
	}))
	require.NoError(t, err)
	require.Len(t, resp.Output.Results, 2)
	for _, result := range resp.Output.Results {
		assert.False(t, result.IsSuccess())
		assert.Equal(t, tools.KindUnknownTool, result.ErrorType())
	}
	assert.Equal(t, Gathering, cancel.State())
	assert.Empty(t, cancel.Gathered())

	_, err = booking.Collaborator("book_listing")
	assert.ErrorIs(t, err, ErrNotCollaborator)
	provider.AssertExpectations(t)
}

type countTool struct{ calls int }

func (c *countTool) Name() string { return "qb_data_size_retriever" }

func (c *countTool) Schema() llms.Tool {
	return llms.Tool{Type: "function", Function: &llms.FunctionDefinition{Name: c.Name()}}
}

func (c *countTool) Call(context.Context, string) *tools.Result {
	c.calls++
	r, _ := tools.Success(c.Name(), "count.jsonl", map[string]any{"totalCount": 3}, nil)
	return r
}

func TestToolBehaviorLoop(t *testing.T) {
	provider := &mockProvider{}
	tool := &countTool{}
	runner := tools.NewRunner(nil, nil)
	runner.Register(tool)

	s := newServer(t, "qb", &ToolBehavior{Provider: provider, Runner: runner, Platform: "QuickBooks", MaxToolRounds: 2})

	call := llms.ToolCall{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "qb_data_size_retriever", Arguments: `{}`}}
	provider.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{ToolCalls: []llms.ToolCall{call}}, nil).Once()
	provider.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Content: "You have 3 bills."}, nil).Once()

	resp, err := s.Serve(context.Background(), turn("how many bills do I have?", nil))
	require.NoError(t, err)
	assert.Equal(t, "You have 3 bills.", resp.Message)
	assert.Equal(t, 1, tool.calls)
}

func TestToolBehaviorRoundLimit(t *testing.T) {
	provider := &mockProvider{}
	runner := tools.NewRunner(nil, nil)
	runner.Register(&countTool{})
	s := newServer(t, "qb", &ToolBehavior{Provider: provider, Runner: runner, MaxToolRounds: 1})

	call := llms.ToolCall{ID: "c1", FunctionCall: &llms.FunctionCall{Name: "qb_data_size_retriever"}}
	provider.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{ToolCalls: []llms.ToolCall{call}}, nil)

	_, err := s.Serve(context.Background(), turn("count", nil))
	assert.ErrorIs(t, err, ErrToolRoundsExceeded)
	provider.AssertNumberOfCalls(t, "Generate", 2)
}

func TestClarifyBehavior(t *testing.T) {
	s := newServer(t, "other", ClarifyBehavior{})
	resp, err := s.Serve(context.Background(), turn("what's the weather", nil))
	require.NoError(t, err)
	assert.Equal(t, Done, resp.State)
	assert.NotEmpty(t, resp.Message)
}
