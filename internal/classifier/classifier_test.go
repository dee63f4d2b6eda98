package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/llm"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Generate(ctx context.Context, request *llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, request)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

func TestParseSingleKnownIntent(t *testing.T) {
	cat := catalog.Default()
	result, err := Parse(`{"intent": "search_hotels", "dialog_act": "INFORM_INTENT", "entities": {"location": "Paris", "guests": 2}}`, cat)
	require.NoError(t, err)

	assert.Equal(t, []string{"search_hotels"}, result.IntentNames())
	assert.Equal(t, []string{"INFORM_INTENT"}, result.DialogActNames())
	assert.Equal(t, "Paris", result.Slots["location"])
	assert.Equal(t, float64(2), result.Slots["guests"])
	assert.True(t, result.IsSuccessful())
}

func TestParseDropsUnknownNames(t *testing.T) {
	cat := catalog.Default()
	result, err := Parse(`{"intent": "order_pizza", "dialog_act": "SHOUT", "entities": {"topping": "ham", "LOCATION": "Rome"}}`, cat)
	require.NoError(t, err)

	assert.Empty(t, result.Intents)
	assert.Empty(t, result.DialogActs)
	assert.Equal(t, map[string]any{"location": "Rome"}, result.Slots)
}

func TestParseCaseInsensitive(t *testing.T) {
	cat := catalog.Default()
	for _, name := range []string{"book_listing", "BOOK_LISTING", "Book_Listing"} {
		result, err := Parse(`{"intent": "`+name+`"}`, cat)
		require.NoError(t, err)
		assert.Equal(t, []string{"book_listing"}, result.IntentNames(), name)
	}
}

func TestParseMultipleLinesKeepsDuplicates(t *testing.T) {
	cat := catalog.Default()
	content := "```json\n" +
		`{"intent1": "get_booking", "dialog_act1": "REQUEST", "entities1": {"booking_id": "A1"}}` + "\n\n" +
		`{"intent2": "get_booking", "entities2": {"booking_id": "B2"}}` + "\n```"

	result, err := Parse(content, cat)
	require.NoError(t, err)
	assert.Equal(t, []string{"get_booking", "get_booking"}, result.IntentNames())
	assert.Equal(t, "B2", result.Slots["booking_id"])
}

func TestParseBadLineFailsWholeResponse(t *testing.T) {
	cat := catalog.Default()
	content := `{"intent": "search_hotels"}` + "\n" + `{"intent": "get_booking"`

	result, err := Parse(content, cat)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrMalformedOutput)

	_, err = Parse(`["search_hotels"]`, cat)
	assert.ErrorIs(t, err, ErrMalformedOutput)

	_, err = Parse(`{"intent": "qb"} trailing`, cat)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestParseIgnoresNonStringNamesAndNonObjectSlots(t *testing.T) {
	cat := catalog.Default()
	result, err := Parse(`{"intent": null, "dialog_act": 3, "entities": "none"}`, cat)
	require.NoError(t, err)
	assert.Empty(t, result.Intents)
	assert.Empty(t, result.DialogActs)
	assert.Empty(t, result.Slots)
}

func TestParseEmptyContent(t *testing.T) {
	result, err := Parse("  \n ", catalog.Default())
	require.NoError(t, err)
	assert.NotNil(t, result.Intents)
	assert.Empty(t, result.Intents)
}

// An error reason alone does not make the result unsuccessful; only a missing
// intent list does. Callers depend on this.
func TestIsSuccessfulIgnoresErrorReason(t *testing.T) {
	result := NewResult().SetError("model refused")
	assert.True(t, result.IsSuccessful())
	assert.Equal(t, "model refused", result.ErrorReason)

	assert.False(t, (&Result{ErrorReason: "x"}).IsSuccessful())
}

func TestClassify(t *testing.T) {
	cat := catalog.Default()
	provider := &mockProvider{}
	col := metrics.New()
	c := New(provider, cat, col, nil)

	dialog := memory.NewDialog("u1")
	dialog.AddMessage(models.NewMessage(models.RoleUser, "hi"))
	dialog.AddMessage(models.NewMessage(models.RoleBot, "hello, how can I help?"))
	turn := models.NewMessage(models.RoleUser, "cancel booking X9")
	dialog.AddMessage(turn)

	provider.On("Generate", mock.Anything, mock.MatchedBy(func(r *llm.Request) bool {
		user := llm.MessageText(r.Messages[1])
		return len(r.Messages) == 2 && r.Intent == "" &&
			strings.Contains(user, "bot: hello, how can I help?") &&
			strings.Contains(user, "cancel booking X9")
	})).Return(&llm.Response{Content: `{"intent": "cancel_booking", "entities": {"booking_id": "X9"}}`}, nil)

	result, err := c.Classify(context.Background(), dialog, turn)
	require.NoError(t, err)
	assert.Equal(t, []string{"cancel_booking"}, result.IntentNames())
	assert.Equal(t, "X9", result.Slots["booking_id"])
	assert.Equal(t, float64(1), testutil.ToFloat64(col.Classifications.WithLabelValues("recognized")))
	provider.AssertExpectations(t)
}

func TestClassifyProviderError(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	c := New(provider, catalog.Default(), nil, nil)

	result, err := c.Classify(context.Background(), memory.NewDialog("u"), models.NewMessage(models.RoleUser, "x"))
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "timeout", result.ErrorReason)
	assert.False(t, result.IsSuccessful())
	assert.False(t, IsMalformed(err))
}

func TestClassifyMalformed(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{Content: "Sure! Here you go"}, nil)
	c := New(provider, catalog.Default(), nil, nil)

	result, err := c.Classify(context.Background(), nil, models.NewMessage(models.RoleUser, "x"))
	assert.Nil(t, result)
	assert.True(t, IsMalformed(err))
}
