package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsCount(t *testing.T) {
	c := New()

	c.ToolCall("qb_data_schema_retriever", "success")
	c.ToolCall("qb_data_schema_retriever", "success")
	c.LLMCall("qb", 120, 30)
	c.Transition("search_hotels", "GATHERING")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ToolCalls.WithLabelValues("qb_data_schema_retriever", "success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.LLMTokens.WithLabelValues("qb", "input")))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.LLMTokens.WithLabelValues("qb", "output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.IntentTransitions.WithLabelValues("search_hotels", "GATHERING")))
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var c *Collectors

	assert.NotPanics(t, func() {
		c.ToolCall("x", "error")
		c.LLMCall("x", 1, 1)
		c.Classification("ok")
		c.Transition("x", "DONE")
		c.Turn("DONE")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.Turn("NEEDS_INFO")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tod_turns_total{status="NEEDS_INFO"} 1`)
}
