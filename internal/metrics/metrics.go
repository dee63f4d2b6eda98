// Package metrics holds the Prometheus collectors of the dialog service.
// A nil *Collectors is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tod"

type Collectors struct {
	Registry *prometheus.Registry

	ToolCalls         *prometheus.CounterVec
	LLMCalls          *prometheus.CounterVec
	LLMTokens         *prometheus.CounterVec
	Classifications   *prometheus.CounterVec
	IntentTransitions *prometheus.CounterVec
	Turns             *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result status.",
		}, []string{"tool", "status"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language model calls by intent.",
		}, []string{"intent"}),
		LLMTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Language model tokens by intent and direction.",
		}, []string{"intent", "direction"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Intent classifications by outcome.",
		}, []string{"outcome"}),
		IntentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_transitions_total",
			Help:      "Intent server state transitions.",
		}, []string{"intent", "state"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled user turns by response status.",
		}, []string{"status"}),
	}
	c.Registry.MustRegister(
		c.ToolCalls, c.LLMCalls, c.LLMTokens,
		c.Classifications, c.IntentTransitions, c.Turns,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

func (c *Collectors) ToolCall(tool, status string) {
	if c == nil {
		return
	}
	c.ToolCalls.WithLabelValues(tool, status).Inc()
}

func (c *Collectors) LLMCall(intent string, input, output int) {
	if c == nil {
		return
	}
	c.LLMCalls.WithLabelValues(intent).Inc()
	c.LLMTokens.WithLabelValues(intent, "input").Add(float64(input))
	c.LLMTokens.WithLabelValues(intent, "output").Add(float64(output))
}

func (c *Collectors) Classification(outcome string) {
	if c == nil {
		return
	}
	c.Classifications.WithLabelValues(outcome).Inc()
}

func (c *Collectors) Transition(intent, state string) {
	if c == nil {
		return
	}
	c.IntentTransitions.WithLabelValues(intent, state).Inc()
}

func (c *Collectors) Turn(status string) {
	if c == nil {
		return
	}
	c.Turns.WithLabelValues(status).Inc()
}
